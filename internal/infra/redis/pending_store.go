package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pslgod1/DigitalTest/internal/domain"
)

// PendingStore keeps pending registration and password-reset records in
// Redis. Each record carries its creation timestamp so the TTL check stays
// identical to the in-memory store; the key itself is kept for twice the TTL
// so a just-expired id still reports expiry instead of not-found until Redis
// evicts it. All check-then-act steps run in Lua, so operations on one id
// are atomic and operations on unrelated ids never contend.
type PendingStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPendingStore(client *redis.Client, ttl time.Duration) *PendingStore {
	return &PendingStore{client: client, ttl: ttl}
}

type registrationRecord struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	PasswordHash string `json:"passwordHash"`
	Code         string `json:"code"`
	CreatedAt    int64  `json:"createdAt"`
}

type resetRecord struct {
	Email     string `json:"email"`
	Code      string `json:"code"`
	Verified  bool   `json:"verified"`
	CreatedAt int64  `json:"createdAt"`
}

// consumeRegistrationLua atomically performs GET -> expiry check -> code
// check -> DEL on a pending registration.
var consumeRegistrationLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end
local rec = cjson.decode(data)
if tonumber(ARGV[2]) - rec.createdAt > tonumber(ARGV[3]) then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end
if rec.code ~= ARGV[1] then
  return {err='mismatch'}
end
redis.call('DEL', KEYS[1])
return data
`)

// refreshRegistrationLua swaps in a new code and restarts the TTL window.
var refreshRegistrationLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end
local rec = cjson.decode(data)
if tonumber(ARGV[2]) - rec.createdAt > tonumber(ARGV[3]) then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end
rec.code = ARGV[1]
rec.createdAt = tonumber(ARGV[2])
local updated = cjson.encode(rec)
redis.call('SET', KEYS[1], updated, 'PX', tonumber(ARGV[4]))
return updated
`)

// verifyResetLua checks the code and marks the record verified, keeping the
// remaining key TTL untouched.
var verifyResetLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end
local rec = cjson.decode(data)
if tonumber(ARGV[2]) - rec.createdAt > tonumber(ARGV[3]) then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end
if rec.code ~= ARGV[1] then
  return {err='mismatch'}
end
rec.verified = true
local ttlMs = redis.call('PTTL', KEYS[1])
if ttlMs <= 0 then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end
redis.call('SET', KEYS[1], cjson.encode(rec), 'PX', ttlMs)
return 'OK'
`)

// consumeResetLua removes a verified reset record and returns it.
var consumeResetLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end
local rec = cjson.decode(data)
if tonumber(ARGV[1]) - rec.createdAt > tonumber(ARGV[2]) then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end
if not rec.verified then
  return {err='not_found'}
end
redis.call('DEL', KEYS[1])
return data
`)

func (s *PendingStore) SaveRegistration(ctx context.Context, rec domain.PendingRegistration) error {
	record := registrationRecord{
		Email:        rec.Profile.Email,
		Name:         rec.Profile.Name,
		PasswordHash: rec.Profile.PasswordHash,
		Code:         rec.Code,
		CreatedAt:    time.Now().Unix(),
	}
	return s.save(ctx, s.registrationKey(rec.ID), record)
}

func (s *PendingStore) ConsumeRegistration(ctx context.Context, id, code string) (domain.PendingRegistration, error) {
	result, err := consumeRegistrationLua.Run(ctx, s.client,
		[]string{s.registrationKey(id)},
		code, time.Now().Unix(), int64(s.ttl.Seconds()),
	).Result()
	if err != nil {
		return domain.PendingRegistration{}, s.mapError(err, domain.ErrRegistrationNotFound)
	}

	record, err := decodeRegistration(result)
	if err != nil {
		return domain.PendingRegistration{}, err
	}
	return domain.PendingRegistration{
		ID: id,
		Profile: domain.RegistrationProfile{
			Email:        record.Email,
			Name:         record.Name,
			PasswordHash: record.PasswordHash,
		},
		Code:      record.Code,
		CreatedAt: time.Unix(record.CreatedAt, 0),
	}, nil
}

func (s *PendingStore) RefreshRegistration(ctx context.Context, id, code string) (domain.PendingRegistration, error) {
	result, err := refreshRegistrationLua.Run(ctx, s.client,
		[]string{s.registrationKey(id)},
		code, time.Now().Unix(), int64(s.ttl.Seconds()), s.graceMillis(),
	).Result()
	if err != nil {
		return domain.PendingRegistration{}, s.mapError(err, domain.ErrRegistrationNotFound)
	}

	record, err := decodeRegistration(result)
	if err != nil {
		return domain.PendingRegistration{}, err
	}
	return domain.PendingRegistration{
		ID: id,
		Profile: domain.RegistrationProfile{
			Email:        record.Email,
			Name:         record.Name,
			PasswordHash: record.PasswordHash,
		},
		Code:      record.Code,
		CreatedAt: time.Unix(record.CreatedAt, 0),
	}, nil
}

func (s *PendingStore) SavePasswordReset(ctx context.Context, rec domain.PendingPasswordReset) error {
	record := resetRecord{
		Email:     rec.Email,
		Code:      rec.Code,
		CreatedAt: time.Now().Unix(),
	}
	return s.save(ctx, s.resetKey(rec.ID), record)
}

func (s *PendingStore) VerifyPasswordReset(ctx context.Context, id, code string) error {
	err := verifyResetLua.Run(ctx, s.client,
		[]string{s.resetKey(id)},
		code, time.Now().Unix(), int64(s.ttl.Seconds()),
	).Err()
	if err != nil {
		return s.mapError(err, domain.ErrResetNotFound)
	}
	return nil
}

func (s *PendingStore) ConsumePasswordReset(ctx context.Context, id string) (domain.PendingPasswordReset, error) {
	result, err := consumeResetLua.Run(ctx, s.client,
		[]string{s.resetKey(id)},
		time.Now().Unix(), int64(s.ttl.Seconds()),
	).Result()
	if err != nil {
		return domain.PendingPasswordReset{}, s.mapError(err, domain.ErrResetNotFound)
	}

	data, ok := result.(string)
	if !ok {
		return domain.PendingPasswordReset{}, fmt.Errorf("%w: unexpected lua result type", domain.ErrStoreUnavailable)
	}
	var record resetRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return domain.PendingPasswordReset{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return domain.PendingPasswordReset{
		ID:        id,
		Email:     record.Email,
		Code:      record.Code,
		Verified:  record.Verified,
		CreatedAt: time.Unix(record.CreatedAt, 0),
	}, nil
}

// Sweep is a no-op: Redis evicts expired keys on its own.
func (s *PendingStore) Sweep(_ context.Context) {}

func (s *PendingStore) save(ctx context.Context, key string, record any) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, encoded, time.Duration(s.graceMillis())*time.Millisecond).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// graceMillis is the physical key lifetime: twice the logical TTL, so the
// expiry error stays observable for a while after the code lapses.
func (s *PendingStore) graceMillis() int64 {
	return (2 * s.ttl).Milliseconds()
}

func (s *PendingStore) mapError(err error, notFound error) error {
	switch err.Error() {
	case "not_found":
		return notFound
	case "expired":
		return domain.ErrCodeExpired
	case "mismatch":
		return domain.ErrCodeMismatch
	default:
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
}

func (s *PendingStore) registrationKey(id string) string {
	return "pending:registration:" + id
}

func (s *PendingStore) resetKey(id string) string {
	return "pending:reset:" + id
}

func decodeRegistration(result interface{}) (registrationRecord, error) {
	data, ok := result.(string)
	if !ok {
		return registrationRecord{}, fmt.Errorf("%w: unexpected lua result type", domain.ErrStoreUnavailable)
	}
	var record registrationRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return registrationRecord{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return record, nil
}
