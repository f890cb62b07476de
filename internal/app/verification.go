package app

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pslgod1/DigitalTest/internal/domain"
)

// PendingStore keeps unverified registration and password-reset records.
// Implementations must be linearizable per id; operations on unrelated ids
// must not block each other. Records are stamped with the store's clock on
// save and refresh, and entries may be lost on process restart.
type PendingStore interface {
	SaveRegistration(ctx context.Context, rec domain.PendingRegistration) error
	// ConsumeRegistration validates the code and removes the record in one
	// step. Expired records are removed on lookup.
	ConsumeRegistration(ctx context.Context, id, code string) (domain.PendingRegistration, error)
	// RefreshRegistration replaces the stored code and restarts the TTL window.
	RefreshRegistration(ctx context.Context, id, code string) (domain.PendingRegistration, error)

	SavePasswordReset(ctx context.Context, rec domain.PendingPasswordReset) error
	// VerifyPasswordReset checks the code and marks the record verified
	// without removing it: reset is two-phase, verify then consume.
	VerifyPasswordReset(ctx context.Context, id, code string) error
	// ConsumePasswordReset removes a previously verified record.
	ConsumePasswordReset(ctx context.Context, id string) (domain.PendingPasswordReset, error)

	// Sweep drops expired records of both kinds.
	Sweep(ctx context.Context)
}

// UserStore is the durable account store.
type UserStore interface {
	ByEmail(ctx context.Context, email string) (domain.User, error)
	ByID(ctx context.Context, id int64) (domain.User, error)
	Create(ctx context.Context, user domain.User) (domain.User, error)
	UpdatePassword(ctx context.Context, email, passwordHash string) error
	UpdateRole(ctx context.Context, email string, role domain.Role) (domain.User, error)
	ListByRole(ctx context.Context, role domain.Role) ([]domain.User, error)
}

// CodeSender delivers verification codes. Delivery runs asynchronously and
// failures are not observed by callers of the verification flows.
type CodeSender interface {
	SendCode(to, code string) error
}

// VerificationService drives the email-verified registration and
// password-reset flows on top of a TTL-bound pending-code store.
type VerificationService struct {
	store  PendingStore
	users  UserStore
	sender CodeSender
	now    func() time.Time
}

func NewVerificationService(store PendingStore, users UserStore, sender CodeSender) *VerificationService {
	return &VerificationService{
		store:  store,
		users:  users,
		sender: sender,
		now:    time.Now,
	}
}

// StartRegistration stores a pending registration under a fresh opaque id,
// mails the code to the candidate, and returns the id. Fails with
// domain.ErrEmailTaken when the email already belongs to an account.
func (s *VerificationService) StartRegistration(ctx context.Context, profile domain.RegistrationProfile) (string, error) {
	profile.Email = normalizeEmail(profile.Email)

	_, err := s.users.ByEmail(ctx, profile.Email)
	switch {
	case err == nil:
		return "", domain.ErrEmailTaken
	case !errors.Is(err, domain.ErrUserNotFound):
		return "", err
	}

	rec := domain.PendingRegistration{
		ID:      uuid.NewString(),
		Profile: profile,
		Code:    newCode(),
	}
	if err := s.store.SaveRegistration(ctx, rec); err != nil {
		return "", err
	}

	s.deliver(rec.Profile.Email, rec.Code)
	s.store.Sweep(ctx)
	return rec.ID, nil
}

// VerifyRegistration consumes the pending record when the code matches and
// persists the candidate as a real account with the USER role.
func (s *VerificationService) VerifyRegistration(ctx context.Context, id, code string) (domain.User, error) {
	rec, err := s.store.ConsumeRegistration(ctx, id, code)
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		Email:        rec.Profile.Email,
		Name:         rec.Profile.Name,
		PasswordHash: rec.Profile.PasswordHash,
		Role:         domain.RoleUser,
		CreatedAt:    s.now(),
	}
	return s.users.Create(ctx, user)
}

// ResendRegistrationCode replaces the stored code, restarts the TTL window,
// and re-triggers delivery.
func (s *VerificationService) ResendRegistrationCode(ctx context.Context, id string) error {
	rec, err := s.store.RefreshRegistration(ctx, id, newCode())
	if err != nil {
		return err
	}

	s.deliver(rec.Profile.Email, rec.Code)
	s.store.Sweep(ctx)
	return nil
}

// StartPasswordReset stores a pending reset for a known account and mails
// the code. Fails with domain.ErrUserNotFound for unknown emails.
func (s *VerificationService) StartPasswordReset(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	if _, err := s.users.ByEmail(ctx, email); err != nil {
		return "", err
	}

	rec := domain.PendingPasswordReset{
		ID:    uuid.NewString(),
		Email: email,
		Code:  newCode(),
	}
	if err := s.store.SavePasswordReset(ctx, rec); err != nil {
		return "", err
	}

	s.deliver(rec.Email, rec.Code)
	s.store.Sweep(ctx)
	return rec.ID, nil
}

// VerifyResetCode checks the code against the pending reset and marks the
// record verified. The record stays retrievable until consumed or expired.
func (s *VerificationService) VerifyResetCode(ctx context.Context, id, code string) error {
	return s.store.VerifyPasswordReset(ctx, id, code)
}

// ConsumePasswordReset applies the new password hash to the account behind a
// verified reset, removes the record, and returns the affected email.
func (s *VerificationService) ConsumePasswordReset(ctx context.Context, id, newPasswordHash string) (string, error) {
	rec, err := s.store.ConsumePasswordReset(ctx, id)
	if err != nil {
		return "", err
	}
	if err := s.users.UpdatePassword(ctx, rec.Email, newPasswordHash); err != nil {
		return "", err
	}
	return rec.Email, nil
}

func (s *VerificationService) deliver(to, code string) {
	go func() {
		if err := s.sender.SendCode(to, code); err != nil {
			log.Printf("send verification code to %s: %v", to, err)
		}
	}()
}

// newCode returns a 6-digit numeric verification code.
func newCode() string {
	return strconv.Itoa(rand.Intn(900000) + 100000)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
