package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"github.com/pslgod1/DigitalTest/internal/app"
	"github.com/pslgod1/DigitalTest/internal/domain"
	"github.com/pslgod1/DigitalTest/internal/infra/postgres"
	pgmigrations "github.com/pslgod1/DigitalTest/internal/infra/postgres/migrations"
	infraredis "github.com/pslgod1/DigitalTest/internal/infra/redis"
)

type channelSender struct {
	codes chan string
}

func (s *channelSender) SendCode(_, code string) error {
	s.codes <- code
	return nil
}

func (s *channelSender) wait(t *testing.T) string {
	t.Helper()
	select {
	case code := <-s.codes:
		return code
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for verification code")
		return ""
	}
}

func TestVerifiedRegistrationAndAttemptEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	testStore := postgres.NewTestStore(pool)
	userStore := postgres.NewUserStore(pool)
	attemptStore := postgres.NewAttemptStore(pool)
	pending := infraredis.NewPendingStore(redisClient, 15*time.Minute)
	repo := infraredis.NewTestRepository(redisClient, testStore, 5*time.Minute)

	sender := &channelSender{codes: make(chan string, 4)}
	verification := app.NewVerificationService(pending, userStore, sender)
	attempts := app.NewAttemptService(attemptStore, repo, app.NewResultsHub())

	// Email-verified registration against real Redis and Postgres.
	regID, err := verification.StartRegistration(ctx, domain.RegistrationProfile{
		Email:        "alice@example.com",
		Name:         "Alice",
		PasswordHash: "hash-1",
	})
	if err != nil {
		t.Fatalf("start registration: %v", err)
	}
	code := sender.wait(t)

	if _, err := verification.VerifyRegistration(ctx, regID, "000000"); !errors.Is(err, domain.ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}
	user, err := verification.VerifyRegistration(ctx, regID, code)
	if err != nil {
		t.Fatalf("verify registration: %v", err)
	}
	if user.ID == 0 || user.Role != domain.RoleUser {
		t.Fatalf("unexpected user %+v", user)
	}
	if _, err := verification.VerifyRegistration(ctx, regID, code); !errors.Is(err, domain.ErrRegistrationNotFound) {
		t.Fatalf("expected ErrRegistrationNotFound on reuse, got %v", err)
	}

	// Author a test and run a scored attempt through the cached repository.
	test, err := testStore.CreateTest(ctx, domain.Test{
		Title:   "Integration basics",
		AdminID: user.ID,
		Questions: []domain.Question{
			{Text: "q1", Answers: []string{"a", "b"}, CorrectAnswerIndex: 1, Type: "SINGLE"},
			{Text: "q2", Answers: []string{"a", "b"}, CorrectAnswerIndex: 0, Type: "SINGLE"},
		},
	})
	if err != nil {
		t.Fatalf("create test: %v", err)
	}

	attempt, err := attempts.CreateAttempt(ctx, user.ID, test.ID)
	if err != nil {
		t.Fatalf("create attempt: %v", err)
	}

	right := test.Questions[0].CorrectAnswerIndex
	wrong := test.Questions[1].CorrectAnswerIndex + 1
	if _, err := attempts.RecordAnswer(ctx, attempt.ID, test.Questions[0].ID, &right); err != nil {
		t.Fatalf("record answer 1: %v", err)
	}
	if _, err := attempts.RecordAnswer(ctx, attempt.ID, test.Questions[1].ID, &wrong); err != nil {
		t.Fatalf("record answer 2: %v", err)
	}
	if _, err := attempts.RecordAnswer(ctx, attempt.ID, test.Questions[0].ID, &right); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected ErrAlreadyAnswered, got %v", err)
	}

	completed, err := attempts.CompleteAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Percentage != 50.0 {
		t.Fatalf("percentage = %v, want 50.0", completed.Percentage)
	}
	if completed.CompletedAt == nil {
		t.Fatal("expected completion timestamp")
	}

	again, err := attempts.CompleteAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if !again.CompletedAt.Equal(*completed.CompletedAt) {
		t.Fatalf("completion timestamp moved: %v -> %v", completed.CompletedAt, again.CompletedAt)
	}

	if _, err := attempts.RecordAnswer(ctx, attempt.ID, test.Questions[1].ID, &right); !errors.Is(err, domain.ErrAttemptCompleted) {
		t.Fatalf("expected ErrAttemptCompleted, got %v", err)
	}

	history, err := attempts.ListAttemptsForUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(history) != 1 || len(history[0].Answers) != 2 {
		t.Fatalf("unexpected history %+v", history)
	}

	// Password reset round trip against the same stores.
	resetID, err := verification.StartPasswordReset(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("start reset: %v", err)
	}
	resetCode := sender.wait(t)
	if err := verification.VerifyResetCode(ctx, resetID, resetCode); err != nil {
		t.Fatalf("verify reset code: %v", err)
	}
	if _, err := verification.ConsumePasswordReset(ctx, resetID, "hash-2"); err != nil {
		t.Fatalf("consume reset: %v", err)
	}
	updated, err := userStore.ByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if updated.PasswordHash != "hash-2" {
		t.Fatal("password hash not rotated")
	}
}

func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "digital", "POSTGRES_PASSWORD": "digitalpass", "POSTGRES_DB": "digitaltest"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://digital:digitalpass@%s:%s/digitaltest?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
