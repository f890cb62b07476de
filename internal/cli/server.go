package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/pslgod1/DigitalTest/internal/app"
	"github.com/pslgod1/DigitalTest/internal/auth"
	"github.com/pslgod1/DigitalTest/internal/config"
	"github.com/pslgod1/DigitalTest/internal/domain"
	"github.com/pslgod1/DigitalTest/internal/infra/memory"
	"github.com/pslgod1/DigitalTest/internal/infra/postgres"
	redisinfra "github.com/pslgod1/DigitalTest/internal/infra/redis"
	"github.com/pslgod1/DigitalTest/internal/notify"
	transport "github.com/pslgod1/DigitalTest/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the assessment server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	verificationTTL := config.TTLDuration(cfg.Verification.TTL, 15*time.Minute)
	cacheTTL := config.TTLDuration(cfg.TestCache.TTL, 10*time.Minute)
	tokenTTL := config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour)

	var (
		users    app.UserStore
		attempts app.AttemptStore
		catalog  app.TestCatalog
		tests    app.TestRepository
	)
	if pool != nil {
		pgTests := postgres.NewTestStore(pool)
		catalog = pgTests
		if redisClient != nil {
			tests = redisinfra.NewTestRepository(redisClient, pgTests, cacheTTL)
		} else {
			tests = memory.NewTestRepository(pgTests, cacheTTL)
		}
		users = postgres.NewUserStore(pool)
		attempts = postgres.NewAttemptStore(pool)
	} else {
		memTests := memory.NewTestStore()
		memTests.Seed(sampleTests()...)
		catalog = memTests
		tests = memory.NewTestRepository(memTests, cacheTTL)
		users = memory.NewUserStore()
		attempts = memory.NewAttemptStore()
	}

	var pending app.PendingStore
	if redisClient != nil {
		pending = redisinfra.NewPendingStore(redisClient, verificationTTL)
	} else {
		pending = memory.NewPendingStore(verificationTTL)
	}

	var sender app.CodeSender = notify.LogSender{}
	if cfg.SMTP.Host != "" {
		sender = notify.NewEmailSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From)
	}

	secret := cfg.Auth.Secret
	if secret == "" {
		secret = "dev-secret"
		log.Printf("auth secret not configured, using development default")
	}
	tokens := auth.NewTokenManager(secret, tokenTTL)

	hub := app.NewResultsHub()
	verification := app.NewVerificationService(pending, users, sender)
	attemptService := app.NewAttemptService(attempts, tests, hub)
	testService := app.NewTestService(catalog, tests)

	api := transport.NewAPIHandler(verification, attemptService, testService, users, tokens)
	results := transport.NewResultsHandler(hub, users, tokens)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	api.Register(mux)
	mux.HandleFunc("GET /ws/results", results.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting digitaltest service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleTests provides demo content for redis-less, postgres-less runs.
func sampleTests() []domain.Test {
	return []domain.Test{
		{
			Title:       "Go basics",
			Description: "Warm-up questions",
			Questions: []domain.Question{
				{Text: "What does 2 + 2 equal?", Answers: []string{"3", "4", "5"}, CorrectAnswerIndex: 1, Type: "SINGLE"},
				{Text: "Which keyword declares a constant?", Answers: []string{"const", "let", "var"}, CorrectAnswerIndex: 0, Type: "SINGLE"},
				{Text: "Which type holds UTF-8 text?", Answers: []string{"int", "bool", "string"}, CorrectAnswerIndex: 2, Type: "SINGLE"},
			},
		},
	}
}
