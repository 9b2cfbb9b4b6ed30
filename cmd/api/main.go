package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-recovery-api/internal/application/credential"
	"github.com/go-recovery-api/internal/application/identity"
	"github.com/go-recovery-api/internal/application/notification"
	"github.com/go-recovery-api/internal/application/recovery"
	"github.com/go-recovery-api/internal/application/verification"
	"github.com/go-recovery-api/internal/config"
	"github.com/go-recovery-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-recovery-api/internal/infrastructure/jwt"
	"github.com/go-recovery-api/internal/infrastructure/memory"
	"github.com/go-recovery-api/internal/infrastructure/redisstore"
	s3infra "github.com/go-recovery-api/internal/infrastructure/s3"
	"github.com/go-recovery-api/internal/infrastructure/smtp"
	"github.com/go-recovery-api/internal/infrastructure/sns"
	transporthttp "github.com/go-recovery-api/internal/transport/http"
	"github.com/go-recovery-api/internal/transport/http/handler"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// codeBackend is what the coordinator needs from whichever code store is selected.
type codeBackend interface {
	verification.CodeStore
	verification.AttemptCounter
	handler.Pinger
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	awsCfg, err := dynamo.LoadAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("aws config: %v", err)
	}

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(awsCfg, cfg)
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)

	accounts := dynamo.NewAccountRepo(dynamoClient, cfg.DynamoTables.Accounts, time.Now)
	codes, closeCodes := newCodeBackend(cfg, dynamoClient)
	defer closeCodes()

	templates := notification.DefaultTemplates()
	if cfg.TemplateBucket != "" {
		store := s3infra.NewTemplateStore(s3infra.NewClient(awsCfg, cfg), cfg.TemplateBucket)
		if err := notification.LoadEmailOverrides(ctx, store, templates); err != nil {
			log.Printf("WARN: email template overrides not loaded: %v", err)
		}
	}

	registry := notification.NewRegistry(
		notification.NewSMSNotifier(sns.NewSender(awsCfg, cfg), templates),
		notification.NewEmailNotifier(smtp.NewMailer(cfg), templates),
	)
	dispatcher := notification.NewDispatcher(registry, cfg.NotifyWorkers, cfg.NotifyQueueSize, cfg.NotifyTimeout)

	coordinator := verification.NewCoordinator(verification.Deps{
		Codes:      codes,
		Attempts:   codes,
		Accounts:   accounts,
		Dispatcher: dispatcher,
		Settings: verification.Settings{
			Validity:     cfg.CodeValidity,
			CodeLength:   cfg.CodeLength,
			MaxAttempts:  cfg.MaxConfirmAttempts,
			StoreTimeout: cfg.StoreTimeout,
		},
	})

	tokens, err := jwtinfra.NewProvider(cfg.ConfirmTokenSecret, time.Now)
	if err != nil {
		log.Fatalf("confirmation token provider: %v", err)
	}

	deps := &transporthttp.Deps{
		Recovery: recovery.NewService(recovery.ServiceDeps{
			Coordinator:  coordinator,
			Codes:        codes,
			Accounts:     accounts,
			Tokens:       tokens,
			Policy:       credential.NewBcryptPolicy(cfg.PasswordHistory),
			GrantTTL:     cfg.ConfirmTokenTTL,
			StoreTimeout: cfg.StoreTimeout,
		}),
		Identity: identity.NewService(identity.ServiceDeps{
			Coordinator:  coordinator,
			Accounts:     accounts,
			StoreTimeout: cfg.StoreTimeout,
		}),
		Checks: map[string]handler.Pinger{
			"code_store":    codes,
			"account_store": accounts,
		},
	}

	router := transporthttp.NewRouter(ctx, cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s, code_store=%s)", cfg.AppPort, cfg.AppEnv, cfg.CodeStore)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Printf("pending notifications dropped: %v", err)
	}
	log.Println("Server stopped")
}

// newCodeBackend selects the code store named by CODE_STORE. The returned
// func releases any connection the backend holds.
func newCodeBackend(cfg *config.Config, dynamoClient dynamo.API) (codeBackend, func()) {
	switch cfg.CodeStore {
	case config.CodeStoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return redisstore.NewCodeStore(client, cfg.RedisPrefix), func() {
			if err := client.Close(); err != nil {
				log.Printf("redis close: %v", err)
			}
		}
	case config.CodeStoreMemory:
		log.Println("WARN: in-memory code store; codes do not survive restarts or span instances")
		return memory.NewCodeStore(time.Now), func() {}
	default:
		return dynamo.NewCodeRepo(dynamoClient, cfg.DynamoTables.VerificationCodes, time.Now), func() {}
	}
}
