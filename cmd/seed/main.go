package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/oksasatya/coherency-auth/config"
	"github.com/oksasatya/coherency-auth/internal/application"
	pginfra "github.com/oksasatya/coherency-auth/internal/infrastructure/postgres"
	"github.com/oksasatya/coherency-auth/pkg/helpers"
)

// seed registers a demo account through the regular registration path so the
// stored salt and digest match what login expects.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger := helpers.NewLogger(cfg.AppName, cfg.Env)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pginfra.NewPool(ctx, pginfra.PoolConfig{DSN: cfg.PostgresDSN(), MaxConns: 2})
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	if err := pginfra.RunMigrations(cfg.PostgresDSN(), cfg.MigrationsDir, logger); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	hasher, err := helpers.NewPasswordHasher(cfg.Argon2())
	if err != nil {
		log.Fatalf("hasher: %v", err)
	}
	tokens, err := helpers.NewJWTManager(cfg.JWT())
	if err != nil {
		log.Fatalf("jwt: %v", err)
	}

	ledger := application.NewAttemptLedger(pginfra.NewLoginAttemptRepository(pool), logger)
	svc := application.NewAuthService(
		pginfra.NewUserRepository(pool),
		pginfra.NewCredentialRepository(pool),
		ledger,
		hasher,
		tokens,
		cfg.LockoutPolicy(),
		logger,
	)

	email := "demo@example.com"
	password := "Demo-Passw0rd!2024"
	user := "demo_user"
	v, err := svc.Register(ctx, application.RegisterInput{
		Username:  user,
		Email:     email,
		Password:  password,
		FirstName: "Demo",
		LastName:  "User",
	})
	if err != nil {
		if application.KindOf(err) == application.KindConflict {
			fmt.Printf("demo user already present: email=%s\n", email)
			return
		}
		log.Fatalf("failed to seed user: %v", err)
	}
	fmt.Printf("seeded user: id=%s email=%s username=%s password=%s\n", v.ID, v.Email, v.Username, password)
}
