package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/coherency-auth/config"
	"github.com/oksasatya/coherency-auth/internal/application"
	"github.com/oksasatya/coherency-auth/internal/container"
	"github.com/oksasatya/coherency-auth/internal/domain/repository"
	"github.com/oksasatya/coherency-auth/internal/infrastructure/lock"
	"github.com/oksasatya/coherency-auth/internal/infrastructure/memory"
	pginfra "github.com/oksasatya/coherency-auth/internal/infrastructure/postgres"
	handlers "github.com/oksasatya/coherency-auth/internal/interface/http"
	"github.com/oksasatya/coherency-auth/internal/router/modules"
	"github.com/oksasatya/coherency-auth/pkg/response"
)

type AuthModuleDeps struct {
	Users    repository.UserRepository
	Creds    repository.CredentialRepository
	Attempts repository.LoginAttemptRepository
	Service  *application.AuthService
	Handler  *handlers.AuthHandler
}

func buildRepositories(cfg *config.Config) (repository.UserRepository, repository.CredentialRepository, repository.LoginAttemptRepository) {
	if cfg.StorageDriver == config.StorageDriverMemory || container.GetPGPool() == nil {
		creds := memory.NewCredentialRepository()
		return memory.NewUserRepository(creds), creds, memory.NewLoginAttemptRepository()
	}
	pool := container.GetPGPool()
	return pginfra.NewUserRepository(pool), pginfra.NewCredentialRepository(pool), pginfra.NewLoginAttemptRepository(pool)
}

func buildAuthDeps() AuthModuleDeps {
	cfg := container.GetConfig()
	logger := container.GetLogger()
	users, creds, attempts := buildRepositories(cfg)

	var ledgerOpts []application.LedgerOption
	if pub := container.GetRabbitPub(); pub != nil {
		ledgerOpts = append(ledgerOpts, application.WithEventPublisher(pub))
	}
	ledger := application.NewAttemptLedger(attempts, logger, ledgerOpts...)

	var svcOpts []application.Option
	if rdb := container.GetRedis(); rdb != nil {
		gate := lock.NewRedisGate(rdb, lock.Config{TTL: cfg.LoginGateTTL, Wait: cfg.LoginGateWait}, logger)
		svcOpts = append(svcOpts, application.WithAccountGate(gate))
	}

	service := application.NewAuthService(
		users,
		creds,
		ledger,
		container.GetHasher(),
		container.GetJWT(),
		cfg.LockoutPolicy(),
		logger,
		svcOpts...,
	)

	return AuthModuleDeps{
		Users:    users,
		Creds:    creds,
		Attempts: attempts,
		Service:  service,
		Handler:  handlers.NewAuthHandler(service, logger),
	}
}

// InitModules initializes all application modules and registers them with the router registry
// This function should be called once during application startup to wire up all modules
func InitModules(r *Registry) {
	authDeps := buildAuthDeps()
	storage := container.GetConfig().StorageDriver
	r.Add(ModuleFunc(func(rg *gin.RouterGroup) {
		rg.GET("/health", func(c *gin.Context) {
			response.Success(c, http.StatusOK, gin.H{"storage": storage}, "ok", nil)
		})
	}))
	r.Add(modules.NewAuthModule(authDeps.Handler, container.GetJWT()))
	if container.GetConfig().DebugMetricsEnabled {
		r.Add(modules.NewDebugModule())
	}
}
