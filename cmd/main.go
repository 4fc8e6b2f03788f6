package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"kairos/launch/internal/config"
	"kairos/launch/internal/deploy"
	"kairos/launch/internal/envato"
	"kairos/launch/internal/github"
	"kairos/launch/internal/handler"
	"kairos/launch/internal/license"
	"kairos/launch/internal/metrics"
	"kairos/launch/internal/model"
	"kairos/launch/internal/product"
	"kairos/launch/internal/repository"
	"kairos/launch/internal/service"
	"kairos/launch/internal/upstream"
	"kairos/launch/internal/vercel"
	"kairos/launch/pkg/crypto"
	jwtpkg "kairos/launch/pkg/jwt"
	"kairos/launch/pkg/logging"
)

func upstreamConfig(name string, cfg config.UpstreamConfig) upstream.Config {
	return upstream.Config{
		Name:                name,
		Timeout:             cfg.Timeout,
		ConsecutiveFailures: cfg.ConsecutiveFailures,
		OpenTimeout:         cfg.OpenTimeout,
	}
}

func main() {
	// 1. Load configuration
	configPath := "config.yaml"
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		configPath = p
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Initialize logger and metrics
	logger, err := logging.New(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()
	metrics.Register()

	// 3. Connect to PostgreSQL
	db, err := config.NewPostgresDB(cfg.Database.Postgres)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}

	// 4. Auto-migrate if enabled
	if cfg.Database.Postgres.AutoMigrate {
		if err := model.AutoMigrate(db); err != nil {
			logger.Fatal("failed to auto-migrate", zap.Error(err))
		}
		logger.Info("database migration completed")
	}

	// 5. Redis is only dialed when a backend needs it
	var redisClient *redis.Client
	if cfg.State.Backend == "redis" || cfg.License.Backend == "redis" {
		redisClient, err = config.NewRedisClient(cfg.Database.Redis)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
	}

	// 6. Initialize state store (Redis or in-memory)
	var stateStore repository.StateStore
	switch cfg.State.Backend {
	case "redis":
		stateStore = repository.NewRedisStateStore(redisClient, cfg.State.KeyPrefix)
		logger.Info("using Redis state store")
	case "memory":
		stateStore = repository.NewMemoryStateStore()
		logger.Info("using in-memory state store")
	default:
		logger.Fatal("unknown state backend", zap.String("backend", cfg.State.Backend))
	}

	// 7. License cache store
	var licenseStore license.Store
	switch cfg.License.Backend {
	case "redis":
		licenseStore = license.NewRedisStore(redisClient, cfg.License.KeyPrefix)
		logger.Info("using Redis license cache")
	case "memory":
		licenseStore, err = license.NewMemoryStore(cfg.License.Capacity)
		if err != nil {
			logger.Fatal("failed to create license cache", zap.Error(err))
		}
		logger.Info("using in-memory license cache", zap.Int("capacity", cfg.License.Capacity))
	default:
		logger.Fatal("unknown license backend", zap.String("backend", cfg.License.Backend))
	}

	// 8. Secrets
	box, err := crypto.NewBox(cfg.Crypto.SecretKey)
	if err != nil {
		logger.Fatal("invalid crypto.secret_key", zap.Error(err))
	}
	jwtManager := jwtpkg.NewManager(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.TokenTTL)

	// 9. Provider clients
	envatoClient := envato.NewClient(cfg.Envato.BaseURL,
		upstream.NewClient(upstreamConfig("envato", cfg.Envato), logger))
	vercelClient := vercel.NewClient(cfg.Vercel.BaseURL, cfg.Vercel.TeamID,
		upstream.NewClient(upstreamConfig("vercel", cfg.Vercel.UpstreamConfig), logger))
	githubClient := github.NewClient(cfg.GitHub.BaseURL,
		upstream.NewClient(upstreamConfig("github", cfg.GitHub.UpstreamConfig), logger))

	// 10. Product catalog
	catalog := product.NewRegistry(cfg.Products.Dir, logger)
	products, err := catalog.LoadAll()
	if err != nil {
		logger.Fatal("failed to read product configs", zap.Error(err), zap.String("dir", cfg.Products.Dir))
	}
	logger.Info("product configs loaded", zap.Int("count", len(products)), zap.String("dir", cfg.Products.Dir))

	// 11. Repositories and services
	installationRepo := repository.NewPGInstallationRepository(db)
	auditRepo := repository.NewPGAuditLogRepository(db)

	auditService := service.NewAuditService(auditRepo)
	connectionService := service.NewConnectionService(stateStore, box, envatoClient, auditService)
	licenseService := service.NewLicenseService(license.New(licenseStore), envatoClient, connectionService, auditService)
	installationService := service.NewInstallationService(installationRepo, auditService)
	poller := deploy.NewPoller(
		deploy.WithInterval(cfg.Deploy.PollInterval),
		deploy.WithTimeout(cfg.Deploy.Timeout),
	)
	deployService := service.NewDeployService(
		catalog, licenseService, connectionService, installationService, auditService,
		vercelClient, githubClient, poller,
		service.DeployOptions{GitHubToken: cfg.GitHub.Token, Framework: cfg.Deploy.Framework},
	)

	// 12. Handlers and router
	router := handler.SetupRouter(cfg, logger, jwtManager,
		handler.NewProductHandler(catalog),
		handler.NewConnectionHandler(connectionService, auditService),
		handler.NewLicenseHandler(licenseService, auditService),
		handler.NewDeployHandler(deployService, auditService),
		handler.NewInstallationHandler(installationService, auditService, cfg.Admin.UserIDs),
		handler.NewAdminHandler(licenseService, auditService),
	)

	// 13. Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 14. Start server with graceful shutdown
	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exited gracefully")
}
