package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kairos/launch/internal/config"
	"kairos/launch/internal/handler/middleware"
	"kairos/launch/internal/metrics"
	jwtpkg "kairos/launch/pkg/jwt"
)

func SetupRouter(
	cfg *config.Config,
	logger *zap.Logger,
	jwtManager *jwtpkg.Manager,
	productHandler *ProductHandler,
	connectionHandler *ConnectionHandler,
	licenseHandler *LicenseHandler,
	deployHandler *DeployHandler,
	installationHandler *InstallationHandler,
	adminHandler *AdminHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery())
	r.Use(metrics.Middleware())
	r.Use(middleware.CORS(cfg.CORS))

	// Health check and metrics
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Public product metadata for the installer landing page
	r.GET("/api/v1/products/:productId", productHandler.Get)

	// Protected routes
	protected := r.Group("/api/v1")
	protected.Use(middleware.JWTAuth(jwtManager))
	{
		protected.GET("/connections", connectionHandler.Status)
		protected.PUT("/connections/:provider", connectionHandler.Connect)
		protected.DELETE("/connections/:provider", connectionHandler.Disconnect)

		protected.POST("/verify/license", licenseHandler.Verify)

		protected.POST("/deploy/start", deployHandler.Start)
		protected.GET("/deploy/status", deployHandler.Status)
		protected.GET("/deploy/status/stream", deployHandler.Stream)

		protected.GET("/installations", installationHandler.List)
	}

	// Admin routes (JWT + admin check)
	if adminHandler != nil {
		admin := r.Group("/api/v1/admin")
		admin.Use(middleware.JWTAuth(jwtManager))
		admin.Use(middleware.AdminAuth(cfg.Admin.UserIDs))
		{
			admin.GET("/license-cache", adminHandler.LicenseCacheStats)
			admin.DELETE("/license-cache", adminHandler.ClearLicenseCache)
			admin.DELETE("/license-cache/:userId/:itemId", adminHandler.ClearLicenseEntry)
			admin.GET("/audit-logs", adminHandler.ListAuditLogs)
		}
	}

	return r
}
