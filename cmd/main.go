package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"org-service/internal/config"
	orgevents "org-service/internal/events"
	"org-service/internal/handlers"
	"org-service/internal/jobs"
	"org-service/internal/middleware"
	"org-service/internal/models"
	"org-service/internal/org"
	"org-service/internal/repository"
	"org-service/internal/routing"
	"org-service/internal/services"

	"github.com/Tesseract-Nexus/go-shared/events"
	gosharedmw "github.com/Tesseract-Nexus/go-shared/middleware"
)

// @title Org Hierarchy & Approvals API
// @version 1.0.0
// @description Role hierarchy, permission and approval routing service
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url http://www.example.com/support
// @contact.email support@example.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8094
// @BasePath /api/v1

// @securityDefinitions.bearer BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	logger.SetLevel(logrus.InfoLevel)

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using system environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Load the role catalog. An invalid catalog is a fatal configuration
	// error: the service must not start with a broken hierarchy.
	catalog, err := org.Load()
	if err != nil {
		logger.Fatal("Failed to load role catalog: ", err)
	}
	logger.Infof("Role catalog loaded with %d roles", len(catalog.Roles()))

	router := routing.NewRouter(catalog)

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database: ", err)
	}

	// Run database migrations
	logger.Info("Running database migrations...")
	if err := db.AutoMigrate(
		&models.ApprovalRequest{},
		&models.ApprovalStep{},
		&models.ApprovalAuditLog{},
		&models.ApprovalDelegation{},
	); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Database migrations completed")

	// Initialize repository
	approvalRepo := repository.NewApprovalRepository(db)

	// Initialize event publisher (optional - service works without NATS)
	var sharedPublisher *events.Publisher
	if cfg.NATSURL != "" {
		publisherConfig := events.DefaultPublisherConfig(cfg.NATSURL)
		publisherConfig.Name = "org-service"
		sharedPublisher, err = events.NewPublisher(publisherConfig, logger)
		if err != nil {
			logger.Warnf("Failed to initialize event publisher: %v. Events will not be published.", err)
			sharedPublisher = nil
		} else {
			logger.Info("Event publisher initialized")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := sharedPublisher.EnsureStream(ctx, events.StreamApprovals, []string{"approval.>"}); err != nil {
				logger.Warnf("Failed to ensure approval stream: %v", err)
			}
		}
	} else {
		logger.Info("NATS_URL not configured, event publishing disabled")
	}
	publisher := orgevents.NewPublisher(sharedPublisher, logger)

	// Initialize services
	approvalService := services.NewApprovalService(approvalRepo, catalog, router, publisher, logger)
	delegationService := services.NewDelegationService(approvalRepo, logger)

	// Initialize handlers
	approvalHandler := handlers.NewApprovalHandler(approvalService)
	delegationHandler := handlers.NewDelegationHandler(delegationService)
	roleHandler := handlers.NewRoleHandler(catalog)

	// Start stale escalation job
	var staleJob *jobs.StaleEscalationJob
	jobCtx, jobCancel := context.WithCancel(context.Background())
	if cfg.StaleAfterHours > 0 {
		staleJob = jobs.NewStaleEscalationJob(approvalService, logger, time.Duration(cfg.StaleAfterHours)*time.Hour)
		go staleJob.Start(jobCtx)
		logger.Infof("Stale escalation job started (idle window %dh)", cfg.StaleAfterHours)
	} else {
		logger.Info("STALE_AFTER_HOURS is 0, stale escalation disabled")
	}

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Logger())
	engine.Use(gin.Recovery())

	// Add CORS middleware
	engine.Use(middleware.CORS())

	// Health check endpoints (no auth required)
	engine.GET("/health", handlers.HealthCheck)
	engine.GET("/ready", handlers.ReadinessCheck)

	// Protected API routes
	api := engine.Group("/api/v1")

	// Authentication: Istio JWT claims when running behind the mesh, a
	// locally signed token otherwise
	if cfg.JWTSecret != "" {
		api.Use(middleware.LocalJWT(cfg.JWTSecret))
		logger.Info("Local JWT authentication enabled")
	} else {
		api.Use(gosharedmw.IstioAuth(gosharedmw.IstioAuthConfig{
			RequireAuth:        true,
			AllowLegacyHeaders: false,
			SkipPaths:          []string{"/health", "/ready", "/metrics", "/swagger"},
		}))
	}

	// Every authenticated caller is resolved to a catalog principal
	api.Use(middleware.Principal(catalog))

	// Approval endpoints
	{
		api.POST("/approvals", approvalHandler.CreateRequest)
		api.POST("/approvals/route-preview", approvalHandler.RoutePreview)
		api.GET("/approvals/pending", approvalHandler.ListPending)
		api.GET("/approvals/mine", approvalHandler.ListMine)
		api.GET("/approvals/:id", approvalHandler.GetRequest)
		api.POST("/approvals/:id/decide", approvalHandler.Decide)
		api.GET("/approvals/:id/history", approvalHandler.GetHistory)
	}

	// Permission endpoints
	{
		api.GET("/permissions/check", approvalHandler.CheckPermission)
		api.GET("/permissions/scope", approvalHandler.GetScope)
	}

	// Role catalog endpoints
	{
		api.GET("/roles", roleHandler.ListRoles)
		api.GET("/roles/:code", roleHandler.GetRole)
		api.GET("/roles/:code/chain", roleHandler.GetReportingChain)
	}

	// Delegation endpoints
	{
		api.POST("/delegations", delegationHandler.CreateDelegation)
		api.GET("/delegations/outgoing", delegationHandler.ListOutgoing)
		api.GET("/delegations/incoming", delegationHandler.ListIncoming)
		api.GET("/delegations/:id", delegationHandler.GetDelegation)
		api.POST("/delegations/:id/revoke", delegationHandler.RevokeDelegation)
	}

	// Swagger documentation
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Start server
	port := cfg.Port
	if port == "" {
		port = "8094"
	}

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Infof("Org service starting on port %s", port)
		if err := engine.Run(":" + port); err != nil {
			logger.Fatal("Failed to start server: ", err)
		}
	}()

	// Wait for interrupt signal
	<-quit
	logger.Info("Shutting down server...")

	jobCancel()
	if staleJob != nil {
		staleJob.Stop()
	}
	publisher.Close()

	logger.Info("Server shutdown complete")
}
