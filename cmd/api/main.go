package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"hearth/internal/clock"
	"hearth/internal/config"
	"hearth/internal/database"
	"hearth/internal/handlers"
	"hearth/internal/logger"
	"hearth/internal/middleware"
	"hearth/internal/notify"
	"hearth/internal/services"
	"hearth/internal/validator"
	"hearth/internal/worker"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "hearth/internal/docs" // Import swagger docs
)

// @title           Hearth API
// @version         1.0
// @description     Hearth is a household budgeting service that decomposes funding periods into weekly ledgers, schedules recurring payments, and reconciles them into a single transaction history.
// @termsOfService  http://swagger.io/terms/

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Register custom request validators
	validator.Register()

	// Initialize database configuration
	dbConfig := database.NewConfig()

	// Create database manager
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}

	// Run migrations
	if err := dbManager.Migrate(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	// Optional AMQP publisher; events are persisted either way.
	var publisher *notify.Publisher
	if appConfig.AMQPURL != "" {
		publisher, err = notify.NewPublisher(appConfig.AMQPURL, appConfig.AMQPExchange)
		if err != nil {
			return fmt.Errorf("failed to connect to AMQP broker: %w", err)
		}
		defer publisher.Close()
	}

	// Initialize services
	db := dbManager.DB()
	clk := clock.New()
	gate := services.OwnerGate{}
	notifier := notify.NewService(db, publisher)

	userService := services.NewUserService(db)
	categoryService := services.NewCategoryService(db)
	auditService := services.NewAuditService(db)
	notificationService := services.NewNotificationService(db, clk)
	periodService := services.NewPeriodService(db, clk, gate)
	ledgerService := services.NewLedgerService(db, clk, gate, notifier)
	reconciler := services.NewReconciliationService(db, clk, gate)
	scheduleService := services.NewScheduleService(db, clk, gate, ledgerService, reconciler, notifier)
	reportService := services.NewReportService(db)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(userService)
	categoryHandler := handlers.NewCategoryHandler(categoryService, auditService)
	periodHandler := handlers.NewPeriodHandler(periodService, ledgerService, auditService)
	ledgerHandler := handlers.NewLedgerHandler(ledgerService, reconciler, auditService)
	scheduleHandler := handlers.NewScheduleHandler(scheduleService, auditService)
	reportHandler := handlers.NewReportHandler(reportService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 group
	v1 := router.Group("/api/v1")

	// Public routes
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	// User profile
	protected.GET("/profile", authHandler.GetProfile)

	// Period routes
	periods := protected.Group("/periods")
	periods.POST("", periodHandler.CreatePeriod)
	periods.GET("", periodHandler.GetPeriods)
	periods.GET("/:id", periodHandler.GetPeriod)
	periods.DELETE("/:id", periodHandler.DeletePeriod)
	periods.PATCH("/:id/status", periodHandler.UpdatePeriodStatus)
	periods.POST("/:id/recalculate", periodHandler.RecalculateTotal)
	periods.POST("/:id/cleanup-future", periodHandler.CleanupFutureSlices)
	periods.PATCH("/:id/weeks/:week", periodHandler.UpdateSliceAmount)
	periods.POST("/:id/weeks/:week/ledger", periodHandler.MaterializeLedger)

	// Ledger routes
	ledgers := protected.Group("/ledgers")
	ledgers.GET("/:id", ledgerHandler.GetLedger)
	ledgers.GET("/:id/spending", ledgerHandler.GetSpending)
	ledgers.POST("/:id/categories/:categoryId/payments", ledgerHandler.AddPayment)
	ledgers.PUT("/:id/categories/:categoryId", ledgerHandler.SetAllocation)
	ledgers.PATCH("/:id/entries/:entryId/status", ledgerHandler.SetEntryStatus)

	// Schedule routes
	schedules := protected.Group("/schedules")
	schedules.POST("", scheduleHandler.CreateSchedule)
	schedules.GET("", scheduleHandler.GetSchedules)
	schedules.GET("/:id", scheduleHandler.GetSchedule)
	schedules.PUT("/:id", scheduleHandler.UpdateSchedule)
	schedules.DELETE("/:id", scheduleHandler.DeleteSchedule)
	schedules.POST("/:id/pay", scheduleHandler.MarkPaid)
	schedules.PATCH("/:id/status", scheduleHandler.SetStatus)

	// Report routes
	reports := protected.Group("/reports")
	reports.GET("/transactions", reportHandler.GetTransactions)
	reports.GET("/aggregate", reportHandler.Aggregate)
	reports.GET("/performance", reportHandler.GetPerformance)
	reports.GET("/summary", reportHandler.GetSummary)

	// Category routes
	categories := protected.Group("/categories")
	categories.POST("", categoryHandler.CreateCategory)
	categories.GET("", categoryHandler.GetCategories)
	categories.GET("/:id", categoryHandler.GetCategory)
	categories.PUT("/:id", categoryHandler.UpdateCategory)
	categories.DELETE("/:id", categoryHandler.DeleteCategory)

	// Notification routes
	notifications := protected.Group("/notifications")
	notifications.GET("", notificationHandler.GetNotifications)
	notifications.POST("/:id/read", notificationHandler.MarkRead)

	// Background sweeps
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := worker.NewSweeper(scheduleService, ledgerService, reconciler, worker.Intervals{
		Overdue:   appConfig.OverdueInterval,
		Reminder:  appConfig.ReminderInterval,
		Alert:     appConfig.AlertInterval,
		Reconcile: appConfig.ReconcileInterval,
	})
	go func() {
		if err := sweeper.Run(ctx); err != nil && err != context.Canceled {
			log.Errorw("sweeper stopped", "error", err)
		}
	}()

	log.Infof("Starting Hearth backend server on port %s", appConfig.Port)
	log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
	return router.Run(":" + appConfig.Port)
}
