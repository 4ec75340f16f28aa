package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/Ananth-NQI/resellerbot-backend/database"
	"github.com/Ananth-NQI/resellerbot-backend/internal/config"
	"github.com/Ananth-NQI/resellerbot-backend/internal/handlers"
	"github.com/Ananth-NQI/resellerbot-backend/internal/jobs"
	"github.com/Ananth-NQI/resellerbot-backend/internal/logger"
	"github.com/Ananth-NQI/resellerbot-backend/internal/models"
	"github.com/Ananth-NQI/resellerbot-backend/internal/routes"
	"github.com/Ananth-NQI/resellerbot-backend/internal/services"
	"github.com/Ananth-NQI/resellerbot-backend/internal/storage"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if _, err := logger.Init(cfg.Logger); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zap.L().Sync() }()

	// Initialize storage
	var store storage.Store
	var ping func(ctx context.Context) error
	storageType := "PostgreSQL Database"

	if cfg.UseMemoryStore {
		zap.L().Warn("Using in-memory storage (not for production!)")
		store = storage.NewMemoryStore()
		storageType = "In-Memory (Testing)"
	} else {
		db, err := database.Connect(cfg)
		if err != nil {
			zap.L().Fatal("Failed to connect to database", zap.Error(err))
		}

		zap.L().Info("Running database migrations...")
		if err := database.Migrate(db); err != nil {
			zap.L().Fatal("Failed to migrate database", zap.Error(err))
		}
		zap.L().Info("Database migrations completed")

		store = storage.NewDatabaseStore(db)
		ping = func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	storage.SetStore(store)

	// Outbound transports
	evolution := services.NewEvolutionTransport(cfg.Evolution.BaseURL, cfg.Evolution.APIKey, cfg.Bot.HTTPTimeout)
	sender := services.NewSender(cfg.Bot.SendRate)
	sender.Register(models.TransportEvolution, evolution)
	if cfg.TwilioConfigured() {
		twilio, err := services.NewTwilioTransport(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.WhatsAppFrom)
		if err != nil {
			zap.L().Fatal("Failed to initialize Twilio transport", zap.Error(err))
		}
		sender.Register(models.TransportTwilio, twilio)
		zap.L().Info("Twilio transport initialized")
	} else {
		zap.L().Warn("Twilio credentials not found - twilio tenants cannot receive replies")
	}

	pool, err := ants.NewPool(cfg.Bot.NotifyPoolSize, ants.WithNonblocking(true))
	if err != nil {
		zap.L().Fatal("Failed to create worker pool", zap.Error(err))
	}
	defer pool.Release()

	// Engine
	dedup := services.NewDedupCache(cfg.Bot.DedupWindow, cfg.Bot.DedupMaxEntries)
	locks := services.NewSessionLockManager(store, cfg.Bot.LockStaleAfter)
	actions := services.NewActionExecutor(store, cfg.Bot.HTTPTimeout, pool, cfg.Bot.PlanListLimit)
	navigator := services.NewNavigator(store, services.NewMenuEngine(store), services.NewFlowRunner(store), actions, cfg.Bot.MenuCooldown)
	commands := services.NewCommandRegistry()
	services.RegisterDefaultCommands(commands, actions)
	interceptor := services.NewInterceptor(store, dedup, locks, navigator, commands, sender, cfg.Bot.HTTPTimeout)

	maintenance := jobs.NewMaintenanceJob(store, dedup, cfg.Bot.LockStaleAfter, cfg.Bot.LogRetentionDays, cfg.Bot.HTTPTimeout)
	if err := maintenance.Start(); err != nil {
		zap.L().Fatal("Failed to start maintenance jobs", zap.Error(err))
	}

	// Create fiber app
	app := fiber.New(fiber.Config{
		AppName:     "ResellerBot Backend v" + version,
		JSONEncoder: jsoniter.ConfigCompatibleWithStandardLibrary.Marshal,
		JSONDecoder: jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			if code >= fiber.StatusInternalServerError {
				zap.L().Error("request failed", zap.String("path", c.Path()), zap.Error(err))
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Admin-Key",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	routes.SetupRoutes(app,
		routes.Options{
			WebhookSecret:    cfg.WebhookSecret,
			AdminAPIKey:      cfg.AdminAPIKey,
			EnableTestRoutes: !cfg.IsProduction(),
		},
		handlers.NewHealthHandler(version, storageType, ping),
		handlers.NewWhatsAppHandler(store, interceptor, cfg.Bot.DeliverReplies),
		handlers.NewAdminHandler(store, evolution, cfg.Bot.HTTPTimeout),
	)

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		zap.L().Info("Gracefully shutting down...")
		maintenance.Stop()
		_ = app.Shutdown()
	}()

	zap.L().Info("ResellerBot Backend starting",
		zap.String("port", cfg.Port),
		zap.String("storage", storageType),
		zap.String("environment", cfg.Environment),
		zap.Bool("production", cfg.IsProduction()),
		zap.Bool("twilio", cfg.TwilioConfigured()),
		zap.Bool("webhook_signature", cfg.WebhookSecret != ""))

	if err := app.Listen(":" + cfg.Port); err != nil {
		zap.L().Fatal("Server stopped", zap.Error(err))
	}
}
