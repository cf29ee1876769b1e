package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/voxscribe/backend/internal/config"
	"github.com/voxscribe/backend/internal/core/services"
	"github.com/voxscribe/backend/internal/infrastructure/db"
	"github.com/voxscribe/backend/internal/infrastructure/identity"
	"github.com/voxscribe/backend/internal/infrastructure/logger"
	"github.com/voxscribe/backend/internal/infrastructure/queue"
	"github.com/voxscribe/backend/internal/infrastructure/transcribe"
	transporthttp "github.com/voxscribe/backend/internal/transport/http"
	"github.com/voxscribe/backend/internal/transport/ws"
	"github.com/voxscribe/backend/internal/worker"
	"gorm.io/gorm"
)

func main() {
	configPath := "config/config.yaml"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = "../config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	database, err := db.NewPostgresConnection(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	log.Info("database connection established")

	if err := db.RunMigrations(database); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	log.Info("database migrations completed")

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	taskRepo := db.NewTaskRepository(database, log)
	enqueuer := queue.NewEnqueuer(redisOpt, cfg.Queue.Name, log)
	defer enqueuer.Close()
	jobQueue := queue.NewInspector(redisOpt, cfg.Queue.Name, log)

	verifier := identity.NewIntrospectionVerifier(cfg.Auth.IntrospectionURL, cfg.Auth.VerifyTimeout, log)

	gateway := ws.NewGateway(verifier, ws.GatewayConfig{
		VerifyTimeout:   cfg.Auth.VerifyTimeout,
		DisconnectDelay: cfg.Gateway.DisconnectDelay,
	}, log)

	taskService := services.NewTaskService(taskRepo, enqueuer, log)
	statsService := services.NewStatsService(jobQueue, cfg.Stats.FailedThreshold, log)
	reconciler := services.NewReconciler(jobQueue, taskRepo, gateway, log)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Reconcile before accepting traffic: the gateway and the queue both
	// restart empty, and tasks left in PROCESSING need to be classified
	// before clients reconnect and start polling.
	summary := reconciler.Run(ctx)
	log.Infow("startup_reconcile_done", "stale", summary.StaleCount, "recovered", summary.RecoveredCount)
	if cfg.Reconciler.Enabled && cfg.Reconciler.Interval > 0 {
		go reconciler.RunEvery(ctx, cfg.Reconciler.Interval)
	}

	go statsService.Run(ctx, cfg.Stats.Interval)

	var wk *worker.Worker
	if cfg.Worker.Enabled {
		engine := transcribe.NewCommandEngine(cfg.Worker.Command, cfg.Worker.Args, log)
		wk = worker.New(redisOpt, taskRepo, gateway, engine, worker.Config{
			Queue:       cfg.Queue.Name,
			Concurrency: cfg.Queue.Concurrency,
		}, log)
		go func() {
			if err := wk.Start(); err != nil {
				log.Errorf("worker stopped: %v", err)
			}
		}()
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		ErrorHandler:          globalErrorHandler(log),
		DisableStartupMessage: true,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	allowedOrigins := "http://localhost:3000"
	if len(cfg.Auth.AllowedOrigins) > 0 {
		allowedOrigins = strings.Join(cfg.Auth.AllowedOrigins, ",")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, HEAD, PUT, DELETE, PATCH",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	transporthttp.SetupRoutes(app, transporthttp.RouterConfig{
		Logger:   log,
		Verifier: verifier,
		Tasks:    taskService,
		Stats:    statsService,
		Gateway:  gateway,
	})

	go func() {
		if err := app.Listen(cfg.Server.Address()); err != nil {
			log.Fatalf("server failed to start: %v", err)
		}
	}()
	log.Infof("server started on %s", cfg.Server.Address())

	gracefulShutdown(app, database, wk, stop, log)
}

func globalErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		if code == fiber.StatusRequestTimeout || code == fiber.StatusNotFound {
			log.Warnw("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
			)
		} else {
			log.Errorw("request error",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
			)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}

func gracefulShutdown(app *fiber.App, database *gorm.DB, wk *worker.Worker, stop context.CancelFunc, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("shutting down server...")
	stop()

	if wk != nil {
		wk.Shutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Errorf("server forced to shutdown: %v", err)
	}

	if err := db.Close(database); err != nil {
		log.Errorf("failed to close database connection: %v", err)
	}

	log.Info("server exited gracefully")
}
