package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"blockflow/internal/config"
	"blockflow/internal/executor"
	"blockflow/internal/handlers"
	"blockflow/internal/jobs"
	"blockflow/internal/logging"
	"blockflow/internal/logsession"
	"blockflow/internal/middleware"
	"blockflow/internal/registry"
	"blockflow/internal/runlock"
	"blockflow/internal/tools"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Blockflow Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Env: %s)", cfg.Port, cfg.Environment)

	// Redis is optional: without it the run lock and daily quota degrade to
	// single-instance, in-process behavior.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("❌ Invalid REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		log.Println("✅ Redis client configured")
	} else {
		log.Println("⚠️ REDIS_URL not set - distributed run locks and quotas disabled")
	}

	// Tool catalog
	toolRegistry := tools.NewRegistry()
	toolRegistry.Register(tools.NewHTTPRequestTool())
	toolRegistry.Register(tools.TimeNowTool{})
	toolRegistry.Register(tools.FunctionTool{})
	toolRegistry.Register(tools.NewLLMChatTool(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel))
	toolRunner := tools.NewRunner(toolRegistry, cfg.ToolTimeout)
	log.Printf("🔧 Tools registered: %v", toolRegistry.IDs())

	// Stores and engine collaborators
	schemas := registry.NewSchemaRegistry()
	workflowStore := registry.NewWorkflowStore()
	sessions := logsession.NewStore(500)
	collab := executor.Collaborators{
		Tools:     toolRunner,
		Schemas:   schemas,
		Logs:      sessions,
		Workflows: workflowStore,
	}

	locks := runlock.NewManager(redisClient, cfg.RunLockTTL)
	tracker := runlock.NewTracker()
	limiter := middleware.NewExecutionLimiter(redisClient, cfg.MaxConcurrentRuns, cfg.MaxRunsPerDay)
	hub := handlers.NewUpdateHub()

	workflowHandler := handlers.NewWorkflowHandler(workflowStore, schemas)
	executionHandler := handlers.NewExecutionHandler(workflowStore, sessions, locks, limiter, tracker, collab, hub)

	// Schedule-trigger runner
	var scheduler *jobs.Scheduler
	if cfg.EnableScheduler {
		scheduler = jobs.NewScheduler(workflowStore, collab, locks, tracker)
		scheduler.Start()
	}

	app := fiber.New(fiber.Config{
		AppName:               "blockflow",
		DisableStartupMessage: true,
	})

	prometheus := fiberprometheus.New("blockflow")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		status := "ok"
		if tracker.IsDraining() {
			status = "draining"
		}
		return c.JSON(fiber.Map{
			"status":     status,
			"activeRuns": locks.ActiveCount(),
			"inFlight":   tracker.ActiveRuns(),
		})
	})

	api := app.Group("/api")
	api.Get("/blocks", workflowHandler.BlockTypes)
	api.Post("/workflows", workflowHandler.Save)
	api.Get("/workflows", workflowHandler.List)
	api.Get("/workflows/:id", workflowHandler.Get)
	api.Delete("/workflows/:id", workflowHandler.Delete)

	api.Post("/workflows/:id/execute", limiter.CheckLimit, executionHandler.Execute)
	api.Post("/webhooks/:workflowId", limiter.CheckLimit, executionHandler.Webhook)
	api.Post("/runs/:id/continue", executionHandler.Continue)
	api.Post("/runs/:id/cancel", executionHandler.Cancel)
	api.Get("/runs/:id", executionHandler.GetRun)
	api.Get("/runs", executionHandler.ListRuns)

	app.Use("/ws/runs", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/runs", websocket.New(hub.Handle))

	go func() {
		log.Printf("🌐 Listening on :%s", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	// Graceful shutdown: stop scheduling, drain active runs, then stop Fiber.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Shutdown signal received")

	if scheduler != nil {
		scheduler.Stop()
	}
	tracker.Drain(cfg.DrainTimeout)

	if err := app.Shutdown(); err != nil {
		log.Printf("⚠️ Fiber shutdown error: %v", err)
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Printf("⚠️ Redis close error: %v", err)
		}
	}
	log.Println("👋 Server stopped")
}
