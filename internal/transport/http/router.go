package http

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/voxscribe/backend/internal/core/ports"
	"github.com/voxscribe/backend/internal/core/services"
	"github.com/voxscribe/backend/internal/infrastructure/logger"
	"github.com/voxscribe/backend/internal/transport/http/handlers"
	httpmw "github.com/voxscribe/backend/internal/transport/http/middleware"
	"github.com/voxscribe/backend/internal/transport/ws"
)

type RouterConfig struct {
	Logger   *logger.Logger
	Verifier ports.TokenVerifier
	Tasks    *services.TaskService
	Stats    *services.StatsService
	Gateway  *ws.Gateway
}

func SetupRoutes(app *fiber.App, cfg RouterConfig) {
	taskHandler := handlers.NewTaskHandler(cfg.Tasks, cfg.Logger)
	statsHandler := handlers.NewStatsHandler(cfg.Stats, cfg.Logger)

	// Notification gateway. Token auth happens inside the websocket
	// handshake, not here: the upgrade request must reach the handler so
	// the auth_error event can be delivered over the socket itself.
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})
	app.Get("/ws/notifications", websocket.New(cfg.Gateway.Handle))

	api := app.Group("/api/v1")

	tasks := api.Group("/tasks", httpmw.BearerAuth(cfg.Verifier))
	tasks.Post("/", taskHandler.CreateTask)
	tasks.Get("/:id", taskHandler.GetTask)

	api.Get("/stats", httpmw.BearerAuth(cfg.Verifier), statsHandler.GetStats)
}
