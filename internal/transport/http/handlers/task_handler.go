package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/voxscribe/backend/internal/core/ports"
	"github.com/voxscribe/backend/internal/core/services"
	"github.com/voxscribe/backend/internal/infrastructure/logger"
	"github.com/voxscribe/backend/internal/transport/http/middleware"
)

type TaskHandler struct {
	service *services.TaskService
	logger  *logger.Logger
}

func NewTaskHandler(service *services.TaskService, logger *logger.Logger) *TaskHandler {
	return &TaskHandler{service: service, logger: logger}
}

type createTaskRequest struct {
	FileName string `json:"file_name"`
	FilePath string `json:"file_path"`
}

func (h *TaskHandler) CreateTask(c *fiber.Ctx) error {
	ownerID, _ := c.Locals(middleware.OwnerIDKey).(string)

	var req createTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.FileName == "" || req.FilePath == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file_name and file_path are required"})
	}

	task, err := h.service.CreateTask(c.UserContext(), ownerID, req.FileName, req.FilePath)
	if err != nil {
		h.logger.Errorw("task_create_failed", "owner", ownerID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create task"})
	}

	return c.Status(fiber.StatusCreated).JSON(task)
}

// GetTask is the poll fallback endpoint. A task belonging to someone else
// reads as not found rather than forbidden.
func (h *TaskHandler) GetTask(c *fiber.Ctx) error {
	ownerID, _ := c.Locals(middleware.OwnerIDKey).(string)
	id := c.Params("id")

	task, err := h.service.GetTask(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, ports.ErrTaskNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "task not found"})
		}
		h.logger.Errorw("task_get_failed", "id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch task"})
	}
	if task.OwnerID != ownerID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "task not found"})
	}

	return c.JSON(task)
}
