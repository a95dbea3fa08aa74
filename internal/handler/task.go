package handler

import (
	"crypto/subtle"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/pagesforge/api/internal/model"
	"github.com/pagesforge/api/internal/service"
	"github.com/pagesforge/api/pkg/response"
)

// TaskHandler accepts build/update task submissions
type TaskHandler struct {
	service   *service.TaskService
	validator *validator.Validate
	secret    string
}

func NewTaskHandler(svc *service.TaskService, v *validator.Validate, secret string) *TaskHandler {
	return &TaskHandler{
		service:   svc,
		validator: v,
		secret:    secret,
	}
}

// Submit handles POST /task. A well-formed request with the right secret is
// always acknowledged immediately; the job runs in the background and all
// failures surface later through the evaluation callback.
func (h *TaskHandler) Submit(c *fiber.Ctx) error {
	var req model.TaskRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	log.Printf("=====New task received | Email=%s | Round=%d | Task=%s=====", req.Email, req.Round, req.Task)

	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.secret)) != 1 {
		log.Printf("==========Invalid secret received from %s==========", req.Email)
		return response.Forbidden(c, "Invalid secret")
	}

	if req.Slug() == "" {
		return response.ValidationError(c, "Task name yields an empty slug", nil)
	}

	ack, err := h.service.SubmitTask(c.Context(), &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, ack)
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
