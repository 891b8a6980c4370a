package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/mixsmvrt/api/internal/middleware"
	"github.com/mixsmvrt/api/internal/model"
	"github.com/mixsmvrt/api/internal/service"
	"github.com/mixsmvrt/api/pkg/response"
)

// JobHandler serves the user-facing job routes
type JobHandler struct {
	service   *service.JobService
	validator *validator.Validate
}

func NewJobHandler(svc *service.JobService, v *validator.Validate) *JobHandler {
	return &JobHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /api/jobs
func (h *JobHandler) Create(c *fiber.Ctx) error {
	var req model.CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	userID := middleware.GetUserID(c)
	if userID == "" {
		return response.Unauthorized(c, "Missing user identity")
	}

	job, err := h.service.CreateJob(c.UserContext(), userID, &req)
	if err != nil {
		return serviceError(c, err)
	}

	return response.Created(c, model.CreateJobResponse{JobID: job.ID})
}

// LegacyCreate handles POST /create-job, where the caller names the owner
func (h *JobHandler) LegacyCreate(c *fiber.Ctx) error {
	var req model.LegacyCreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	job, err := h.service.CreateJob(c.UserContext(), req.UserID, &model.CreateJobRequest{
		S3Key:      req.S3Key,
		Genre:      req.Genre,
		FlowType:   req.FlowType,
		PresetName: req.PresetName,
	})
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, model.CreateJobResponse{JobID: job.ID})
}

// Status handles GET /api/jobs/:jobId
func (h *JobHandler) Status(c *fiber.Ctx) error {
	return h.status(c, middleware.GetUserID(c))
}

// LegacyStatus handles GET /job/:jobId?user_id=
func (h *JobHandler) LegacyStatus(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return response.ValidationError(c, "user_id is required", nil)
	}
	return h.status(c, userID)
}

func (h *JobHandler) status(c *fiber.Ctx, userID string) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetJobStatus(c.UserContext(), jobID, userID)
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, result)
}
