package handler

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/mixsmvrt/api/internal/model"
	"github.com/mixsmvrt/api/internal/service"
	"github.com/mixsmvrt/api/internal/store"
	"github.com/mixsmvrt/api/pkg/response"
)

// WorkerJobHandler serves the routes DSP workers poll and report to
type WorkerJobHandler struct {
	service   *service.JobService
	validator *validator.Validate
}

func NewWorkerJobHandler(svc *service.JobService, v *validator.Validate) *WorkerJobHandler {
	return &WorkerJobHandler{
		service:   svc,
		validator: v,
	}
}

// List handles GET /jobs?status=&limit=
func (h *WorkerJobHandler) List(c *fiber.Ctx) error {
	limit := store.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > store.MaxListLimit {
			return response.ValidationError(c, "limit must be between 1 and 100", nil)
		}
		limit = n
	}

	var status *model.JobStatus
	if raw := c.Query("status"); raw != "" {
		s := model.JobStatus(raw)
		status = &s
	}

	jobs, err := h.service.ListJobs(c.UserContext(), status, limit)
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, model.JobListResponse{Jobs: jobs})
}

// Claim handles POST /jobs/claim
func (h *WorkerJobHandler) Claim(c *fiber.Ctx) error {
	job, err := h.service.ClaimJob(c.UserContext())
	if err != nil {
		if errors.Is(err, model.ErrNoJob) {
			return response.NoPendingJobs(c)
		}
		return serviceError(c, err)
	}

	return response.OK(c, job)
}

// Update handles PATCH /jobs/:jobId
func (h *WorkerJobHandler) Update(c *fiber.Ctx) error {
	var req model.UpdateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	job, err := h.service.UpdateJob(c.UserContext(), c.Params("jobId"), &req)
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, job)
}

// Progress handles PATCH /jobs/:jobId/progress
func (h *WorkerJobHandler) Progress(c *fiber.Ctx) error {
	var req model.ProgressRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	job, err := h.service.UpdateProgress(c.UserContext(), c.Params("jobId"), &req)
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, job)
}

// InputDownloadURL handles GET /jobs/:jobId/input-download-url
func (h *WorkerJobHandler) InputDownloadURL(c *fiber.Ctx) error {
	url, err := h.service.InputDownloadURL(c.UserContext(), c.Params("jobId"))
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, model.DownloadURLResponse{DownloadURL: url})
}
