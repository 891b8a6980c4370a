package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/mixsmvrt/api/internal/middleware"
	"github.com/mixsmvrt/api/internal/model"
	"github.com/mixsmvrt/api/internal/service"
	"github.com/mixsmvrt/api/pkg/response"
)

type UploadHandler struct {
	service   *service.UploadService
	validator *validator.Validate
}

func NewUploadHandler(svc *service.UploadService, v *validator.Validate) *UploadHandler {
	return &UploadHandler{
		service:   svc,
		validator: v,
	}
}

// URL handles POST /api/upload-url
func (h *UploadHandler) URL(c *fiber.Ctx) error {
	var req model.UploadURLRequest
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

	result, err := h.service.CreateUploadURL(c.UserContext(), userID, &req)
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, result)
}

// LegacyURL handles POST /generate-upload-url, where the caller names the owner
func (h *UploadHandler) LegacyURL(c *fiber.Ctx) error {
	var req model.LegacyUploadURLRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.CreateUploadURL(c.UserContext(), req.UserID, &model.UploadURLRequest{
		Filename:      req.Filename,
		ContentType:   req.ContentType,
		FileSizeBytes: req.FileSizeBytes,
	})
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, result)
}
