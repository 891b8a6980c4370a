package handler

import (
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/mixsmvrt/api/internal/model"
	"github.com/mixsmvrt/api/pkg/response"
)

// formatValidationErrors flattens validator errors into field -> tag.
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

// serviceError maps a service-layer error onto an HTTP response.
func serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, model.ErrForbidden):
		return response.Forbidden(c, "Forbidden")
	case errors.Is(err, model.ErrInvalidInput):
		return response.ValidationError(c, err.Error(), nil)
	case errors.Is(err, model.ErrFileTooLarge):
		return response.PayloadTooLarge(c, err.Error(), fiber.Map{"max_file_size_bytes": model.MaxUploadBytes})
	case errors.Is(err, model.ErrStorageNotConfigured):
		return response.ServiceUnavailable(c, "Object storage is not configured")
	default:
		slog.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
		return response.ServiceError(c, "Internal server error")
	}
}
