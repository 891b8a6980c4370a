package model

import "errors"

var (
	ErrNotFound             = errors.New("job not found")
	ErrNoJob                = errors.New("no pending jobs")
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInsufficientScratch  = errors.New("insufficient scratch space")
	ErrStorageNotConfigured = errors.New("object storage not configured")
	ErrFileTooLarge         = errors.New("file too large")
)
