package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mixsmvrt/api/internal/client"
	"github.com/mixsmvrt/api/internal/model"
)

// UploadService issues presigned upload URLs for job inputs
type UploadService struct {
	storage client.StorageClient
	expiry  time.Duration
	now     func() time.Time
	log     *slog.Logger
}

// NewUploadService creates a new upload service. A nil storage client
// yields mock URLs for local development.
func NewUploadService(storage client.StorageClient, expiry time.Duration, log *slog.Logger) *UploadService {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &UploadService{
		storage: storage,
		expiry:  expiry,
		now:     time.Now,
		log:     log,
	}
}

// CreateUploadURL derives a per-user key and presigns a PUT for it
func (s *UploadService) CreateUploadURL(ctx context.Context, userID string, req *model.UploadURLRequest) (*model.UploadURLResponse, error) {
	if req.FileSizeBytes != nil && *req.FileSizeBytes > model.MaxUploadBytes {
		return nil, fmt.Errorf("%w: max supported size is %d bytes", model.ErrFileTooLarge, model.MaxUploadBytes)
	}

	key := model.UploadKey(userID, req.Filename, s.now())

	// Use mock response if client is not configured
	if s.storage == nil {
		return s.uploadURLMock(key), nil
	}

	url, err := s.storage.PresignPut(ctx, key, req.ContentType, s.expiry)
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	s.log.Info("upload url issued", "user_id", userID, "s3_key", key)
	return &model.UploadURLResponse{
		UploadURL:        url,
		S3Key:            key,
		ExpiresIn:        int(s.expiry.Seconds()),
		MaxFileSizeBytes: model.MaxUploadBytes,
	}, nil
}

// Mock implementation for development/testing
func (s *UploadService) uploadURLMock(key string) *model.UploadURLResponse {
	return &model.UploadURLResponse{
		UploadURL:        fmt.Sprintf("http://localhost:9000/mock-bucket/%s", key),
		S3Key:            key,
		ExpiresIn:        int(s.expiry.Seconds()),
		MaxFileSizeBytes: model.MaxUploadBytes,
	}
}
