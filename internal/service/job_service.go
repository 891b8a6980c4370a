package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mixsmvrt/api/internal/client"
	"github.com/mixsmvrt/api/internal/model"
	"github.com/mixsmvrt/api/internal/store"
)

// EventPublisher fans job changes out to live subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event model.JobEvent) error
}

// JobService owns job records on behalf of users and workers.
type JobService struct {
	store         store.JobStore
	storage       client.StorageClient
	events        EventPublisher
	presignExpiry time.Duration
	log           *slog.Logger
}

// NewJobService creates a job service. storage and events may be nil.
func NewJobService(jobStore store.JobStore, storage client.StorageClient, events EventPublisher, presignExpiry time.Duration, log *slog.Logger) *JobService {
	if presignExpiry <= 0 {
		presignExpiry = 15 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &JobService{
		store:         jobStore,
		storage:       storage,
		events:        events,
		presignExpiry: presignExpiry,
		log:           log,
	}
}

// CreateJob queues a new pending job for userID.
func (s *JobService) CreateJob(ctx context.Context, userID string, req *model.CreateJobRequest) (*model.Job, error) {
	flow := model.FlowType(req.FlowType)
	if !model.IsKnownFlow(flow) {
		s.log.Warn("unknown flow type, using generic stages", "flow_type", flow)
	}

	job, err := s.store.Create(ctx, model.NewJob{
		UserID:     userID,
		InputS3Key: req.S3Key,
		Genre:      req.Genre,
		FlowType:   flow,
		PresetName: req.PresetName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.log.Info("job created", "job_id", job.ID, "user_id", userID, "flow_type", flow)
	return job, nil
}

// GetJobStatus returns the user-facing view of a job. The caller must own it.
func (s *JobService) GetJobStatus(ctx context.Context, jobID, userID string) (*model.JobStatusResponse, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, model.ErrForbidden
	}

	resp := &model.JobStatusResponse{
		JobID:            job.ID,
		Status:           job.Status,
		FlowType:         job.FlowType,
		Progress:         job.Progress,
		CurrentStage:     job.CurrentStage,
		ErrorMessage:     job.ErrorMessage,
		QueueFeatureType: job.FlowType,
		Steps:            model.StepStatuses(job.FlowType, job.Progress, job.Status),
	}

	if job.Status == model.JobStatusCompleted && job.OutputS3Key != nil && *job.OutputS3Key != "" {
		url, err := s.presignGet(ctx, *job.OutputS3Key)
		switch {
		case errors.Is(err, model.ErrStorageNotConfigured):
			s.log.Warn("storage not configured, omitting download url", "job_id", job.ID)
		case err != nil:
			return nil, err
		default:
			resp.OutputDownloadURL = &url
		}
	}

	// Best effort: queue info is omitted rather than failing the request.
	qp, err := s.store.QueuePosition(ctx, job.ID, job.FlowType)
	if err != nil {
		s.log.Warn("queue position unavailable", "job_id", job.ID, "error", err)
	} else if qp.Size > 0 {
		size := qp.Size
		resp.QueueSize = &size
		if qp.Position > 0 {
			pos := qp.Position
			resp.QueuePosition = &pos
		}
	}

	return resp, nil
}

// ListJobs returns jobs oldest first.
func (s *JobService) ListJobs(ctx context.Context, status *model.JobStatus, limit int) ([]model.Job, error) {
	if status != nil && !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", model.ErrInvalidInput, *status)
	}
	return s.store.List(ctx, model.JobFilter{Status: status, Limit: limit})
}

// ClaimJob leases the oldest pending job. It returns model.ErrNoJob when
// the backlog is empty.
func (s *JobService) ClaimJob(ctx context.Context) (*model.Job, error) {
	job, err := s.store.Claim(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Info("job claimed", "job_id", job.ID, "flow_type", job.FlowType)
	s.publish(ctx, job)
	return job, nil
}

// UpdateJob applies a worker status patch.
func (s *JobService) UpdateJob(ctx context.Context, jobID string, req *model.UpdateJobRequest) (*model.Job, error) {
	if req.Status == model.JobStatusCompleted && model.Deref(req.OutputS3Key) == "" {
		return nil, fmt.Errorf("%w: output_s3_key is required when completing a job", model.ErrInvalidInput)
	}
	if req.Status != model.JobStatusCompleted && req.OutputS3Key != nil {
		return nil, fmt.Errorf("%w: output_s3_key is only accepted when completing a job", model.ErrInvalidInput)
	}

	job, err := s.store.Update(ctx, jobID, model.JobUpdate{
		Status:       req.Status,
		OutputS3Key:  req.OutputS3Key,
		ErrorMessage: req.ErrorMessage,
		CurrentStage: req.CurrentStage,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("job updated", "job_id", job.ID, "status", job.Status)
	s.publish(ctx, job)
	return job, nil
}

// UpdateProgress records an in-flight progress report.
func (s *JobService) UpdateProgress(ctx context.Context, jobID string, req *model.ProgressRequest) (*model.Job, error) {
	job, err := s.store.UpdateProgress(ctx, jobID, model.ProgressUpdate{
		CurrentStage: req.CurrentStage,
		Progress:     req.Progress,
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, job)
	return job, nil
}

// InputDownloadURL presigns a GET for the job's input artifact.
func (s *JobService) InputDownloadURL(ctx context.Context, jobID string) (string, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	return s.presignGet(ctx, job.InputS3Key)
}

// ReclaimStale returns silent processing jobs to pending.
func (s *JobService) ReclaimStale(ctx context.Context, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, nil
	}
	n, err := s.store.ReclaimStale(ctx, ttl)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Warn("reclaimed stale jobs", "count", n, "ttl", ttl)
	}
	return n, nil
}

// Ping checks the job store.
func (s *JobService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *JobService) presignGet(ctx context.Context, key string) (string, error) {
	if s.storage == nil {
		return "", model.ErrStorageNotConfigured
	}
	url, err := s.storage.PresignGet(ctx, key, s.presignExpiry)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return url, nil
}

func (s *JobService) publish(ctx context.Context, job *model.Job) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, model.EventFromJob(job)); err != nil {
		s.log.Warn("failed to publish job event", "job_id", job.ID, "error", err)
	}
}
