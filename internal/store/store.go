package store

import (
	"context"
	"time"

	"github.com/mixsmvrt/api/internal/model"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// JobStore is the durable record of processing jobs.
//
// Claim and Update are the only operations that move a job between
// statuses. Claim hands out at most one pending job per call and never
// hands the same job to two callers.
type JobStore interface {
	Create(ctx context.Context, job model.NewJob) (*model.Job, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	List(ctx context.Context, filter model.JobFilter) ([]model.Job, error)

	// Claim moves the oldest pending job to processing. It returns
	// model.ErrNoJob when nothing is claimable.
	Claim(ctx context.Context) (*model.Job, error)

	// Update writes a status change. The output key is kept only on a
	// completed job. It returns model.ErrNotFound for an unknown id.
	Update(ctx context.Context, id string, upd model.JobUpdate) (*model.Job, error)

	// UpdateProgress records in-flight progress on a processing job.
	// Progress never decreases. Writes against a pending or terminal job
	// are ignored and the job is returned unchanged.
	UpdateProgress(ctx context.Context, id string, upd model.ProgressUpdate) (*model.Job, error)

	// QueuePosition counts active jobs of a flow type and locates jobID
	// among them by creation order. Position is 0 when the job is not active.
	QueuePosition(ctx context.Context, jobID string, flow model.FlowType) (*model.QueuePosition, error)

	// ReclaimStale returns processing jobs untouched for longer than ttl to
	// pending and reports how many were moved.
	ReclaimStale(ctx context.Context, ttl time.Duration) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// NormalizeLimit applies the default and maximum listing size.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
