// Package tasks holds the periodic maintenance work run through asynq.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// TypeReclaimStale returns silent processing jobs to pending.
	TypeReclaimStale = "jobs:reclaim_stale"

	// QueueMaintenance is the asynq queue the sweeper runs on.
	QueueMaintenance = "maintenance"
)

// ReclaimPayload is the task body for TypeReclaimStale.
type ReclaimPayload struct {
	TTLSeconds float64 `json:"ttl_seconds"`
}

// Reclaimer resets processing jobs not heard from within ttl.
type Reclaimer interface {
	ReclaimStale(ctx context.Context, ttl time.Duration) (int64, error)
}

// NewReclaimTask builds a sweep task for the given lease TTL.
func NewReclaimTask(ttl time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(ReclaimPayload{TTLSeconds: ttl.Seconds()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reclaim payload: %w", err)
	}
	return asynq.NewTask(TypeReclaimStale, payload), nil
}

// ReclaimHandler processes TypeReclaimStale tasks.
type ReclaimHandler struct {
	jobs Reclaimer
	log  *slog.Logger
}

// NewReclaimHandler creates a handler backed by jobs.
func NewReclaimHandler(jobs Reclaimer, log *slog.Logger) *ReclaimHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ReclaimHandler{jobs: jobs, log: log}
}

// ProcessTask handles one sweep.
func (h *ReclaimHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p ReclaimPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal reclaim payload: %v: %w", err, asynq.SkipRetry)
	}
	ttl := time.Duration(p.TTLSeconds * float64(time.Second))
	if ttl <= 0 {
		return nil
	}

	n, err := h.jobs.ReclaimStale(ctx, ttl)
	if err != nil {
		return fmt.Errorf("reclaim stale jobs: %w", err)
	}
	h.log.Debug("lease sweep finished", "reclaimed", n, "ttl", ttl)
	return nil
}

// NewServeMux routes maintenance tasks to their handlers.
func NewServeMux(reclaim *ReclaimHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeReclaimStale, reclaim.ProcessTask)
	return mux
}

// NewServer creates the asynq server that executes maintenance tasks.
func NewServer(opt asynq.RedisConnOpt, logLevel string) *asynq.Server {
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: 1,
		Queues: map[string]int{
			QueueMaintenance: 1,
		},
		LogLevel: LogLevel(logLevel),
	})
}

// NewScheduler registers the periodic sweep under cron spec.
func NewScheduler(opt asynq.RedisConnOpt, spec string, ttl time.Duration, logLevel string) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		LogLevel: LogLevel(logLevel),
	})

	task, err := NewReclaimTask(ttl)
	if err != nil {
		return nil, err
	}
	if _, err := scheduler.Register(spec, task,
		asynq.Queue(QueueMaintenance),
		asynq.MaxRetry(0),
		asynq.Timeout(time.Minute),
	); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", TypeReclaimStale, err)
	}
	return scheduler, nil
}

// LogLevel maps a config log level onto asynq's.
func LogLevel(level string) asynq.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return asynq.DebugLevel
	case "warn":
		return asynq.WarnLevel
	case "error":
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}
