// Package worker drives claimed jobs from the gateway to a terminal state.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/mixsmvrt/api/internal/model"
	"github.com/mixsmvrt/api/internal/progress"
	"github.com/mixsmvrt/api/internal/render"
)

// Gateway is the backend surface the worker talks to.
type Gateway interface {
	progress.Sink
	Claim(ctx context.Context) (*model.Job, error)
	InputDownloadURL(ctx context.Context, jobID string) (string, error)
}

// Fetcher downloads a URL to a local path.
type Fetcher interface {
	Fetch(ctx context.Context, url, dst string) error
}

// Uploader stores a local file under an object key.
type Uploader interface {
	UploadFile(ctx context.Context, key, path, contentType string) error
}

// Options tune one worker loop.
type Options struct {
	Name                string
	PollInterval        time.Duration
	MaxRetries          int
	BackoffBase         time.Duration
	BackoffCap          time.Duration
	MinScratchFreeBytes uint64
	ScratchDir          string
	ErrorMaxLength      int

	// ConfigErr, when set, is reported on every iteration instead of claiming.
	ConfigErr error
}

// Worker is one sequential claim/render/report loop.
type Worker struct {
	gateway  Gateway
	fetcher  Fetcher
	uploader Uploader
	renderer render.Renderer
	opts     Options
	log      *slog.Logger

	sleep    func(ctx context.Context, d time.Duration) error
	diskFree func(path string) (uint64, error)
	now      func() time.Time
}

// New creates a Worker. Zero-valued options fall back to the documented defaults.
func New(gw Gateway, fetcher Fetcher, uploader Uploader, renderer render.Renderer, opts Options, log *slog.Logger) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 5 * time.Second
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = 15 * time.Second
	}
	if opts.ErrorMaxLength <= 0 {
		opts.ErrorMaxLength = 3900
	}
	if opts.ScratchDir == "" {
		opts.ScratchDir = os.TempDir()
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.Name != "" {
		log = log.With("worker", opts.Name)
	}

	return &Worker{
		gateway:  gw,
		fetcher:  fetcher,
		uploader: uploader,
		renderer: renderer,
		opts:     opts,
		log:      log,
		sleep:    sleepCtx,
		diskFree: DiskFree,
		now:      time.Now,
	}
}

// Run loops until ctx is cancelled. A job already in flight is finished
// before Run returns.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("worker started", "poll_interval", w.opts.PollInterval, "max_retries", w.opts.MaxRetries)
	for {
		if ctx.Err() != nil {
			w.log.Info("worker stopped")
			return
		}

		claimed, err := w.RunOnce(ctx)
		if err != nil {
			w.log.Error("worker loop error", "error", err)
		}
		if err != nil || !claimed {
			if w.sleep(ctx, w.opts.PollInterval) != nil {
				w.log.Info("worker stopped")
				return
			}
		}
	}
}

// RunOnce claims at most one job and drives it to a terminal state. It
// reports whether a job was claimed. Errors are loop-level faults; per-job
// failures are reported to the gateway and do not surface here.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	if w.opts.ConfigErr != nil {
		return false, fmt.Errorf("worker misconfigured: %w", w.opts.ConfigErr)
	}

	job, err := w.gateway.Claim(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNoJob) {
			return false, nil
		}
		return false, err
	}
	if job.ID == "" {
		return true, fmt.Errorf("invalid claimed job payload: missing job_id")
	}

	w.log.Info("claimed job", "job_id", job.ID, "flow_type", job.FlowType)

	// The claimed job is owned until a terminal write, even during shutdown.
	w.process(context.WithoutCancel(ctx), job)
	return true, nil
}

func (w *Worker) process(ctx context.Context, job *model.Job) {
	rep := progress.NewReporter(w.gateway, job.ID, job.FlowType)

	if job.UserID == "" || job.FlowType == "" {
		w.fail(ctx, rep, job.ID, fmt.Errorf("%w: claimed job is missing user_id or flow_type", model.ErrInvalidInput))
		return
	}

	if err := w.checkScratch(); err != nil {
		w.fail(ctx, rep, job.ID, err)
		return
	}

	var lastErr error
	for attempt := 1; attempt <= w.opts.MaxRetries; attempt++ {
		lastErr = w.attempt(ctx, job, rep)
		if lastErr == nil {
			w.log.Info("job completed", "job_id", job.ID, "attempt", attempt)
			return
		}

		w.log.Warn("job attempt failed",
			"job_id", job.ID,
			"attempt", attempt,
			"max_retries", w.opts.MaxRetries,
			"error", lastErr,
		)
		if attempt < w.opts.MaxRetries {
			_ = w.sleep(ctx, w.backoff(attempt))
		}
	}

	w.fail(ctx, rep, job.ID, lastErr)
}

// attempt runs one download/render/upload/complete pass in a private
// scratch directory that is always removed.
func (w *Worker) attempt(ctx context.Context, job *model.Job, rep *progress.Reporter) error {
	dir, err := os.MkdirTemp(w.opts.ScratchDir, "mixsmvrt-"+job.ID+"-")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			w.log.Warn("scratch cleanup failed", "job_id", job.ID, "dir", dir, "error", err)
		}
	}()

	inputPath := filepath.Join(dir, "input.wav")
	outputPath := filepath.Join(dir, "output.wav")

	url, err := w.gateway.InputDownloadURL(ctx, job.ID)
	if err != nil {
		return err
	}
	if err := w.fetcher.Fetch(ctx, url, inputPath); err != nil {
		return err
	}

	req := render.Request{
		JobID:      job.ID,
		FlowType:   job.FlowType,
		PresetName: model.Deref(job.PresetName),
		Genre:      model.Deref(job.Genre),
		InputPath:  inputPath,
		OutputPath: outputPath,
	}
	err = w.renderer.Render(ctx, req, func(index int) {
		if err := rep.StageDone(ctx, index); err != nil {
			w.log.Warn("progress update failed", "job_id", job.ID, "stage", index, "error", err)
		}
	})
	if err != nil {
		return err
	}

	outputKey := model.OutputKey(job.UserID, job.ID, "wav", w.now())
	if err := w.uploader.UploadFile(ctx, outputKey, outputPath, "audio/wav"); err != nil {
		return err
	}

	return rep.Complete(ctx, outputKey, "")
}

func (w *Worker) fail(ctx context.Context, rep *progress.Reporter, jobID string, cause error) {
	msg := Truncate(cause.Error(), w.opts.ErrorMaxLength)
	w.log.Error("job failed", "job_id", jobID, "error", msg)

	if err := rep.Fail(ctx, msg); err != nil {
		w.log.Error("failed to report job failure", "job_id", jobID, "error", err)
	}
}

func (w *Worker) checkScratch() error {
	if w.opts.MinScratchFreeBytes == 0 {
		return nil
	}
	free, err := w.diskFree(w.opts.ScratchDir)
	if err != nil {
		return fmt.Errorf("check scratch space: %w", err)
	}
	if free < w.opts.MinScratchFreeBytes {
		return fmt.Errorf("%w: %s has %d bytes free, required minimum is %d bytes",
			model.ErrInsufficientScratch, w.opts.ScratchDir, free, w.opts.MinScratchFreeBytes)
	}
	return nil
}

func (w *Worker) backoff(attempt int) time.Duration {
	d := w.opts.BackoffBase * time.Duration(attempt)
	if d > w.opts.BackoffCap {
		return w.opts.BackoffCap
	}
	return d
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
