// Package progress turns stage completion into persisted percentages.
package progress

import (
	"context"
	"fmt"
	"math"

	"github.com/mixsmvrt/api/internal/model"
)

const defaultFinalStage = "Completed"

// Percentage computes round(completed/total*100) after clamping completed
// into [0, total]. A non-positive total yields 0.
func Percentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	if completed < 0 {
		completed = 0
	}
	if completed > total {
		completed = total
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

// Sink persists progress writes. The worker's gateway client and the job
// service both satisfy it.
type Sink interface {
	UpdateProgress(ctx context.Context, jobID string, upd model.ProgressUpdate) error
	UpdateJob(ctx context.Context, jobID string, upd model.JobUpdate) error
}

// Reporter tracks one job through its stage template.
type Reporter struct {
	sink   Sink
	jobID  string
	stages []string
	done   int
}

// NewReporter creates a Reporter for a job of the given flow type.
func NewReporter(sink Sink, jobID string, flow model.FlowType) *Reporter {
	return &Reporter{
		sink:   sink,
		jobID:  jobID,
		stages: model.StagesFor(flow),
	}
}

// Stages returns the stage template being reported against.
func (r *Reporter) Stages() []string {
	return r.stages
}

// StageDone records that stage index (0-based) finished and persists
// {processing, label, percentage}. Repeated or out-of-order calls never
// move the reported percentage backwards.
func (r *Reporter) StageDone(ctx context.Context, index int) error {
	if index < 0 || index >= len(r.stages) {
		return fmt.Errorf("stage %d out of range for %d stages", index, len(r.stages))
	}
	if index+1 > r.done {
		r.done = index + 1
	}
	return r.sink.UpdateProgress(ctx, r.jobID, model.ProgressUpdate{
		CurrentStage: r.stages[index],
		Progress:     Percentage(r.done, len(r.stages)),
	})
}

// CurrentStage names the stage in flight: the first not yet completed, or
// the last stage when all are done.
func (r *Reporter) CurrentStage() string {
	if len(r.stages) == 0 {
		return ""
	}
	if r.done >= len(r.stages) {
		return r.stages[len(r.stages)-1]
	}
	return r.stages[r.done]
}

// Complete marks the job completed with the given output. Progress is forced
// to 100 by the store.
func (r *Reporter) Complete(ctx context.Context, outputKey, finalStage string) error {
	if finalStage == "" {
		finalStage = defaultFinalStage
	}
	return r.sink.UpdateJob(ctx, r.jobID, model.JobUpdate{
		Status:       model.JobStatusCompleted,
		OutputS3Key:  &outputKey,
		CurrentStage: &finalStage,
	})
}

// Fail marks the job failed. The percentage is left untouched so the last
// reached value stays visible.
func (r *Reporter) Fail(ctx context.Context, errMsg string) error {
	stage := "Error during " + r.CurrentStage()
	return r.sink.UpdateJob(ctx, r.jobID, model.JobUpdate{
		Status:       model.JobStatusFailed,
		ErrorMessage: &errMsg,
		CurrentStage: &stage,
	})
}
