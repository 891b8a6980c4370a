package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mixsmvrt/api/internal/model"
)

// MemoryStore is an in-process JobStore for development and tests. A single
// mutex serializes every operation, which gives Claim the same
// one-claimant-per-job guarantee as row locking.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*memJob
	seq  uint64
	now  func() time.Time
}

type memJob struct {
	job model.Job
	seq uint64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*memJob),
		now:  time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *MemoryStore) Create(_ context.Context, nj model.NewJob) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.seq++
	j := model.Job{
		ID:         uuid.NewString(),
		UserID:     nj.UserID,
		Genre:      copyString(nj.Genre),
		FlowType:   nj.FlowType,
		PresetName: copyString(nj.PresetName),
		InputS3Key: nj.InputS3Key,
		Status:     model.JobStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.jobs[j.ID] = &memJob{job: j, seq: s.seq}
	return snapshot(&j), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mj, ok := s.jobs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return snapshot(&mj.job), nil
}

func (s *MemoryStore) List(_ context.Context, filter model.JobFilter) ([]model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := NormalizeLimit(filter.Limit)
	out := []model.Job{}
	for _, mj := range s.ordered() {
		if filter.Status != nil && mj.job.Status != *filter.Status {
			continue
		}
		out = append(out, *snapshot(&mj.job))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Claim(_ context.Context) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, mj := range s.ordered() {
		if mj.job.Status != model.JobStatusPending {
			continue
		}
		mj.job.Status = model.JobStatusProcessing
		mj.job.ErrorMessage = nil
		mj.job.UpdatedAt = s.now()
		return snapshot(&mj.job), nil
	}
	return nil, model.ErrNoJob
}

func (s *MemoryStore) Update(_ context.Context, id string, upd model.JobUpdate) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mj, ok := s.jobs[id]
	if !ok {
		return nil, model.ErrNotFound
	}

	j := &mj.job
	j.Status = upd.Status
	switch {
	case upd.Status != model.JobStatusCompleted:
		j.OutputS3Key = nil
	case upd.OutputS3Key != nil:
		j.OutputS3Key = copyString(upd.OutputS3Key)
	}
	if upd.ErrorMessage != nil {
		j.ErrorMessage = copyString(upd.ErrorMessage)
	} else if upd.Status == model.JobStatusCompleted {
		j.ErrorMessage = nil
	}
	if upd.CurrentStage != nil {
		j.CurrentStage = copyString(upd.CurrentStage)
	}
	if upd.Status == model.JobStatusCompleted {
		j.Progress = 100
	}
	j.UpdatedAt = s.now()
	return snapshot(j), nil
}

func (s *MemoryStore) UpdateProgress(_ context.Context, id string, upd model.ProgressUpdate) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mj, ok := s.jobs[id]
	if !ok {
		return nil, model.ErrNotFound
	}

	j := &mj.job
	if j.Status != model.JobStatusProcessing {
		return snapshot(j), nil
	}
	j.CurrentStage = copyString(&upd.CurrentStage)
	if p := clampPercent(upd.Progress); p > j.Progress {
		j.Progress = p
	}
	j.UpdatedAt = s.now()
	return snapshot(j), nil
}

func (s *MemoryStore) QueuePosition(_ context.Context, jobID string, flow model.FlowType) (*model.QueuePosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	qp := &model.QueuePosition{}
	for _, mj := range s.ordered() {
		if mj.job.FlowType != flow {
			continue
		}
		if mj.job.Status != model.JobStatusPending && mj.job.Status != model.JobStatusProcessing {
			continue
		}
		qp.Size++
		if mj.job.ID == jobID {
			qp.Position = qp.Size
		}
	}
	return qp, nil
}

func (s *MemoryStore) ReclaimStale(_ context.Context, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-ttl)
	var n int64
	for _, mj := range s.jobs {
		if mj.job.Status == model.JobStatusProcessing && mj.job.UpdatedAt.Before(cutoff) {
			mj.job.Status = model.JobStatusPending
			mj.job.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// ordered returns jobs by creation time, insertion order breaking ties.
// Callers hold s.mu.
func (s *MemoryStore) ordered() []*memJob {
	out := make([]*memJob, 0, len(s.jobs))
	for _, mj := range s.jobs {
		out = append(out, mj)
	}
	sort.Slice(out, func(i, k int) bool {
		a, b := out[i], out[k]
		if !a.job.CreatedAt.Equal(b.job.CreatedAt) {
			return a.job.CreatedAt.Before(b.job.CreatedAt)
		}
		return a.seq < b.seq
	})
	return out
}

func snapshot(j *model.Job) *model.Job {
	c := *j
	c.Genre = copyString(j.Genre)
	c.PresetName = copyString(j.PresetName)
	c.OutputS3Key = copyString(j.OutputS3Key)
	c.ErrorMessage = copyString(j.ErrorMessage)
	c.CurrentStage = copyString(j.CurrentStage)
	return &c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
