package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixsmvrt/api/internal/model"
	"github.com/mixsmvrt/api/internal/store"
)

type fakeStorage struct {
	presignErr error
}

func (f *fakeStorage) Upload(context.Context, string, io.Reader, string) error { return nil }

func (f *fakeStorage) UploadFile(context.Context, string, string, string) error { return nil }

func (f *fakeStorage) PresignGet(_ context.Context, key string, expiry time.Duration) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return "https://s3.test/" + key + "?exp=" + expiry.String(), nil
}

func (f *fakeStorage) PresignPut(_ context.Context, key, contentType string, _ time.Duration) (string, error) {
	return "https://s3.test/put/" + key + "?ct=" + contentType, nil
}

type recordingPublisher struct {
	events []model.JobEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e model.JobEvent) error {
	p.events = append(p.events, e)
	return nil
}

// brokenQueueStore fails queue lookups only.
type brokenQueueStore struct {
	*store.MemoryStore
}

func (brokenQueueStore) QueuePosition(context.Context, string, model.FlowType) (*model.QueuePosition, error) {
	return nil, errors.New("db timeout")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newJobService(t *testing.T) (*JobService, *store.MemoryStore, *recordingPublisher) {
	t.Helper()
	ms := store.NewMemoryStore()
	pub := &recordingPublisher{}
	return NewJobService(ms, &fakeStorage{}, pub, 15*time.Minute, discardLogger()), ms, pub
}

func createJob(t *testing.T, svc *JobService, userID string, flow model.FlowType) *model.Job {
	t.Helper()
	job, err := svc.CreateJob(context.Background(), userID, &model.CreateJobRequest{
		S3Key:    "uploads/" + userID + "/in.wav",
		FlowType: string(flow),
	})
	require.NoError(t, err)
	return job
}

func TestJobService_StatusOwnership(t *testing.T) {
	svc, _, _ := newJobService(t)
	job := createJob(t, svc, "alice", model.FlowMixingOnly)

	_, err := svc.GetJobStatus(context.Background(), job.ID, "mallory")
	assert.True(t, errors.Is(err, model.ErrForbidden))

	_, err = svc.GetJobStatus(context.Background(), "00000000-0000-0000-0000-000000000000", "alice")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestJobService_StatusQueueInfo(t *testing.T) {
	svc, _, _ := newJobService(t)
	createJob(t, svc, "a", model.FlowMixingOnly)
	createJob(t, svc, "b", model.FlowMasteringOnly)
	second := createJob(t, svc, "c", model.FlowMixingOnly)

	resp, err := svc.GetJobStatus(context.Background(), second.ID, "c")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, resp.Status)
	assert.Equal(t, model.FlowMixingOnly, resp.QueueFeatureType)
	require.NotNil(t, resp.QueuePosition)
	require.NotNil(t, resp.QueueSize)
	assert.Equal(t, 2, *resp.QueuePosition)
	assert.Equal(t, 2, *resp.QueueSize)
	assert.Nil(t, resp.OutputDownloadURL)
	assert.Len(t, resp.Steps, len(model.StagesFor(model.FlowMixingOnly)))
}

func TestJobService_StatusQueueIsBestEffort(t *testing.T) {
	ms := store.NewMemoryStore()
	svc := NewJobService(brokenQueueStore{ms}, &fakeStorage{}, nil, 0, discardLogger())
	job := createJob(t, svc, "alice", model.FlowMixMaster)

	resp, err := svc.GetJobStatus(context.Background(), job.ID, "alice")
	require.NoError(t, err)
	assert.Nil(t, resp.QueuePosition)
	assert.Nil(t, resp.QueueSize)
}

func TestJobService_CompletedStatusHasDownloadURL(t *testing.T) {
	svc, _, pub := newJobService(t)
	job := createJob(t, svc, "alice", model.FlowMixingOnly)

	_, err := svc.ClaimJob(context.Background())
	require.NoError(t, err)

	_, err = svc.UpdateJob(context.Background(), job.ID, &model.UpdateJobRequest{
		Status:      model.JobStatusCompleted,
		OutputS3Key: model.StringPtr("outputs/alice/out.wav"),
	})
	require.NoError(t, err)

	resp, err := svc.GetJobStatus(context.Background(), job.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 100, resp.Progress)
	require.NotNil(t, resp.OutputDownloadURL)
	assert.True(t, strings.HasPrefix(*resp.OutputDownloadURL, "https://s3.test/outputs/alice/out.wav"))
	assert.Contains(t, *resp.OutputDownloadURL, "15m0s")
	assert.Nil(t, resp.QueuePosition)
	assert.Nil(t, resp.QueueSize)

	require.Len(t, pub.events, 2)
	assert.Equal(t, model.JobStatusProcessing, pub.events[0].Status)
	assert.Equal(t, model.JobStatusCompleted, pub.events[1].Status)
	assert.Equal(t, "outputs/alice/out.wav", pub.events[1].OutputS3Key)
}

func TestJobService_CompleteRequiresOutput(t *testing.T) {
	svc, _, _ := newJobService(t)
	job := createJob(t, svc, "alice", model.FlowMixingOnly)

	_, err := svc.UpdateJob(context.Background(), job.ID, &model.UpdateJobRequest{Status: model.JobStatusCompleted})
	assert.True(t, errors.Is(err, model.ErrInvalidInput))
}

func TestJobService_FailedRejectsOutput(t *testing.T) {
	svc, _, pub := newJobService(t)
	job := createJob(t, svc, "alice", model.FlowMixingOnly)

	_, err := svc.UpdateJob(context.Background(), job.ID, &model.UpdateJobRequest{
		Status:       model.JobStatusFailed,
		OutputS3Key:  model.StringPtr("outputs/alice/out.wav"),
		ErrorMessage: model.StringPtr("boom"),
	})
	assert.True(t, errors.Is(err, model.ErrInvalidInput))
	assert.Empty(t, pub.events)
}

func TestJobService_ClaimEmpty(t *testing.T) {
	svc, _, pub := newJobService(t)

	_, err := svc.ClaimJob(context.Background())
	assert.True(t, errors.Is(err, model.ErrNoJob))
	assert.Empty(t, pub.events)
}

func TestJobService_ProgressPublishes(t *testing.T) {
	svc, _, pub := newJobService(t)
	job := createJob(t, svc, "alice", model.FlowMixingOnly)

	_, err := svc.ClaimJob(context.Background())
	require.NoError(t, err)

	got, err := svc.UpdateProgress(context.Background(), job.ID, &model.ProgressRequest{CurrentStage: "Applying EQ", Progress: 43})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, got.Status)
	assert.Equal(t, 43, got.Progress)

	require.Len(t, pub.events, 2)
	assert.Equal(t, "Applying EQ", pub.events[1].CurrentStage)
	assert.Equal(t, 43, pub.events[1].Progress)
}

func TestJobService_InputDownloadURL(t *testing.T) {
	svc, _, _ := newJobService(t)
	job := createJob(t, svc, "alice", model.FlowMixingOnly)

	url, err := svc.InputDownloadURL(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "https://s3.test/uploads/alice/in.wav"))

	noStorage := NewJobService(store.NewMemoryStore(), nil, nil, 0, discardLogger())
	other := createJob(t, noStorage, "bob", model.FlowMixingOnly)
	_, err = noStorage.InputDownloadURL(context.Background(), other.ID)
	assert.True(t, errors.Is(err, model.ErrStorageNotConfigured))
}

func TestJobService_ListRejectsUnknownStatus(t *testing.T) {
	svc, _, _ := newJobService(t)
	bad := model.JobStatus("archived")

	_, err := svc.ListJobs(context.Background(), &bad, 10)
	assert.True(t, errors.Is(err, model.ErrInvalidInput))
}

func TestJobService_ReclaimStale(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ms := store.NewMemoryStore().WithClock(func() time.Time { return now })
	svc := NewJobService(ms, nil, nil, 0, discardLogger())
	job := createJob(t, svc, "alice", model.FlowMixingOnly)
	_, err := svc.ClaimJob(context.Background())
	require.NoError(t, err)

	n, err := svc.ReclaimStale(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	now = now.Add(10 * time.Minute)
	n, err = svc.ReclaimStale(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := ms.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, got.Status)
}

func TestUploadService_CreateUploadURL(t *testing.T) {
	svc := NewUploadService(&fakeStorage{}, 15*time.Minute, discardLogger())
	svc.now = func() time.Time { return time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC) }

	resp, err := svc.CreateUploadURL(context.Background(), "alice", &model.UploadURLRequest{
		Filename:    "../My Vocal (final).wav",
		ContentType: "audio/wav",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.S3Key, "uploads/alice/2026/03/04/"))
	assert.True(t, strings.HasSuffix(resp.S3Key, "-My_Vocal__final_.wav"))
	assert.Contains(t, resp.UploadURL, "ct=audio/wav")
	assert.Equal(t, 900, resp.ExpiresIn)
	assert.Equal(t, model.MaxUploadBytes, resp.MaxFileSizeBytes)
}

func TestUploadService_RejectsLargeFiles(t *testing.T) {
	svc := NewUploadService(nil, 0, discardLogger())
	size := model.MaxUploadBytes + 1

	_, err := svc.CreateUploadURL(context.Background(), "alice", &model.UploadURLRequest{
		Filename:      "a.wav",
		ContentType:   "audio/wav",
		FileSizeBytes: &size,
	})
	assert.True(t, errors.Is(err, model.ErrFileTooLarge))
}

func TestUploadService_MockWithoutStorage(t *testing.T) {
	svc := NewUploadService(nil, 0, discardLogger())

	resp, err := svc.CreateUploadURL(context.Background(), "alice", &model.UploadURLRequest{
		Filename:    "a.wav",
		ContentType: "audio/wav",
	})
	require.NoError(t, err)
	assert.Contains(t, resp.UploadURL, "mock-bucket")
	assert.True(t, strings.HasPrefix(resp.S3Key, "uploads/alice/"))
}
