package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixsmvrt/api/internal/model"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run(ctx)
	return hub
}

func subscribe(t *testing.T, hub *Hub, jobID string) *Client {
	t.Helper()
	c := &Client{JobID: jobID, Send: make(chan []byte, 8)}
	hub.Register(c)
	require.Eventually(t, func() bool { return hub.Subscribers(jobID) == 1 }, time.Second, 5*time.Millisecond)
	return c
}

func receive(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case data := <-c.Send:
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestHub_DispatchByStatus(t *testing.T) {
	hub := startHub(t)
	c := subscribe(t, hub, "job-1")

	hub.Dispatch(model.JobEvent{JobID: "job-1", Status: model.JobStatusProcessing, Progress: 29, CurrentStage: "Applying EQ"})
	msg := receive(t, c)
	assert.Equal(t, model.WSMessageTypeProgress, msg["type"])
	assert.Equal(t, float64(29), msg["progress"])
	assert.Equal(t, "Applying EQ", msg["current_stage"])

	hub.Dispatch(model.JobEvent{JobID: "job-1", Status: model.JobStatusCompleted, OutputS3Key: "outputs/u/x.wav"})
	msg = receive(t, c)
	assert.Equal(t, model.WSMessageTypeComplete, msg["type"])
	assert.Equal(t, "outputs/u/x.wav", msg["output_s3_key"])

	hub.Dispatch(model.JobEvent{JobID: "job-1", Status: model.JobStatusFailed, ErrorMessage: "e3"})
	msg = receive(t, c)
	assert.Equal(t, model.WSMessageTypeError, msg["type"])
	errObj := msg["error"].(map[string]interface{})
	assert.Equal(t, "e3", errObj["message"])
}

func TestHub_OnlyMatchingJobReceives(t *testing.T) {
	hub := startHub(t)
	a := subscribe(t, hub, "job-a")
	b := subscribe(t, hub, "job-b")

	hub.BroadcastProgress("job-a", 10, model.JobStatusProcessing, "Analyzing audio")
	receive(t, a)

	select {
	case <-b.Send:
		t.Fatal("unrelated subscriber received a message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_Unregister(t *testing.T) {
	hub := startHub(t)
	c := subscribe(t, hub, "job-1")

	hub.Unregister(c)
	require.Eventually(t, func() bool { return hub.Subscribers("job-1") == 0 }, time.Second, 5*time.Millisecond)

	_, ok := <-c.Send
	assert.False(t, ok)
}

func TestRedisBridge_RelaysEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	hub := startHub(t)
	c := subscribe(t, hub, "job-1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge := NewRedisBridge(rdb, hub, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, bridge.Start(ctx))

	require.NoError(t, bridge.Publish(ctx, model.JobEvent{
		JobID:        "job-1",
		Status:       model.JobStatusProcessing,
		Progress:     57,
		CurrentStage: "Adding saturation",
	}))

	msg := receive(t, c)
	assert.Equal(t, model.WSMessageTypeProgress, msg["type"])
	assert.Equal(t, float64(57), msg["progress"])
}
