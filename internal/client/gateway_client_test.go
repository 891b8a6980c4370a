package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixsmvrt/api/internal/model"
)

func TestGatewayClient_ClaimNoJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/jobs/claim", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewGatewayClient(srv.URL, "", time.Second)
	job, err := c.Claim(context.Background())
	assert.Nil(t, job)
	assert.True(t, errors.Is(err, model.ErrNoJob))
}

func TestGatewayClient_ClaimSendsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"job_id":"j1","user_id":"u1","flow_type":"mixing_only","input_s3_key":"uploads/u1/a.wav","status":"processing"}`))
	}))
	defer srv.Close()

	c := NewGatewayClient(srv.URL, "tok", time.Second)
	job, err := c.Claim(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "j1", job.ID)
	assert.Equal(t, model.FlowMixingOnly, job.FlowType)
	assert.Equal(t, model.JobStatusProcessing, job.Status)
}

func TestGatewayClient_ClaimServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := NewGatewayClient(srv.URL, "", time.Second)
	_, err := c.Claim(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, model.ErrNoJob))

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
}

func TestGatewayClient_NoAuthHeaderWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewGatewayClient(srv.URL, "", time.Second)
	require.NoError(t, c.UpdateProgress(context.Background(), "j1", model.ProgressUpdate{CurrentStage: "EQ", Progress: 40}))
}

func TestGatewayClient_InputDownloadURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/jobs/good/input-download-url":
			_, _ = w.Write([]byte(`{"download_url":"https://s3.example/in.wav"}`))
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	c := NewGatewayClient(srv.URL, "", time.Second)

	u, err := c.InputDownloadURL(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "https://s3.example/in.wav", u)

	_, err = c.InputDownloadURL(context.Background(), "empty")
	assert.ErrorContains(t, err, "missing download_url")
}

func TestGatewayClient_UpdateJobBody(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/jobs/j1", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewGatewayClient(srv.URL, "tok", time.Second)
	err := c.UpdateJob(context.Background(), "j1", model.JobUpdate{
		Status:       model.JobStatusFailed,
		ErrorMessage: model.StringPtr("e3"),
		CurrentStage: model.StringPtr("Error during EQ"),
	})
	require.NoError(t, err)

	assert.Equal(t, "failed", got["status"])
	assert.Equal(t, "e3", got["error_message"])
	assert.Equal(t, "Error during EQ", got["current_stage"])
	_, hasOutput := got["output_s3_key"]
	assert.False(t, hasOutput)
}

func TestDownloader_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("RIFF...."))
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "input.wav")
	d := NewDownloader(time.Second)

	require.NoError(t, d.Fetch(context.Background(), srv.URL+"/in.wav", dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "RIFF....", string(data))

	assert.ErrorContains(t, d.Fetch(context.Background(), srv.URL+"/missing", dst), "status 403")
}
