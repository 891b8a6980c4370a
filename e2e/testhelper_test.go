package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mixsmvrt/api/internal/auth"
	"github.com/mixsmvrt/api/internal/client"
	"github.com/mixsmvrt/api/internal/config"
	"github.com/mixsmvrt/api/internal/handler"
	"github.com/mixsmvrt/api/internal/middleware"
	"github.com/mixsmvrt/api/internal/server"
	"github.com/mixsmvrt/api/internal/service"
	"github.com/mixsmvrt/api/internal/store"
	"github.com/mixsmvrt/api/internal/websocket"
)

const (
	testJWTSecret   = "test-secret-for-e2e"
	testWorkerToken = "worker-token-for-e2e"
	testUserID      = "test-user-123"
)

// testApp holds all components needed for testing
type testApp struct {
	app     *fiber.App
	store   *store.MemoryStore
	storage *fakeStorage
}

// fakeStorage presigns deterministic URLs without touching S3.
type fakeStorage struct {
	mu      sync.Mutex
	uploads map[string]string
}

func (f *fakeStorage) Upload(_ context.Context, key string, body io.Reader, contentType string) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[key] = string(b)
	return nil
}

func (f *fakeStorage) UploadFile(_ context.Context, key, path, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[key] = path
	return nil
}

func (f *fakeStorage) PresignGet(_ context.Context, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("https://storage.test/%s?op=get&expires=%d", key, int(expiry.Seconds())), nil
}

func (f *fakeStorage) PresignPut(_ context.Context, key, contentType string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("https://storage.test/%s?op=put&expires=%d", key, int(expiry.Seconds())), nil
}

// setupApp builds the same Fiber app main.go serves, backed by an in-memory
// job store, fake object storage and legacy HMAC auth. No Redis is needed:
// the rate limiter passes through without a client.
func setupApp(t *testing.T) *testApp {
	t.Helper()
	return setupAppWithStorage(t, &fakeStorage{uploads: map[string]string{}})
}

// setupAppWithoutStorage leaves object storage unconfigured so services take
// their mock or unavailable paths.
func setupAppWithoutStorage(t *testing.T) *testApp {
	t.Helper()
	return setupAppWithStorage(t, nil)
}

func setupAppWithStorage(t *testing.T, storage *fakeStorage) *testApp {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := &config.Config{
		Server:    config.ServerConfig{Env: "test", LogLevel: "info", Version: "e2e"},
		JWT:       config.JWTConfig{Secret: testJWTSecret},
		RateLimit: config.RateLimitConfig{CreateJobPerHour: 10000, UploadPerHour: 10000},
		Storage:   config.StorageConfig{PresignExpiry: 900 * time.Second},
		Worker:    config.WorkerConfig{AuthToken: testWorkerToken},
	}

	jobStore := store.NewMemoryStore()
	hub := websocket.NewHub(log)

	// A nil *fakeStorage must not become a non-nil interface
	var objects client.StorageClient
	if storage != nil {
		objects = storage
	}

	jobs := service.NewJobService(jobStore, objects, hub, cfg.Storage.PresignExpiry, log)
	uploads := service.NewUploadService(objects, cfg.Storage.PresignExpiry, log)

	authn := auth.NewAuthenticator(nil, testJWTSecret)

	app := server.New(server.Deps{
		Config:      cfg,
		Jobs:        jobs,
		Uploads:     uploads,
		Hub:         hub,
		UserAuth:    middleware.NewAuthMiddleware(authn).Authenticate(),
		AuthHandler: handler.NewAuthHandler(authn),
		RateLimiter: middleware.NewRateLimiter(nil),
	})

	return &testApp{app: app, store: jobStore, storage: storage}
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	return generateTokenFor(t, testUserID)
}

func generateTokenFor(t *testing.T, userID string) string {
	t.Helper()
	signed, err := auth.IssueLegacyToken(userID, userID+"@example.com", testJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs a request as the default test user.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// doWorkerRequest performs a request with the worker bearer token.
func doWorkerRequest(app *fiber.App, method, path, body string) (*http.Response, error) {
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + testWorkerToken,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// errorCode extracts error.code from an error envelope.
func errorCode(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	e, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", body)
	}
	code, _ := e["code"].(string)
	return code
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
