package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	OIDC      OIDCConfig
	RateLimit RateLimitConfig
	Storage   StorageConfig
	Worker    WorkerConfig
	Render    RenderConfig
	Lease     LeaseConfig
	Gateway   GatewayConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
	Version   string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

// OIDCConfig points at an OpenID Connect issuer whose JWKS signs user tokens.
type OIDCConfig struct {
	Issuer   string
	ClientID string
}

type RateLimitConfig struct {
	CreateJobPerHour int
	UploadPerHour    int
}

type StorageConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PresignExpiry   time.Duration
}

// WorkerConfig drives the DSP worker loop.
type WorkerConfig struct {
	AuthToken           string
	BackendURL          string
	PollInterval        time.Duration
	MaxRetries          int
	BackoffBase         time.Duration
	BackoffCap          time.Duration
	MinScratchFreeBytes uint64
	ScratchDir          string
	Instances           int
	ErrorMaxLength      int
	RequestTimeout      time.Duration
}

type RenderConfig struct {
	Mode       string // "ffmpeg" or "service"
	FFmpegPath string
	ServiceURL string
	Timeout    time.Duration
}

// LeaseConfig controls reclaiming of processing jobs whose worker went silent.
// A zero TTL disables the sweeper.
type LeaseConfig struct {
	TTL       time.Duration
	SweepSpec string
}

type GatewayConfig struct {
	Enabled bool
}

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	ErrMissingBucket      = errors.New("S3_BUCKET_NAME is required")
	ErrMissingBackendURL  = errors.New("BACKEND_API_URL is required")
	ErrMissingAuthToken   = errors.New("WORKER_AUTH_TOKEN is required in production")
)

func Load() (*Config, error) {
	// Local development convenience; a missing file is fine
	_ = godotenv.Load()

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("DATABASE_URL")
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("WORKER_AUTH_TOKEN")
	readSecret("AWS_ACCESS_KEY_ID")
	readSecret("AWS_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.api_domain", "API_DOMAIN")
	_ = v.BindEnv("server.version", "APP_VERSION")
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("database.max_open_conns", "DATABASE_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.max_idle_conns", "DATABASE_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.conn_max_lifetime", "DATABASE_CONN_MAX_LIFETIME")
	_ = v.BindEnv("database.auto_migrate", "DATABASE_AUTO_MIGRATE")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("oidc.issuer", "OIDC_ISSUER")
	_ = v.BindEnv("oidc.client_id", "OIDC_CLIENT_ID")
	_ = v.BindEnv("ratelimit.create_job_per_hour", "RATELIMIT_CREATE_JOB_PER_HOUR")
	_ = v.BindEnv("ratelimit.upload_per_hour", "RATELIMIT_UPLOAD_PER_HOUR")
	_ = v.BindEnv("storage.bucket", "S3_BUCKET_NAME")
	_ = v.BindEnv("storage.region", "AWS_REGION")
	_ = v.BindEnv("storage.endpoint", "S3_ENDPOINT")
	_ = v.BindEnv("storage.access_key_id", "AWS_ACCESS_KEY_ID")
	_ = v.BindEnv("storage.secret_access_key", "AWS_SECRET_ACCESS_KEY")
	_ = v.BindEnv("storage.presign_seconds", "S3_PRESIGN_SECONDS")
	_ = v.BindEnv("worker.auth_token", "WORKER_AUTH_TOKEN")
	_ = v.BindEnv("worker.backend_url", "BACKEND_API_URL")
	_ = v.BindEnv("worker.poll_seconds", "WORKER_POLL_SECONDS")
	_ = v.BindEnv("worker.max_retries", "WORKER_MAX_RETRIES")
	_ = v.BindEnv("worker.backoff_base_seconds", "WORKER_BACKOFF_BASE_SECONDS")
	_ = v.BindEnv("worker.backoff_cap_seconds", "WORKER_BACKOFF_CAP_SECONDS")
	_ = v.BindEnv("worker.min_tmp_free_bytes", "WORKER_MIN_TMP_FREE_BYTES")
	_ = v.BindEnv("worker.scratch_dir", "WORKER_SCRATCH_DIR")
	_ = v.BindEnv("worker.instances", "WORKER_INSTANCES")
	_ = v.BindEnv("worker.error_max_length", "WORKER_ERROR_MAX_LENGTH")
	_ = v.BindEnv("worker.request_timeout_seconds", "WORKER_REQUEST_TIMEOUT_SECONDS")
	_ = v.BindEnv("render.mode", "RENDER_MODE")
	_ = v.BindEnv("render.ffmpeg_path", "FFMPEG_PATH")
	_ = v.BindEnv("render.service_url", "DSP_SERVICE_URL")
	_ = v.BindEnv("render.timeout_seconds", "DSP_SERVICE_TIMEOUT")
	_ = v.BindEnv("lease.ttl_seconds", "LEASE_TTL_SECONDS")
	_ = v.BindEnv("lease.sweep_spec", "LEASE_SWEEP_SPEC")
	_ = v.BindEnv("gateway.enabled", "GATEWAY_ENABLED")

	// Defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.version", "dev")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("ratelimit.create_job_per_hour", 30)
	v.SetDefault("ratelimit.upload_per_hour", 50)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.presign_seconds", 900)

	// Worker defaults
	v.SetDefault("worker.backend_url", "http://127.0.0.1:8080")
	v.SetDefault("worker.poll_seconds", 5.0)
	v.SetDefault("worker.max_retries", 3)
	v.SetDefault("worker.backoff_base_seconds", 5.0)
	v.SetDefault("worker.backoff_cap_seconds", 15.0)
	v.SetDefault("worker.min_tmp_free_bytes", 500*1024*1024)
	v.SetDefault("worker.scratch_dir", os.TempDir())
	v.SetDefault("worker.instances", 1)
	v.SetDefault("worker.error_max_length", 3900)
	v.SetDefault("worker.request_timeout_seconds", 120)

	// Render defaults
	v.SetDefault("render.mode", "ffmpeg")
	v.SetDefault("render.ffmpeg_path", "ffmpeg")
	v.SetDefault("render.timeout_seconds", 600)

	// Lease defaults
	v.SetDefault("lease.ttl_seconds", 0)
	v.SetDefault("lease.sweep_spec", "@every 1m")

	v.SetDefault("gateway.enabled", false)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			LogLevel:  v.GetString("server.log_level"),
			ApiDomain: v.GetString("server.api_domain"),
			Version:   v.GetString("server.version"),
		},
		Database: DatabaseConfig{
			URL:             v.GetString("database.url"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
		},
		OIDC: OIDCConfig{
			Issuer:   v.GetString("oidc.issuer"),
			ClientID: v.GetString("oidc.client_id"),
		},
		RateLimit: RateLimitConfig{
			CreateJobPerHour: v.GetInt("ratelimit.create_job_per_hour"),
			UploadPerHour:    v.GetInt("ratelimit.upload_per_hour"),
		},
		Storage: StorageConfig{
			Bucket:          v.GetString("storage.bucket"),
			Region:          v.GetString("storage.region"),
			Endpoint:        v.GetString("storage.endpoint"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			PresignExpiry:   seconds(v.GetFloat64("storage.presign_seconds")),
		},
		Worker: WorkerConfig{
			AuthToken:           v.GetString("worker.auth_token"),
			BackendURL:          strings.TrimRight(v.GetString("worker.backend_url"), "/"),
			PollInterval:        seconds(v.GetFloat64("worker.poll_seconds")),
			MaxRetries:          v.GetInt("worker.max_retries"),
			BackoffBase:         seconds(v.GetFloat64("worker.backoff_base_seconds")),
			BackoffCap:          seconds(v.GetFloat64("worker.backoff_cap_seconds")),
			MinScratchFreeBytes: v.GetUint64("worker.min_tmp_free_bytes"),
			ScratchDir:          v.GetString("worker.scratch_dir"),
			Instances:           v.GetInt("worker.instances"),
			ErrorMaxLength:      v.GetInt("worker.error_max_length"),
			RequestTimeout:      seconds(v.GetFloat64("worker.request_timeout_seconds")),
		},
		Render: RenderConfig{
			Mode:       strings.ToLower(v.GetString("render.mode")),
			FFmpegPath: v.GetString("render.ffmpeg_path"),
			ServiceURL: strings.TrimRight(v.GetString("render.service_url"), "/"),
			Timeout:    seconds(v.GetFloat64("render.timeout_seconds")),
		},
		Lease: LeaseConfig{
			TTL:       seconds(v.GetFloat64("lease.ttl_seconds")),
			SweepSpec: v.GetString("lease.sweep_spec"),
		},
		Gateway: GatewayConfig{
			Enabled: v.GetBool("gateway.enabled"),
		},
	}

	if cfg.Worker.MaxRetries < 1 {
		cfg.Worker.MaxRetries = 1
	}
	if cfg.Worker.Instances < 1 {
		cfg.Worker.Instances = 1
	}

	return cfg, nil
}

// IsProduction reports whether the service runs in the production environment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Env, "production")
}

// ValidateWorker reports settings the worker loop cannot run without.
func (c *Config) ValidateWorker() error {
	var errs []error
	if c.Worker.BackendURL == "" {
		errs = append(errs, ErrMissingBackendURL)
	}
	if c.Storage.Bucket == "" {
		errs = append(errs, ErrMissingBucket)
	}
	if c.IsProduction() && c.Worker.AuthToken == "" {
		errs = append(errs, ErrMissingAuthToken)
	}
	return errors.Join(errs...)
}

// ValidateServer reports settings the API server needs in production.
func (c *Config) ValidateServer() error {
	if !c.IsProduction() {
		return nil
	}
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.Storage.Bucket == "" {
		errs = append(errs, ErrMissingBucket)
	}
	if c.Worker.AuthToken == "" {
		errs = append(errs, ErrMissingAuthToken)
	}
	return errors.Join(errs...)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
