package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/mixsmvrt/api/internal/auth"
	"github.com/mixsmvrt/api/internal/client"
	"github.com/mixsmvrt/api/internal/config"
	"github.com/mixsmvrt/api/internal/handler"
	"github.com/mixsmvrt/api/internal/logger"
	"github.com/mixsmvrt/api/internal/middleware"
	"github.com/mixsmvrt/api/internal/server"
	"github.com/mixsmvrt/api/internal/service"
	"github.com/mixsmvrt/api/internal/store"
	"github.com/mixsmvrt/api/internal/tasks"
	ws "github.com/mixsmvrt/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Server.LogLevel, cfg.Server.Env)

	if err := cfg.ValidateServer(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Job store: Postgres when configured, in-memory otherwise
	var jobStore store.JobStore
	if cfg.Database.URL != "" {
		pg, err := store.NewPostgresStore(&cfg.Database)
		if err != nil {
			log.Error("failed to open job store", "error", err)
			os.Exit(1)
		}
		jobStore = pg
		log.Info("job store ready", "backend", "postgres")
	} else {
		jobStore = store.NewMemoryStore()
		log.Warn("DATABASE_URL not set, using in-memory job store")
	}
	defer jobStore.Close()

	// Redis (optional - rate limiting, event fan-out, lease sweeper)
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("redis not available, continuing without it", "addr", cfg.Redis.Addr, "error", err)
			_ = redisClient.Close()
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	// Object storage (optional - continues if not configured)
	var storage client.StorageClient
	if cfg.Storage.Bucket != "" {
		s3Client, err := client.NewS3Client(ctx, &cfg.Storage)
		if err != nil {
			log.Warn("S3 client not initialized", "error", err)
		} else {
			storage = s3Client
		}
	} else {
		log.Info("object storage not configured, upload URLs are mocked")
	}

	// WebSocket hub, fed through Redis when available
	hub := ws.NewHub(log)
	go hub.Run(ctx)

	var events service.EventPublisher = hub
	if redisClient != nil {
		bridge := ws.NewRedisBridge(redisClient, hub, log)
		if err := bridge.Start(ctx); err != nil {
			log.Warn("job event bridge not started, delivering events locally", "error", err)
		} else {
			events = bridge
		}
	}

	// Services
	jobService := service.NewJobService(jobStore, storage, events, cfg.Storage.PresignExpiry, log)
	uploadService := service.NewUploadService(storage, cfg.Storage.PresignExpiry, log)

	// OIDC JWKS verifier (optional - falls back to legacy JWT)
	var tokenVerifier auth.TokenVerifier
	if cfg.OIDC.Issuer != "" {
		jwksVerifier, err := auth.NewJWKSVerifier(&cfg.OIDC)
		if err != nil {
			log.Warn("JWKS verifier not initialized", "error", err)
		} else {
			tokenVerifier = jwksVerifier
		}
	}
	authn := auth.NewAuthenticator(tokenVerifier, cfg.JWT.Secret)

	userAuth := middleware.NewAuthMiddleware(authn).Authenticate()
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Info("gateway mode enabled, using header-based auth")
		userAuth = middleware.GatewayAuthMiddleware()
	}

	app := server.New(server.Deps{
		Config:      cfg,
		Jobs:        jobService,
		Uploads:     uploadService,
		Hub:         hub,
		UserAuth:    userAuth,
		AuthHandler: handler.NewAuthHandler(authn),
		RateLimiter: middleware.NewRateLimiter(redisClient),
		AccessLog:   true,
	})

	// Lease sweeper
	if cfg.Lease.TTL > 0 {
		if redisClient == nil {
			log.Warn("LEASE_TTL_SECONDS set but redis is unavailable, stale jobs will not be reclaimed")
		} else {
			go runLeaseSweeper(ctx, cfg, jobService, log)
		}
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("server shutdown error", "error", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Info("server starting", "addr", addr, "env", cfg.Server.Env)
	if err := app.Listen(addr); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

// runLeaseSweeper schedules and executes the periodic reclaim task until ctx is done.
func runLeaseSweeper(ctx context.Context, cfg *config.Config, jobs *service.JobService, log *slog.Logger) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	scheduler, err := tasks.NewScheduler(redisOpt, cfg.Lease.SweepSpec, cfg.Lease.TTL, cfg.Server.LogLevel)
	if err != nil {
		log.Error("lease sweeper not scheduled", "error", err)
		return
	}
	if err := scheduler.Start(); err != nil {
		log.Error("lease scheduler failed to start", "error", err)
		return
	}
	defer scheduler.Shutdown()

	srv := tasks.NewServer(redisOpt, cfg.Server.LogLevel)
	mux := tasks.NewServeMux(tasks.NewReclaimHandler(jobs, log))
	if err := srv.Start(mux); err != nil {
		log.Error("lease sweeper server failed to start", "error", err)
		return
	}
	log.Info("lease sweeper running", "ttl", cfg.Lease.TTL, "spec", cfg.Lease.SweepSpec)

	<-ctx.Done()
	srv.Shutdown()
}
