package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mixsmvrt/api/internal/client"
	"github.com/mixsmvrt/api/internal/config"
	"github.com/mixsmvrt/api/internal/logger"
	"github.com/mixsmvrt/api/internal/render"
	"github.com/mixsmvrt/api/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Server.LogLevel, cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Configuration faults are reported by every loop instead of exiting
	configErr := cfg.ValidateWorker()

	var uploader worker.Uploader
	if cfg.Storage.Bucket != "" {
		s3Client, err := client.NewS3Client(ctx, &cfg.Storage)
		if err != nil {
			configErr = errors.Join(configErr, err)
		} else {
			uploader = s3Client
		}
	}

	renderer, err := newRenderer(&cfg.Render)
	if err != nil {
		configErr = errors.Join(configErr, err)
	}
	if dsp, ok := renderer.(*client.DSPClient); ok {
		hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := dsp.HealthCheck(hctx); err != nil {
			log.Warn("dsp service not reachable yet", "url", cfg.Render.ServiceURL, "error", err)
		}
		cancel()
	}

	if configErr != nil {
		log.Error("worker configuration incomplete, loops will idle", "error", configErr)
	}
	if cfg.Worker.AuthToken == "" {
		log.Warn("WORKER_AUTH_TOKEN is empty, gateway calls are unauthenticated")
	}

	gateway := client.NewGatewayClient(cfg.Worker.BackendURL, cfg.Worker.AuthToken, cfg.Worker.RequestTimeout)
	downloader := client.NewDownloader(cfg.Worker.RequestTimeout)

	instances := max(cfg.Worker.Instances, 1)
	workers := make([]*worker.Worker, instances)
	for i := range workers {
		workers[i] = worker.New(gateway, downloader, uploader, renderer, worker.Options{
			Name:                fmt.Sprintf("dsp-%d", i+1),
			PollInterval:        cfg.Worker.PollInterval,
			MaxRetries:          cfg.Worker.MaxRetries,
			BackoffBase:         cfg.Worker.BackoffBase,
			BackoffCap:          cfg.Worker.BackoffCap,
			MinScratchFreeBytes: cfg.Worker.MinScratchFreeBytes,
			ScratchDir:          cfg.Worker.ScratchDir,
			ErrorMaxLength:      cfg.Worker.ErrorMaxLength,
			ConfigErr:           configErr,
		}, log)
	}

	log.Info("dsp worker starting",
		"backend", cfg.Worker.BackendURL,
		"instances", len(workers),
		"render_mode", cfg.Render.Mode,
	)
	worker.NewPool(workers...).Run(ctx)
	log.Info("dsp worker stopped")
}

func newRenderer(cfg *config.RenderConfig) (render.Renderer, error) {
	switch cfg.Mode {
	case "", "ffmpeg":
		return render.NewFFmpegRenderer(cfg.FFmpegPath), nil
	case "service":
		dsp := client.NewDSPClient(cfg)
		if !dsp.IsConfigured() {
			return nil, errors.New("DSP_SERVICE_URL is required when RENDER_MODE=service")
		}
		return dsp, nil
	default:
		return nil, fmt.Errorf("unknown RENDER_MODE %q", cfg.Mode)
	}
}
