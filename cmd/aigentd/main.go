package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"aigentd/internal/api"
	"aigentd/internal/baseline"
	"aigentd/internal/chat"
	"aigentd/internal/config"
	"aigentd/internal/llm/ollama"
	"aigentd/internal/prompts"
	"aigentd/internal/ratelimit"
	"aigentd/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogger(cfg.Log.Level)
	log.Info().
		Str("tenant_id", cfg.TenantID).
		Str("model", cfg.Ollama.Model).
		Str("ollama_base_url", cfg.Ollama.BaseURL).
		Int("context_window", cfg.Ollama.ContextWindow).
		Msg("starting aigentd")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(ctx, cfg.DB.Driver, cfg.DB.DSN, cfg.DB.AutoMigrate, "migrations")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer store.Close()

	var limiter *ratelimit.Limiter
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rdb.Close()
		limiter = ratelimit.New(rdb, cfg.Rate.PerHour)
		log.Info().Str("redis_addr", cfg.Redis.Addr).Int64("per_hour", cfg.Rate.PerHour).Msg("rate limiter enabled")
	}

	client := ollama.New(ollama.Config{
		BaseURL:    cfg.Ollama.BaseURL,
		Model:      cfg.Ollama.Model,
		HTTPClient: &http.Client{Timeout: cfg.HTTP.ClientTimeout},
	})

	source := prompts.NewSource(cfg.Prompts.ComponentsDir)
	chatSvc := chat.NewService(store, client, source, log.Logger, chat.Config{
		TenantID:          cfg.TenantID,
		Model:             cfg.Ollama.Model,
		ContextWindow:     cfg.Ollama.ContextWindow,
		MaxResponseTokens: cfg.Ollama.MaxResponseTokens,
		DefaultTriggerPct: cfg.Prompts.CompactTriggerPct,
	})
	defer chatSvc.Close()

	runner := baseline.NewRunner(client, chatSvc, chatSvc, cfg.Ollama.Model)
	registry := baseline.NewRegistry(runner, log.Logger)
	defer registry.Close()

	server := api.NewServer(chatSvc, store, registry, limiter, log.Logger, api.Config{
		TenantID:      cfg.TenantID,
		Model:         cfg.Ollama.Model,
		OllamaBaseURL: cfg.Ollama.BaseURL,
		HealthPath:    cfg.Listen.HealthPath,
		MetricsPath:   cfg.Listen.MetricsPath,
	})

	httpServer := &http.Server{
		Addr:              cfg.Listen.Addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Listen.Addr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("runtime error")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
	}

	log.Info().Msg("stopped")
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(level))
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
