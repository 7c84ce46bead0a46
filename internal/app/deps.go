package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cre8hub/backend/internal/auth"
	"github.com/cre8hub/backend/internal/cache"
	"github.com/cre8hub/backend/internal/config"
	"github.com/cre8hub/backend/internal/db"
	"github.com/cre8hub/backend/internal/handlers"
	"github.com/cre8hub/backend/internal/middleware"
	"github.com/cre8hub/backend/internal/oauth"
	"github.com/cre8hub/backend/internal/persona"
	"github.com/cre8hub/backend/internal/repositories"
	"github.com/cre8hub/backend/internal/storage"
	"github.com/cre8hub/backend/internal/youtube"
)

// buildDependencies wires together concrete implementations used by the HTTP handlers.
// The returned cleanup stops background workers and releases the cache.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (handlers.Dependencies, func(context.Context) error, error) {
	logger := slog.Default()

	users := repositories.NewPostgresUserRepository(pool)
	sessions := auth.NewManager([]byte(cfg.JWTSecret), cfg.AccessTTL, cfg.RefreshTTL, repositories.NewPostgresSessionStore(pool))

	yt := youtube.New(youtube.Config{
		RequestsPerSecond: cfg.YouTubeRequestsPerSecond,
		Burst:             cfg.YouTubeBurst,
	})

	oauthService, err := oauth.NewService(oauth.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURL,
		StateSecret:  []byte(cfg.JWTSecret),
		StateTTL:     cfg.Google.StateTTL,
	}, users, yt)
	if err != nil {
		return handlers.Dependencies{}, nil, fmt.Errorf("configure oauth: %w", err)
	}

	ai, err := persona.NewAIClient(cfg.AIBaseURL, cfg.AITimeout, nil)
	if err != nil {
		return handlers.Dependencies{}, nil, fmt.Errorf("configure ai client: %w", err)
	}

	pipeline := &persona.Pipeline{Users: users, Videos: yt, AI: ai}
	if strings.TrimSpace(cfg.ObjectStore.Bucket) != "" {
		archive, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			return handlers.Dependencies{}, nil, fmt.Errorf("configure persona archive: %w", err)
		}
		pipeline.Archive = archive
	} else {
		logger.Info("persona archive disabled, no bucket configured")
	}

	kv := cache.New(ctx, cache.Options{RedisURL: cfg.RedisURL, Logger: logger})
	pipeline.Cache = kv

	jobs := persona.NewJobRunner(pipeline, persona.JobRunnerConfig{
		QueueSize:  cfg.PersonaQueueSize,
		Workers:    cfg.PersonaWorkers,
		JobTimeout: cfg.AITimeout + 5*time.Minute,
	}, logger)

	deps := handlers.Dependencies{
		Users:               users,
		Profiles:            users,
		Sessions:            sessions,
		Tokens:              sessions,
		OAuth:               oauthService,
		Personas:            pipeline,
		PersonaJobs:         jobs,
		Cache:               kv,
		AuthLimiter:         middleware.NewIPRateLimiter(10, time.Minute, 5, 10*time.Minute),
		PersonaLimiter:      middleware.NewIPRateLimiter(10, time.Hour, 3, 2*time.Hour),
		PersonaWriteTimeout: cfg.AITimeout + 2*time.Minute,
	}

	sweepCtx, stopSweep := context.WithCancel(context.WithoutCancel(ctx))
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sessions.Sweep(sweepCtx, cfg.SessionSweepInterval)
	}()

	cleanup := func(ctx context.Context) error {
		stopSweep()
		<-sweepDone
		return errors.Join(jobs.Shutdown(ctx), kv.Close())
	}

	return deps, cleanup, nil
}
