package persona

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cre8hub/backend/internal/apperr"
	"github.com/cre8hub/backend/internal/logging"
	"github.com/cre8hub/backend/internal/models"
)

// ChannelExtractor runs a full channel extraction.
type ChannelExtractor interface {
	ExtractFromUserChannel(ctx context.Context, userID string, maxVideos int) (Result, error)
}

// JobRunnerConfig controls the concurrency characteristics of the runner.
type JobRunnerConfig struct {
	QueueSize int
	Workers   int
	// Retention is how long finished jobs remain visible to Get.
	Retention time.Duration
	// JobTimeout bounds a single extraction including the AI call.
	JobTimeout time.Duration
}

// JobRunner executes extractions on a bounded worker pool so that callers
// are not held for the duration of the AI call.
type JobRunner struct {
	extractor ChannelExtractor
	logger    *slog.Logger
	retention time.Duration
	timeout   time.Duration
	now       func() time.Time

	mu     sync.Mutex
	state  map[string]*models.PersonaJob
	closed bool

	jobs   chan string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// ErrRunnerClosed is returned by Submit after Shutdown.
var ErrRunnerClosed = errors.New("persona job runner closed")

// ErrQueueFull is returned when no worker can accept the job.
var ErrQueueFull = errors.New("persona job queue full")

// NewJobRunner starts cfg.Workers goroutines consuming submitted jobs.
func NewJobRunner(extractor ChannelExtractor, cfg JobRunnerConfig, logger *slog.Logger) *JobRunner {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	r := &JobRunner{
		extractor: extractor,
		logger:    logger,
		retention: cfg.Retention,
		timeout:   cfg.JobTimeout,
		now:       func() time.Time { return time.Now().UTC() },
		state:     make(map[string]*models.PersonaJob),
		jobs:      make(chan string, cfg.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}

	r.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go r.worker()
	}

	return r
}

// Submit queues an extraction for userID and returns the queued job.
func (r *JobRunner) Submit(ctx context.Context, userID string, maxVideos int) (models.PersonaJob, error) {
	select {
	case <-ctx.Done():
		return models.PersonaJob{}, ctx.Err()
	case <-r.ctx.Done():
		return models.PersonaJob{}, ErrRunnerClosed
	default:
	}

	job := &models.PersonaJob{
		ID:        uuid.NewString(),
		UserID:    userID,
		MaxVideos: maxVideos,
		Status:    models.JobStatusQueued,
		CreatedAt: r.now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return models.PersonaJob{}, ErrRunnerClosed
	}
	r.pruneLocked()
	r.state[job.ID] = job

	select {
	case r.jobs <- job.ID:
		return *job, nil
	default:
		delete(r.state, job.ID)
		return models.PersonaJob{}, ErrQueueFull
	}
}

// Get returns a snapshot of the job with id.
func (r *JobRunner) Get(id string) (models.PersonaJob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.state[id]
	if !ok {
		return models.PersonaJob{}, false
	}
	return *job, true
}

// Shutdown stops accepting work, cancels running jobs and waits for the
// workers to exit. Jobs still queued are marked failed.
func (r *JobRunner) Shutdown(ctx context.Context) error {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		r.cancel()
		close(r.jobs)
	})

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		for id := range r.jobs {
			r.finish(id, nil, errors.New("server shutting down"))
		}
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (r *JobRunner) worker() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case id, ok := <-r.jobs:
			if !ok {
				return
			}
			r.handleJob(id)
		}
	}
}

func (r *JobRunner) handleJob(id string) {
	r.mu.Lock()
	job, ok := r.state[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	job.Status = models.JobStatusRunning
	userID, maxVideos := job.UserID, job.MaxVideos
	r.mu.Unlock()

	logger := r.logger.With(slog.String("jobId", id), slog.String("userId", userID))
	ctx, cancel := context.WithTimeout(logging.WithLogger(r.ctx, logger), r.timeout)
	defer cancel()

	logger.Info("persona job started")
	result, err := r.extractor.ExtractFromUserChannel(ctx, userID, maxVideos)
	if err != nil {
		logger.Error("persona job failed", slog.Any("error", err))
	} else {
		logger.Info("persona job succeeded", slog.Int("videosProcessed", result.VideosProcessed))
	}
	r.finish(id, result, err)
}

func (r *JobRunner) finish(id string, result any, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.state[id]
	if !ok {
		return
	}
	finished := r.now()
	job.FinishedAt = &finished
	if err != nil {
		message, detail := apperr.Message(err, "Persona extraction failed")
		if detail != "" {
			message += ": " + detail
		}
		job.Status = models.JobStatusFailed
		job.Error = message
		return
	}
	job.Status = models.JobStatusSucceeded
	job.Result = result
}

func (r *JobRunner) pruneLocked() {
	cutoff := r.now().Add(-r.retention)
	for id, job := range r.state {
		if job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(r.state, id)
		}
	}
}
