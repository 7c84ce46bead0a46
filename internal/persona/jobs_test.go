package persona

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cre8hub/backend/internal/apperr"
	"github.com/cre8hub/backend/internal/models"
)

type extractorStub struct {
	mu      sync.Mutex
	calls   []string
	err     error
	release chan struct{}
}

func (s *extractorStub) ExtractFromUserChannel(ctx context.Context, userID string, maxVideos int) (Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, userID)
	s.mu.Unlock()

	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if s.err != nil {
		return Result{}, s.err
	}
	return Result{VideosProcessed: maxVideos, Persona: map[string]any{"tone": "warm"}}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitForStatus(t *testing.T, runner *JobRunner, id string, status string) models.PersonaJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := runner.Get(id)
		require.True(t, ok)
		if job.Status == status {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := runner.Get(id)
	t.Fatalf("job %s did not reach %s, last status %s", id, status, job.Status)
	return models.PersonaJob{}
}

func shutdown(t *testing.T, runner *JobRunner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, runner.Shutdown(ctx))
}

func TestJobRunnerSucceeds(t *testing.T) {
	stub := &extractorStub{}
	runner := NewJobRunner(stub, JobRunnerConfig{QueueSize: 1, Workers: 1}, quietLogger())
	defer shutdown(t, runner)

	job, err := runner.Submit(context.Background(), "u1", 4)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, "u1", job.UserID)

	done := waitForStatus(t, runner, job.ID, models.JobStatusSucceeded)
	require.NotNil(t, done.FinishedAt)
	result, ok := done.Result.(Result)
	require.True(t, ok)
	assert.Equal(t, 4, result.VideosProcessed)
}

func TestJobRunnerRecordsFailures(t *testing.T) {
	stub := &extractorStub{err: apperr.NoContent("No videos found in your channel")}
	runner := NewJobRunner(stub, JobRunnerConfig{}, quietLogger())
	defer shutdown(t, runner)

	job, err := runner.Submit(context.Background(), "u1", 10)
	require.NoError(t, err)

	failed := waitForStatus(t, runner, job.ID, models.JobStatusFailed)
	assert.Equal(t, "No videos found in your channel", failed.Error)
	assert.Nil(t, failed.Result)
}

func TestJobRunnerRejectsWhenQueueFull(t *testing.T) {
	stub := &extractorStub{release: make(chan struct{})}
	runner := NewJobRunner(stub, JobRunnerConfig{QueueSize: 1, Workers: 1}, quietLogger())
	defer shutdown(t, runner)
	defer close(stub.release)

	first, err := runner.Submit(context.Background(), "u1", 1)
	require.NoError(t, err)
	waitForStatus(t, runner, first.ID, models.JobStatusRunning)

	_, err = runner.Submit(context.Background(), "u2", 1)
	require.NoError(t, err)

	_, err = runner.Submit(context.Background(), "u3", 1)
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestJobRunnerShutdown(t *testing.T) {
	stub := &extractorStub{release: make(chan struct{})}
	runner := NewJobRunner(stub, JobRunnerConfig{QueueSize: 2, Workers: 1}, quietLogger())

	running, err := runner.Submit(context.Background(), "u1", 1)
	require.NoError(t, err)
	waitForStatus(t, runner, running.ID, models.JobStatusRunning)
	queued, err := runner.Submit(context.Background(), "u2", 1)
	require.NoError(t, err)

	shutdown(t, runner)

	for _, id := range []string{running.ID, queued.ID} {
		job, ok := runner.Get(id)
		require.True(t, ok)
		assert.Equal(t, models.JobStatusFailed, job.Status, id)
	}

	_, err = runner.Submit(context.Background(), "u3", 1)
	assert.ErrorIs(t, err, ErrRunnerClosed)
}

func TestJobRunnerPrunesFinishedJobs(t *testing.T) {
	stub := &extractorStub{}
	runner := NewJobRunner(stub, JobRunnerConfig{Retention: time.Minute}, quietLogger())
	defer shutdown(t, runner)

	now := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	runner.mu.Lock()
	runner.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	runner.mu.Unlock()

	job, err := runner.Submit(context.Background(), "u1", 1)
	require.NoError(t, err)
	waitForStatus(t, runner, job.ID, models.JobStatusSucceeded)

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	_, err = runner.Submit(context.Background(), "u2", 1)
	require.NoError(t, err)

	_, ok := runner.Get(job.ID)
	assert.False(t, ok)
}

type aiBackedExtractor struct {
	ai      *AIClient
	started chan struct{}
}

func (e *aiBackedExtractor) ExtractFromUserChannel(ctx context.Context, userID string, maxVideos int) (Result, error) {
	close(e.started)
	persona, err := e.ai.ExtractPersona(ctx, userID, []models.Transcript{{VideoID: "v1", Content: "hello"}})
	if err != nil {
		return Result{}, err
	}
	return Result{VideosProcessed: 1, Persona: persona}, nil
}

func TestJobRunnerShutdownCancelsInFlightAICall(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ai, err := NewAIClient(srv.URL, time.Minute, srv.Client())
	require.NoError(t, err)

	extractor := &aiBackedExtractor{ai: ai, started: make(chan struct{})}
	runner := NewJobRunner(extractor, JobRunnerConfig{QueueSize: 1, Workers: 1}, quietLogger())

	job, err := runner.Submit(context.Background(), "u1", 1)
	require.NoError(t, err)

	select {
	case <-extractor.started:
	case <-time.After(2 * time.Second):
		t.Fatal("job never reached the ai call")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, runner.Shutdown(ctx))
	assert.Less(t, time.Since(start), time.Second)

	stopped, ok := runner.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, models.JobStatusFailed, stopped.Status)
}
