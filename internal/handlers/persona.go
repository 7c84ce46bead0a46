package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cre8hub/backend/internal/logging"
	"github.com/cre8hub/backend/internal/persona"
)

const maxVideosLimit = 50

// PersonaHandler exposes persona extraction for the authenticated creator.
type PersonaHandler struct {
	Personas PersonaExtractor
	Jobs     PersonaJobs
	// WriteTimeout replaces the server write deadline for synchronous
	// extraction, which waits on the AI service.
	WriteTimeout time.Duration
}

type extractRequest struct {
	MaxVideos int `json:"maxVideos"`
}

// Extract handles POST /api/youtube/extract-persona.
func (h PersonaHandler) Extract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)
	if h.Personas == nil {
		logger.Error("persona pipeline unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "Persona extraction unavailable", "")
		return
	}

	maxVideos, ok := h.maxVideos(w, r)
	if !ok {
		return
	}

	if h.WriteTimeout > 0 {
		rc := http.NewResponseController(w)
		if err := rc.SetWriteDeadline(time.Now().Add(h.WriteTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			logger.Warn("extend write deadline", "error", err)
		}
	}

	// The extraction finishes even if the client goes away, so the harvested
	// transcripts and metadata are not lost.
	result, err := h.Personas.ExtractFromUserChannel(context.WithoutCancel(ctx), logging.UserIDFromContext(ctx), maxVideos)
	if err != nil {
		respondAppError(ctx, w, err, "Failed to extract persona")
		return
	}

	respondSuccess(ctx, w, http.StatusOK, map[string]any{
		"message":         "Persona extracted successfully",
		"channelInfo":     result.Channel,
		"videosProcessed": result.VideosProcessed,
		"persona":         result.Persona,
	})
}

// ExtractCached handles POST /api/youtube/extract-persona/cached, rebuilding
// the persona from transcripts harvested by an earlier run.
func (h PersonaHandler) ExtractCached(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	ctx := r.Context()
	if h.Personas == nil {
		respondError(ctx, w, http.StatusInternalServerError, "Persona extraction unavailable", "")
		return
	}

	result, err := h.Personas.ExtractFromCachedTranscripts(context.WithoutCancel(ctx), logging.UserIDFromContext(ctx))
	if err != nil {
		respondAppError(ctx, w, err, "Failed to extract persona")
		return
	}

	respondSuccess(ctx, w, http.StatusOK, map[string]any{
		"message":         "Persona extracted from cached transcripts",
		"transcriptsUsed": result.TranscriptsUsed,
		"persona":         result.Persona,
	})
}

// SubmitJob handles POST /api/youtube/extract-persona/jobs.
func (h PersonaHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)
	if h.Jobs == nil {
		logger.Error("persona job runner unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "Persona jobs unavailable", "")
		return
	}

	maxVideos, ok := h.maxVideos(w, r)
	if !ok {
		return
	}

	job, err := h.Jobs.Submit(ctx, logging.UserIDFromContext(ctx), maxVideos)
	switch {
	case errors.Is(err, persona.ErrQueueFull):
		respondError(ctx, w, http.StatusTooManyRequests, "Too many pending extractions, please try again later", "")
		return
	case errors.Is(err, persona.ErrRunnerClosed):
		respondError(ctx, w, http.StatusServiceUnavailable, "Server is shutting down", "")
		return
	case err != nil:
		logger.Error("submit persona job", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "Failed to schedule persona extraction", "")
		return
	}

	w.Header().Set("Location", "/api/youtube/extract-persona/jobs/"+job.ID)
	respondSuccess(ctx, w, http.StatusAccepted, map[string]any{
		"message": "Persona extraction scheduled",
		"job":     job,
	})
}

// GetJob handles GET /api/youtube/extract-persona/jobs/{id}. Jobs of other
// users are reported as missing.
func (h PersonaHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	ctx := r.Context()
	if h.Jobs == nil {
		respondError(ctx, w, http.StatusInternalServerError, "Persona jobs unavailable", "")
		return
	}

	job, ok := h.Jobs.Get(r.PathValue("id"))
	if !ok || job.UserID != logging.UserIDFromContext(ctx) {
		respondError(ctx, w, http.StatusNotFound, "Job not found", "")
		return
	}

	respondSuccess(ctx, w, http.StatusOK, map[string]any{"job": job})
}

// Transcripts handles GET /api/youtube/transcripts.
func (h PersonaHandler) Transcripts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	ctx := r.Context()
	if h.Personas == nil {
		respondError(ctx, w, http.StatusInternalServerError, "Persona extraction unavailable", "")
		return
	}

	transcripts := h.Personas.CachedTranscripts(ctx, logging.UserIDFromContext(ctx))
	respondSuccess(ctx, w, http.StatusOK, map[string]any{
		"count":       len(transcripts),
		"transcripts": transcripts,
	})
}

// maxVideos reads the optional request body. Zero selects the default.
func (h PersonaHandler) maxVideos(w http.ResponseWriter, r *http.Request) (int, bool) {
	var req extractRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		logging.FromContext(r.Context()).Warn("invalid extract payload", "error", err)
		respondError(r.Context(), w, http.StatusBadRequest, "Invalid request body", "")
		return 0, false
	}
	if req.MaxVideos < 0 || req.MaxVideos > maxVideosLimit {
		respondError(r.Context(), w, http.StatusBadRequest, "maxVideos must be between 0 and 50, 0 selects the default", "")
		return 0, false
	}
	return req.MaxVideos, true
}
