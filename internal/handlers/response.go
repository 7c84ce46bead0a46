package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/cre8hub/backend/internal/apperr"
	"github.com/cre8hub/backend/internal/logging"
)

// errorResponse is the envelope for every failed request.
type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

// respondSuccess writes payload with success set.
func respondSuccess(ctx context.Context, w http.ResponseWriter, status int, payload map[string]any) {
	if payload == nil {
		payload = make(map[string]any, 1)
	}
	payload["success"] = true
	respondJSON(ctx, w, status, payload)
}

func respondError(ctx context.Context, w http.ResponseWriter, status int, message, detail string) {
	respondJSON(ctx, w, status, errorResponse{Message: message, Error: detail})
}

// respondAppError maps a classified error onto its status and envelope.
func respondAppError(ctx context.Context, w http.ResponseWriter, err error, fallback string) {
	message, detail := apperr.Message(err, fallback)
	respondError(ctx, w, apperr.HTTPStatus(err), message, detail)
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	w.WriteHeader(http.StatusMethodNotAllowed)
}

// decodeOptionalJSON decodes r's body into dst, accepting an empty body.
func decodeOptionalJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
