package handlers

import (
	"net/http"
	"strings"

	"github.com/cre8hub/backend/internal/logging"
)

// OAuthHandler links a platform account to a YouTube channel.
type OAuthHandler struct {
	OAuth YouTubeOAuth
}

// AuthURL handles GET /api/oauth/youtube/auth-url.
func (h OAuthHandler) AuthURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}

	authURL, err := h.OAuth.AuthURL(logging.UserIDFromContext(ctx))
	if err != nil {
		respondAppError(ctx, w, err, "Failed to generate OAuth URL")
		return
	}

	respondSuccess(ctx, w, http.StatusOK, map[string]any{
		"authUrl": authURL,
		"message": "OAuth authorization URL generated",
	})
}

// Callback handles GET /api/oauth/youtube/callback, the redirect target
// registered with Google. It is not behind the auth guard; the signed state
// identifies the user.
func (h OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}

	query := r.URL.Query()
	if providerErr := strings.TrimSpace(query.Get("error")); providerErr != "" {
		respondError(ctx, w, http.StatusBadRequest, "Authorization was not granted", providerErr)
		return
	}

	conn, err := h.OAuth.HandleCallback(ctx, strings.TrimSpace(query.Get("code")), strings.TrimSpace(query.Get("state")))
	if err != nil {
		respondAppError(ctx, w, err, "Failed to connect YouTube account")
		return
	}

	respondSuccess(ctx, w, http.StatusOK, map[string]any{
		"message": "YouTube account connected successfully",
		"channelInfo": map[string]any{
			"channelId":   conn.Channel.ID,
			"title":       conn.Channel.Title,
			"connectedAt": conn.ConnectedAt,
		},
	})
}

// Status handles GET /api/oauth/youtube/status.
func (h OAuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}

	status, err := h.OAuth.Status(ctx, logging.UserIDFromContext(ctx))
	if err != nil {
		respondAppError(ctx, w, err, "Failed to get connection status")
		return
	}

	respondSuccess(ctx, w, http.StatusOK, map[string]any{
		"connected":   status.Connected,
		"valid":       status.Valid,
		"connectedAt": status.ConnectedAt,
		"expiresAt":   status.ExpiresAt,
	})
}

// Disconnect handles POST /api/oauth/youtube/disconnect.
func (h OAuthHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}

	if err := h.OAuth.Disconnect(ctx, logging.UserIDFromContext(ctx)); err != nil {
		respondAppError(ctx, w, err, "Failed to disconnect YouTube account")
		return
	}

	respondSuccess(ctx, w, http.StatusOK, map[string]any{"message": "YouTube account disconnected successfully"})
}

// RefreshToken handles POST /api/oauth/youtube/refresh-token.
func (h OAuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}

	expiresAt, err := h.OAuth.Refresh(ctx, logging.UserIDFromContext(ctx))
	if err != nil {
		respondAppError(ctx, w, err, "Failed to refresh token")
		return
	}

	respondSuccess(ctx, w, http.StatusOK, map[string]any{
		"message":   "Token refreshed successfully",
		"expiresAt": expiresAt,
	})
}

func (h OAuthHandler) ready(w http.ResponseWriter, r *http.Request) bool {
	if h.OAuth != nil {
		return true
	}
	logging.FromContext(r.Context()).Error("oauth service unavailable")
	respondError(r.Context(), w, http.StatusInternalServerError, "YouTube integration unavailable", "")
	return false
}
