package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cre8hub/backend/internal/logging"
)

// TokenVerifier resolves a bearer access token to the user it was issued to.
type TokenVerifier interface {
	Verify(accessToken string) (string, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// authenticated user on the request context.
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := logging.FromContext(ctx)

			if verifier == nil {
				logger.Error("token verifier unavailable")
				writeError(w, http.StatusInternalServerError, "Authentication unavailable")
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				logger.Warn("missing bearer token")
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			userID, err := verifier.Verify(token)
			if err != nil {
				logger.Warn("rejected bearer token", "error", err)
				writeError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			ctx = logging.WithUserID(ctx, userID)
			ctx = logging.WithLogger(ctx, logger.With(slog.String("user_id", userID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// writeError emits the API error envelope for failures raised before a handler runs.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": message})
}
