package handlers

import (
	"context"
	"time"

	"github.com/cre8hub/backend/internal/models"
	"github.com/cre8hub/backend/internal/oauth"
	"github.com/cre8hub/backend/internal/persona"
)

// UserStore captures the persistence operations required by the auth handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
}

// ProfileStore loads and rewrites the authenticated user's own record.
type ProfileStore interface {
	FindByID(ctx context.Context, userID string) (models.User, error)
	Update(ctx context.Context, user models.User) error
}

// SessionManager issues and refreshes authentication tokens for users.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Revoke(ctx context.Context, refreshToken string) error
}

// YouTubeOAuth drives the YouTube account linking flow.
type YouTubeOAuth interface {
	AuthURL(userID string) (string, error)
	HandleCallback(ctx context.Context, code, state string) (oauth.Connection, error)
	Status(ctx context.Context, userID string) (oauth.Status, error)
	Disconnect(ctx context.Context, userID string) error
	Refresh(ctx context.Context, userID string) (time.Time, error)
}

// PersonaExtractor runs persona extraction for the authenticated user.
type PersonaExtractor interface {
	ExtractFromUserChannel(ctx context.Context, userID string, maxVideos int) (persona.Result, error)
	ExtractFromCachedTranscripts(ctx context.Context, userID string) (persona.CachedResult, error)
	CachedTranscripts(ctx context.Context, userID string) []models.Transcript
}

// PersonaJobs schedules extractions in the background.
type PersonaJobs interface {
	Submit(ctx context.Context, userID string, maxVideos int) (models.PersonaJob, error)
	Get(id string) (models.PersonaJob, bool)
}
