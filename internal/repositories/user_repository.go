package repositories

import (
	"context"
	"time"

	"github.com/cre8hub/backend/internal/models"
)

// UserRepository defines the data access contract for users.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, userID string) (models.User, error)
	Update(ctx context.Context, user models.User) error
}

// YouTubeTokenRepository persists the credentials linking users to YouTube.
type YouTubeTokenRepository interface {
	SaveYouTubeTokens(ctx context.Context, userID string, tokens models.YouTubeTokens) error
	UpdateYouTubeAccessToken(ctx context.Context, userID, accessToken string, expiresAt time.Time) error
	ClearYouTubeTokens(ctx context.Context, userID string) error
}

// ExtractionRepository records persona extraction outcomes.
type ExtractionRepository interface {
	UpdateExtractionMetadata(ctx context.Context, userID string, meta models.ExtractionMetadata) error
}

var (
	_ UserRepository         = (*PostgresUserRepository)(nil)
	_ YouTubeTokenRepository = (*PostgresUserRepository)(nil)
	_ ExtractionRepository   = (*PostgresUserRepository)(nil)
)
