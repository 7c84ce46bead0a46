package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cre8hub/backend/internal/db"
	"github.com/cre8hub/backend/internal/models"
)

const userColumns = `
        id, email, password_hash, created_at, updated_at,
        youtube_access_token, youtube_refresh_token, youtube_expires_at,
        youtube_connected, youtube_connected_at, youtube_scope,
        videos_processed, last_extraction_at, extraction_method,
        name, user_role, role_profile, manual_persona, past_outputs
`

// PostgresUserRepository provides PostgreSQL-backed persistence for users and
// the YouTube credentials linked to them.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, email, name, password_hash, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, user.ID, user.Email, user.Name, user.Password, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, "email", email)
}

// FindByID fetches a user by primary key.
func (r *PostgresUserRepository) FindByID(ctx context.Context, userID string) (models.User, error) {
	return r.findOne(ctx, "id", userID)
}

func (r *PostgresUserRepository) findOne(ctx context.Context, column, value string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value)

	var (
		user                      models.User
		method                    string
		profile, persona, outputs []byte
	)
	err = row.Scan(
		&user.ID, &user.Email, &user.Password, &user.CreatedAt, &user.UpdatedAt,
		&user.YouTube.AccessToken, &user.YouTube.RefreshToken, &user.YouTube.ExpiresAt,
		&user.YouTube.IsConnected, &user.YouTube.ConnectedAt, &user.YouTube.Scope,
		&user.Extraction.VideosProcessed, &user.Extraction.LastExtraction, &method,
		&user.Name, &user.Role, &profile, &persona, &outputs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by %s: %w", column, err)
	}
	user.Extraction.Method = method

	if err := unmarshalColumn(profile, &user.RoleProfile); err != nil {
		return models.User{}, fmt.Errorf("decode role_profile: %w", err)
	}
	if err := unmarshalColumn(persona, &user.Persona); err != nil {
		return models.User{}, fmt.Errorf("decode manual_persona: %w", err)
	}
	if err := unmarshalColumn(outputs, &user.PastOutputs); err != nil {
		return models.User{}, fmt.Errorf("decode past_outputs: %w", err)
	}

	utcPtr(user.YouTube.ExpiresAt)
	utcPtr(user.YouTube.ConnectedAt)
	utcPtr(user.Extraction.LastExtraction)

	return user, nil
}

// Update writes the account and profile fields of an existing user. YouTube
// credentials and extraction metadata have their own writers and are left
// untouched.
func (r *PostgresUserRepository) Update(ctx context.Context, user models.User) error {
	profile, err := json.Marshal(user.RoleProfile)
	if err != nil {
		return fmt.Errorf("encode role_profile: %w", err)
	}
	var persona []byte
	if user.Persona != nil {
		if persona, err = json.Marshal(user.Persona); err != nil {
			return fmt.Errorf("encode manual_persona: %w", err)
		}
	}
	outputs := user.PastOutputs
	if outputs == nil {
		outputs = []models.PastOutput{}
	}
	history, err := json.Marshal(outputs)
	if err != nil {
		return fmt.Errorf("encode past_outputs: %w", err)
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET email = $2, password_hash = $3, updated_at = $4, name = $5, user_role = $6,
            role_profile = $7::JSONB, manual_persona = $8::JSONB, past_outputs = $9::JSONB
        WHERE id = $1
    `, user.ID, user.Email, user.Password, user.UpdatedAt, user.Name, user.Role,
		string(profile), nullableJSON(persona), string(history))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("update user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveYouTubeTokens replaces the linked YouTube credentials of a user. A
// connected bundle must carry both tokens.
func (r *PostgresUserRepository) SaveYouTubeTokens(ctx context.Context, userID string, tokens models.YouTubeTokens) error {
	if tokens.IsConnected && (strings.TrimSpace(tokens.AccessToken) == "" || strings.TrimSpace(tokens.RefreshToken) == "") {
		return ErrInvalidTokens
	}

	return r.exec(ctx, "save youtube tokens", `
        UPDATE users
        SET youtube_access_token = $2, youtube_refresh_token = $3, youtube_expires_at = $4,
            youtube_connected = $5, youtube_connected_at = $6, youtube_scope = $7,
            updated_at = $8
        WHERE id = $1
    `, userID, tokens.AccessToken, tokens.RefreshToken, utcOrNil(tokens.ExpiresAt),
		tokens.IsConnected, utcOrNil(tokens.ConnectedAt), tokens.Scope, time.Now().UTC())
}

// UpdateYouTubeAccessToken stores a refreshed access token. The refresh token
// and connection state are left untouched.
func (r *PostgresUserRepository) UpdateYouTubeAccessToken(ctx context.Context, userID, accessToken string, expiresAt time.Time) error {
	if strings.TrimSpace(accessToken) == "" {
		return ErrInvalidTokens
	}

	return r.exec(ctx, "update youtube access token", `
        UPDATE users
        SET youtube_access_token = $2, youtube_expires_at = $3, updated_at = $4
        WHERE id = $1
    `, userID, accessToken, expiresAt.UTC(), time.Now().UTC())
}

// ClearYouTubeTokens unlinks the YouTube account. Clearing an already
// disconnected user succeeds.
func (r *PostgresUserRepository) ClearYouTubeTokens(ctx context.Context, userID string) error {
	return r.exec(ctx, "clear youtube tokens", `
        UPDATE users
        SET youtube_access_token = '', youtube_refresh_token = '', youtube_expires_at = NULL,
            youtube_connected = FALSE, youtube_connected_at = NULL, youtube_scope = '',
            updated_at = $2
        WHERE id = $1
    `, userID, time.Now().UTC())
}

// UpdateExtractionMetadata records the outcome of the latest persona extraction.
func (r *PostgresUserRepository) UpdateExtractionMetadata(ctx context.Context, userID string, meta models.ExtractionMetadata) error {
	return r.exec(ctx, "update extraction metadata", `
        UPDATE users
        SET videos_processed = $2, last_extraction_at = $3, extraction_method = $4, updated_at = $5
        WHERE id = $1
    `, userID, meta.VideosProcessed, utcOrNil(meta.LastExtraction), meta.Method, time.Now().UTC())
}

func (r *PostgresUserRepository) exec(ctx context.Context, op, query string, args ...any) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// unmarshalColumn decodes a JSONB column, leaving dst unchanged for NULL.
func unmarshalColumn(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func nullableJSON(raw []byte) *string {
	if raw == nil {
		return nil
	}
	s := string(raw)
	return &s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func utcOrNil(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func utcPtr(t *time.Time) {
	if t != nil {
		*t = t.UTC()
	}
}
