package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cre8hub/backend/internal/auth"
	"github.com/cre8hub/backend/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresUserRepository_CreateFindAndUpdate(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)

	user := models.User{
		ID:        uuid.NewString(),
		Email:     "alice@example.com",
		Password:  "secret-hash",
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	dup := models.User{
		ID:        uuid.NewString(),
		Email:     user.Email,
		Password:  "another-hash",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict when creating duplicate email, got %v", err)
	}

	fetched, err := repo.FindByEmail(ctx, user.Email)
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}

	if fetched.ID != user.ID || fetched.Email != user.Email || fetched.Password != user.Password {
		t.Fatalf("unexpected user fetched: %+v", fetched)
	}

	updated := user
	updated.Email = "updated@example.com"
	updated.Password = "rotated-hash"
	updated.UpdatedAt = time.Now().UTC().Add(time.Minute)

	if err := repo.Update(ctx, updated); err != nil {
		t.Fatalf("update user: %v", err)
	}

	fetched, err = repo.FindByEmail(ctx, updated.Email)
	if err != nil {
		t.Fatalf("find by updated email: %v", err)
	}

	if fetched.Email != updated.Email || fetched.Password != updated.Password {
		t.Fatalf("expected updated fields to persist, got %+v", fetched)
	}

	missing := models.User{
		ID:        uuid.NewString(),
		Email:     "missing@example.com",
		Password:  "hash",
		UpdatedAt: time.Now().UTC(),
	}

	if err := repo.Update(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating missing user, got %v", err)
	}
}

func TestPostgresUserRepository_UpdateProfileFields(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)
	user := createTestUser(t, repo, "creator@example.com")

	fetched, err := repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find new user: %v", err)
	}
	if fetched.Role != "" || fetched.Persona != nil || len(fetched.PastOutputs) != 0 {
		t.Fatalf("expected empty profile on a new user, got %+v", fetched)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	fetched.Name = "Casey"
	fetched.Role = models.RoleEntrepreneur
	fetched.RoleProfile = models.RoleProfile{BusinessCategory: "saas", BusinessDescription: "creator analytics"}
	fetched.Persona = &models.ManualPersona{
		Description: "practical founder voice",
		Topics:      []string{"pricing", "hiring"},
		Source:      models.PersonaSourceManual,
		UpdatedAt:   now,
	}
	fetched.PastOutputs = models.AppendPastOutput(nil, models.PastOutput{Content: "launch thread", Kind: "post", CreatedAt: now})
	fetched.UpdatedAt = now

	if err := repo.Update(ctx, fetched); err != nil {
		t.Fatalf("update profile: %v", err)
	}

	stored, err := repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find updated user: %v", err)
	}
	if stored.Name != "Casey" || stored.Role != models.RoleEntrepreneur || stored.RoleProfile != fetched.RoleProfile {
		t.Fatalf("unexpected profile %+v", stored)
	}
	if stored.Persona == nil || stored.Persona.Description != "practical founder voice" || len(stored.Persona.Topics) != 2 {
		t.Fatalf("unexpected persona %+v", stored.Persona)
	}
	if !stored.Persona.UpdatedAt.Equal(now) {
		t.Fatalf("expected persona timestamp %s, got %s", now, stored.Persona.UpdatedAt)
	}
	if len(stored.PastOutputs) != 1 || stored.PastOutputs[0].Content != "launch thread" {
		t.Fatalf("unexpected past outputs %+v", stored.PastOutputs)
	}

	stored.Persona = nil
	stored.PastOutputs = nil
	if err := repo.Update(ctx, stored); err != nil {
		t.Fatalf("clear persona: %v", err)
	}
	cleared, err := repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find cleared user: %v", err)
	}
	if cleared.Persona != nil || len(cleared.PastOutputs) != 0 || cleared.Name != "Casey" {
		t.Fatalf("expected persona and history cleared, got %+v", cleared)
	}
}

func TestPostgresSessionStore_SaveFindAndDelete(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	user := createTestUser(t, userRepo, "owner@example.com")

	store := NewPostgresSessionStore(testPool)
	expires := time.Now().UTC().Add(24 * time.Hour)
	session := auth.Session{
		TokenHash: uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: expires,
	}

	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("save session: %v", err)
	}

	loaded, err := store.Find(ctx, session.TokenHash)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}

	if loaded.UserID != session.UserID || !timesClose(loaded.ExpiresAt, expires.UTC(), time.Millisecond) {
		t.Fatalf("unexpected session loaded: %+v", loaded)
	}

	updated := session
	updated.ExpiresAt = expires.Add(48 * time.Hour)
	if err := store.Save(ctx, updated); err != nil {
		t.Fatalf("update session: %v", err)
	}

	loaded, err = store.Find(ctx, session.TokenHash)
	if err != nil {
		t.Fatalf("find session after update: %v", err)
	}

	if !timesClose(loaded.ExpiresAt, updated.ExpiresAt.UTC(), time.Millisecond) {
		t.Fatalf("expected updated expiry, got %v", loaded.ExpiresAt)
	}

	if err := store.Delete(ctx, session.TokenHash); err != nil {
		t.Fatalf("delete session: %v", err)
	}

	if _, err := store.Find(ctx, session.TokenHash); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}

	if err := store.Delete(ctx, session.TokenHash); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound deleting twice, got %v", err)
	}
}

func TestPostgresSessionStore_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	user := createTestUser(t, NewPostgresUserRepository(testPool), "sweeper@example.com")
	store := NewPostgresSessionStore(testPool)

	now := time.Now().UTC()
	stale := auth.Session{TokenHash: uuid.NewString(), UserID: user.ID, ExpiresAt: now.Add(-time.Hour)}
	live := auth.Session{TokenHash: uuid.NewString(), UserID: user.ID, ExpiresAt: now.Add(time.Hour)}
	for _, session := range []auth.Session{stale, live} {
		if err := store.Save(ctx, session); err != nil {
			t.Fatalf("save session: %v", err)
		}
	}

	n, err := store.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one expired session removed, got %d", n)
	}
	if _, err := store.Find(ctx, stale.TokenHash); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected stale session to be gone, got %v", err)
	}
	if _, err := store.Find(ctx, live.TokenHash); err != nil {
		t.Fatalf("expected live session to remain, got %v", err)
	}
}

func TestPostgresUserRepository_FindByID(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)
	user := createTestUser(t, repo, "creator@example.com")

	fetched, err := repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if fetched.Email != user.Email {
		t.Fatalf("unexpected user fetched: %+v", fetched)
	}
	if fetched.YouTube.IsConnected || fetched.YouTube.ExpiresAt != nil || fetched.YouTube.ConnectedAt != nil {
		t.Fatalf("expected new user to have no youtube link, got %+v", fetched.YouTube)
	}
	if fetched.Extraction.LastExtraction != nil || fetched.Extraction.Method != "" {
		t.Fatalf("expected empty extraction metadata, got %+v", fetched.Extraction)
	}

	if _, err := repo.FindByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestPostgresUserRepository_YouTubeTokenLifecycle(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)
	user := createTestUser(t, repo, "linked@example.com")

	connectedAt := time.Now().UTC().Truncate(time.Millisecond)
	expiresAt := connectedAt.Add(time.Hour)
	tokens := models.YouTubeTokens{
		AccessToken:  "ya29.access",
		RefreshToken: "1//refresh",
		ExpiresAt:    &expiresAt,
		IsConnected:  true,
		ConnectedAt:  &connectedAt,
		Scope:        "https://www.googleapis.com/auth/youtube.readonly",
	}

	if err := repo.SaveYouTubeTokens(ctx, user.ID, tokens); err != nil {
		t.Fatalf("save youtube tokens: %v", err)
	}

	fetched, err := repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find after save: %v", err)
	}
	yt := fetched.YouTube
	if !yt.IsConnected || yt.AccessToken != tokens.AccessToken || yt.RefreshToken != tokens.RefreshToken || yt.Scope != tokens.Scope {
		t.Fatalf("unexpected tokens loaded: %+v", yt)
	}
	if yt.ExpiresAt == nil || !timesClose(*yt.ExpiresAt, expiresAt, time.Millisecond) {
		t.Fatalf("unexpected expiry %v", yt.ExpiresAt)
	}
	if !yt.IsValid(connectedAt) || yt.IsValid(expiresAt) {
		t.Fatalf("expected token valid before expiry only")
	}

	refreshedAt := expiresAt.Add(30 * time.Minute)
	if err := repo.UpdateYouTubeAccessToken(ctx, user.ID, "ya29.rotated", refreshedAt); err != nil {
		t.Fatalf("update access token: %v", err)
	}

	fetched, err = repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find after refresh: %v", err)
	}
	if fetched.YouTube.AccessToken != "ya29.rotated" || fetched.YouTube.RefreshToken != tokens.RefreshToken {
		t.Fatalf("expected only the access token to rotate, got %+v", fetched.YouTube)
	}
	if !timesClose(*fetched.YouTube.ExpiresAt, refreshedAt, time.Millisecond) {
		t.Fatalf("unexpected expiry after refresh %v", fetched.YouTube.ExpiresAt)
	}
	if fetched.YouTube.ConnectedAt == nil || !timesClose(*fetched.YouTube.ConnectedAt, connectedAt, time.Millisecond) {
		t.Fatalf("expected connectedAt to be kept, got %v", fetched.YouTube.ConnectedAt)
	}

	for i := 0; i < 2; i++ {
		if err := repo.ClearYouTubeTokens(ctx, user.ID); err != nil {
			t.Fatalf("clear youtube tokens (pass %d): %v", i+1, err)
		}
	}

	fetched, err = repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find after clear: %v", err)
	}
	if fetched.YouTube.IsConnected || fetched.YouTube.AccessToken != "" || fetched.YouTube.RefreshToken != "" || fetched.YouTube.ExpiresAt != nil {
		t.Fatalf("expected tokens cleared, got %+v", fetched.YouTube)
	}
}

func TestPostgresUserRepository_RejectsIncompleteTokenBundle(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)
	user := createTestUser(t, repo, "partial@example.com")

	incomplete := models.YouTubeTokens{AccessToken: "ya29.only-access", IsConnected: true}
	if err := repo.SaveYouTubeTokens(ctx, user.ID, incomplete); !errors.Is(err, ErrInvalidTokens) {
		t.Fatalf("expected ErrInvalidTokens, got %v", err)
	}

	if err := repo.UpdateYouTubeAccessToken(ctx, user.ID, "", time.Now()); !errors.Is(err, ErrInvalidTokens) {
		t.Fatalf("expected ErrInvalidTokens for empty access token, got %v", err)
	}

	if err := repo.SaveYouTubeTokens(ctx, uuid.NewString(), models.YouTubeTokens{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestPostgresUserRepository_UpdateExtractionMetadata(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)
	user := createTestUser(t, repo, "persona@example.com")

	at := time.Now().UTC().Truncate(time.Millisecond)
	meta := models.ExtractionMetadata{VideosProcessed: 7, LastExtraction: &at, Method: models.ExtractionMethodOAuth}
	if err := repo.UpdateExtractionMetadata(ctx, user.ID, meta); err != nil {
		t.Fatalf("update extraction metadata: %v", err)
	}

	fetched, err := repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find after metadata update: %v", err)
	}
	got := fetched.Extraction
	if got.VideosProcessed != 7 || got.Method != models.ExtractionMethodOAuth || got.LastExtraction == nil || !timesClose(*got.LastExtraction, at, time.Millisecond) {
		t.Fatalf("unexpected extraction metadata: %+v", got)
	}

	if err := repo.UpdateExtractionMetadata(ctx, uuid.NewString(), meta); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE sessions, users CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func createTestUser(t *testing.T, repo *PostgresUserRepository, email string) models.User {
	t.Helper()
	user := models.User{
		ID:        uuid.NewString(),
		Email:     email,
		Password:  "password-hash",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return user
}

func timesClose(a, b time.Time, delta time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= delta
}
