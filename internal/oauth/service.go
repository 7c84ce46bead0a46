// Package oauth links platform users to their YouTube accounts through the
// Google authorization code flow and keeps the resulting tokens current.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/cre8hub/backend/internal/apperr"
	"github.com/cre8hub/backend/internal/logging"
	"github.com/cre8hub/backend/internal/models"
	"github.com/cre8hub/backend/internal/repositories"
)

// Scopes requested from Google when linking an account.
var Scopes = []string{
	"https://www.googleapis.com/auth/youtube.readonly",
	"https://www.googleapis.com/auth/youtube.force-ssl",
}

// defaultTokenLifetime applies when the token endpoint omits expires_in.
const defaultTokenLifetime = time.Hour

// TokenStore persists the YouTube token bundle on the user record.
type TokenStore interface {
	FindByID(ctx context.Context, userID string) (models.User, error)
	SaveYouTubeTokens(ctx context.Context, userID string, tokens models.YouTubeTokens) error
	UpdateYouTubeAccessToken(ctx context.Context, userID, accessToken string, expiresAt time.Time) error
	ClearYouTubeTokens(ctx context.Context, userID string) error
}

// ChannelFetcher resolves the channel owned by an access token.
type ChannelFetcher interface {
	ChannelInfo(ctx context.Context, accessToken string) (models.ChannelInfo, error)
}

// Config holds the Google client registration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint overrides the Google endpoints, mostly for tests.
	Endpoint    *oauth2.Endpoint
	StateSecret []byte
	StateTTL    time.Duration
	HTTPClient  *http.Client
}

// Connection describes a freshly linked account.
type Connection struct {
	Channel     models.ChannelInfo
	ConnectedAt time.Time
}

// Status is the connection state reported to the owner of an account.
type Status struct {
	Connected   bool       `json:"connected"`
	Valid       bool       `json:"valid"`
	ConnectedAt *time.Time `json:"connectedAt"`
	ExpiresAt   *time.Time `json:"expiresAt"`
}

// Service drives the OAuth flow. It holds no per-user state.
type Service struct {
	config     *oauth2.Config
	state      *StateSigner
	store      TokenStore
	channels   ChannelFetcher
	httpClient *http.Client
	now        func() time.Time
}

// NewService validates cfg and constructs a Service.
func NewService(cfg Config, store TokenStore, channels ChannelFetcher) (*Service, error) {
	if store == nil {
		return nil, errors.New("token store is required")
	}
	if channels == nil {
		return nil, errors.New("channel fetcher is required")
	}

	signer, err := NewStateSigner(cfg.StateSecret, cfg.StateTTL)
	if err != nil {
		return nil, err
	}

	endpoint := endpoints.Google
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	return &Service{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       Scopes,
		},
		state:      signer,
		store:      store,
		channels:   channels,
		httpClient: cfg.HTTPClient,
		now:        time.Now,
	}, nil
}

// AuthURL builds the consent URL for userID.
func (s *Service) AuthURL(userID string) (string, error) {
	state, err := s.state.Sign(userID)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "Failed to generate OAuth URL", err)
	}
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// HandleCallback completes the authorization code flow, stores the tokens and
// returns the linked channel.
func (s *Service) HandleCallback(ctx context.Context, code, state string) (_ Connection, err error) {
	ctx, span := logging.StartSpan(ctx, "oauth.callback")
	defer func() { span.End(err) }()
	logger := logging.FromContext(ctx)

	code = strings.TrimSpace(code)
	if code == "" {
		return Connection{}, apperr.BadRequest("Authorization code not provided")
	}

	userID, err := s.state.Verify(state)
	if err != nil {
		logger.Warn("oauth callback rejected state", slog.Any("error", err))
		return Connection{}, apperr.BadRequest("Invalid state parameter")
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return Connection{}, err
	}

	token, err := s.config.Exchange(s.clientContext(ctx), code)
	if err != nil {
		logger.Error("oauth code exchange failed", slog.String("userId", userID), slog.Any("error", err))
		return Connection{}, providerError("Failed to connect YouTube account", err)
	}

	now := s.now()
	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = user.YouTube.RefreshToken
	}
	if token.AccessToken == "" || refreshToken == "" {
		return Connection{}, apperr.Upstream("Failed to connect YouTube account", "token response is missing access or refresh token", nil)
	}

	connectedAt := now
	if user.YouTube.ConnectedAt != nil {
		connectedAt = *user.YouTube.ConnectedAt
	}
	scope, _ := token.Extra("scope").(string)
	expiresAt := s.expiry(ctx, token, now)

	tokens := models.YouTubeTokens{
		AccessToken:  token.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    &expiresAt,
		IsConnected:  true,
		ConnectedAt:  &connectedAt,
		Scope:        scope,
	}
	if err := s.store.SaveYouTubeTokens(ctx, userID, tokens); err != nil {
		return Connection{}, s.storeError("Failed to connect YouTube account", err)
	}

	channel, err := s.channels.ChannelInfo(ctx, token.AccessToken)
	if err != nil {
		logger.Error("oauth channel lookup failed", slog.String("userId", userID), slog.Any("error", err))
		return Connection{}, err
	}

	logger.Info("youtube account connected", slog.String("userId", userID), slog.String("channelId", channel.ID))
	return Connection{Channel: channel, ConnectedAt: connectedAt}, nil
}

// Status reports whether userID has a linked account with a usable token.
func (s *Service) Status(ctx context.Context, userID string) (Status, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Connected:   user.YouTube.IsConnected,
		Valid:       user.YouTube.IsValid(s.now()),
		ConnectedAt: user.YouTube.ConnectedAt,
		ExpiresAt:   user.YouTube.ExpiresAt,
	}, nil
}

// Disconnect forgets the linked account. Disconnecting twice is not an error.
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	if _, err := s.loadUser(ctx, userID); err != nil {
		return err
	}
	if err := s.store.ClearYouTubeTokens(ctx, userID); err != nil {
		return s.storeError("Failed to disconnect YouTube account", err)
	}
	logging.FromContext(ctx).Info("youtube account disconnected", slog.String("userId", userID))
	return nil
}

// Refresh exchanges the stored refresh token for a new access token and
// returns its expiry.
func (s *Service) Refresh(ctx context.Context, userID string) (time.Time, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	if user.YouTube.RefreshToken == "" {
		return time.Time{}, apperr.BadRequest("No refresh token available")
	}

	source := s.config.TokenSource(s.clientContext(ctx), &oauth2.Token{RefreshToken: user.YouTube.RefreshToken})
	token, err := source.Token()
	if err != nil {
		logging.FromContext(ctx).Error("oauth refresh failed", slog.String("userId", userID), slog.Any("error", err))
		return time.Time{}, providerError("Failed to refresh token", err)
	}

	expiresAt := s.expiry(ctx, token, s.now())
	if err := s.store.UpdateYouTubeAccessToken(ctx, userID, token.AccessToken, expiresAt); err != nil {
		return time.Time{}, s.storeError("Failed to refresh token", err)
	}
	return expiresAt, nil
}

func (s *Service) loadUser(ctx context.Context, userID string) (models.User, error) {
	if strings.TrimSpace(userID) == "" {
		return models.User{}, apperr.Unauthorized("Authentication required")
	}
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return models.User{}, s.storeError("User not found", err)
	}
	return user, nil
}

func (s *Service) storeError(message string, err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return apperr.NotFound("User not found")
	}
	return apperr.Wrap(apperr.KindInternal, message, err)
}

func (s *Service) clientContext(ctx context.Context) context.Context {
	if s.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// expiry resolves when token stops being usable. A response without any
// lifetime is given defaultTokenLifetime, the lifetime Google documents for
// its access tokens.
func (s *Service) expiry(ctx context.Context, token *oauth2.Token, now time.Time) time.Time {
	switch {
	case token.ExpiresIn > 0:
		return now.Add(time.Duration(token.ExpiresIn) * time.Second)
	case !token.Expiry.IsZero():
		return token.Expiry
	}
	logging.FromContext(ctx).Warn("oauth token response has no expiry, assuming default lifetime",
		slog.Duration("lifetime", defaultTokenLifetime))
	return now.Add(defaultTokenLifetime)
}

// providerError keeps the provider's own explanation, e.g. invalid_grant.
func providerError(message string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		detail := retrieveErr.ErrorDescription
		if detail == "" {
			detail = retrieveErr.ErrorCode
		}
		if detail == "" {
			detail = strings.TrimSpace(string(retrieveErr.Body))
		}
		return apperr.Upstream(message, detail, err)
	}
	return apperr.Upstream(message, fmt.Sprint(err), err)
}
