// Package youtube reads channel, upload and caption resources from the
// YouTube Data API on behalf of a user holding an OAuth access token.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/cre8hub/backend/internal/apperr"
	"github.com/cre8hub/backend/internal/logging"
	"github.com/cre8hub/backend/internal/models"
	"github.com/cre8hub/backend/internal/transcript"
)

const (
	// DefaultMaxVideos is used when the caller does not bound the listing.
	DefaultMaxVideos = 10
	// maxPageSize is the largest page playlistItems.list will return.
	maxPageSize = 50

	maxCaptionBytes = 8 << 20
)

// Config customises the client. The zero value talks to Google with default
// pacing and retry behaviour.
type Config struct {
	// BaseURL overrides the API root, e.g. an httptest server in tests.
	BaseURL    string
	HTTPClient *http.Client
	// RequestsPerSecond paces outbound calls across all users. Zero disables pacing.
	RequestsPerSecond float64
	Burst             int
	Retry             *RetryConfig
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryConfig
}

// New constructs a Client from cfg.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	retry := DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		limiter:    limiter,
		retry:      retry,
	}
}

// service builds an API handle that authenticates every call with accessToken.
func (c *Client) service(ctx context.Context, accessToken string) (*youtube.Service, error) {
	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	authed := &http.Client{
		Timeout: c.httpClient.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   base,
		},
	}

	opts := []option.ClientOption{option.WithHTTPClient(authed)}
	if c.baseURL != "" {
		opts = append(opts, option.WithEndpoint(c.baseURL))
	}

	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return svc, nil
}

// ChannelInfo returns the channel owned by the token holder.
func (c *Client) ChannelInfo(ctx context.Context, accessToken string) (models.ChannelInfo, error) {
	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return models.ChannelInfo{}, apperr.Wrap(apperr.KindInternal, "Failed to get channel information", err)
	}

	var resp *youtube.ChannelListResponse
	err = c.do(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = svc.Channels.List([]string{"snippet", "contentDetails", "statistics"}).
			Mine(true).
			Context(ctx).
			Do()
		return callErr
	})
	if err != nil {
		return models.ChannelInfo{}, upstream("Failed to get channel information", err)
	}

	if len(resp.Items) == 0 {
		return models.ChannelInfo{}, apperr.NotFound("No channel found for this user")
	}

	channel := resp.Items[0]
	info := models.ChannelInfo{ID: channel.Id}
	if channel.Snippet != nil {
		info.Title = channel.Snippet.Title
		info.Description = channel.Snippet.Description
	}
	if channel.Statistics != nil {
		info.SubscriberCount = channel.Statistics.SubscriberCount
		info.VideoCount = channel.Statistics.VideoCount
		info.ViewCount = channel.Statistics.ViewCount
	}
	if channel.ContentDetails != nil && channel.ContentDetails.RelatedPlaylists != nil {
		info.UploadsPlaylistID = channel.ContentDetails.RelatedPlaylists.Uploads
	}

	if info.ID == "" || info.UploadsPlaylistID == "" {
		return models.ChannelInfo{}, apperr.Upstream("Failed to get channel information", "channel response is missing id or uploads playlist", nil)
	}
	return info, nil
}

// RecentVideos lists up to maxVideos uploads, newest first.
func (c *Client) RecentVideos(ctx context.Context, accessToken, uploadsPlaylistID string, maxVideos int) ([]models.VideoReference, error) {
	if strings.TrimSpace(uploadsPlaylistID) == "" {
		return nil, apperr.BadRequest("uploads playlist id is required")
	}
	if maxVideos <= 0 {
		maxVideos = DefaultMaxVideos
	}
	pageSize := min(maxVideos, maxPageSize)

	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "Failed to get user videos", err)
	}

	var resp *youtube.PlaylistItemListResponse
	err = c.do(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = svc.PlaylistItems.List([]string{"snippet"}).
			PlaylistId(uploadsPlaylistID).
			MaxResults(int64(pageSize)).
			Context(ctx).
			Do()
		return callErr
	})
	if err != nil {
		return nil, upstream("Failed to get user videos", err)
	}

	logger := logging.FromContext(ctx)
	videos := make([]models.VideoReference, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Snippet == nil || item.Snippet.ResourceId == nil || item.Snippet.ResourceId.VideoId == "" {
			logger.Warn("youtube: dropping playlist item without video id", slog.String("itemId", item.Id))
			continue
		}
		video := models.VideoReference{
			ID:          item.Snippet.ResourceId.VideoId,
			Title:       item.Snippet.Title,
			Description: item.Snippet.Description,
		}
		if published, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
			video.PublishedAt = published
		}
		if item.Snippet.Thumbnails != nil && item.Snippet.Thumbnails.Default != nil {
			video.Thumbnail = item.Snippet.Thumbnails.Default.Url
		}
		videos = append(videos, video)
	}

	sort.SliceStable(videos, func(i, j int) bool {
		return videos[i].PublishedAt.After(videos[j].PublishedAt)
	})
	if len(videos) > maxVideos {
		videos = videos[:maxVideos]
	}
	return videos, nil
}

// Transcript downloads and flattens the best caption track for videoID. It
// reports false when the video has no usable captions or any step fails.
func (c *Client) Transcript(ctx context.Context, accessToken, videoID string) (string, bool) {
	logger := logging.FromContext(ctx).With(slog.String("videoId", videoID))

	text, err := c.transcript(ctx, accessToken, videoID)
	if err != nil {
		logger.Warn("youtube: transcript unavailable", slog.Any("error", err))
		return "", false
	}
	if text == "" {
		logger.Info("youtube: no captions available")
		return "", false
	}
	logger.Debug("youtube: transcript extracted", slog.Int("chars", len(text)))
	return text, true
}

func (c *Client) transcript(ctx context.Context, accessToken, videoID string) (string, error) {
	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return "", err
	}

	var tracks *youtube.CaptionListResponse
	err = c.do(ctx, func(ctx context.Context) error {
		var callErr error
		tracks, callErr = svc.Captions.List([]string{"snippet"}, videoID).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("list captions: %w", err)
	}

	track := bestTrack(tracks.Items)
	if track == nil {
		return "", nil
	}

	var raw []byte
	err = c.do(ctx, func(ctx context.Context) error {
		resp, callErr := svc.Captions.Download(track.Id).Tfmt("srt").Context(ctx).Download()
		if callErr != nil {
			return callErr
		}
		defer resp.Body.Close()

		raw, callErr = io.ReadAll(io.LimitReader(resp.Body, maxCaptionBytes))
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("download caption %s: %w", track.Id, err)
	}

	return transcript.Parse(string(raw)), nil
}

// bestTrack prefers auto-generated English captions, otherwise the first track.
func bestTrack(items []*youtube.Caption) *youtube.Caption {
	var first *youtube.Caption
	for _, item := range items {
		if item == nil || item.Id == "" {
			continue
		}
		if first == nil {
			first = item
		}
		if item.Snippet != nil && item.Snippet.Language == "en" && item.Snippet.TrackKind == "asr" {
			return item
		}
	}
	return first
}

// upstream preserves the message reported by Google as the error detail.
func upstream(message string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		detail := apiErr.Message
		if detail == "" {
			detail = http.StatusText(apiErr.Code)
		}
		return apperr.Upstream(message, detail, err)
	}
	return apperr.Upstream(message, err.Error(), err)
}
