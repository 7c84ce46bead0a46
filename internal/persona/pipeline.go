// Package persona harvests a creator's transcripts from YouTube and hands them
// to the external persona extraction service.
package persona

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cre8hub/backend/internal/apperr"
	"github.com/cre8hub/backend/internal/logging"
	"github.com/cre8hub/backend/internal/models"
	"github.com/cre8hub/backend/internal/repositories"
)

// TranscriptTTL is how long harvested transcripts stay reusable.
const TranscriptTTL = 24 * time.Hour

// UserStore loads users and records extraction outcomes.
type UserStore interface {
	FindByID(ctx context.Context, userID string) (models.User, error)
	UpdateExtractionMetadata(ctx context.Context, userID string, meta models.ExtractionMetadata) error
}

// VideoSource reads the resources of the channel owned by an access token.
type VideoSource interface {
	ChannelInfo(ctx context.Context, accessToken string) (models.ChannelInfo, error)
	RecentVideos(ctx context.Context, accessToken, uploadsPlaylistID string, maxVideos int) ([]models.VideoReference, error)
	Transcript(ctx context.Context, accessToken, videoID string) (string, bool)
}

// TranscriptCache stores transcripts between runs.
type TranscriptCache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Get(ctx context.Context, key string) (string, bool)
	Keys(ctx context.Context, pattern string) []string
}

// PersonaExtractor produces a persona from a batch of transcripts.
type PersonaExtractor interface {
	ExtractPersona(ctx context.Context, userID string, transcripts []models.Transcript) (map[string]any, error)
}

// Archive keeps a copy of each extracted persona. It is optional.
type Archive interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// ChannelSummary is the part of the channel reported back to the caller.
type ChannelSummary struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	SubscriberCount uint64 `json:"subscriberCount"`
}

// Result is the outcome of a full channel extraction.
type Result struct {
	Channel         ChannelSummary `json:"channelInfo"`
	VideosProcessed int            `json:"videosProcessed"`
	Persona         map[string]any `json:"persona"`
}

// CachedResult is the outcome of an extraction from previously cached transcripts.
type CachedResult struct {
	TranscriptsUsed int            `json:"transcriptsUsed"`
	Persona         map[string]any `json:"persona"`
}

// Pipeline orchestrates persona extraction for a single user at a time.
type Pipeline struct {
	Users   UserStore
	Videos  VideoSource
	Cache   TranscriptCache
	AI      PersonaExtractor
	Archive Archive
	NowFunc func() time.Time
}

// TranscriptKey names the cache entry for one video of one user.
func TranscriptKey(userID, videoID string) string {
	return "transcript:" + userID + ":" + videoID
}

// ExtractFromUserChannel harvests up to maxVideos transcripts from the user's
// channel and returns the persona built from them.
func (p *Pipeline) ExtractFromUserChannel(ctx context.Context, userID string, maxVideos int) (_ Result, err error) {
	ctx, span := logging.StartSpan(ctx, "persona.extract", slog.String("userId", userID))
	defer func() { span.End(err) }()
	logger := logging.FromContext(ctx)

	user, err := p.loadUser(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if !user.YouTube.IsConnected {
		return Result{}, apperr.Unauthorized("YouTube account not connected. Please connect your YouTube account first.")
	}
	if !user.YouTube.IsValid(p.now()) {
		return Result{}, apperr.TokenExpired("YouTube token expired. Please reconnect your account.")
	}
	accessToken := user.YouTube.AccessToken

	channel, err := p.Videos.ChannelInfo(ctx, accessToken)
	if err != nil {
		return Result{}, err
	}
	logger.Info("persona: channel resolved", slog.String("channelId", channel.ID), slog.String("title", channel.Title))

	videos, err := p.Videos.RecentVideos(ctx, accessToken, channel.UploadsPlaylistID, maxVideos)
	if err != nil {
		return Result{}, err
	}
	if len(videos) == 0 {
		return Result{}, apperr.NoContent("No videos found in your channel")
	}
	logger.Info("persona: videos listed", slog.Int("count", len(videos)))

	transcripts := p.harvest(ctx, userID, accessToken, videos)
	if len(transcripts) == 0 {
		return Result{}, apperr.NoContent("No transcripts found for your videos")
	}
	logger.Info("persona: transcripts extracted", slog.Int("count", len(transcripts)))

	persona, err := p.AI.ExtractPersona(ctx, userID, transcripts)
	if err != nil {
		logger.Error("persona: ai extraction failed", slog.Any("error", err))
		return Result{}, apperr.ExternalService("Failed to extract persona with AI", err)
	}

	p.recordExtraction(ctx, userID, len(transcripts), models.ExtractionMethodOAuth)
	p.archive(ctx, userID, persona)

	return Result{
		Channel: ChannelSummary{
			ID:              channel.ID,
			Title:           channel.Title,
			SubscriberCount: channel.SubscriberCount,
		},
		VideosProcessed: len(transcripts),
		Persona:         persona,
	}, nil
}

// ExtractFromCachedTranscripts rebuilds the persona from transcripts harvested
// by an earlier run, without calling YouTube.
func (p *Pipeline) ExtractFromCachedTranscripts(ctx context.Context, userID string) (_ CachedResult, err error) {
	ctx, span := logging.StartSpan(ctx, "persona.extract_cached", slog.String("userId", userID))
	defer func() { span.End(err) }()
	logger := logging.FromContext(ctx)

	if _, err = p.loadUser(ctx, userID); err != nil {
		return CachedResult{}, err
	}

	transcripts := p.CachedTranscripts(ctx, userID)
	if len(transcripts) == 0 {
		return CachedResult{}, apperr.NoContent("No cached transcripts found")
	}

	persona, err := p.AI.ExtractPersona(ctx, userID, transcripts)
	if err != nil {
		logger.Error("persona: ai extraction from cache failed", slog.Any("error", err))
		return CachedResult{}, apperr.ExternalService("Failed to extract persona with AI", err)
	}

	p.recordExtraction(ctx, userID, len(transcripts), models.ExtractionMethodCached)
	p.archive(ctx, userID, persona)

	return CachedResult{TranscriptsUsed: len(transcripts), Persona: persona}, nil
}

// CachedTranscripts returns every unexpired transcript cached for userID,
// ordered by video id.
func (p *Pipeline) CachedTranscripts(ctx context.Context, userID string) []models.Transcript {
	prefix := TranscriptKey(userID, "")
	keys := p.Cache.Keys(ctx, prefix+"*")
	sort.Strings(keys)

	transcripts := make([]models.Transcript, 0, len(keys))
	for _, key := range keys {
		content, ok := p.Cache.Get(ctx, key)
		if !ok || content == "" {
			continue
		}
		transcripts = append(transcripts, models.Transcript{
			VideoID: strings.TrimPrefix(key, prefix),
			Content: content,
		})
	}
	return transcripts
}

// outcome is the per-video result of the harvest fold.
type outcome struct {
	video      models.VideoReference
	transcript string
	ok         bool
}

// harvest fetches transcripts one video at a time. Videos without captions are
// skipped; they never fail the run.
func (p *Pipeline) harvest(ctx context.Context, userID, accessToken string, videos []models.VideoReference) []models.Transcript {
	logger := logging.FromContext(ctx)

	outcomes := make([]outcome, 0, len(videos))
	for _, video := range videos {
		text, ok := p.Videos.Transcript(ctx, accessToken, video.ID)
		o := outcome{video: video, transcript: text, ok: ok && text != ""}
		if o.ok {
			p.Cache.Set(ctx, TranscriptKey(userID, video.ID), text, TranscriptTTL)
		}
		outcomes = append(outcomes, o)
	}

	var transcripts []models.Transcript
	for _, o := range outcomes {
		if !o.ok {
			logger.Warn("persona: skipping video without transcript", slog.String("videoId", o.video.ID))
			continue
		}
		transcripts = append(transcripts, models.Transcript{
			VideoID:     o.video.ID,
			Content:     o.transcript,
			Title:       o.video.Title,
			PublishedAt: o.video.PublishedAt,
		})
	}
	return transcripts
}

func (p *Pipeline) loadUser(ctx context.Context, userID string) (models.User, error) {
	if strings.TrimSpace(userID) == "" {
		return models.User{}, apperr.Unauthorized("Authentication required")
	}
	user, err := p.Users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.User{}, apperr.NotFound("User not found")
		}
		return models.User{}, apperr.Wrap(apperr.KindInternal, "Failed to load user", err)
	}
	return user, nil
}

// recordExtraction is best effort; a failed write is logged and ignored.
func (p *Pipeline) recordExtraction(ctx context.Context, userID string, processed int, method string) {
	now := p.now()
	meta := models.ExtractionMetadata{VideosProcessed: processed, LastExtraction: &now, Method: method}
	if err := p.Users.UpdateExtractionMetadata(ctx, userID, meta); err != nil {
		logging.FromContext(ctx).Error("persona: update extraction metadata", slog.String("userId", userID), slog.Any("error", err))
	}
}

func (p *Pipeline) archive(ctx context.Context, userID string, persona map[string]any) {
	if p.Archive == nil {
		return
	}
	logger := logging.FromContext(ctx)

	body, err := json.Marshal(persona)
	if err != nil {
		logger.Error("persona: encode archive", slog.String("userId", userID), slog.Any("error", err))
		return
	}

	name := fmt.Sprintf("personas/%s/%s.json", userID, p.now().UTC().Format("20060102T150405Z"))
	location, err := p.Archive.Save(ctx, name, bytes.NewReader(body))
	if err != nil {
		logger.Error("persona: archive failed", slog.String("userId", userID), slog.Any("error", err))
		return
	}
	logger.Info("persona: archived", slog.String("location", location))
}

func (p *Pipeline) now() time.Time {
	if p.NowFunc != nil {
		return p.NowFunc()
	}
	return time.Now().UTC()
}
