package models

import "time"

// User represents an account within the Cre8Hub platform.
type User struct {
	ID          string
	Email       string
	Name        string
	Password    string
	Role        string
	RoleProfile RoleProfile
	Persona     *ManualPersona
	PastOutputs []PastOutput
	YouTube     YouTubeTokens
	Extraction  ExtractionMetadata
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// YouTubeTokens is the OAuth token bundle linking a user to their YouTube account.
// The credential strings never leave the backend.
type YouTubeTokens struct {
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	ExpiresAt    *time.Time `json:"expiresAt"`
	IsConnected  bool       `json:"isConnected"`
	ConnectedAt  *time.Time `json:"connectedAt"`
	Scope        string     `json:"scope,omitempty"`
}

// IsValid reports whether the access token may be used at the provided instant.
func (t YouTubeTokens) IsValid(now time.Time) bool {
	return t.IsConnected && t.ExpiresAt != nil && now.Before(*t.ExpiresAt)
}

// ExtractionMetadata records the outcome of the most recent persona extraction.
type ExtractionMetadata struct {
	VideosProcessed int
	LastExtraction  *time.Time
	Method          string
}

const (
	ExtractionMethodOAuth  = "oauth_transcripts"
	ExtractionMethodCached = "cached_transcripts"
)

// ChannelInfo is a snapshot of the authenticated user's channel.
type ChannelInfo struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	SubscriberCount   uint64 `json:"subscriberCount"`
	VideoCount        uint64 `json:"videoCount"`
	ViewCount         uint64 `json:"viewCount"`
	UploadsPlaylistID string `json:"uploadsPlaylistId"`
}

// VideoReference describes an uploaded video.
type VideoReference struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PublishedAt time.Time `json:"publishedAt"`
	Thumbnail   string    `json:"thumbnail"`
}

// Transcript is the plain-text caption content of a video.
type Transcript struct {
	VideoID     string    `json:"videoId"`
	Content     string    `json:"transcript"`
	Title       string    `json:"title,omitempty"`
	PublishedAt time.Time `json:"publishedAt,omitzero"`
}

// PersonaJob tracks an asynchronous persona extraction.
type PersonaJob struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	MaxVideos  int        `json:"maxVideos"`
	Status     string     `json:"status"`
	Result     any        `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
