package persona

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cre8hub/backend/internal/models"
)

// DefaultAITimeout bounds a single persona extraction request.
const DefaultAITimeout = 5 * time.Minute

// AIClient calls the external persona extraction service.
type AIClient struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewAIClient targets the service rooted at baseURL.
func NewAIClient(baseURL string, timeout time.Duration, httpClient *http.Client) (*AIClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("ai service base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse ai service base url: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultAITimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &AIClient{baseURL: baseURL, timeout: timeout, httpClient: httpClient}, nil
}

type aiTranscript struct {
	VideoID    string `json:"videoId"`
	Title      string `json:"title,omitempty"`
	Transcript string `json:"transcript"`
}

type aiRequest struct {
	Transcripts []aiTranscript `json:"transcripts"`
}

// ExtractPersona posts the transcripts for userID and returns the persona
// document produced by the service. The call is bounded by the client's own
// timeout on top of any deadline ctx already carries; callers that must
// outlive a request deadline detach ctx themselves.
func (c *AIClient) ExtractPersona(ctx context.Context, userID string, transcripts []models.Transcript) (map[string]any, error) {
	payload := aiRequest{Transcripts: make([]aiTranscript, 0, len(transcripts))}
	for _, t := range transcripts {
		payload.Transcripts = append(payload.Transcripts, aiTranscript{VideoID: t.VideoID, Title: t.Title, Transcript: t.Content})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode persona request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + "/persona/" + url.PathEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build persona request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("persona request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("persona service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var persona map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&persona); err != nil {
		return nil, fmt.Errorf("decode persona response: %w", err)
	}
	if persona == nil {
		return nil, errors.New("persona service returned an empty document")
	}
	return persona, nil
}
