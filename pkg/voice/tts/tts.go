// Package tts is the optional speech-synthesis client. Synthesis is
// strictly best-effort: a suggestion is still delivered as text when
// synthesis fails, so the timeout here is tight and every failure maps
// to an empty Result.
package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds one synthesis attempt. Kept well under the
// suggestion cadence so a slow synthesis backend cannot delay delivery.
const DefaultTimeout = 1200 * time.Millisecond

// DefaultVoiceID is used when no voice is configured.
const DefaultVoiceID = "default"

// Config configures a synthesis client. Empty APIURL or APIKey
// disables synthesis entirely.
type Config struct {
	APIURL  string
	APIKey  string
	VoiceID string
	Timeout time.Duration

	HTTPClient *http.Client
}

// Result is one synthesis outcome. At most one of AudioURL and
// AudioStream is set; both empty means synthesis was skipped or failed.
type Result struct {
	AudioURL    string
	AudioStream string
}

// Empty reports whether the result carries no audio.
func (r Result) Empty() bool {
	return r.AudioURL == "" && r.AudioStream == ""
}

// Client calls the synthesis API.
type Client struct {
	apiURL     string
	apiKey     string
	voiceID    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient builds a Client, applying voice and timeout defaults. The
// timeout is enforced per request, so a shared HTTPClient without its
// own Timeout is still bounded.
func NewClient(cfg Config) *Client {
	voiceID := cfg.VoiceID
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		apiURL:     strings.TrimSpace(cfg.APIURL),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		voiceID:    voiceID,
		timeout:    timeout,
		httpClient: httpClient,
	}
}

// Configured reports whether synthesis is enabled.
func (c *Client) Configured() bool {
	return c.apiURL != "" && c.apiKey != ""
}

type synthesizeRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	VoiceID  string `json:"voice_id"`
}

type synthesizeResponse struct {
	AudioURL    string `json:"audio_url"`
	AudioBase64 string `json:"audio_base64"`
}

// Synthesize renders text to speech. It never returns an error: any
// failure, including an unconfigured client, yields the empty Result.
func (c *Client) Synthesize(ctx context.Context, text, language string) Result {
	if !c.Configured() {
		return Result{}
	}
	if language == "" {
		language = "english"
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(synthesizeRequest{
		Text:     text,
		Language: language,
		VoiceID:  c.voiceID,
	})
	if err != nil {
		return Result{}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return Result{}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}
	}

	var parsed synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}
	}

	if parsed.AudioURL != "" {
		return Result{AudioURL: parsed.AudioURL}
	}
	if parsed.AudioBase64 != "" {
		if _, err := base64.StdEncoding.DecodeString(parsed.AudioBase64); err != nil {
			return Result{}
		}
		return Result{AudioStream: parsed.AudioBase64}
	}
	return Result{}
}
