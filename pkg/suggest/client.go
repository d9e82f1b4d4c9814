package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds one generation attempt. Single attempt, no
	// retry: a retried call risks emitting duplicate suggestions.
	DefaultTimeout = 8 * time.Second

	// DefaultModel is used on the OpenAI-compatible path when no model
	// is configured.
	DefaultModel = "gemini-2.5-flash"

	generationTemperature = 0.7
	generationMaxTokens   = 200
)

// geminiHost identifies the Gemini dialect by endpoint host.
const geminiHost = "generativelanguage.googleapis.com"

// Config configures a generation client. APIURL and APIKey empty means
// unconfigured; Generate then always reports failure without a network
// call.
type Config struct {
	APIURL  string
	APIKey  string
	Model   string
	Timeout time.Duration

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Client calls the generation API.
type Client struct {
	apiURL     string
	apiKey     string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient builds a Client, applying defaults for model and timeout.
// The timeout is enforced per request, so a shared HTTPClient without
// its own Timeout is still bounded.
func NewClient(cfg Config) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
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
		model:      model,
		timeout:    timeout,
		httpClient: httpClient,
	}
}

// Configured reports whether the client has an endpoint and key.
func (c *Client) Configured() bool {
	return c.apiURL != "" && c.apiKey != ""
}

// Gemini generateContent request/response shapes. Field names follow
// the wire format (camelCase).

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// OpenAI-compatible chat shapes.

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const chatSystemPrompt = "You are a friendly conversation coach assistant."

// Generate runs one generation attempt for the given context. Callers
// treat any error, and an empty result, as "no suggestion this tick".
func (c *Client) Generate(ctx context.Context, pc Context) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("generation endpoint not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := pc.Prompt()

	var (
		body       []byte
		requestURL string
		err        error
		bearer     bool
	)
	if c.isGemini() {
		body, err = json.Marshal(geminiRequest{
			Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
			GenerationConfig: geminiGenerationConfig{
				Temperature:     generationTemperature,
				MaxOutputTokens: generationMaxTokens,
			},
		})
		if err == nil {
			requestURL, err = withAPIKey(c.apiURL, c.apiKey)
		}
	} else {
		body, err = json.Marshal(chatRequest{
			Model: c.model,
			Messages: []chatMessage{
				{Role: "system", Content: chatSystemPrompt},
				{Role: "user", Content: prompt},
			},
			Temperature: generationTemperature,
			MaxTokens:   generationMaxTokens,
		})
		requestURL = c.apiURL
		bearer = true
	}
	if err != nil {
		return "", fmt.Errorf("build generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("generation request: status %d", resp.StatusCode)
	}

	if c.isGemini() {
		var parsed geminiResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return "", fmt.Errorf("decode generation response: %w", err)
		}
		if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
			return "", fmt.Errorf("generation response missing candidates")
		}
		return strings.TrimSpace(parsed.Candidates[0].Content.Parts[0].Text), nil
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode generation response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("generation response missing choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func (c *Client) isGemini() bool {
	return strings.Contains(c.apiURL, geminiHost)
}

// withAPIKey appends the key query parameter unless one is already
// present.
func withAPIKey(rawURL, apiKey string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse endpoint url: %w", err)
	}
	query := parsed.Query()
	if !query.Has("key") {
		query.Set("key", apiKey)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
