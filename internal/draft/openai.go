package draft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	httpTimeout       = 90 * time.Second
	defaultBaseURL    = "https://api.openai.com/v1"
	defaultModel      = "gpt-4o"
	draftMaxTokens    = 3000
	draftTemperature  = 0.7
	completionsSuffix = "/chat/completions"
)

// Client generates drafts through an OpenAI-compatible chat completions API.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewClient constructs a Client against the public OpenAI API. An empty model
// selects gpt-4o.
func NewClient(apiKey, model string) *Client {
	return NewClientWithURL(defaultBaseURL, apiKey, model)
}

// NewClientWithURL constructs a Client pointing at a custom base URL (for tests
// and compatible gateways).
func NewClientWithURL(baseURL, apiKey, model string) *Client {
	if model == "" {
		model = defaultModel
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: httpTimeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// doPost sends body as JSON with a bearer token and decodes the JSON reply into dst.
func doPost(ctx context.Context, client *http.Client, rawURL, token string, body, dst any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request for %s: %w", rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request for %s: %w", rawURL, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("POST %s returned status %d", rawURL, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding response from %s: %w", rawURL, err)
	}

	return nil
}

// GenerateDraft asks the model for a draft and parses its reply. A reply that
// is not the expected shape returns an error wrapping ErrMalformedResponse.
func (c *Client) GenerateDraft(ctx context.Context, req Request) (Response, error) {
	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildPrompt(req)},
		},
		MaxTokens:   draftMaxTokens,
		Temperature: draftTemperature,
	}

	var raw chatResponse
	if err := doPost(ctx, c.client, c.baseURL+completionsSuffix, c.apiKey, body, &raw); err != nil {
		return Response{}, fmt.Errorf("requesting draft: %w", err)
	}

	if len(raw.Choices) == 0 {
		return Response{}, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	return ParseResponse(raw.Choices[0].Message.Content)
}
