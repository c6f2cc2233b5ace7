package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"metapro/internal/domain"
	"metapro/internal/infra"
)

const (
	defaultTimeout = 60 * time.Second
	defaultModel   = "gpt-4o-mini"
)

type Options struct {
	Model        string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
	Logger       *infra.Logger
}

// Client describes images through the chat completions endpoint, sending the
// image as a data URI next to the prompt.
type Client struct {
	model        string
	baseURL      string
	organization string
	client       *http.Client
	logger       *infra.Logger
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		model:        model,
		baseURL:      baseURL,
		organization: strings.TrimSpace(opts.Organization),
		client:       client,
		logger:       infra.OrDiscard(opts.Logger),
	}, nil
}

func (c *Client) Describe(ctx context.Context, req domain.DescribeRequest) (string, error) {
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		return "", fmt.Errorf("%w: openai api key is required", domain.ErrGenerationFailure)
	}
	mime := req.MIME
	if mime == "" {
		mime = domain.FormatJPEG
	}
	payload := chatRequest{
		Model:       c.model,
		Temperature: 0.4,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: req.Prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(req.Image)}},
			},
		}},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", fmt.Errorf("encode openai payload: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", &buf)
	if err != nil {
		return "", fmt.Errorf("create openai request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+key)
	if c.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", c.organization)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: openai request failed: %v", domain.ErrGenerationFailure, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= http.StatusBadRequest {
		return "", decodeAPIError(resp)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode openai response: %v", domain.ErrGenerationFailure, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: %v", domain.ErrGenerationFailure, errors.New("openai returned no choices"))
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: openai returned empty content", domain.ErrGenerationFailure)
	}
	c.logger.Debug().Str("model", c.model).Str("filename", req.ItemName).Msg("openai: described image")
	return text, nil
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	kind := domain.ErrGenerationFailure
	var apiErr errorResponse
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
		if apiErr.Error.Type == "insufficient_quota" {
			kind = domain.ErrCredentialExhausted
		}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		kind = domain.ErrCredentialExhausted
	}
	return fmt.Errorf("%w: openai status %d: %s", kind, resp.StatusCode, msg)
}
