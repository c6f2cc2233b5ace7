package genai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"metapro/internal/domain"
	"metapro/internal/infra"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client describes images through Gemini's generateContent endpoint. The key
// travels with each request so one client serves every credential in the
// rotation. When neither the request nor the client carries a key, the client
// answers with deterministic synthetic text so local runs work offline.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature    float64 `json:"temperature,omitempty"`
	CandidateCount int     `json:"candidateCount,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
		Status  string `json:"status,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with sensible timeouts will be created.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := opts.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     infra.OrDiscard(opts.Logger),
	}, nil
}

// Model returns the configured Gemini model identifier.
func (c *Client) Model() string {
	return c.model
}

// Describe sends the image and prompt to Gemini and returns the response text.
func (c *Client) Describe(ctx context.Context, req domain.DescribeRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGenerationFailure, err)
	}

	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		key = c.apiKey
	}
	if key == "" {
		return syntheticText(req), nil
	}

	mime := req.MIME
	if mime == "" {
		mime = domain.FormatJPEG
	}
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: req.Prompt},
				{InlineData: &geminiInlineData{MimeType: mime, Data: base64.StdEncoding.EncodeToString(req.Image)}},
			},
		}},
		GenerationConfig: &geminiGenerationConfig{Temperature: 0.4, CandidateCount: 1},
	}

	var response geminiGenerateContentResponse
	path := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model))
	if err := c.invokeGemini(ctx, key, path, payload, &response); err != nil {
		return "", err
	}

	text := strings.TrimSpace(extractText(response))
	if text == "" {
		return "", fmt.Errorf("%w: gemini returned no text", domain.ErrGenerationFailure)
	}

	c.logger.Debug().
		Str("model", c.model).
		Str("filename", req.ItemName).
		Int("chars", len(text)).
		Msg("genai: described image")
	return text, nil
}

func (c *Client) invokeGemini(ctx context.Context, key, path string, payload any, out any) error {
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: invoke gemini: %v", domain.ErrGenerationFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode gemini response: %v", domain.ErrGenerationFailure, err)
	}
	return nil
}

// statusError classifies a failed response. Rate limits and exhausted
// quotas map to ErrCredentialExhausted; everything else is a plain
// generation failure.
func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)
	msg := strings.TrimSpace(string(data))
	status := ""
	var apiErr geminiErrorResponse
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
		status = apiErr.Error.Status
	}
	kind := domain.ErrGenerationFailure
	if resp.StatusCode == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED" {
		kind = domain.ErrCredentialExhausted
	}
	if msg == "" {
		return fmt.Errorf("%w: gemini status %d", kind, resp.StatusCode)
	}
	return fmt.Errorf("%w: gemini status %d: %s", kind, resp.StatusCode, msg)
}

func extractText(resp geminiGenerateContentResponse) string {
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			b.WriteString(part.Text)
		}
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}

var titleCaser = cases.Title(language.English)

var syntheticVocabulary = []string{
	"abstract", "background", "texture", "pattern", "design", "color", "light",
	"modern", "vibrant", "nature", "composition", "shape", "graphic", "art",
	"minimal", "creative", "bright", "soft", "detail", "surface", "concept",
	"geometric", "element", "decoration", "style", "contrast", "shadow",
	"illustration", "template", "layout", "gradient", "frame", "organic",
	"simple", "elegant", "colorful", "space", "symbol", "visual", "form",
	"line", "curve", "tone", "material", "decorative", "trendy", "clean",
	"wallpaper", "banner", "print", "fresh",
}

// syntheticText stands in for the remote service when no key is configured.
// Keyword prompts get a comma separated list, anything else a one-line title.
func syntheticText(req domain.DescribeRequest) string {
	seed := deterministicSeed(req.Image)
	words := make([]string, 0, len(syntheticVocabulary))
	offset := int(seed[0]) % len(syntheticVocabulary)
	for i := range syntheticVocabulary {
		words = append(words, syntheticVocabulary[(offset+i)%len(syntheticVocabulary)])
	}
	if strings.Contains(strings.ToLower(req.Prompt), "keyword") {
		return strings.Join(words, ", ")
	}
	return fmt.Sprintf("%s %s %s %s", titleCaser.String(words[0]), words[1], words[2], hex.EncodeToString(seed[:2]))
}

func deterministicSeed(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}
