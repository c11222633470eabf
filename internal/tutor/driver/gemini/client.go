package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/agritutor/agritutor/internal/tutor/content"
	"github.com/agritutor/agritutor/internal/tutor/driver"
)

// DefaultModel is the model used when neither the request nor the provider
// config names one.
const DefaultModel = "gemini-1.5-flash"

// Client implements the Gemini driver on top of the genai SDK.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration

	mu     sync.Mutex
	client *genai.Client
}

// NewClient returns a client; the SDK client is created on first use.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimSpace(baseURL),
		APIKey:  strings.TrimSpace(apiKey),
	}
}

// Name returns the driver identifier.
func (c *Client) Name() string {
	return "gemini"
}

// Capabilities describes supported features.
func (c *Client) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		SupportsImages:    true,
		SupportsDocuments: true,
	}
}

// Complete sends a generateContent request.
func (c *Client) Complete(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	if c == nil {
		return nil, fmt.Errorf("gemini client not configured")
	}
	if c.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	contents, config, err := buildContents(req)
	if err != nil {
		return nil, err
	}

	sdk, err := c.sdk(ctx)
	if err != nil {
		return nil, err
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	started := time.Now()
	entry := driver.TraceEntry{
		Driver:   c.Name(),
		Model:    model,
		Messages: driver.SummarizeMessages(req.Messages),
	}
	defer func() {
		entry.DurationMs = time.Since(started).Milliseconds()
		driver.Trace(entry)
	}()

	resp, err := sdk.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		mapped := mapError(err)
		entry.Error = mapped.Error()
		var perr *driver.ProviderError
		if errors.As(mapped, &perr) {
			entry.StatusCode = perr.StatusCode
		}
		return nil, mapped
	}

	out := toDriverResponse(resp)
	entry.Text = out.Text()
	entry.Finish = out.FinishReason
	return out, nil
}

func (c *Client) sdk(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:     c.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.HTTPClient,
	}
	if c.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	c.client = client
	return client, nil
}

func buildContents(req *driver.Request) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	if len(req.Messages) == 0 {
		return nil, nil, fmt.Errorf("messages are required")
	}

	config := &genai.GenerateContentConfig{}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.MaxTokens != nil {
		config.MaxOutputTokens = int32(*req.MaxTokens) // #nosec G115 -- configured token limits are small
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, msg := range req.Messages {
		parts := make([]*genai.Part, 0, len(msg.Content))
		for _, block := range msg.Content {
			if block.IsInline() {
				parts = append(parts, genai.NewPartFromBytes(block.Data, string(block.Type)))
				continue
			}
			parts = append(parts, genai.NewPartFromText(block.Text))
		}

		switch strings.ToLower(msg.Role) {
		case "system":
			config.SystemInstruction = genai.NewContentFromParts(parts, genai.RoleUser)
		case "assistant", "model":
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return nil, nil, fmt.Errorf("at least one user message is required")
	}
	return contents, config, nil
}

func toDriverResponse(resp *genai.GenerateContentResponse) *driver.Response {
	out := &driver.Response{}
	if resp == nil {
		return out
	}
	if text := resp.Text(); text != "" {
		out.Content = []content.ContentBlock{content.Text(text)}
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = &driver.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out
}

// mapError converts SDK API errors into driver.ProviderError so callers can
// classify them by status code.
func mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &driver.ProviderError{Provider: "gemini", StatusCode: apiErr.Code, Message: strings.TrimSpace(apiErr.Message)}
	}
	return fmt.Errorf("request failed: %w", err)
}
