package tutor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/agritutor/agritutor/internal/media"
	"github.com/agritutor/agritutor/internal/metrics"
	"github.com/agritutor/agritutor/internal/prompt"
	"github.com/agritutor/agritutor/internal/tutor/content"
	"github.com/agritutor/agritutor/internal/tutor/driver"
)

const (
	defaultTimeout = 60 * time.Second
	maxTimeout     = 5 * time.Minute

	// NoResponseText is returned when the model answers a lesson or template
	// with no text.
	NoResponseText = "No response received from AI."

	// ChatNoResponseText replaces an empty answer to a wrapped chat question.
	ChatNoResponseText = "Sorry, I couldn't process that request."

	// ImageAnalysisPrompt is sent when an image arrives without a question.
	ImageAnalysisPrompt = "As AgriTutor AI, analyze this agricultural image. Identify what's shown (crop, plant, disease, soil condition, etc.) and provide educational insights about it. Include practical farming advice if relevant."
)

// WrapQuestion frames a free-text question for the tutor persona.
func WrapQuestion(text string) string {
	return "As AgriTutor AI, an expert agriculture tutor, please provide a comprehensive and educational response about: " +
		text + ". Include practical examples relevant to farming and agriculture students."
}

// Cache stores text answers keyed by a request fingerprint.
type Cache interface {
	GetResponse(ctx context.Context, key string) (string, bool, error)
	SetResponse(ctx context.Context, key, provider, model, text string, ttl time.Duration) error
}

// Service turns prompts into model answers.
type Service struct {
	Providers *Registry
	Catalog   *prompt.Catalog
	Cache     Cache
	CacheTTL  time.Duration
	// Limiter holds calls back when a provider's budget is spent. Nil
	// disables limiting.
	Limiter *RateLimiter
	Logger  *logging.Logger
}

// AskRequest is a single question, optionally with attachments.
type AskRequest struct {
	Prompt      string
	Attachments []media.Attachment
	Role        string
	Model       string
	// Wrap frames free text with WrapQuestion.
	Wrap    bool
	Timeout time.Duration
	NoCache bool
}

// Answer is the model's reply plus provenance.
type Answer struct {
	Text         string        `json:"text"`
	Prompt       string        `json:"prompt"`
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	Cached       bool          `json:"cached"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Usage        *driver.Usage `json:"usage,omitempty"`
	TemplateID   string        `json:"template_id,omitempty"`
	DurationMs   int64         `json:"duration_ms"`
}

// TemplateRequest asks using a catalog template.
type TemplateRequest struct {
	TemplateID  string
	Values      prompt.Values
	Attachments []media.Attachment
	Model       string
	Timeout     time.Duration
	NoCache     bool
}

// LessonRequest asks for a lesson by purpose.
type LessonRequest struct {
	Topic   string
	Purpose prompt.Purpose
	Extra   prompt.Extra
	Model   string
	Timeout time.Duration
	NoCache bool
}

// Ask sends a prompt to the routed provider. Text-only requests are served
// from and written to the cache when one is configured.
func (s *Service) Ask(ctx context.Context, req AskRequest) (*Answer, error) {
	if s == nil || s.Providers == nil {
		return nil, ErrNotConfigured
	}

	text, err := s.composePrompt(req)
	if err != nil {
		return nil, err
	}

	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = RoleChat
		if hasImage(req.Attachments) {
			role = RoleVision
		}
	}

	resolved, err := s.Providers.Resolve(role, req.Model)
	if err != nil {
		return nil, err
	}

	answer := &Answer{Prompt: text, Provider: resolved.ProviderID, Model: resolved.Model}

	cacheable := s.Cache != nil && s.CacheTTL > 0 && !req.NoCache && len(req.Attachments) == 0
	key := CacheKey(resolved.ProviderID, resolved.Model, text)
	if cacheable {
		cached, ok, err := s.Cache.GetResponse(ctx, key)
		if err != nil {
			s.warn("response cache lookup failed", zap.Error(err))
		} else if ok {
			metrics.RecordCacheHit(resolved.ProviderID)
			answer.Text = cached
			answer.Cached = true
			return answer, nil
		}
	}

	blocks := []content.ContentBlock{content.Text(text)}
	for _, att := range req.Attachments {
		blocks = append(blocks, content.Inline(content.ContentType(att.MIMEType), att.Data))
	}

	driverReq := &driver.Request{
		Model:       resolved.Model,
		Messages:    []content.Message{content.UserMessage(blocks...)},
		Temperature: s.Providers.cfg.Temperature,
		Metadata:    map[string]string{"role": role},
	}
	if s.Providers.cfg.MaxTokens > 0 {
		maxTokens := s.Providers.cfg.MaxTokens
		driverReq.MaxTokens = &maxTokens
	}

	if err := s.acquire(ctx, resolved.ProviderID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout(req.Timeout))
	defer cancel()

	started := time.Now()
	resp, err := resolved.Driver.Complete(ctx, driverReq)
	elapsed := time.Since(started)
	answer.DurationMs = elapsed.Milliseconds()
	if err != nil {
		mapped := mapProviderError(resolved.ProviderID, err)
		metrics.RecordTutorRequest(resolved.ProviderID, mapped.Code, elapsed)
		return nil, mapped
	}
	metrics.RecordTutorRequest(resolved.ProviderID, "success", elapsed)

	answer.FinishReason = resp.FinishReason
	answer.Usage = resp.Usage
	answer.Text = resp.Text()
	if strings.TrimSpace(answer.Text) == "" {
		answer.Text = NoResponseText
		if req.Wrap {
			answer.Text = ChatNoResponseText
		}
		return answer, nil
	}

	if cacheable {
		if err := s.Cache.SetResponse(ctx, key, resolved.ProviderID, resolved.Model, answer.Text, s.CacheTTL); err != nil {
			s.warn("response cache write failed", zap.Error(err))
		}
	}
	return answer, nil
}

// AskTemplate fills a catalog template and asks it. Every declared variable
// must have a non-blank value.
func (s *Service) AskTemplate(ctx context.Context, req TemplateRequest) (*Answer, error) {
	if s == nil || s.Catalog == nil {
		return nil, errors.New("prompt catalog not configured")
	}

	tmpl, err := s.Catalog.Get(req.TemplateID)
	if err != nil {
		return nil, err
	}

	if missing := prompt.Missing(tmpl.Variables, req.Values); len(missing) > 0 {
		metrics.RecordFill(tmpl.ID, false)
		return nil, &IncompleteError{TemplateID: tmpl.ID, Missing: missing}
	}
	metrics.RecordFill(tmpl.ID, true)

	role := RoleTemplate
	if hasImage(req.Attachments) {
		role = RoleVision
	}

	answer, err := s.Ask(ctx, AskRequest{
		Prompt:      tmpl.Fill(req.Values),
		Attachments: req.Attachments,
		Role:        role,
		Model:       req.Model,
		Timeout:     req.Timeout,
		NoCache:     req.NoCache,
	})
	if err != nil {
		return nil, err
	}
	answer.TemplateID = tmpl.ID
	return answer, nil
}

// Lesson asks for a purpose-specific lesson on a topic.
func (s *Service) Lesson(ctx context.Context, req LessonRequest) (*Answer, error) {
	if s == nil || s.Catalog == nil {
		return nil, errors.New("prompt catalog not configured")
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	return s.Ask(ctx, AskRequest{
		Prompt:  s.Catalog.ForPurpose(topic, req.Purpose, req.Extra),
		Role:    RoleLesson,
		Model:   req.Model,
		Timeout: req.Timeout,
		NoCache: req.NoCache,
	})
}

// acquire spends one request from provider's budget, or fails with a rate
// limit error carrying the wait.
func (s *Service) acquire(ctx context.Context, provider string) error {
	if s.Limiter == nil {
		return nil
	}
	allowed, wait, err := s.Limiter.Acquire(ctx, provider)
	if err != nil {
		s.warn("rate limit bookkeeping failed", zap.Error(err))
	}
	if !allowed {
		metrics.RecordTutorRequest(provider, CodeProviderRateLimit, 0)
		return &Error{
			Code:     CodeProviderRateLimit,
			Message:  "provider request budget exhausted",
			Provider: provider,
			Details:  fmt.Sprintf("retry in %s", wait.Round(time.Second)),
		}
	}
	return nil
}

func (s *Service) composePrompt(req AskRequest) (string, error) {
	text := strings.TrimSpace(req.Prompt)
	if text == "" && len(req.Attachments) == 0 {
		return "", ErrEmptyRequest
	}
	switch {
	case text == "" && hasImage(req.Attachments):
		return ImageAnalysisPrompt, nil
	case text == "":
		return s.documentPrompt(), nil
	case req.Wrap:
		return WrapQuestion(text), nil
	default:
		return req.Prompt, nil
	}
}

func (s *Service) documentPrompt() string {
	if s.Catalog != nil {
		if t, err := s.Catalog.Get("document-summary"); err == nil {
			return t.Body
		}
	}
	return "As AgriTutor AI, summarize this agricultural document into key learning points."
}

func (s *Service) timeout(override time.Duration) time.Duration {
	duration := s.Providers.cfg.DefaultTimeout
	if duration <= 0 {
		duration = defaultTimeout
	}
	if override > 0 {
		duration = override
	}
	if duration > maxTimeout {
		duration = maxTimeout
	}
	return duration
}

func (s *Service) warn(msg string, fields ...zap.Field) {
	if s.Logger != nil {
		s.Logger.Warn(msg, fields...)
	}
}

// CacheKey fingerprints a text request.
func CacheKey(provider, model, text string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%s", provider, model, text)))
	return hex.EncodeToString(sum[:])
}

func hasImage(atts []media.Attachment) bool {
	for _, a := range atts {
		if a.IsImage() {
			return true
		}
	}
	return false
}
