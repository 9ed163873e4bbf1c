package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"NewsAggregator/internal/config"
	"NewsAggregator/internal/domain"
	"NewsAggregator/internal/ports"
)

const systemPrompt = "You summarize AI and ML articles for practitioners. Always answer with a single JSON object."

// ErrMissingAPIKey is returned when the client is built without credentials.
var ErrMissingAPIKey = errors.New("llm api key is not configured")

// Summarizer implements ports.Summarizer over an OpenAI-compatible chat model.
type Summarizer struct {
	model       llms.Model
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

var _ ports.Summarizer = (*Summarizer)(nil)

// NewSummarizer builds a client from configuration.
func NewSummarizer(cfg config.LLMConfig, log *slog.Logger) (*Summarizer, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create chat client: %w", err)
	}
	return newSummarizer(client, cfg, log), nil
}

func newSummarizer(model llms.Model, cfg config.LLMConfig, log *slog.Logger) *Summarizer {
	if log == nil {
		log = slog.Default()
	}
	return &Summarizer{
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      log.With("component", "llm-summarizer"),
	}
}

// Summarize sends the rendered prompt and decodes the JSON reply. Transport
// failures are returned as is; unusable replies come back as
// *domain.ValidationError so the caller can count them against its retries.
func (s *Summarizer) Summarize(ctx context.Context, req ports.SummaryRequest) (ports.Summary, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt),
	}

	callOpts := []llms.CallOption{llms.WithJSONMode(), llms.WithTemperature(s.temperature)}
	if s.maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(s.maxTokens))
	}

	resp, err := s.model.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return ports.Summary{}, fmt.Errorf("generate summary: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return ports.Summary{}, &domain.ValidationError{Field: "response", Reason: "no choices returned"}
	}

	text := stripFences(resp.Choices[0].Content)
	var summary ports.Summary
	if err := json.Unmarshal([]byte(text), &summary); err != nil {
		s.logger.Debug("unparsable summary reply", "item_id", req.Item.ItemID, "error", err)
		return ports.Summary{}, &domain.ValidationError{Field: "response", Reason: err.Error()}
	}
	return summary, nil
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
