package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/nyushi/internal/common"
	"github.com/ternarybob/nyushi/internal/interfaces"
)

// ClaudeService implements interfaces.LLMService against the Anthropic API.
// It is the only LLMService implementation: the crawl pruning pass and the
// Renamer both depend on the interface, not on this type directly.
type ClaudeService struct {
	config    *common.ClaudeConfig
	logger    arbor.ILogger
	client    *anthropic.Client
	limiter   *rate.Limiter
	retry     *RetryConfig
	audit     AuditLogger
	timeout   time.Duration
	maxTokens int
}

// convertMessagesToClaude converts the generic Message slice to Claude's
// MessageParam format, pulling out a leading system message (if any) for
// use with the System parameter.
func convertMessagesToClaude(messages []interfaces.Message) ([]anthropic.MessageParam, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("messages cannot be empty")
	}

	hasUserMessage := false
	for _, msg := range messages {
		if msg.Role == "user" {
			hasUserMessage = true
			break
		}
	}
	if !hasUserMessage {
		return nil, "", fmt.Errorf("at least one message must have role 'user'")
	}

	claudeMessages := make([]anthropic.MessageParam, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		if msg.Role == "system" {
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		}

		switch msg.Role {
		case "assistant":
			claudeMessages = append(claudeMessages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			claudeMessages = append(claudeMessages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	return claudeMessages, systemText, nil
}

// NewClaudeService resolves the API key, parses timeouts, and constructs
// the Anthropic client. audit may be nil, in which case calls go unlogged.
func NewClaudeService(claudeConfig *common.ClaudeConfig, audit AuditLogger, logger arbor.ILogger) (*ClaudeService, error) {
	apiKey, err := common.ResolveAPIKey(claudeConfig.APIKey)
	if err != nil {
		return nil, fmt.Errorf("claude API key is required (set NYUSHI_CLAUDE_API_KEY, ANTHROPIC_API_KEY, or claude.api_key in config): %w", err)
	}

	if claudeConfig.Model == "" {
		claudeConfig.Model = "claude-sonnet-4-20250514"
	}

	timeout, err := time.ParseDuration(claudeConfig.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid claude.timeout %q: %w", claudeConfig.Timeout, err)
	}

	maxTokens := claudeConfig.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	rateLimit := claudeConfig.RateLimit
	if rateLimit <= 0 {
		rateLimit = 2.0
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	service := &ClaudeService{
		config:    claudeConfig,
		logger:    logger,
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(rateLimit), 1),
		retry:     NewDefaultRetryConfig(),
		audit:     audit,
		timeout:   timeout,
		maxTokens: maxTokens,
	}

	logger.Debug().
		Str("model", claudeConfig.Model).
		Dur("timeout", timeout).
		Float64("rate_limit", rateLimit).
		Int("max_tokens", maxTokens).
		Msg("claude llm service initialized")

	return service, nil
}

// Chat sends messages to Claude and returns the assistant's reply. Every
// call is rate-limited per Claude.RateLimit and retried with backoff on
// 429/overloaded responses, up to RetryConfig.MaxRetries.
func (s *ClaudeService) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("messages cannot be empty for chat completion")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	response, err := s.chatWithRetry(timeoutCtx, messages)
	duration := time.Since(start)

	if s.audit != nil {
		queryText := ""
		if len(messages) > 0 {
			queryText = messages[len(messages)-1].Content
		}
		if logErr := s.audit.LogChat("chat", err == nil, duration, err, queryText); logErr != nil {
			s.logger.Warn().Err(logErr).Msg("failed to record llm audit log entry")
		}
	}

	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	return response, nil
}

func (s *ClaudeService) chatWithRetry(ctx context.Context, messages []interfaces.Message) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := s.retry.CalculateBackoff(attempt - 1)
			s.logger.Warn().Int("attempt", attempt).Dur("backoff", backoff).Msg("retrying claude api call")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return "", err
		}

		response, err := s.generateCompletion(ctx, messages)
		if err == nil {
			return response, nil
		}

		lastErr = err
		if !IsRateLimitError(err) {
			return "", err
		}
	}

	return "", fmt.Errorf("exceeded %d retries: %w", s.retry.MaxRetries, lastErr)
}

// HealthCheck runs a minimal probe against the Claude API.
func (s *ClaudeService) HealthCheck(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	response, err := s.generateCompletion(healthCtx, []interfaces.Message{{Role: "user", Content: "ping"}})
	if err != nil {
		return fmt.Errorf("claude health check failed: %w", err)
	}
	if len(strings.TrimSpace(response)) == 0 {
		return fmt.Errorf("claude health check returned empty response")
	}

	return nil
}

// Close releases resources. The Anthropic client holds no handles that
// need explicit cleanup.
func (s *ClaudeService) Close() error {
	return nil
}

func (s *ClaudeService) generateCompletion(ctx context.Context, messages []interfaces.Message) (string, error) {
	claudeMessages, systemText, err := convertMessagesToClaude(messages)
	if err != nil {
		return "", fmt.Errorf("failed to convert messages to claude format: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.config.Model),
		MaxTokens: int64(s.maxTokens),
		Messages:  claudeMessages,
	}

	if s.config.Temperature > 0 {
		params.Temperature = anthropic.Float(s.config.Temperature)
	}

	if systemText != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemText}}
	}

	resp, err := s.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude api call failed: %w", err)
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			response.WriteString(block.Text)
		}
	}

	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated from claude api")
	}

	return response.String(), nil
}
