package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// PlaceholderKey is the value shipped in the sample .env file.
const PlaceholderKey = "your_api_key_here"

var (
	// ErrMissingCredential is a configuration error: no usable API key.
	ErrMissingCredential = errors.New("OpenAI API key not configured, set OPENAI_API_KEY")
	// ErrUnauthorized is returned when the backend rejects the credential.
	ErrUnauthorized = errors.New("backend rejected the credential")
	// ErrEmptyResponse is returned when the completion carries no content.
	ErrEmptyResponse = errors.New("no content in backend response")
)

// Backend produces one completion for a prompt.
type Backend interface {
	Complete(ctx context.Context, prompt string, jsonMode bool) (string, error)
}

// LLMConfig holds configuration for LLM interactions
type LLMConfig struct {
	APIKey              string
	Model               string
	BaseURL             string
	MaxCompletionTokens int
	Timeout             time.Duration
}

// DefaultLLMConfig returns standard LLM configuration
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Model:               "gpt-5-nano",
		MaxCompletionTokens: 10000,
		Timeout:             2 * time.Minute,
	}
}

// OpenAIBackend talks to the chat completions API.
type OpenAIBackend struct {
	cfg    LLMConfig
	client *openai.Client
	logger *zap.Logger
}

// NewOpenAIBackend builds a backend. A missing key is not an error here: every
// Complete call reports ErrMissingCredential instead, so the loop can surface it.
func NewOpenAIBackend(cfg LLMConfig, logger *zap.Logger) *OpenAIBackend {
	def := DefaultLLMConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxCompletionTokens <= 0 {
		cfg.MaxCompletionTokens = def.MaxCompletionTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &OpenAIBackend{cfg: cfg, logger: logger}
	if HasCredential(cfg.APIKey) {
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
		b.client = openai.NewClientWithConfig(clientCfg)
	}
	return b
}

// HasCredential reports whether key looks like a real API key.
func HasCredential(key string) bool {
	key = strings.TrimSpace(key)
	return key != "" && key != PlaceholderKey
}

// Model returns the configured model name.
func (b *OpenAIBackend) Model() string {
	return b.cfg.Model
}

// Complete sends prompt as a single user message. With jsonMode the backend is
// asked for a JSON object response.
func (b *OpenAIBackend) Complete(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	if b.client == nil {
		return "", ErrMissingCredential
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: b.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxCompletionTokens: b.cfg.MaxCompletionTokens,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	b.logger.Debug("completion received",
		zap.String("model", b.cfg.Model),
		zap.Bool("json_mode", jsonMode),
		zap.Int("prompt_len", len(prompt)),
		zap.Int("content_len", len(content)),
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
		zap.Duration("took", time.Since(start)),
	)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

func classify(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return fmt.Errorf("chat completion: %w", err)
}
