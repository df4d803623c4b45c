// Package llm wraps the OpenAI chat API for concept extraction and script
// generation.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/podforge/podforge-be/internal/podcast/domain"
)

// DefaultRequestTimeout bounds a single completion call. A model call that
// outlives it fails the stage; nothing retries it.
const DefaultRequestTimeout = 25 * time.Second

// Completer issues one chat completion and returns the raw assistant text.
// Satisfied by Client; tests substitute fakes.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Config holds OpenAI client settings.
type Config struct {
	APIKey         string
	ChatModel      string
	RequestTimeout time.Duration
}

// Client is the production Completer backed by the OpenAI SDK.
type Client struct {
	oa      openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient creates an OpenAI-backed completion client.
func NewClient(cfg *Config, logger *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return &Client{
		oa:      openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:   cfg.ChatModel,
		timeout: timeout,
		logger:  logger,
	}
}

// Complete performs a single chat completion bounded by the configured
// timeout. Empty assistant content is a ModelResponseError: an empty reply
// is as useless to the pipeline as a failed call.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.oa.Chat.Completions.New(callCtx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", &domain.ModelResponseError{Err: fmt.Errorf("completion call failed: %w", err)}
	}

	c.logger.Debug("Chat completion finished",
		slog.String("model", c.model),
		slog.Duration("latency", time.Since(start)),
	)

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", &domain.ModelResponseError{Err: fmt.Errorf("completion returned no content")}
	}

	return resp.Choices[0].Message.Content, nil
}
