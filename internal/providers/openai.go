package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultMaxRetries     = 3
	defaultRequestTimeout = 120 // seconds
)

// OpenAI talks to any OpenAI-compatible chat-completions endpoint: the hosted
// API, a LiteLLM gateway, or a local Ollama server, selected via BaseURL.
type OpenAI struct {
	model          string
	client         *openai.Client
	maxRetries     int
	requestTimeout time.Duration
}

// NewOpenAI creates a provider client from options.
func NewOpenAI(opts Options) (*OpenAI, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &OpenAI{
		model:          opts.Model,
		client:         openai.NewClientWithConfig(cfg),
		maxRetries:     maxRetries,
		requestTimeout: time.Duration(timeout) * time.Second,
	}, nil
}

func (o *OpenAI) Name() string { return "openai" }

// Send submits the prompt, classifying provider failures so the retry layer
// only replays transient ones. Each attempt runs under its own timeout.
func (o *OpenAI) Send(ctx context.Context, req Request) (Response, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
	}
	ccr := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		ccr.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		ccr.Temperature = req.Temperature
	}

	var resp Response
	err := retryWithBackoff(ctx, o.maxRetries, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, o.requestTimeout)
		defer cancel()

		result, err := o.client.CreateChatCompletion(attemptCtx, ccr)
		if err != nil {
			return classify(err)
		}
		if len(result.Choices) == 0 {
			return fmt.Errorf("no choices in response")
		}
		content := result.Choices[0].Message.Content
		if content == "" {
			return fmt.Errorf("empty text content in API response")
		}
		resp = Response{
			Content:    content,
			TokensUsed: result.Usage.TotalTokens,
		}
		return nil
	})
	return resp, err
}

func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return &rateLimitError{}
		case apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403:
			return &authError{message: apiErr.Message}
		case apiErr.HTTPStatusCode >= 500:
			return &serverError{statusCode: apiErr.HTTPStatusCode, body: apiErr.Message}
		}
		return fmt.Errorf("API error (status %d): %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &transportError{err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("sending request: %w", err)
}
