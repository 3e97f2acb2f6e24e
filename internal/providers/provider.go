// Package providers holds the model-provider collaborator: the one component
// that leaves the machine. Everything else in the pipeline is synchronous.
package providers

import "context"

// Request carries one prompt to the model.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float32
}

// Response is the raw model reply.
type Response struct {
	Content    string
	TokensUsed int
}

// Client is the provider abstraction. Send blocks on network I/O and honors
// ctx; transient failures are retried internally with bounded backoff, and a
// per-attempt timeout is enforced on every try.
type Client interface {
	Send(ctx context.Context, req Request) (Response, error)
	Name() string
}

// Options configures a provider client.
type Options struct {
	Model          string
	APIKey         string
	BaseURL        string // empty selects the provider default endpoint
	MaxRetries     int
	RequestTimeout int // seconds, per attempt
}
