package repo

import (
	"context"
	"errors"

	"github.com/0x70b1a5/jeevespt/internal/biz/domain"
)

// CompletionRequest is one call to the text generator
type CompletionRequest struct {
	Model        string
	SystemPrompt string // empty means no system instruction
	Messages     []domain.ChatMessage
	Temperature  float64
	MaxTokens    int
}

// ContentBlock is one block of generator output
type ContentBlock struct {
	Type string // "text", "thinking", ...
	Text string
}

// CompletionResponse holds the generator output blocks in order
type CompletionResponse struct {
	Blocks []ContentBlock
}

// FirstText returns the first text block; non-text blocks are skipped
func (r *CompletionResponse) FirstText() (string, bool) {
	if r == nil {
		return "", false
	}
	for _, b := range r.Blocks {
		if b.Type == BlockText && b.Text != "" {
			return b.Text, true
		}
	}
	return "", false
}

// Block types
const (
	BlockText     = "text"
	BlockThinking = "thinking"
)

// GeneratorRepo is the external text-generation service
type GeneratorRepo interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// RetryableError is implemented by provider errors that say whether a retry may succeed
type RetryableError interface {
	error
	Retryable() bool
}

// IsRetryable checks if err, or anything it wraps, is marked retryable by the provider
func IsRetryable(err error) bool {
	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return false
}

// ProviderError is a generator failure with an explicit retry classification
type ProviderError struct {
	StatusCode int
	Message    string
	Transient  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Message == "" && e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the provider marked the failure transient
func (e *ProviderError) Retryable() bool {
	return e.Transient
}
