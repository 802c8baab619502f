package llm

import (
	"context"
	"errors"
)

// ErrProviderDisabled is returned by the NullProvider. Callers treat it as
// "no embeddings available" and fall back to lexical similarity.
var ErrProviderDisabled = errors.New("generation provider disabled")

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// GenerationProvider abstracts the LLM/embedding backend. The concrete
// provider is chosen once at construction from config; callers never
// inspect which one they hold.
type GenerationProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// NullProvider satisfies GenerationProvider without any external calls.
// Used when no API key is configured.
type NullProvider struct{}

func NewNullProvider() *NullProvider {
	return &NullProvider{}
}

func (p *NullProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return nil, ErrProviderDisabled
}

func (p *NullProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrProviderDisabled
}

func (p *NullProvider) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, ErrProviderDisabled
}
