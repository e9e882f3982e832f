package services

import (
	"context"
	"fmt"
)

type ReasoningTask string

const (
	TaskExtraction      ReasoningTask = "extraction"
	TaskTransferability ReasoningTask = "transferability"
	TaskExplanation     ReasoningTask = "explanation"
)

// ReasoningRequest is one structured prompt. Implementations must return the raw
// model text; callers own JSON decoding and schema validation.
type ReasoningRequest struct {
	Task        ReasoningTask
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int32
}

// ReasoningService is the only way the pipeline talks to a language model.
type ReasoningService interface {
	Generate(ctx context.Context, req ReasoningRequest) (string, error)
	Name() string
}

// Embedder turns text into a vector for the skill index.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type offlineReasoningService struct{}

// NewOfflineReasoningService returns a ReasoningService that always fails with
// ErrReasoningUnavailable. Matches still complete from pre-extracted facts, with
// every model-backed stage on its conservative fallback.
func NewOfflineReasoningService() ReasoningService {
	return offlineReasoningService{}
}

func (offlineReasoningService) Generate(_ context.Context, req ReasoningRequest) (string, error) {
	return "", fmt.Errorf("%s call: %w", req.Task, ErrReasoningUnavailable)
}

func (offlineReasoningService) Name() string {
	return "offline"
}
