package services

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrExtractionFailure    = errors.New("extraction failure")
	ErrMalformedModelOutput = errors.New("malformed model output")
	ErrTimeoutFailure       = errors.New("timeout failure")
	ErrValidationFailure    = errors.New("validation failure")
	ErrInvalidInput         = errors.New("invalid input")
	ErrReasoningUnavailable = errors.New("reasoning service unavailable")
)

const (
	StageExtraction      = "extraction"
	StageComparison      = "comparison"
	StageTransferability = "transferability"
	StageScoring         = "scoring"
	StageExplanation     = "explanation"
	StageCache           = "cache"
)

// MatchError carries the failure kind (one of the sentinel errors above) and the
// pipeline stage it happened in. errors.Is matches both the kind and the cause.
type MatchError struct {
	Kind  error
	Stage string
	Err   error
}

func (e *MatchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

func (e *MatchError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func newMatchError(kind error, stage string, err error) *MatchError {
	return &MatchError{Kind: kind, Stage: stage, Err: err}
}

// KindName renders the failure kind of err for API responses.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrTimeoutFailure):
		return "timeout_failure"
	case errors.Is(err, ErrExtractionFailure):
		return "extraction_failure"
	case errors.Is(err, ErrValidationFailure):
		return "validation_failure"
	case errors.Is(err, ErrMalformedModelOutput):
		return "malformed_model_output"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrReasoningUnavailable):
		return "reasoning_unavailable"
	}
	return ""
}

// reasoningCallError tags err with ErrTimeoutFailure when the call ran out of time.
func reasoningCallError(callCtx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeoutFailure, err)
	}
	return err
}
