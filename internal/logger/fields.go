package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	FieldProvider    = "ai_provider"
	FieldModel       = "ai_model"
	FieldStage       = "stage"
	FieldCacheKey    = "cache_key"
	FieldCVID        = "cv_id"
	FieldJobID       = "job_id"
	FieldRequirement = "requirement"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches fields to logger, defaulting to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// CommonFields describes the reasoning provider and model. Empty values are dropped.
func CommonFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

func WithCommonFields(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, CommonFields(provider, model)...)
}

// MatchFields identifies one match run in log output.
func MatchFields(cacheKey, cvID, jobID string) []zap.Field {
	return StringFields(
		StringField{Key: FieldCacheKey, Value: shortKey(cacheKey)},
		StringField{Key: FieldCVID, Value: cvID},
		StringField{Key: FieldJobID, Value: jobID},
	)
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
