package services

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"alfredoptarigan/cv-matcher/internal/logger"
)

// extractJSON tries to extract JSON from text that might contain markdown or other formatting
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")

	startObj := strings.Index(text, "{")
	startArr := strings.Index(text, "[")
	endObj := strings.LastIndex(text, "}")
	endArr := strings.LastIndex(text, "]")

	if startObj != -1 && endObj != -1 && endObj > startObj && (startArr == -1 || startObj < startArr) {
		return text[startObj : endObj+1]
	} else if startArr != -1 && endArr != -1 && endArr > startArr {
		return text[startArr : endArr+1]
	}

	return strings.TrimSpace(text)
}

// parseJSONResponse decodes model output into target. Every failure wraps ErrMalformedModelOutput.
func parseJSONResponse(response string, target any) error {
	if strings.TrimSpace(response) == "" {
		return fmt.Errorf("%w: empty response", ErrMalformedModelOutput)
	}

	jsonStr := extractJSON(response)
	if err := json.Unmarshal([]byte(jsonStr), target); err != nil {
		return fmt.Errorf("%w: %v (response: %s)", ErrMalformedModelOutput, err, logger.TruncateForLog(response, 200))
	}

	return nil
}

// coerceFloat accepts numbers and numeric strings, which models emit interchangeably.
func coerceFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "%")), 64)
		return f, err == nil
	}
	return 0, false
}

// stringList accepts a list of strings or a list of {"text": ...} objects.
func stringList(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				out = append(out, s)
			}
		case map[string]any:
			if s, ok := v["text"].(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}
