package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"alfredoptarigan/cv-matcher/internal/logger"
)

const (
	defaultGeminiModel = "gemini-2.5-flash"
	defaultEmbedModel  = "text-embedding-004"
	maxEmbedChars      = 8000
)

// GeminiService is the Gemini-backed ReasoningService and Embedder.
type GeminiService interface {
	ReasoningService
	Embedder
	Model() string
}

// geminiModels is the subset of *genai.Models the adapter uses.
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

type geminiService struct {
	models     geminiModels
	modelName  string
	embedModel string
	maxRetries int
	backoff    time.Duration
	log        *zap.Logger
}

func NewGeminiService(ctx context.Context, apiKey, model, embedModel string, maxRetries int, log *zap.Logger) (GeminiService, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return newGeminiService(client.Models, model, embedModel, maxRetries, log), nil
}

func newGeminiService(models geminiModels, model, embedModel string, maxRetries int, log *zap.Logger) *geminiService {
	if model = strings.TrimSpace(model); model == "" {
		model = defaultGeminiModel
	}
	if embedModel = strings.TrimSpace(embedModel); embedModel == "" {
		embedModel = defaultEmbedModel
	}
	if maxRetries < 1 {
		maxRetries = 1
	}

	return &geminiService{
		models:     models,
		modelName:  model,
		embedModel: embedModel,
		maxRetries: maxRetries,
		backoff:    time.Second,
		log:        logger.WithCommonFields(log, "gemini", model),
	}
}

func (g *geminiService) Name() string {
	return "gemini"
}

func (g *geminiService) Model() string {
	return g.modelName
}

// Generate implements ReasoningService. Transport failures are retried with
// linear backoff; the response text is returned undecoded.
func (g *geminiService) Generate(ctx context.Context, req ReasoningRequest) (string, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	temperature := req.Temperature
	config := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		MaxOutputTokens:  req.MaxTokens,
		ResponseMIMEType: "application/json",
	}
	if config.MaxOutputTokens == 0 {
		config.MaxOutputTokens = 4096
	}
	if system := strings.TrimSpace(req.System); system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	log := g.log.With(zap.String("task", string(req.Task)))

	var lastErr error
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		start := time.Now()
		text, err := g.generateOnce(ctx, prompt, config)
		if err == nil {
			log.Debug("gemini response received",
				zap.Int("attempt", attempt),
				zap.Duration("latency", time.Since(start)),
				zap.String("preview", logger.TruncateForLog(text, 160)),
			)
			return text, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", fmt.Errorf("context cancelled: %w", ctx.Err())
		}
		if !retryable(err) || attempt == g.maxRetries {
			break
		}

		log.Warn("gemini call failed, retrying", zap.Int("attempt", attempt), zap.Error(err))

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("context cancelled: %w", ctx.Err())
		case <-time.After(time.Duration(attempt) * g.backoff):
		}
	}

	return "", fmt.Errorf("failed to generate text: %w", lastErr)
}

func (g *geminiService) generateOnce(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (string, error) {
	resp, err := g.models.GenerateContent(ctx, g.modelName, genai.Text(prompt), config)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", errors.New("no response generated (nil response)")
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
		if builder.Len() > 0 {
			break
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("no text content in response")
	}
	return output, nil
}

// Embed implements Embedder.
func (g *geminiService) Embed(ctx context.Context, text string) ([]float32, error) {
	if utf8.RuneCountInString(text) > maxEmbedChars {
		text = string([]rune(text)[:maxEmbedChars])
	}

	result, err := g.models.EmbedContent(ctx, g.embedModel, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	if result == nil || len(result.Embeddings) == 0 || result.Embeddings[0] == nil {
		return nil, fmt.Errorf("empty embedding result")
	}

	return result.Embeddings[0].Values, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return true
}
