package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/config"
	"alfredoptarigan/cv-matcher/internal/logger"
	"alfredoptarigan/cv-matcher/internal/services"
)

// Seeds the Qdrant skill index with the canonical skill vocabulary.
func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	table, err := services.LoadSkillTable(cfg.Matching.SkillTablePath)
	if err != nil {
		log.Fatal("failed to load skill table", zap.Error(err))
	}

	ctx := context.Background()

	gemini, err := services.NewGeminiService(ctx, cfg.Reasoning.APIKey, cfg.Reasoning.Model, cfg.Reasoning.EmbedModel, cfg.Reasoning.MaxRetries, log)
	if err != nil {
		log.Fatal("failed to initialise gemini", zap.Error(err))
	}

	index, err := services.NewSkillIndex(cfg.Qdrant.URL, cfg.Qdrant.APIKey, cfg.Qdrant.Collection, int(cfg.Qdrant.VectorSize), gemini, log)
	if err != nil {
		log.Fatal("failed to initialise qdrant", zap.Error(err))
	}
	if err := index.InitCollection(ctx); err != nil {
		log.Fatal("failed to initialise collection", zap.Error(err))
	}

	log.Info("indexing skills", zap.Int("skills", table.Len()), zap.String("collection", cfg.Qdrant.Collection))

	indexed, err := index.IndexSkills(ctx, table.Entries())
	if err != nil {
		log.Fatal("indexing stopped", zap.Int("indexed", indexed), zap.Error(err))
	}

	log.Info("skill index ready", zap.Int("indexed", indexed))
}
