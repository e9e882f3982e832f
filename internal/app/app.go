// Package app wires configuration into the matching stack shared by the API
// server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/config"
	"alfredoptarigan/cv-matcher/internal/repositories"
	"alfredoptarigan/cv-matcher/internal/services"
)

type App struct {
	Config     *config.Config
	Log        *zap.Logger
	Canon      *services.Canonicalizer
	Profile    services.ScoringProfile
	Reasoning  services.ReasoningService
	Embedder   services.Embedder
	SkillIndex services.SkillIndex
	Repo       repositories.MatchCacheRepository
	Engine     services.MatchEngine
	Extractor  services.FactExtractor
	Service    services.MatchService

	closers []func() error
}

func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{Config: cfg, Log: log}

	table, err := services.LoadSkillTable(cfg.Matching.SkillTablePath)
	if err != nil {
		return nil, err
	}
	a.Canon = services.NewCanonicalizer(table)
	log.Info("skill table loaded", zap.Int("skills", table.Len()))

	if a.Profile, err = services.LoadScoringProfile(cfg.Matching.ProfilePath); err != nil {
		return nil, err
	}

	if err := a.initStore(cfg, log); err != nil {
		a.Close()
		return nil, err
	}

	if err := a.initReasoning(ctx, cfg, log); err != nil {
		a.Close()
		return nil, err
	}

	a.initSkillIndex(ctx, cfg, log)

	prompts := services.NewPromptBuilder()
	classifier := services.NewRequirementClassifier(a.Canon, log)

	a.Extractor = services.NewFactExtractor(a.Reasoning, prompts, cfg.Matching.ExtractionTimeout, log)
	a.Engine = services.NewMatchEngine(services.EngineDeps{
		Canonicalizer: a.Canon,
		Comparator:    services.NewRequirementComparator(a.Canon, classifier),
		Transferability: services.NewTransferabilityAssessor(a.Reasoning, prompts, a.Profile, services.TransferabilityOptions{
			Concurrency:      cfg.Matching.TransferabilityConcurrency,
			Timeout:          cfg.Matching.CallTimeout,
			AssessNiceToHave: cfg.Matching.AssessNiceToHave,
			Neighbours:       a.SkillIndex,
			NeighbourLimit:   cfg.Qdrant.Neighbours,
		}, log),
		Explanation: services.NewExplanationGenerator(a.Reasoning, prompts, a.Canon, cfg.Matching.CallTimeout, log),
		Profile:     a.Profile,
		Log:         log,
	})
	a.Service = services.NewMatchService(services.MatchServiceDeps{
		Repo:           a.Repo,
		Engine:         a.Engine,
		Extractor:      a.Extractor,
		Canonicalizer:  a.Canon,
		TTL:            cfg.Cache.TTL,
		DefaultVersion: cfg.Matching.ScoringVersion,
		Log:            log,
	})

	return a, nil
}

func (a *App) initStore(cfg *config.Config, log *zap.Logger) error {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := config.InitDatabase(cfg, log)
		if err != nil {
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to get database handle: %w", err)
		}
		a.closers = append(a.closers, sqlDB.Close)
		a.Repo = repositories.NewMatchCacheRepository(db)
	case config.DriverSQLite:
		repo, err := repositories.NewSQLiteMatchCacheRepository(cfg.Database.SQLitePath)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, repo.Close)
		a.Repo = repo
	default:
		a.Repo = repositories.NewMemoryMatchCacheRepository()
	}

	log.Info("match cache store ready", zap.String("driver", cfg.Database.Driver))
	return nil
}

func (a *App) initReasoning(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if cfg.Reasoning.Provider == config.ProviderOffline {
		a.Reasoning = services.NewOfflineReasoningService()
		log.Warn("reasoning provider is offline; extraction is unavailable and model calls fall back")
		return nil
	}

	gemini, err := services.NewGeminiService(ctx,
		cfg.Reasoning.APIKey,
		cfg.Reasoning.Model,
		cfg.Reasoning.EmbedModel,
		cfg.Reasoning.MaxRetries,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to initialise gemini: %w", err)
	}
	a.Reasoning = gemini
	a.Embedder = gemini
	return nil
}

// initSkillIndex leaves SkillIndex nil when Qdrant is disabled or unreachable;
// neighbour hints are optional.
func (a *App) initSkillIndex(ctx context.Context, cfg *config.Config, log *zap.Logger) {
	if !cfg.Qdrant.Enabled {
		return
	}
	if a.Embedder == nil {
		log.Warn("qdrant enabled but no embedder is configured; skill index disabled")
		return
	}

	index, err := services.NewSkillIndex(cfg.Qdrant.URL, cfg.Qdrant.APIKey, cfg.Qdrant.Collection, int(cfg.Qdrant.VectorSize), a.Embedder, log)
	if err != nil {
		log.Warn("skill index disabled", zap.Error(err))
		return
	}
	if err := index.InitCollection(ctx); err != nil {
		log.Warn("skill index disabled", zap.Error(err))
		return
	}
	a.SkillIndex = index
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
