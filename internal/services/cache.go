package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/logger"
	"alfredoptarigan/cv-matcher/internal/models"
	"alfredoptarigan/cv-matcher/internal/repositories"
)

// MatchCommand identifies the pair being matched and where its inputs come
// from. Facts are taken from Facts, then CVText, then CVFactsRef; requirements
// from Requirements, then RequirementsRef. Refs name the cv_id / job_id of
// inputs stored with an earlier match.
type MatchCommand struct {
	CVID            string
	JobID           string
	CVText          string
	Facts           *models.CVFacts
	CVFactsRef      string
	Requirements    *models.RequirementSet
	RequirementsRef string
	ScoringVersion  string
}

type MatchOutcome struct {
	Entry  *models.CacheEntry
	Result *models.MatchResult
	Cached bool
}

// MatchService is the read-through cache in front of the match engine.
type MatchService interface {
	Match(ctx context.Context, cmd MatchCommand) (*MatchOutcome, error)
	Get(ctx context.Context, cvID, jobID string, recompute bool) (*MatchOutcome, error)
	Invalidate(ctx context.Context, cvID, jobID string) (int64, error)
	Purge(ctx context.Context) (int64, error)
}

type MatchServiceDeps struct {
	Repo           repositories.MatchCacheRepository
	Engine         MatchEngine
	Extractor      FactExtractor
	Canonicalizer  *Canonicalizer
	TTL            time.Duration
	DefaultVersion string
	Log            *zap.Logger
	Now            func() time.Time
}

type memoEntry struct {
	facts     *models.CVFacts
	expiresAt time.Time
}

type matchService struct {
	repo           repositories.MatchCacheRepository
	engine         MatchEngine
	extractor      FactExtractor
	canon          *Canonicalizer
	ttl            time.Duration
	defaultVersion string
	log            *zap.Logger
	now            func() time.Time

	matches     flightGroup[*models.CacheEntry]
	extractions flightGroup[*models.CVFacts]

	memoMu sync.Mutex
	memo   map[string]memoEntry
}

func NewMatchService(deps MatchServiceDeps) MatchService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	version := deps.DefaultVersion
	if version == "" {
		version = ScoringVersionTransfer
	}
	return &matchService{
		repo:           deps.Repo,
		engine:         deps.Engine,
		extractor:      deps.Extractor,
		canon:          deps.Canonicalizer,
		ttl:            ttl,
		defaultVersion: version,
		log:            logger.WithFields(deps.Log, zap.String(logger.FieldStage, StageCache)),
		now:            now,
		memo:           make(map[string]memoEntry),
	}
}

func (s *matchService) Match(ctx context.Context, cmd MatchCommand) (*MatchOutcome, error) {
	cmd.CVID = strings.TrimSpace(cmd.CVID)
	cmd.JobID = strings.TrimSpace(cmd.JobID)
	if cmd.CVID == "" || cmd.JobID == "" {
		return nil, newMatchError(ErrInvalidInput, StageCache, errors.New("cv_id and job_id are required"))
	}

	version := cmd.ScoringVersion
	if version == "" {
		version = s.defaultVersion
	}
	version, err := ResolveScoringVersion(version)
	if err != nil {
		return nil, newMatchError(ErrInvalidInput, StageScoring, err)
	}

	reqs, err := s.resolveRequirements(ctx, cmd)
	if err != nil {
		return nil, err
	}

	facts, err := s.resolveFacts(ctx, cmd)
	if err != nil {
		return nil, err
	}
	facts = s.canon.Facts(facts)

	key, err := CacheKey(version, facts, reqs)
	if err != nil {
		return nil, fmt.Errorf("failed to derive cache key: %w", err)
	}
	log := logger.WithFields(s.log, logger.MatchFields(key, cmd.CVID, cmd.JobID)...)

	if entry, err := s.repo.Get(ctx, key, s.now()); err == nil {
		log.Debug("cache hit")
		return s.outcome(ctx, entry, cmd.CVID, cmd.JobID, true)
	} else if !errors.Is(err, repositories.ErrCacheMiss) {
		return nil, fmt.Errorf("failed to read match cache: %w", err)
	}

	entry, shared, err := s.matches.Do(ctx, key, func(fctx context.Context) (*models.CacheEntry, error) {
		if entry, err := s.repo.Get(fctx, key, s.now()); err == nil {
			return entry, nil
		}

		log.Debug("cache miss, computing match")
		result, err := s.engine.Run(fctx, MatchInput{Facts: facts, Requirements: reqs, ScoringVersion: version})
		if err != nil {
			return nil, err
		}
		return s.store(fctx, key, version, cmd.CVID, cmd.JobID, facts, reqs, result)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug("joined in-flight computation")
	}

	return s.outcome(ctx, entry, cmd.CVID, cmd.JobID, false)
}

// outcome decodes entry and, when it was stored for a different pair with the
// same inputs, stores a copy under the requested pair.
func (s *matchService) outcome(ctx context.Context, entry *models.CacheEntry, cvID, jobID string, cached bool) (*MatchOutcome, error) {
	result, err := entry.DecodeResult()
	if err != nil {
		return nil, err
	}

	if entry.CVID != cvID || entry.JobID != jobID {
		clone := *entry
		clone.ID = uuid.Nil
		clone.CVID = cvID
		clone.JobID = jobID
		if err := s.repo.Put(ctx, &clone); err != nil {
			return nil, fmt.Errorf("failed to store match for pair: %w", err)
		}
		entry = &clone
	}

	return &MatchOutcome{Entry: entry, Result: result, Cached: cached}, nil
}

func (s *matchService) store(ctx context.Context, key, version, cvID, jobID string, facts *models.CVFacts, reqs *models.RequirementSet, result *models.MatchResult) (*models.CacheEntry, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode match result: %w", err)
	}
	factsJSON, err := json.Marshal(facts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cv facts: %w", err)
	}
	reqsJSON, err := json.Marshal(reqs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode requirements: %w", err)
	}

	now := s.now()
	entry := &models.CacheEntry{
		ID:             uuid.New(),
		Key:            key,
		CVID:           cvID,
		JobID:          jobID,
		ScoringVersion: version,
		Result:         string(resultJSON),
		Facts:          string(factsJSON),
		Requirements:   string(reqsJSON),
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.ttl),
	}
	if err := s.repo.Put(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to store match: %w", err)
	}
	return entry, nil
}

func (s *matchService) resolveRequirements(ctx context.Context, cmd MatchCommand) (*models.RequirementSet, error) {
	reqs := cmd.Requirements
	if reqs == nil && cmd.RequirementsRef != "" {
		entry, err := s.repo.LatestForJob(ctx, cmd.RequirementsRef)
		if err != nil {
			if errors.Is(err, repositories.ErrCacheMiss) {
				return nil, newMatchError(ErrInvalidInput, StageCache, fmt.Errorf("no stored requirements for job %q", cmd.RequirementsRef))
			}
			return nil, err
		}
		if _, reqs, err = entry.DecodeInputs(); err != nil {
			return nil, err
		}
	}

	if err := reqs.Validate(); err != nil {
		return nil, newMatchError(ErrInvalidInput, StageComparison, err)
	}
	return reqs, nil
}

func (s *matchService) resolveFacts(ctx context.Context, cmd MatchCommand) (*models.CVFacts, error) {
	switch {
	case cmd.Facts != nil:
		return cmd.Facts, nil
	case strings.TrimSpace(cmd.CVText) != "":
		return s.extract(ctx, cmd.CVText)
	case cmd.CVFactsRef != "":
		entry, err := s.repo.LatestForCV(ctx, cmd.CVFactsRef)
		if err != nil {
			if errors.Is(err, repositories.ErrCacheMiss) {
				return nil, newMatchError(ErrInvalidInput, StageCache, fmt.Errorf("no stored facts for cv %q", cmd.CVFactsRef))
			}
			return nil, err
		}
		facts, _, err := entry.DecodeInputs()
		return facts, err
	}
	return nil, newMatchError(ErrInvalidInput, StageExtraction, errors.New("one of cv_facts, cv_text or cv_facts_ref is required"))
}

// extract memoises facts per CV text for the cache TTL.
func (s *matchService) extract(ctx context.Context, text string) (*models.CVFacts, error) {
	if s.extractor == nil {
		return nil, newMatchError(ErrExtractionFailure, StageExtraction, ErrReasoningUnavailable)
	}

	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	key := hex.EncodeToString(sum[:])

	s.memoMu.Lock()
	if m, ok := s.memo[key]; ok && s.now().Before(m.expiresAt) {
		s.memoMu.Unlock()
		return m.facts.Clone(), nil
	}
	s.memoMu.Unlock()

	facts, _, err := s.extractions.Do(ctx, key, func(fctx context.Context) (*models.CVFacts, error) {
		facts, err := s.extractor.Extract(fctx, text)
		if err != nil {
			return nil, err
		}
		s.memoMu.Lock()
		s.memo[key] = memoEntry{facts: facts, expiresAt: s.now().Add(s.ttl)}
		s.memoMu.Unlock()
		return facts, nil
	})
	if err != nil {
		return nil, err
	}
	return facts.Clone(), nil
}

func (s *matchService) Get(ctx context.Context, cvID, jobID string, recompute bool) (*MatchOutcome, error) {
	entry, err := s.repo.GetLatest(ctx, cvID, jobID)
	switch {
	case err == nil && !entry.Expired(s.now()):
		return s.outcome(ctx, entry, cvID, jobID, true)
	case err != nil && !errors.Is(err, repositories.ErrCacheMiss):
		return nil, fmt.Errorf("failed to read match cache: %w", err)
	case !recompute:
		return nil, repositories.ErrCacheMiss
	}

	cmd := MatchCommand{CVID: cvID, JobID: jobID, CVFactsRef: cvID, RequirementsRef: jobID}
	if entry != nil {
		facts, reqs, err := entry.DecodeInputs()
		if err != nil {
			return nil, err
		}
		cmd.Facts, cmd.Requirements, cmd.ScoringVersion = facts, reqs, entry.ScoringVersion
	}

	s.log.Info("recomputing match from stored inputs", logger.MatchFields("", cvID, jobID)...)
	outcome, err := s.Match(ctx, cmd)
	if errors.Is(err, ErrInvalidInput) && entry == nil {
		return nil, repositories.ErrCacheMiss
	}
	return outcome, err
}

func (s *matchService) Invalidate(ctx context.Context, cvID, jobID string) (int64, error) {
	removed, err := s.repo.DeleteByPair(ctx, cvID, jobID)
	if err != nil {
		return 0, err
	}
	s.log.Info("match cache invalidated", append(logger.MatchFields("", cvID, jobID), zap.Int64("removed", removed))...)
	return removed, nil
}

func (s *matchService) Purge(ctx context.Context) (int64, error) {
	now := s.now()

	s.memoMu.Lock()
	for key, m := range s.memo {
		if !now.Before(m.expiresAt) {
			delete(s.memo, key)
		}
	}
	s.memoMu.Unlock()

	removed, err := s.repo.PurgeExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.log.Info("purged expired cache entries", zap.Int64("removed", removed))
	}
	return removed, nil
}

// CacheKey hashes a canonical serialisation of the scoring version, facts and
// requirements. List fields whose order carries no meaning are sorted first.
func CacheKey(version string, facts *models.CVFacts, reqs *models.RequirementSet) (string, error) {
	f := facts.Clone()
	for _, list := range [][]string{f.Skills.Languages, f.Skills.Frameworks, f.Skills.Tools, f.Skills.SoftSkills, f.Certifications} {
		sort.Strings(list)
	}
	for i := range f.Experience {
		sort.Strings(f.Experience[i].Technologies)
	}

	payload, err := json.Marshal(struct {
		Version      string                 `json:"version"`
		Facts        *models.CVFacts        `json:"facts"`
		Requirements *models.RequirementSet `json:"requirements"`
	}{version, f, reqs})
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
