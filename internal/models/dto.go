package models

import "time"

type MatchRequest struct {
	CVID            string          `json:"cv_id"`
	JobID           string          `json:"job_id"`
	CVText          string          `json:"cv_text,omitempty"`
	CVFacts         *CVFacts        `json:"cv_facts,omitempty"`
	CVFactsRef      string          `json:"cv_facts_ref,omitempty"`
	Requirements    *RequirementSet `json:"job_requirements,omitempty"`
	RequirementsRef string          `json:"job_requirements_ref,omitempty"`
	ScoringVersion  string          `json:"scoring_version,omitempty"`
	Async           bool            `json:"async,omitempty"`
}

type MatchResponse struct {
	CVID      string       `json:"cv_id"`
	JobID     string       `json:"job_id"`
	CacheKey  string       `json:"cache_key"`
	Cached    bool         `json:"cached"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
	Result    *MatchResult `json:"result"`
}

type AsyncMatchResponse struct {
	JobID  string `json:"job_id"`
	CVID   string `json:"cv_id"`
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

type InvalidateResponse struct {
	CVID    string `json:"cv_id"`
	JobID   string `json:"job_id"`
	Removed int64  `json:"removed"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Code  int    `json:"code"`
}
