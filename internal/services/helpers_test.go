package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"alfredoptarigan/cv-matcher/internal/models"
)

// stubReasoning answers every task through respond and records call counts and
// the highest number of concurrent calls it observed.
type stubReasoning struct {
	respond func(req ReasoningRequest) (string, error)
	delay   time.Duration

	mu        sync.Mutex
	calls     map[ReasoningTask]int
	prompts   []ReasoningRequest
	active    atomic.Int32
	maxActive atomic.Int32
}

func newStubReasoning(respond func(req ReasoningRequest) (string, error)) *stubReasoning {
	return &stubReasoning{respond: respond, calls: make(map[ReasoningTask]int)}
}

func (s *stubReasoning) Generate(ctx context.Context, req ReasoningRequest) (string, error) {
	s.mu.Lock()
	s.calls[req.Task]++
	s.prompts = append(s.prompts, req)
	s.mu.Unlock()

	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		prev := s.maxActive.Load()
		if n <= prev || s.maxActive.CompareAndSwap(prev, n) {
			break
		}
	}

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.respond(req)
}

func (s *stubReasoning) Name() string {
	return "stub"
}

func (s *stubReasoning) Calls(task ReasoningTask) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[task]
}

func (s *stubReasoning) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

func (s *stubReasoning) Requests(task ReasoningTask) []ReasoningRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ReasoningRequest
	for _, r := range s.prompts {
		if r.Task == task {
			out = append(out, r)
		}
	}
	return out
}

const (
	stubAssessmentJSON  = `{"score": 0.7, "reasoning": "Flask experience carries over to FastAPI routing and middleware", "ramp_up_estimate": "2-4 weeks", "learnable": true}`
	stubExplanationJSON = `{
  "strengths": ["Go used as Senior Backend Engineer at Acme", "PostgreSQL listed under skills"],
  "gaps": ["React is not found in the CV"],
  "recommendations": ["Build a small React project to cover the missing React requirement"]
}`
)

// scriptedReasoning returns fixed, valid answers for transferability and explanation
// and fails extraction unless extraction is set.
func scriptedReasoning(extraction string) *stubReasoning {
	return newStubReasoning(func(req ReasoningRequest) (string, error) {
		switch req.Task {
		case TaskTransferability:
			return stubAssessmentJSON, nil
		case TaskExplanation:
			return stubExplanationJSON, nil
		case TaskExtraction:
			if extraction != "" {
				return extraction, nil
			}
		}
		return "", ErrReasoningUnavailable
	})
}

func testCanonicalizer(t testing.TB) *Canonicalizer {
	t.Helper()
	table, err := DefaultSkillTable()
	require.NoError(t, err)
	return NewCanonicalizer(table)
}

func testComparator(t testing.TB) (*Canonicalizer, RequirementComparator) {
	t.Helper()
	canon := testCanonicalizer(t)
	return canon, NewRequirementComparator(canon, NewRequirementClassifier(canon, nil))
}

// backendFacts is a backend engineer with no frontend technologies and no education.
func backendFacts(years int) *models.CVFacts {
	return &models.CVFacts{
		Summary: "Backend engineer building payment services.",
		Skills: models.SkillSet{
			Languages:  []string{"Go", "Python"},
			Frameworks: []string{"Flask", "Django"},
			Tools:      []string{"Postgres", "Docker", "Kubernetes"},
		},
		Experience: []models.Experience{
			{
				Title:        "Senior Backend Engineer",
				Organization: "Acme",
				Period:       "2015-2025",
				Years:        years,
				Description:  []string{"Built payment APIs in Go", "Mentored two junior engineers"},
				Technologies: []string{"golang", "PostgreSQL"},
			},
		},
		TotalYearsExperience: years,
	}
}

func requirementSet(title string, must []string, nice []string) *models.RequirementSet {
	set := &models.RequirementSet{Title: title}
	for _, text := range must {
		set.MustHave = append(set.MustHave, models.Requirement{Text: text})
	}
	for _, text := range nice {
		set.NiceToHave = append(set.NiceToHave, models.Requirement{Text: text})
	}
	return set
}

// frontendRequirements names six frontend technologies, none of which backendFacts lists.
func frontendRequirements() *models.RequirementSet {
	return requirementSet("Frontend Engineer",
		[]string{"React", "TypeScript", "Redux", "CSS", "Vue.js", "Next.js"},
		[]string{"Tailwind"},
	)
}

func findMatch(list []models.RequirementMatch, text string) (models.RequirementMatch, bool) {
	for _, m := range list {
		if m.Requirement == text {
			return m, true
		}
	}
	return models.RequirementMatch{}, false
}
