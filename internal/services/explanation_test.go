package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/cv-matcher/internal/models"
)

func explanationInput(t *testing.T, facts *models.CVFacts, reqs *models.RequirementSet) (*Canonicalizer, ExplanationInput) {
	t.Helper()
	canon, comparator := testComparator(t)
	facts = canon.Facts(facts)
	return canon, ExplanationInput{
		Facts:        facts,
		Requirements: reqs,
		Comparison:   comparator.Compare(facts, reqs),
		Scores:       BaseScores{Skills: 50, BaseSkills: 50, Experience: 100, Qualifications: 60},
		Overall:      69,
	}
}

func explanationJSON(t *testing.T, strengths, gaps, recs []string) string {
	t.Helper()
	data, err := json.Marshal(map[string][]string{"strengths": strengths, "gaps": gaps, "recommendations": recs})
	require.NoError(t, err)
	return string(data)
}

func countMentions(list []string, term string) int {
	n := 0
	for _, s := range list {
		if strings.Contains(strings.ToLower(s), term) {
			n++
		}
	}
	return n
}

func TestExplainDropsUngroundedStatements(t *testing.T) {
	t.Parallel()

	canon, in := explanationInput(t, backendFacts(6), requirementSet("Backend Engineer", []string{"Go", "React"}, nil))
	reasoning := newStubReasoning(func(ReasoningRequest) (string, error) {
		return explanationJSON(t,
			[]string{"Go used as Senior Backend Engineer at Acme", "Excellent culture fit and passion", "Go used as Senior Backend Engineer at Acme"},
			[]string{"React is not found in the CV", "Lacks Scala expertise"},
			[]string{"Build a small React project"},
		), nil
	})

	out, err := NewExplanationGenerator(reasoning, nil, canon, 0, nil).Explain(context.Background(), in)
	require.NoError(t, err)

	assert.False(t, out.Degraded)
	assert.Empty(t, out.Warning)
	assert.Equal(t, []string{"Go used as Senior Backend Engineer at Acme"}, out.Strengths)
	assert.Equal(t, []string{"React is not found in the CV"}, out.Gaps)
	assert.Contains(t, out.Recommendations, "Build a small React project")
	assert.Equal(t, 1, reasoning.Calls(TaskExplanation))
}

func TestExplainNeverRecommendsDegreeToExperiencedCandidates(t *testing.T) {
	t.Parallel()

	canon, in := explanationInput(t, backendFacts(15), requirementSet("Backend Engineer", []string{"Go", "React", "Bachelor's degree in Computer Science"}, nil))
	reasoning := newStubReasoning(func(ReasoningRequest) (string, error) {
		return explanationJSON(t,
			[]string{"15 years of backend work at Acme"},
			[]string{"No Bachelor's degree listed"},
			[]string{
				"Consider obtaining a Bachelor's degree in Computer Science",
				"A Bachelor's degree in Computer Science would strengthen your application",
				"Enrolling in a BSc in Computer Science program would close this gap",
				"Pursue a master's degree to strengthen the application",
				"Formal computer science study would round out the profile",
				"Gain React experience by building a side project",
			},
		), nil
	})

	out, err := NewExplanationGenerator(reasoning, nil, canon, 0, nil).Explain(context.Background(), in)
	require.NoError(t, err)

	assert.Contains(t, out.Recommendations, "Gain React experience by building a side project")
	assert.NotContains(t, out.Recommendations, "Formal computer science study would round out the profile")
	for _, rec := range out.Recommendations {
		assert.False(t, degreeNounPattern.MatchString(strings.ToLower(rec)), "degree advice kept: %q", rec)
	}

	prompt := reasoning.Requests(TaskExplanation)[0].Prompt
	assert.Contains(t, prompt, "never recommend obtaining a degree")
}

func TestExplainSeniorThresholdFollowsProfile(t *testing.T) {
	t.Parallel()

	reqs := requirementSet("Backend Engineer", []string{"Go", "Bachelor's degree in Computer Science"}, nil)
	recs := []string{"Complete a BSc in Computer Science"}

	tests := []struct {
		name        string
		years       int
		seniorYears int
		dropped     bool
	}{
		{name: "default threshold reached", years: 10, dropped: true},
		{name: "below default threshold", years: 8},
		{name: "lowered threshold", years: 8, seniorYears: 8, dropped: true},
		{name: "raised threshold", years: 12, seniorYears: 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			canon, in := explanationInput(t, backendFacts(tt.years), reqs)
			in.SeniorYears = tt.seniorYears
			reasoning := newStubReasoning(func(ReasoningRequest) (string, error) {
				return explanationJSON(t, []string{"Go listed under skills"}, []string{"No degree listed"}, recs), nil
			})

			out, err := NewExplanationGenerator(reasoning, nil, canon, 0, nil).Explain(context.Background(), in)
			require.NoError(t, err)

			if tt.dropped {
				assert.NotContains(t, out.Recommendations, recs[0])
				assert.Contains(t, reasoning.Requests(TaskExplanation)[0].Prompt, "never recommend obtaining a degree")
			} else {
				assert.Contains(t, out.Recommendations, recs[0])
				assert.NotContains(t, reasoning.Requests(TaskExplanation)[0].Prompt, "never recommend obtaining a degree")
			}
		})
	}
}

func TestExplainBalancesRecommendations(t *testing.T) {
	t.Parallel()

	canon, in := explanationInput(t, backendFacts(6), requirementSet("Frontend Engineer", []string{"Go", "React", "TypeScript"}, []string{"Kafka"}))
	reasoning := newStubReasoning(func(ReasoningRequest) (string, error) {
		return explanationJSON(t,
			[]string{"Go listed under skills"},
			[]string{"React missing", "TypeScript missing"},
			[]string{
				"Build a React dashboard",
				"Take a React course",
				"Contribute to an open-source React library",
				"Pair with a React developer",
				"Port a script to TypeScript",
			},
		), nil
	})

	out, err := NewExplanationGenerator(reasoning, nil, canon, 0, nil).Explain(context.Background(), in)
	require.NoError(t, err)

	assert.LessOrEqual(t, countMentions(out.Recommendations, "react"), MaxRecommendations/3)
	assert.GreaterOrEqual(t, countMentions(out.Recommendations, "kafka"), 1, "nice-to-have gaps get recommendations")
	assert.GreaterOrEqual(t, countMentions(out.Recommendations, "typescript"), 1)
	assert.LessOrEqual(t, len(out.Recommendations), MaxRecommendations)
}

func TestExplainFallsBackDeterministically(t *testing.T) {
	t.Parallel()

	canon, in := explanationInput(t, backendFacts(6), requirementSet("Backend Engineer", []string{"Go", "React", "5+ years of experience"}, []string{"Kafka"}))
	in.Transferability = []models.TransferabilityAssessment{
		{Requirement: "React", Priority: models.PriorityMustHave, Score: 0.4, RampUp: models.RampUpQuarter, ClosestSkills: []string{"javascript"}},
	}
	reasoning := newStubReasoning(func(ReasoningRequest) (string, error) {
		return "", ErrReasoningUnavailable
	})
	gen := NewExplanationGenerator(reasoning, nil, canon, 0, nil)

	out, err := gen.Explain(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, out.Degraded)
	assert.Equal(t, "explanation: reasoning service unavailable; deterministic fallback used", out.Warning)
	assert.Equal(t, explanationAttempts, reasoning.Calls(TaskExplanation))

	require.NotEmpty(t, out.Strengths)
	assert.Contains(t, out.Strengths[0], `Meets "Go"`)
	assert.Contains(t, out.Gaps, `Missing nice-to-have "Kafka"`)
	assert.Contains(t, out.Recommendations, "Build on javascript to cover react (estimated ramp-up 3-6 months)")
	assert.Contains(t, out.Recommendations, "Consider gaining exposure to apache kafka")

	again, err := gen.Explain(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestExplainRetriesEmptyOutput(t *testing.T) {
	t.Parallel()

	canon, in := explanationInput(t, backendFacts(6), requirementSet("Backend Engineer", []string{"Go", "React"}, nil))
	calls := 0
	reasoning := newStubReasoning(func(ReasoningRequest) (string, error) {
		calls++
		if calls == 1 {
			return `{"strengths": [], "gaps": [], "recommendations": []}`, nil
		}
		return stubExplanationJSON, nil
	})

	out, err := NewExplanationGenerator(reasoning, nil, canon, 0, nil).Explain(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, out.Degraded)
	assert.Equal(t, 2, reasoning.Calls(TaskExplanation))
	assert.Contains(t, out.Strengths, "Go used as Senior Backend Engineer at Acme")
}

func TestExplainCancelled(t *testing.T) {
	t.Parallel()

	canon, in := explanationInput(t, backendFacts(6), requirementSet("Backend Engineer", []string{"Go"}, nil))
	reasoning := newStubReasoning(func(ReasoningRequest) (string, error) { return stubExplanationJSON, nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExplanationGenerator(reasoning, nil, canon, 0, nil).Explain(ctx, in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, reasoning.TotalCalls())
}

func TestInterleaveNice(t *testing.T) {
	t.Parallel()

	gaps := []string{"m1", "m2", "m3", "m4", "m5", "m6", "n1", "n2"}
	out := interleaveNice(gaps, 6, 5)
	assert.Len(t, out, 5)
	assert.Contains(t, out, "n1")

	assert.Equal(t, []string{"m1", "n1"}, interleaveNice([]string{"m1", "n1"}, 1, 5))
}

func TestKeywords(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"distributed", "systems", "design"}, keywords("Strong experience with distributed systems design"))
	assert.True(t, mentionsKeywords("we design distributed services", keywords("Distributed systems design")))
	assert.False(t, mentionsKeywords("we design services", keywords("Distributed systems design")))
}
