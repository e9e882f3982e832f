package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRequirementDecoding(t *testing.T) {
	t.Parallel()

	want := []Requirement{
		{Text: "Go"},
		{Text: "5+ years of experience", Kind: KindExperience},
	}

	t.Run("json", func(t *testing.T) {
		var set RequirementSet
		err := json.Unmarshal([]byte(`{"must_have": ["Go", {"text": "5+ years of experience", "kind": "experience"}], "nice_to_have": []}`), &set)
		require.NoError(t, err)
		if diff := cmp.Diff(want, set.MustHave); diff != "" {
			t.Fatalf("must_have mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var set RequirementSet
		err := yaml.Unmarshal([]byte("must_have:\n  - Go\n  - {text: \"5+ years of experience\", kind: experience}\nnice_to_have: [Kafka]\n"), &set)
		require.NoError(t, err)
		if diff := cmp.Diff(want, set.MustHave); diff != "" {
			t.Fatalf("must_have mismatch (-want +got):\n%s", diff)
		}
		assert.Equal(t, []Requirement{{Text: "Kafka"}}, set.NiceToHave)
	})

	t.Run("rejects numbers", func(t *testing.T) {
		var r Requirement
		require.Error(t, json.Unmarshal([]byte(`42`), &r))
	})
}

func TestRequirementSetValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		set     *RequirementSet
		wantErr bool
	}{
		{name: "nil", set: nil, wantErr: true},
		{name: "empty", set: &RequirementSet{}, wantErr: true},
		{name: "blank text", set: &RequirementSet{MustHave: []Requirement{{Text: "  "}}}, wantErr: true},
		{name: "unknown kind", set: &RequirementSet{NiceToHave: []Requirement{{Text: "Go", Kind: "hobby"}}}, wantErr: true},
		{name: "nice to have only", set: &RequirementSet{NiceToHave: []Requirement{{Text: "Go"}}}},
		{name: "hinted kinds", set: &RequirementSet{MustHave: []Requirement{{Text: "Lead a team", Kind: KindManagement}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.set.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCVFactsClone(t *testing.T) {
	t.Parallel()

	facts := &CVFacts{
		Skills:     SkillSet{Languages: []string{"Go"}},
		Experience: []Experience{{Title: "Engineer", Technologies: []string{"Go"}, Description: []string{"Built things"}}},
		Education:  []Education{{Degree: "BSc"}},
	}
	clone := facts.Clone()
	require.Empty(t, cmp.Diff(facts, clone))

	clone.Skills.Languages[0] = "Rust"
	clone.Experience[0].Technologies[0] = "Rust"
	clone.Education[0].Degree = "MSc"

	assert.Equal(t, "Go", facts.Skills.Languages[0])
	assert.Equal(t, "Go", facts.Experience[0].Technologies[0])
	assert.Equal(t, "BSc", facts.Education[0].Degree)
	assert.Nil(t, (*CVFacts)(nil).Clone())
}

func TestExperienceLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Engineer at Acme (2020-2024)", Experience{Title: "Engineer", Organization: "Acme", Period: "2020-2024"}.Label())
	assert.Equal(t, "Acme", Experience{Organization: "Acme"}.Label())
	assert.Equal(t, "Engineer", Experience{Title: "Engineer"}.Label())
}

func TestCacheEntryExpiry(t *testing.T) {
	t.Parallel()

	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	entry := &CacheEntry{CreatedAt: created, ExpiresAt: created.Add(time.Hour)}

	assert.Equal(t, time.Hour, entry.TTL())
	assert.False(t, entry.Expired(created.Add(59*time.Minute)))
	assert.True(t, entry.Expired(created.Add(time.Hour)))
}

func TestCacheEntryDecodeInputs(t *testing.T) {
	t.Parallel()

	entry := &CacheEntry{Result: `{"overall_score": 42}`}
	result, err := entry.DecodeResult()
	require.NoError(t, err)
	assert.Equal(t, 42, result.OverallScore)

	_, _, err = entry.DecodeInputs()
	require.Error(t, err)

	entry.Facts = `{"total_years_experience": 3}`
	entry.Requirements = `{"must_have": ["Go"]}`
	facts, reqs, err := entry.DecodeInputs()
	require.NoError(t, err)
	assert.Equal(t, 3, facts.TotalYearsExperience)
	assert.Equal(t, "Go", reqs.MustHave[0].Text)
}

func TestCountKind(t *testing.T) {
	t.Parallel()

	list := []RequirementMatch{{Kind: KindSkill}, {Kind: KindEducation}, {Kind: KindSkill}}
	assert.Equal(t, 2, CountKind(list, KindSkill))
	assert.Equal(t, 0, CountKind(list, KindManagement))
}
