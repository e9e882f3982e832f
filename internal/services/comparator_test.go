package services

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"alfredoptarigan/cv-matcher/internal/models"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	canon := testCanonicalizer(t)
	classifier := NewRequirementClassifier(canon, nil)

	tests := []struct {
		text   string
		kind   models.RequirementKind
		skills []string
		years  int
	}{
		{text: "Strong Go skills", kind: models.KindSkill, skills: []string{"go"}},
		{text: "React or Vue.js", kind: models.KindSkill, skills: []string{"react", "vue"}},
		{text: "5+ years of professional experience", kind: models.KindExperience, years: 5},
		{text: "3+ years of Python", kind: models.KindSkill, skills: []string{"python"}, years: 3},
		{text: "Bachelor's degree in Computer Science", kind: models.KindEducation},
		{text: "BS/MS in Computer Science", kind: models.KindEducation},
		{text: "BS in Computer Science or related field", kind: models.KindEducation},
		{text: "MS SQL Server administration", kind: models.KindSkill},
		{text: "Experience leading a team of engineers", kind: models.KindManagement},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			cls := classifier.Classify(models.Requirement{Text: tt.text}, nil)
			assert.Equal(t, tt.kind, cls.Kind)
			assert.Equal(t, tt.years, cls.Years)
			if tt.skills != nil {
				assert.Equal(t, tt.skills, cls.Skills)
			}
			assert.False(t, cls.LowConfidence)
		})
	}
}

func TestClassifyHonoursHint(t *testing.T) {
	t.Parallel()
	classifier := NewRequirementClassifier(testCanonicalizer(t), nil)

	cls := classifier.Classify(models.Requirement{Text: "Go mentoring", Kind: models.KindManagement}, nil)
	assert.Equal(t, models.KindManagement, cls.Kind)
	assert.Equal(t, []string{"go"}, cls.Skills)
}

func TestClassifyRecognisesCVOnlySkills(t *testing.T) {
	t.Parallel()
	classifier := NewRequirementClassifier(testCanonicalizer(t), nil)

	cls := classifier.Classify(models.Requirement{Text: "Experience with Temporal workflows"}, []string{"temporal"})
	assert.Equal(t, models.KindSkill, cls.Kind)
	assert.Equal(t, []string{"temporal"}, cls.Skills)
}

func TestClassifyLogsLowConfidence(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	classifier := NewRequirementClassifier(testCanonicalizer(t), zap.New(core))

	cls := classifier.Classify(models.Requirement{Text: "Excellent communication"}, nil)
	assert.Equal(t, models.KindSkill, cls.Kind)
	assert.True(t, cls.LowConfidence)
	require.Equal(t, 1, logs.FilterMessage("low-confidence requirement classification").Len())
}

func TestComparePartition(t *testing.T) {
	t.Parallel()
	canon, comparator := testComparator(t)

	facts := canon.Facts(backendFacts(6))
	reqs := requirementSet("Backend Engineer",
		[]string{"Go", "PostgreSQL", "Kafka", "Go and React", "5+ years of experience", "Mentoring engineers"},
		[]string{"Docker", "Terraform", "Python or Ruby"},
	)

	result := comparator.Compare(facts, reqs)

	assert.Len(t, result.MatchedMustHave, 4)
	assert.Len(t, result.MissingMustHave, 2)
	assert.Len(t, result.MatchedNiceToHave, 2)
	assert.Len(t, result.MissingNiceToHave, 1)
	assert.Equal(t, len(reqs.MustHave), len(result.MatchedMustHave)+len(result.MissingMustHave))
	assert.Equal(t, len(reqs.NiceToHave), len(result.MatchedNiceToHave)+len(result.MissingNiceToHave))

	kafka, ok := findMatch(result.MissingMustHave, "Kafka")
	require.True(t, ok)
	assert.Equal(t, models.StatusNotMatched, kafka.Status)

	partial, ok := findMatch(result.MissingMustHave, "Go and React")
	require.True(t, ok)
	assert.Equal(t, models.StatusPartial, partial.Status)
	assert.Contains(t, partial.Evidence, "not found in CV: react")

	goMatch, ok := findMatch(result.MatchedMustHave, "Go")
	require.True(t, ok)
	assert.Contains(t, goMatch.Evidence, "listed under skills (languages)")

	either, ok := findMatch(result.MatchedNiceToHave, "Python or Ruby")
	require.True(t, ok)
	assert.Equal(t, models.StatusMatched, either.Status)

	assert.Equal(t, models.CriterionMet, result.ExperienceMatch.Status)
	assert.Equal(t, 5, result.ExperienceMatch.RequiredYears)
	assert.Equal(t, models.CriterionMet, result.ManagementMatch.Status)
	assert.True(t, result.ManagementMatch.Required)
	assert.Equal(t, models.CriterionMet, result.EducationMatch.Status)
	assert.False(t, result.EducationMatch.Required)
}

func TestCompareIsDeterministic(t *testing.T) {
	t.Parallel()
	canon, comparator := testComparator(t)

	facts := canon.Facts(backendFacts(8))
	reqs := frontendRequirements()

	first := comparator.Compare(facts, reqs)
	for i := 0; i < 5; i++ {
		if diff := cmp.Diff(first, comparator.Compare(facts, reqs)); diff != "" {
			t.Fatalf("comparison changed between runs (-first +again):\n%s", diff)
		}
	}
}

func TestCompareEducationRule(t *testing.T) {
	t.Parallel()
	canon, comparator := testComparator(t)

	tests := []struct {
		name      string
		education []models.Education
		certs     []string
		years     int
		text      string
		status    models.CriterionStatus
	}{
		{
			name:   "experience never substitutes for a degree",
			years:  15,
			text:   "Bachelor's degree",
			status: models.CriterionNotMet,
		},
		{
			name:   "equivalent wording without an equivalent credential",
			years:  12,
			text:   "Bachelor's degree or equivalent",
			status: models.CriterionNotMet,
		},
		{
			name:   "explicit experience alternative",
			years:  6,
			text:   "Bachelor's degree or equivalent practical experience",
			status: models.CriterionMet,
		},
		{
			name:   "years alternative below threshold",
			years:  3,
			text:   "BSc in Computer Science or 5 years of experience",
			status: models.CriterionNotMet,
		},
		{
			name:      "formal degree",
			education: []models.Education{{Degree: "Bachelor of Science", Field: "Computer Science", Institution: "State University"}},
			text:      "Bachelor's degree",
			status:    models.CriterionMet,
		},
		{
			name:      "bachelor below master",
			education: []models.Education{{Degree: "BSc", Field: "Physics"}},
			text:      "Master's degree in Computer Science",
			status:    models.CriterionNotMet,
		},
		{
			name:      "lowest accepted level",
			education: []models.Education{{Degree: "BSc", Field: "Physics"}},
			text:      "Bachelor's or Master's degree",
			status:    models.CriterionMet,
		},
		{
			name:      "bs abbreviation is a bachelor's degree",
			education: []models.Education{{Degree: "BS", Field: "Computer Science"}},
			text:      "Bachelor's degree in Computer Science",
			status:    models.CriterionMet,
		},
		{
			name:      "slash separated abbreviations",
			education: []models.Education{{Degree: "B.S.", Field: "Computer Science"}},
			text:      "BS/MS in Computer Science",
			status:    models.CriterionMet,
		},
		{
			name:      "m.s. covers a b.s. requirement",
			education: []models.Education{{Degree: "M.S.", Field: "Statistics"}},
			text:      "B.S. in Computer Science",
			status:    models.CriterionMet,
		},
		{
			name:   "abbreviated requirement without a degree",
			years:  8,
			text:   "BS in Computer Science or related field",
			status: models.CriterionNotMet,
		},
		{
			name:   "bootcamp accepted as equivalent",
			certs:  []string{"Full-stack Bootcamp"},
			text:   "Degree in Computer Science or equivalent",
			status: models.CriterionMet,
		},
		{
			name:   "bootcamp not accepted without equivalent wording",
			certs:  []string{"Full-stack Bootcamp"},
			text:   "Bachelor's degree in Computer Science",
			status: models.CriterionNotMet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := canon.Facts(&models.CVFacts{
				Education:            tt.education,
				Certifications:       tt.certs,
				TotalYearsExperience: tt.years,
			})
			result := comparator.Compare(facts, requirementSet("Engineer", []string{tt.text}, nil))

			assert.Equal(t, tt.status, result.EducationMatch.Status, result.EducationMatch.Evidence)
			assert.True(t, result.EducationMatch.Required)

			if tt.status == models.CriterionMet {
				_, ok := findMatch(result.MatchedMustHave, tt.text)
				assert.True(t, ok)
			} else {
				m, ok := findMatch(result.MissingMustHave, tt.text)
				require.True(t, ok)
				assert.Equal(t, models.KindEducation, m.Kind)
			}
		})
	}
}

func TestCompareExperienceShortfall(t *testing.T) {
	t.Parallel()
	canon, comparator := testComparator(t)

	result := comparator.Compare(canon.Facts(backendFacts(3)), requirementSet("Engineer", []string{"7+ years of experience", "Go"}, nil))

	assert.Equal(t, models.CriterionNotMet, result.ExperienceMatch.Status)
	assert.Equal(t, 7, result.ExperienceMatch.RequiredYears)
	assert.Equal(t, 3, result.ExperienceMatch.CVYears)
	_, ok := findMatch(result.MissingMustHave, "7+ years of experience")
	assert.True(t, ok)
}

func TestCompareLeadershipFromBullets(t *testing.T) {
	t.Parallel()
	canon, comparator := testComparator(t)

	facts := backendFacts(6)
	facts.Experience[0].Title = "Backend Engineer"
	result := comparator.Compare(canon.Facts(facts), requirementSet("Engineer", []string{"Experience mentoring engineers"}, nil))
	assert.Equal(t, models.CriterionMet, result.ManagementMatch.Status)
	assert.Contains(t, result.ManagementMatch.Evidence, "Mentored two junior engineers")

	facts.Experience[0].Description = []string{"Built payment APIs in Go"}
	result = comparator.Compare(canon.Facts(facts), requirementSet("Engineer", []string{"Experience mentoring engineers"}, nil))
	assert.Equal(t, models.CriterionNotMet, result.ManagementMatch.Status)
}
