package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// ScoringProfile holds every tunable number of the scoring stages. None of
// these values is a fixed business rule; deployments override them from YAML
// or SCORING_* environment variables.
const defaultSeniorYears = 10

type ScoringProfile struct {
	Weights            CombinerWeights    `mapstructure:"weights"`
	SkillWeights       SkillWeights       `mapstructure:"skill_weights"`
	PartialCredit      float64            `mapstructure:"partial_credit"`
	ExperienceTiers    []ExperienceTier   `mapstructure:"experience_tiers"`
	AbsoluteTiers      []ExperienceFloor  `mapstructure:"absolute_tiers"`
	SeniorityBonus     int                `mapstructure:"seniority_bonus"`
	SeniorYears        int                `mapstructure:"senior_years"`
	SeniorUplift       float64            `mapstructure:"senior_uplift"`
	Qualification      QualificationScale `mapstructure:"qualification"`
	Domain             DomainRails        `mapstructure:"domain"`
	ExperienceFloors   []ExperienceFloor  `mapstructure:"experience_floors"`
	QualificationFloor ExperienceFloor    `mapstructure:"qualification_floor"`
}

type CombinerWeights struct {
	Skills         float64 `mapstructure:"skills"`
	Experience     float64 `mapstructure:"experience"`
	Qualifications float64 `mapstructure:"qualifications"`
}

type SkillWeights struct {
	MustHave   float64 `mapstructure:"must_have"`
	NiceToHave float64 `mapstructure:"nice_to_have"`
}

// ExperienceTier scores a CV whose years reach MinRatio of the required years.
type ExperienceTier struct {
	MinRatio float64 `mapstructure:"min_ratio"`
	Score    int     `mapstructure:"score"`
}

// ExperienceFloor applies to CVs with at least MinYears of experience.
type ExperienceFloor struct {
	MinYears int `mapstructure:"min_years"`
	Score    int `mapstructure:"score"`
}

type QualificationScale struct {
	Met        int `mapstructure:"met"`
	Equivalent int `mapstructure:"equivalent"`
	Certified  int `mapstructure:"certified"`
	Base       int `mapstructure:"base"`
}

type DomainRails struct {
	OrthogonalThreshold int `mapstructure:"orthogonal_threshold"`
	SevereThreshold     int `mapstructure:"severe_threshold"`
	ModerateOverallCap  int `mapstructure:"moderate_overall_cap"`
	ModerateSkillsCap   int `mapstructure:"moderate_skills_cap"`
	SevereOverallCap    int `mapstructure:"severe_overall_cap"`
	SevereSkillsCap     int `mapstructure:"severe_skills_cap"`
}

func DefaultScoringProfile() ScoringProfile {
	return ScoringProfile{
		Weights:       CombinerWeights{Skills: 0.50, Experience: 0.35, Qualifications: 0.15},
		SkillWeights:  SkillWeights{MustHave: 0.8, NiceToHave: 0.2},
		PartialCredit: 0.5,
		ExperienceTiers: []ExperienceTier{
			{MinRatio: 1.5, Score: 100},
			{MinRatio: 1.0, Score: 90},
			{MinRatio: 0.75, Score: 70},
			{MinRatio: 0.5, Score: 50},
			{MinRatio: 0, Score: 30},
		},
		AbsoluteTiers: []ExperienceFloor{
			{MinYears: 10, Score: 100},
			{MinYears: 5, Score: 90},
			{MinYears: 2, Score: 70},
			{MinYears: 0, Score: 50},
		},
		SeniorityBonus: 10,
		SeniorYears:    defaultSeniorYears,
		SeniorUplift:   0.1,
		Qualification:  QualificationScale{Met: 100, Equivalent: 80, Certified: 70, Base: 60},
		Domain: DomainRails{
			OrthogonalThreshold: 4,
			SevereThreshold:     6,
			ModerateOverallCap:  70,
			ModerateSkillsCap:   60,
			SevereOverallCap:    55,
			SevereSkillsCap:     40,
		},
		ExperienceFloors: []ExperienceFloor{
			{MinYears: 10, Score: 75},
			{MinYears: 5, Score: 60},
		},
		QualificationFloor: ExperienceFloor{MinYears: 10, Score: 90},
	}
}

// LoadScoringProfile reads an optional YAML profile over the defaults. Scalar
// keys can also be set from the environment, e.g. SCORING_DOMAIN_SEVERE_OVERALL_CAP.
func LoadScoringProfile(path string) (ScoringProfile, error) {
	v := viper.New()
	setProfileDefaults(v, DefaultScoringProfile())

	v.SetEnvPrefix("SCORING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return ScoringProfile{}, fmt.Errorf("failed to read scoring profile: %w", err)
		}
	}

	var profile ScoringProfile
	if err := v.Unmarshal(&profile); err != nil {
		return ScoringProfile{}, fmt.Errorf("failed to decode scoring profile: %w", err)
	}

	profile.normalize()
	if err := profile.Validate(); err != nil {
		return ScoringProfile{}, err
	}
	return profile, nil
}

func setProfileDefaults(v *viper.Viper, p ScoringProfile) {
	v.SetDefault("weights.skills", p.Weights.Skills)
	v.SetDefault("weights.experience", p.Weights.Experience)
	v.SetDefault("weights.qualifications", p.Weights.Qualifications)
	v.SetDefault("skill_weights.must_have", p.SkillWeights.MustHave)
	v.SetDefault("skill_weights.nice_to_have", p.SkillWeights.NiceToHave)
	v.SetDefault("partial_credit", p.PartialCredit)
	v.SetDefault("experience_tiers", p.ExperienceTiers)
	v.SetDefault("absolute_tiers", p.AbsoluteTiers)
	v.SetDefault("seniority_bonus", p.SeniorityBonus)
	v.SetDefault("senior_years", p.SeniorYears)
	v.SetDefault("senior_uplift", p.SeniorUplift)
	v.SetDefault("qualification.met", p.Qualification.Met)
	v.SetDefault("qualification.equivalent", p.Qualification.Equivalent)
	v.SetDefault("qualification.certified", p.Qualification.Certified)
	v.SetDefault("qualification.base", p.Qualification.Base)
	v.SetDefault("domain.orthogonal_threshold", p.Domain.OrthogonalThreshold)
	v.SetDefault("domain.severe_threshold", p.Domain.SevereThreshold)
	v.SetDefault("domain.moderate_overall_cap", p.Domain.ModerateOverallCap)
	v.SetDefault("domain.moderate_skills_cap", p.Domain.ModerateSkillsCap)
	v.SetDefault("domain.severe_overall_cap", p.Domain.SevereOverallCap)
	v.SetDefault("domain.severe_skills_cap", p.Domain.SevereSkillsCap)
	v.SetDefault("experience_floors", p.ExperienceFloors)
	v.SetDefault("qualification_floor.min_years", p.QualificationFloor.MinYears)
	v.SetDefault("qualification_floor.score", p.QualificationFloor.Score)
}

// normalize sorts tier and floor tables from the most to the least demanding.
func (p *ScoringProfile) normalize() {
	sort.SliceStable(p.ExperienceTiers, func(i, j int) bool { return p.ExperienceTiers[i].MinRatio > p.ExperienceTiers[j].MinRatio })
	sort.SliceStable(p.AbsoluteTiers, func(i, j int) bool { return p.AbsoluteTiers[i].MinYears > p.AbsoluteTiers[j].MinYears })
	sort.SliceStable(p.ExperienceFloors, func(i, j int) bool { return p.ExperienceFloors[i].MinYears > p.ExperienceFloors[j].MinYears })
}

func (p ScoringProfile) Validate() error {
	if p.Weights.Skills < 0 || p.Weights.Experience < 0 || p.Weights.Qualifications < 0 {
		return fmt.Errorf("combiner weights must not be negative")
	}
	if p.Weights.Skills+p.Weights.Experience+p.Weights.Qualifications <= 0 {
		return fmt.Errorf("combiner weights must sum to a positive value")
	}
	if p.SkillWeights.MustHave < 0 || p.SkillWeights.NiceToHave < 0 || p.SkillWeights.MustHave+p.SkillWeights.NiceToHave <= 0 {
		return fmt.Errorf("skill weights must be non-negative and sum to a positive value")
	}
	if p.PartialCredit < 0 || p.PartialCredit > 1 {
		return fmt.Errorf("partial_credit must be within [0, 1]")
	}
	if p.SeniorUplift < 0 || p.SeniorUplift > 1 {
		return fmt.Errorf("senior_uplift must be within [0, 1]")
	}
	if len(p.ExperienceTiers) == 0 || len(p.AbsoluteTiers) == 0 {
		return fmt.Errorf("experience tiers must not be empty")
	}
	if p.Domain.OrthogonalThreshold < 1 || p.Domain.SevereThreshold < p.Domain.OrthogonalThreshold {
		return fmt.Errorf("domain thresholds must satisfy 1 <= orthogonal <= severe")
	}

	scores := map[string]int{
		"seniority_bonus":             p.SeniorityBonus,
		"qualification.met":           p.Qualification.Met,
		"qualification.equivalent":    p.Qualification.Equivalent,
		"qualification.certified":     p.Qualification.Certified,
		"qualification.base":          p.Qualification.Base,
		"domain.moderate_overall_cap": p.Domain.ModerateOverallCap,
		"domain.moderate_skills_cap":  p.Domain.ModerateSkillsCap,
		"domain.severe_overall_cap":   p.Domain.SevereOverallCap,
		"domain.severe_skills_cap":    p.Domain.SevereSkillsCap,
		"qualification_floor.score":   p.QualificationFloor.Score,
	}
	for _, t := range p.ExperienceTiers {
		if err := checkScore("experience_tiers.score", t.Score); err != nil {
			return err
		}
	}
	for _, t := range append(append([]ExperienceFloor{}, p.AbsoluteTiers...), p.ExperienceFloors...) {
		if err := checkScore("floor score", t.Score); err != nil {
			return err
		}
	}

	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := checkScore(k, scores[k]); err != nil {
			return err
		}
	}
	return nil
}

func checkScore(name string, score int) error {
	if score < 0 || score > 100 {
		return fmt.Errorf("%s must be within [0, 100], got %d", name, score)
	}
	return nil
}
