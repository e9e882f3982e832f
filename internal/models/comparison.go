package models

type MatchStatus string

const (
	StatusMatched    MatchStatus = "MATCHED"
	StatusPartial    MatchStatus = "PARTIAL"
	StatusNotMatched MatchStatus = "NOT_MATCHED"
)

type CriterionStatus string

const (
	CriterionMet    CriterionStatus = "MET"
	CriterionNotMet CriterionStatus = "NOT_MET"
)

// RequirementMatch is the comparator's verdict on a single requirement.
// Skills holds the canonical skill tokens the requirement names, if any.
type RequirementMatch struct {
	Requirement string          `json:"requirement"`
	Kind        RequirementKind `json:"kind"`
	Priority    Priority        `json:"priority"`
	Status      MatchStatus     `json:"status"`
	Evidence    string          `json:"evidence"`
	Skills      []string        `json:"skills,omitempty"`
}

type ExperienceMatch struct {
	Requirement   string          `json:"requirement"`
	Required      bool            `json:"required"`
	Status        CriterionStatus `json:"status"`
	Evidence      string          `json:"evidence"`
	CVYears       int             `json:"cv_years"`
	RequiredYears int             `json:"required_years"`
}

type EducationMatch struct {
	Requirement            string          `json:"requirement"`
	Required               bool            `json:"required"`
	Status                 CriterionStatus `json:"status"`
	Evidence               string          `json:"evidence"`
	HasFormalDegree        bool            `json:"has_formal_degree"`
	HasEquivalentEducation bool            `json:"has_equivalent_education"`
	EquivalentAllowed      bool            `json:"equivalent_allowed"`
	ExperienceAlternative  bool            `json:"experience_alternative"`
}

type ManagementMatch struct {
	Requirement string          `json:"requirement"`
	Required    bool            `json:"required"`
	Status      CriterionStatus `json:"status"`
	Evidence    string          `json:"evidence"`
}

// ComparisonResult partitions the input requirements: every must-have lands in
// exactly one of MatchedMustHave/MissingMustHave, likewise for nice-to-have.
type ComparisonResult struct {
	MatchedMustHave   []RequirementMatch `json:"matched_must_have"`
	MissingMustHave   []RequirementMatch `json:"missing_must_have"`
	MatchedNiceToHave []RequirementMatch `json:"matched_nice_to_have"`
	MissingNiceToHave []RequirementMatch `json:"missing_nice_to_have"`

	ExperienceMatch ExperienceMatch `json:"experience_match"`
	EducationMatch  EducationMatch  `json:"education_match"`
	ManagementMatch ManagementMatch `json:"management_match"`

	CVTechnologies []string `json:"cv_technologies"`
}

// CountKind counts entries of the given kind in list.
func CountKind(list []RequirementMatch, kind RequirementKind) int {
	n := 0
	for _, m := range list {
		if m.Kind == kind {
			n++
		}
	}
	return n
}
