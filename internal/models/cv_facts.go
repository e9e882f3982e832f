package models

// SkillSet groups the skills a CV lists explicitly.
type SkillSet struct {
	Languages  []string `json:"languages"`
	Frameworks []string `json:"frameworks"`
	Tools      []string `json:"tools"`
	SoftSkills []string `json:"soft_skills"`
}

// Technical returns languages, frameworks and tools in that order. Soft skills are excluded.
func (s SkillSet) Technical() []string {
	out := make([]string, 0, len(s.Languages)+len(s.Frameworks)+len(s.Tools))
	out = append(out, s.Languages...)
	out = append(out, s.Frameworks...)
	out = append(out, s.Tools...)
	return out
}

type Experience struct {
	Title        string   `json:"title"`
	Organization string   `json:"organization"`
	Period       string   `json:"period"`
	Years        int      `json:"years"`
	Description  []string `json:"description"`
	Technologies []string `json:"technologies"`
}

// Label renders "Title at Organization (Period)" leaving out the parts that are absent.
func (e Experience) Label() string {
	label := e.Title
	if e.Organization != "" {
		if label != "" {
			label += " at "
		}
		label += e.Organization
	}
	if e.Period != "" {
		label += " (" + e.Period + ")"
	}
	return label
}

type Education struct {
	Degree      string `json:"degree"`
	Field       string `json:"field"`
	Institution string `json:"institution"`
	Year        string `json:"year"`
}

// CVFacts is the structured record extracted from a CV. Every field is either
// literally present in the source text or left empty.
type CVFacts struct {
	Summary              string       `json:"summary"`
	Skills               SkillSet     `json:"skills"`
	Experience           []Experience `json:"experience"`
	Education            []Education  `json:"education"`
	Certifications       []string     `json:"certifications"`
	TotalYearsExperience int          `json:"total_years_experience"`
}

// Clone returns a deep copy so canonicalization never mutates caller-owned facts.
func (f *CVFacts) Clone() *CVFacts {
	if f == nil {
		return nil
	}

	out := &CVFacts{
		Summary: f.Summary,
		Skills: SkillSet{
			Languages:  cloneStrings(f.Skills.Languages),
			Frameworks: cloneStrings(f.Skills.Frameworks),
			Tools:      cloneStrings(f.Skills.Tools),
			SoftSkills: cloneStrings(f.Skills.SoftSkills),
		},
		Certifications:       cloneStrings(f.Certifications),
		TotalYearsExperience: f.TotalYearsExperience,
	}

	if f.Experience != nil {
		out.Experience = make([]Experience, len(f.Experience))
		for i, exp := range f.Experience {
			exp.Description = cloneStrings(exp.Description)
			exp.Technologies = cloneStrings(exp.Technologies)
			out.Experience[i] = exp
		}
	}

	if f.Education != nil {
		out.Education = make([]Education, len(f.Education))
		copy(out.Education, f.Education)
	}

	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
