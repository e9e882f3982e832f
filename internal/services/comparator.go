package services

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"alfredoptarigan/cv-matcher/internal/logger"
	"alfredoptarigan/cv-matcher/internal/models"
)

const defaultExperienceAlternativeYears = 4

var (
	doctorateTerms  = []string{"phd", "ph.d", "ph.d.", "doctorate", "doctoral", "dphil"}
	masterTerms     = []string{"master", "master's", "masters", "m.sc", "msc", "ms", "m.s", "m.s.", "ma", "m.a.", "mba", "m.eng", "m.tech"}
	bachelorTerms   = []string{"bachelor", "bachelor's", "bachelors", "b.sc", "bsc", "bs", "b.s", "b.s.", "ba", "b.a.", "b.tech", "b.eng", "undergraduate"}
	equivalentTerms = []string{
		"associate", "associate's", "a.s.", "a.a.", "diploma", "certificate", "bootcamp",
		"professional certificate", "technical degree", "apprenticeship", "hnd",
	}
	cvLeadershipTerms = []string{
		"lead", "led", "leading", "manage", "managed", "managing", "manager", "mentor", "mentored",
		"mentoring", "supervised", "supervising", "directed", "director", "head of", "team of", "coached",
	}
	alternativeTerms = []string{"or", "either", "any of", "one of"}

	experienceAlternativePatterns = []*regexp.Regexp{
		regexp.MustCompile(`equivalent\s+(?:\w+\s+){0,2}experience`),
		regexp.MustCompile(`\bor\s+(?:relevant\s+|equivalent\s+|practical\s+|professional\s+)?(?:work\s+|industry\s+)?experience`),
		regexp.MustCompile(`\bor\s+\d+\s*\+?\s*years`),
		regexp.MustCompile(`in\s+lieu\s+of`),
	}
)

// RequirementComparator compares canonical CV facts with a requirement set. It
// makes no external calls and is deterministic.
type RequirementComparator interface {
	Compare(facts *models.CVFacts, reqs *models.RequirementSet) *models.ComparisonResult
}

type requirementComparator struct {
	canon      *Canonicalizer
	classifier *RequirementClassifier
}

func NewRequirementComparator(canon *Canonicalizer, classifier *RequirementClassifier) RequirementComparator {
	return &requirementComparator{canon: canon, classifier: classifier}
}

// techIndex maps each CV technology token to the first CV fact that mentions it.
type techIndex struct {
	sources map[string]string
	tokens  []string
}

func (c *requirementComparator) buildTechIndex(f *models.CVFacts) techIndex {
	idx := techIndex{sources: make(map[string]string)}
	add := func(token, source string) {
		if token == "" {
			return
		}
		if _, ok := idx.sources[token]; !ok {
			idx.sources[token] = source
		}
	}

	for _, s := range f.Skills.Languages {
		add(s, "listed under skills (languages)")
	}
	for _, s := range f.Skills.Frameworks {
		add(s, "listed under skills (frameworks)")
	}
	for _, s := range f.Skills.Tools {
		add(s, "listed under skills (tools)")
	}
	for _, exp := range f.Experience {
		label := exp.Label()
		for _, s := range exp.Technologies {
			add(s, fmt.Sprintf("used as %s", label))
		}
		for _, bullet := range exp.Description {
			for _, s := range c.canon.MentionedSkills(bullet) {
				add(s, fmt.Sprintf("mentioned as %s: %q", label, logger.TruncateForLog(bullet, 100)))
			}
		}
	}
	for _, s := range c.canon.MentionedSkills(f.Summary) {
		add(s, "mentioned in the CV summary")
	}

	idx.tokens = make([]string, 0, len(idx.sources))
	for token := range idx.sources {
		idx.tokens = append(idx.tokens, token)
	}
	sort.Strings(idx.tokens)
	return idx
}

func (c *requirementComparator) Compare(facts *models.CVFacts, reqs *models.RequirementSet) *models.ComparisonResult {
	idx := c.buildTechIndex(facts)

	result := &models.ComparisonResult{
		MatchedMustHave:   []models.RequirementMatch{},
		MissingMustHave:   []models.RequirementMatch{},
		MatchedNiceToHave: []models.RequirementMatch{},
		MissingNiceToHave: []models.RequirementMatch{},
		CVTechnologies:    idx.tokens,
	}

	var mustClasses []classified
	for _, req := range reqs.MustHave {
		m, cls := c.compareOne(req, models.PriorityMustHave, facts, idx)
		mustClasses = append(mustClasses, classified{req: req, cls: cls})
		if m.Status == models.StatusMatched {
			result.MatchedMustHave = append(result.MatchedMustHave, m)
		} else {
			result.MissingMustHave = append(result.MissingMustHave, m)
		}
	}
	for _, req := range reqs.NiceToHave {
		m, _ := c.compareOne(req, models.PriorityNiceToHave, facts, idx)
		if m.Status == models.StatusMatched {
			result.MatchedNiceToHave = append(result.MatchedNiceToHave, m)
		} else {
			result.MissingNiceToHave = append(result.MissingNiceToHave, m)
		}
	}

	result.ExperienceMatch = experienceSubResult(mustClasses, facts)
	result.EducationMatch = educationSubResult(mustClasses, facts)
	result.ManagementMatch = managementSubResult(mustClasses, facts)

	return result
}

type classified struct {
	req models.Requirement
	cls Classification
}

func (c *requirementComparator) compareOne(req models.Requirement, priority models.Priority, facts *models.CVFacts, idx techIndex) (models.RequirementMatch, Classification) {
	cls := c.classifier.Classify(req, idx.tokens)

	m := models.RequirementMatch{
		Requirement: req.Text,
		Kind:        cls.Kind,
		Priority:    priority,
		Skills:      cls.Skills,
	}

	switch cls.Kind {
	case models.KindExperience:
		m.Status, m.Evidence = matchExperience(cls.Years, facts)
	case models.KindEducation:
		ed := evaluateEducation(req.Text, facts)
		m.Evidence = ed.Evidence
		m.Status = models.StatusNotMatched
		if ed.Status == models.CriterionMet {
			m.Status = models.StatusMatched
		}
	case models.KindManagement:
		ok, evidence := leadershipEvidence(facts)
		m.Evidence = evidence
		m.Status = models.StatusNotMatched
		if ok {
			m.Status = models.StatusMatched
		}
	default:
		m.Status, m.Evidence = matchSkills(strings.ToLower(req.Text), cls.Skills, idx)
	}

	return m, cls
}

func matchSkills(text string, tokens []string, idx techIndex) (models.MatchStatus, string) {
	if len(tokens) == 0 {
		return models.StatusNotMatched, "no recognised technology in the requirement and no matching CV skill"
	}

	var found, missing []string
	for _, t := range tokens {
		if source, ok := idx.sources[t]; ok {
			found = append(found, fmt.Sprintf("%s %s", t, source))
		} else {
			missing = append(missing, t)
		}
	}

	var parts []string
	if len(found) > 0 {
		parts = append(parts, strings.Join(found, "; "))
	}
	if len(missing) > 0 {
		parts = append(parts, "not found in CV: "+strings.Join(missing, ", "))
	}
	evidence := strings.Join(parts, "; ")

	switch {
	case len(missing) == 0:
		return models.StatusMatched, evidence
	case len(found) > 0 && isAlternative(text):
		return models.StatusMatched, evidence
	case len(found) > 0:
		return models.StatusPartial, evidence
	}
	return models.StatusNotMatched, evidence
}

func isAlternative(text string) bool {
	if containsAny(text, alternativeTerms) {
		return true
	}
	return strings.Count(strings.ReplaceAll(text, "ci/cd", ""), "/") > 0
}

func matchExperience(years int, facts *models.CVFacts) (models.MatchStatus, string) {
	cvYears := facts.TotalYearsExperience
	if years == 0 {
		if cvYears > 0 || len(facts.Experience) > 0 {
			return models.StatusMatched, fmt.Sprintf("CV lists %d roles and %d years of experience", len(facts.Experience), cvYears)
		}
		return models.StatusNotMatched, "CV lists no professional experience"
	}
	if cvYears >= years {
		return models.StatusMatched, fmt.Sprintf("CV states %d years of experience (requires %d+)", cvYears, years)
	}
	return models.StatusNotMatched, fmt.Sprintf("CV states %d years of experience, below the required %d", cvYears, years)
}

func experienceSubResult(must []classified, facts *models.CVFacts) models.ExperienceMatch {
	em := models.ExperienceMatch{CVYears: facts.TotalYearsExperience, Status: models.CriterionMet}

	for _, c := range must {
		if c.cls.Kind == models.KindExperience && (em.Requirement == "" || c.cls.Years > em.RequiredYears) {
			em.Requirement = c.req.Text
			em.RequiredYears = c.cls.Years
			em.Required = true
		}
	}
	if !em.Required {
		for _, c := range must {
			if c.cls.Years > em.RequiredYears {
				em.Requirement = c.req.Text
				em.RequiredYears = c.cls.Years
				em.Required = true
			}
		}
	}

	if !em.Required {
		em.Evidence = fmt.Sprintf("no experience threshold stated; CV states %d years", em.CVYears)
		return em
	}

	status, evidence := matchExperience(em.RequiredYears, facts)
	em.Evidence = evidence
	if status != models.StatusMatched {
		em.Status = models.CriterionNotMet
	}
	return em
}

func educationSubResult(must []classified, facts *models.CVFacts) models.EducationMatch {
	for _, c := range must {
		if c.cls.Kind == models.KindEducation {
			return evaluateEducation(c.req.Text, facts)
		}
	}

	formal, equivalent := cvCredentials(facts)
	em := models.EducationMatch{
		Status:                 models.CriterionMet,
		Evidence:               "no education requirement stated",
		HasFormalDegree:        formal.level > 0,
		HasEquivalentEducation: equivalent != "",
	}
	return em
}

func managementSubResult(must []classified, facts *models.CVFacts) models.ManagementMatch {
	for _, c := range must {
		if c.cls.Kind != models.KindManagement {
			continue
		}
		ok, evidence := leadershipEvidence(facts)
		mm := models.ManagementMatch{Requirement: c.req.Text, Required: true, Status: models.CriterionNotMet, Evidence: evidence}
		if ok {
			mm.Status = models.CriterionMet
		}
		return mm
	}
	return models.ManagementMatch{Status: models.CriterionMet, Evidence: "no leadership requirement stated"}
}

var degreeTiers = []struct {
	level int
	terms []string
}{
	{level: 1, terms: bachelorTerms},
	{level: 2, terms: masterTerms},
	{level: 3, terms: doctorateTerms},
}

// degreeLevel returns the highest level named in text: 3 for doctorates, 2 for
// masters, 1 for bachelors and 0 when no degree is named.
func degreeLevel(text string) int {
	text = strings.ToLower(text)
	level := 0
	for _, tier := range degreeTiers {
		if containsAny(text, tier.terms) {
			level = tier.level
		}
	}
	return level
}

// requiredDegreeLevel returns the lowest level a requirement accepts, so
// "Bachelor's or Master's" is satisfied by a bachelor's degree. A bare "degree" counts as 1.
func requiredDegreeLevel(text string) int {
	for _, tier := range degreeTiers {
		if containsAny(text, tier.terms) {
			return tier.level
		}
	}
	return 1
}

type credential struct {
	level int
	label string
}

// cvCredentials returns the highest formal degree and the first equivalent credential in the CV.
func cvCredentials(facts *models.CVFacts) (credential, string) {
	var best credential
	equivalent := ""

	for _, ed := range facts.Education {
		label := strings.TrimSpace(strings.Join([]string{ed.Degree, ed.Field}, " "))
		if ed.Institution != "" {
			label += " (" + ed.Institution + ")"
		}
		if level := degreeLevel(ed.Degree); level > best.level {
			best = credential{level: level, label: label}
			continue
		}
		if equivalent == "" && containsAny(strings.ToLower(ed.Degree), equivalentTerms) {
			equivalent = label
		}
	}

	if equivalent == "" {
		for _, cert := range facts.Certifications {
			lower := strings.ToLower(cert)
			if containsTerm(lower, "bootcamp") || containsTerm(lower, "diploma") || containsTerm(lower, "technical degree") {
				equivalent = cert
				break
			}
		}
	}

	return best, equivalent
}

// evaluateEducation applies the two-tier degree rule. Work experience never
// substitutes for a degree unless the requirement text offers that alternative.
func evaluateEducation(text string, facts *models.CVFacts) models.EducationMatch {
	lower := strings.ToLower(text)

	required := requiredDegreeLevel(lower)

	em := models.EducationMatch{
		Requirement:       text,
		Required:          true,
		Status:            models.CriterionNotMet,
		EquivalentAllowed: containsTerm(lower, "equivalent") || containsTerm(lower, "or similar") || containsAny(lower, equivalentTerms),
	}
	for _, p := range experienceAlternativePatterns {
		if p.MatchString(lower) {
			em.ExperienceAlternative = true
			break
		}
	}

	formal, equivalent := cvCredentials(facts)
	em.HasFormalDegree = formal.level > 0
	em.HasEquivalentEducation = equivalent != ""

	switch {
	case formal.level >= required:
		em.Status = models.CriterionMet
		em.Evidence = fmt.Sprintf("CV education lists %q", formal.label)
	case em.EquivalentAllowed && equivalent != "":
		em.Status = models.CriterionMet
		em.Evidence = fmt.Sprintf("requirement accepts an equivalent credential; CV lists %q", equivalent)
	case em.ExperienceAlternative && facts.TotalYearsExperience >= experienceAlternativeYears(lower):
		em.Status = models.CriterionMet
		em.Evidence = fmt.Sprintf("requirement accepts experience instead of a degree; CV states %d years (needs %d)",
			facts.TotalYearsExperience, experienceAlternativeYears(lower))
	case formal.level > 0:
		em.Evidence = fmt.Sprintf("CV education lists %q, below the required level", formal.label)
	default:
		em.Evidence = "no degree listed in CV education"
		if equivalent != "" {
			em.Evidence = fmt.Sprintf("CV lists %q but the requirement does not accept equivalents", equivalent)
		}
		if facts.TotalYearsExperience > 0 && !em.ExperienceAlternative {
			em.Evidence += fmt.Sprintf("; %d years of experience do not substitute for a degree under this requirement", facts.TotalYearsExperience)
		}
	}

	return em
}

func experienceAlternativeYears(text string) int {
	if years := requiredYears(text); years > 0 {
		return years
	}
	return defaultExperienceAlternativeYears
}

// leadershipEvidence looks for explicit leadership signals in role titles, then in bullets.
func leadershipEvidence(facts *models.CVFacts) (bool, string) {
	for _, exp := range facts.Experience {
		if term := firstTerm(strings.ToLower(exp.Title), cvLeadershipTerms); term != "" {
			return true, fmt.Sprintf("role title %q", exp.Label())
		}
	}
	for _, exp := range facts.Experience {
		for _, bullet := range exp.Description {
			if containsAny(strings.ToLower(bullet), cvLeadershipTerms) {
				return true, fmt.Sprintf("%q as %s", logger.TruncateForLog(bullet, 120), exp.Label())
			}
		}
	}
	return false, "no leadership or mentoring described in CV experience"
}
