package services

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"alfredoptarigan/cv-matcher/internal/models"
)

//go:embed skills.yaml
var defaultSkillTableYAML []byte

type SkillEntry struct {
	Name     string   `yaml:"name" json:"name"`
	Category string   `yaml:"category" json:"category"`
	Aliases  []string `yaml:"aliases" json:"aliases,omitempty"`
}

type skillTableFile struct {
	Skills []SkillEntry `yaml:"skills"`
}

// SkillTable maps surface forms to canonical skill names. It is immutable once built.
type SkillTable struct {
	entries  []SkillEntry
	index    map[string]int
	surfaces []string
}

// DefaultSkillTable parses the embedded vocabulary.
func DefaultSkillTable() (*SkillTable, error) {
	return ParseSkillTable(defaultSkillTableYAML)
}

// LoadSkillTable layers the YAML file at extraPath, if any, over the embedded vocabulary.
func LoadSkillTable(extraPath string) (*SkillTable, error) {
	docs := [][]byte{defaultSkillTableYAML}
	if extraPath != "" {
		data, err := os.ReadFile(extraPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read skill table: %w", err)
		}
		docs = append(docs, data)
	}
	return ParseSkillTable(docs...)
}

// ParseSkillTable merges the documents in order. A later entry with an existing
// name adds aliases and may override the category.
func ParseSkillTable(docs ...[]byte) (*SkillTable, error) {
	t := &SkillTable{index: make(map[string]int)}

	for i, doc := range docs {
		var file skillTableFile
		if err := yaml.Unmarshal(doc, &file); err != nil {
			return nil, fmt.Errorf("failed to parse skill table %d: %w", i, err)
		}
		for _, entry := range file.Skills {
			if err := t.add(entry); err != nil {
				return nil, err
			}
		}
	}

	t.surfaces = make([]string, 0, len(t.index))
	for surface := range t.index {
		t.surfaces = append(t.surfaces, surface)
	}
	sort.Slice(t.surfaces, func(i, j int) bool {
		if len(t.surfaces[i]) != len(t.surfaces[j]) {
			return len(t.surfaces[i]) > len(t.surfaces[j])
		}
		return t.surfaces[i] < t.surfaces[j]
	})

	return t, nil
}

func (t *SkillTable) add(entry SkillEntry) error {
	name := normalizeSkill(entry.Name)
	if name == "" {
		return fmt.Errorf("skill table entry without a name")
	}

	idx, exists := t.index[name]
	if exists && t.entries[idx].Name != name {
		return fmt.Errorf("skill %q is already an alias of %q", name, t.entries[idx].Name)
	}
	if !exists {
		idx = len(t.entries)
		t.entries = append(t.entries, SkillEntry{Name: name})
		t.index[name] = idx
	}

	if category := strings.TrimSpace(strings.ToLower(entry.Category)); category != "" {
		t.entries[idx].Category = category
	}

	for _, alias := range entry.Aliases {
		alias = normalizeSkill(alias)
		if alias == "" || alias == name {
			continue
		}
		if other, ok := t.index[alias]; ok {
			if other == idx {
				continue
			}
			return fmt.Errorf("alias %q of %q already maps to %q", alias, name, t.entries[other].Name)
		}
		t.index[alias] = idx
		t.entries[idx].Aliases = append(t.entries[idx].Aliases, alias)
	}

	return nil
}

func (t *SkillTable) Entries() []SkillEntry {
	out := make([]SkillEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *SkillTable) Len() int {
	return len(t.entries)
}

// Canonicalizer is the pure surface-form to canonical-name mapping.
type Canonicalizer struct {
	table *SkillTable
}

func NewCanonicalizer(table *SkillTable) *Canonicalizer {
	return &Canonicalizer{table: table}
}

func (c *Canonicalizer) Table() *SkillTable {
	return c.table
}

// Canonical returns the canonical name for skill. Unknown names come back
// lower-cased and trimmed. Canonical(Canonical(x)) == Canonical(x).
func (c *Canonicalizer) Canonical(skill string) string {
	key := normalizeSkill(skill)
	if idx, ok := c.table.index[key]; ok {
		return c.table.entries[idx].Name
	}
	return key
}

func (c *Canonicalizer) Known(skill string) bool {
	_, ok := c.table.index[normalizeSkill(skill)]
	return ok
}

// Category returns the category of a skill, or "" when it is not in the table.
func (c *Canonicalizer) Category(skill string) string {
	if idx, ok := c.table.index[normalizeSkill(skill)]; ok {
		return c.table.entries[idx].Category
	}
	return ""
}

// CanonicalList canonicalizes, drops empties and removes duplicates keeping first occurrence.
func (c *Canonicalizer) CanonicalList(list []string) []string {
	if list == nil {
		return nil
	}
	out := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, s := range list {
		canonical := c.Canonical(s)
		if canonical == "" {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	return out
}

// Facts returns a canonicalized copy of f. The input is not modified.
func (c *Canonicalizer) Facts(f *models.CVFacts) *models.CVFacts {
	out := f.Clone()
	if out == nil {
		return nil
	}

	out.Summary = strings.TrimSpace(out.Summary)
	out.Skills.Languages = c.CanonicalList(out.Skills.Languages)
	out.Skills.Frameworks = c.CanonicalList(out.Skills.Frameworks)
	out.Skills.Tools = c.CanonicalList(out.Skills.Tools)
	out.Skills.SoftSkills = c.CanonicalList(out.Skills.SoftSkills)

	for i := range out.Experience {
		out.Experience[i].Technologies = c.CanonicalList(out.Experience[i].Technologies)
		if out.Experience[i].Years < 0 {
			out.Experience[i].Years = 0
		}
	}

	certs := out.Certifications[:0]
	for _, cert := range out.Certifications {
		if cert = strings.TrimSpace(cert); cert != "" {
			certs = append(certs, cert)
		}
	}
	out.Certifications = certs

	if out.TotalYearsExperience < 0 {
		out.TotalYearsExperience = 0
	}

	return out
}

// MentionedSkills finds the canonical skills named anywhere in free text, in
// order of first appearance. Longer surface forms win over the forms they contain.
func (c *Canonicalizer) MentionedSkills(text string) []string {
	lower := strings.ToLower(text)
	claimed := make([]bool, len(lower))

	type hit struct {
		pos  int
		name string
	}
	var hits []hit

	for _, surface := range c.table.surfaces {
		for _, pos := range termPositions(lower, surface) {
			if anyClaimed(claimed, pos, pos+len(surface)) {
				continue
			}
			for i := pos; i < pos+len(surface); i++ {
				claimed[i] = true
			}
			hits = append(hits, hit{pos: pos, name: c.table.entries[c.table.index[surface]].Name})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	out := make([]string, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		if _, dup := seen[h.name]; dup {
			continue
		}
		seen[h.name] = struct{}{}
		out = append(out, h.name)
	}
	return out
}

func anyClaimed(claimed []bool, from, to int) bool {
	for i := from; i < to; i++ {
		if claimed[i] {
			return true
		}
	}
	return false
}

func normalizeSkill(s string) string {
	s = strings.TrimRight(strings.TrimSpace(s), ",;:")
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// containsTerm reports whether term occurs in text as a whole word. Both are expected lower-cased.
func containsTerm(text, term string) bool {
	return len(termPositions(text, term)) > 0
}

func termPositions(text, term string) []int {
	if term == "" {
		return nil
	}

	var positions []int
	offset := 0
	for {
		idx := strings.Index(text[offset:], term)
		if idx < 0 {
			return positions
		}
		start := offset + idx
		end := start + len(term)
		if wordBoundaryBefore(text, start) && wordBoundaryAfter(text, end) {
			positions = append(positions, start)
		}
		offset = start + 1
		if offset >= len(text) {
			return positions
		}
	}
}

func wordBoundaryBefore(text string, start int) bool {
	if start == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:start])
	return !isWordRune(r)
}

func wordBoundaryAfter(text string, end int) bool {
	if end >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[end:])
	return !isWordRune(r) && r != '+' && r != '#'
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
