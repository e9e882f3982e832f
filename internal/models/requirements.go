package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

type RequirementKind string

const (
	KindUnknown    RequirementKind = ""
	KindSkill      RequirementKind = "skill"
	KindExperience RequirementKind = "experience"
	KindEducation  RequirementKind = "education"
	KindManagement RequirementKind = "management"
)

// Valid reports whether k is one of the known kinds or empty.
func (k RequirementKind) Valid() bool {
	switch k {
	case KindUnknown, KindSkill, KindExperience, KindEducation, KindManagement:
		return true
	}
	return false
}

type Priority string

const (
	PriorityMustHave   Priority = "must_have"
	PriorityNiceToHave Priority = "nice_to_have"
)

// Requirement is one line of a job's requirement matrix. Kind is an optional
// hint supplied by the job parser; the comparator classifies when it is empty.
type Requirement struct {
	Text string          `json:"text" yaml:"text"`
	Kind RequirementKind `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// UnmarshalJSON accepts either a plain string or {"text": ..., "kind": ...}.
func (r *Requirement) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		r.Text = text
		r.Kind = KindUnknown
		return nil
	}

	type plain Requirement
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("requirement must be a string or an object: %w", err)
	}

	*r = Requirement(p)
	return nil
}

// UnmarshalYAML mirrors UnmarshalJSON for requirement files.
func (r *Requirement) UnmarshalYAML(unmarshal func(any) error) error {
	var text string
	if err := unmarshal(&text); err == nil {
		r.Text = text
		r.Kind = KindUnknown
		return nil
	}

	type plain Requirement
	var p plain
	if err := unmarshal(&p); err != nil {
		return fmt.Errorf("requirement must be a string or a mapping: %w", err)
	}

	*r = Requirement(p)
	return nil
}

// RequirementSet is produced by the job-requirement parser and consumed read-only.
type RequirementSet struct {
	Title      string        `json:"title,omitempty" yaml:"title,omitempty"`
	RoleLevel  string        `json:"role_level,omitempty" yaml:"role_level,omitempty"`
	Domain     string        `json:"domain,omitempty" yaml:"domain,omitempty"`
	MustHave   []Requirement `json:"must_have" yaml:"must_have"`
	NiceToHave []Requirement `json:"nice_to_have" yaml:"nice_to_have"`
}

// Validate rejects sets that cannot be compared.
func (s *RequirementSet) Validate() error {
	if s == nil {
		return fmt.Errorf("requirement set is required")
	}

	if len(s.MustHave) == 0 && len(s.NiceToHave) == 0 {
		return fmt.Errorf("requirement set has no requirements")
	}

	check := func(list []Requirement, label string) error {
		for i, req := range list {
			if strings.TrimSpace(req.Text) == "" {
				return fmt.Errorf("%s[%d] has empty text", label, i)
			}
			if !req.Kind.Valid() {
				return fmt.Errorf("%s[%d] has unknown kind %q", label, i, req.Kind)
			}
		}
		return nil
	}

	if err := check(s.MustHave, "must_have"); err != nil {
		return err
	}
	return check(s.NiceToHave, "nice_to_have")
}
