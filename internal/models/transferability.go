package models

type RampUp string

const (
	RampUpWeeks           RampUp = "2-4 weeks"
	RampUpMonths          RampUp = "1-2 months"
	RampUpQuarter         RampUp = "3-6 months"
	RampUpHalfYear        RampUp = "6-12 months"
	RampUpYear            RampUp = "12+ months"
	RampUpNotTransferable RampUp = "not transferable"
	RampUpUnknown         RampUp = "unknown"
)

var rampUps = []RampUp{
	RampUpWeeks, RampUpMonths, RampUpQuarter, RampUpHalfYear, RampUpYear, RampUpNotTransferable, RampUpUnknown,
}

// RampUps lists the accepted ramp-up categories in ascending order of effort.
func RampUps() []RampUp {
	out := make([]RampUp, len(rampUps))
	copy(out, rampUps)
	return out
}

// TransferabilityAssessment rates how readily existing skills cover one missing requirement.
// Score is always within [0, 1].
type TransferabilityAssessment struct {
	Requirement   string   `json:"requirement"`
	Priority      Priority `json:"priority"`
	Score         float64  `json:"score"`
	Reasoning     string   `json:"reasoning"`
	RampUp        RampUp   `json:"ramp_up_estimate"`
	ClosestSkills []string `json:"closest_skills,omitempty"`
	SeniorUplift  bool     `json:"senior_uplift,omitempty"`
	Attempts      int      `json:"attempts"`
	Degraded      bool     `json:"degraded,omitempty"`
}
