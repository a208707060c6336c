package types

// Contribution is one feature's signed share of a score. Value holds the
// feature's value in the scored vector (float64 or string) or nil when the
// feature was withheld.
type Contribution struct {
	Feature      string  `json:"feature"`
	Value        any     `json:"value,omitempty"`
	Contribution float64 `json:"contribution"`
}

type ExplanationReport struct {
	Summary     string         `json:"summary"`
	Headline    *Contribution  `json:"headline,omitempty"`
	TopFeatures []Contribution `json:"top_features"`
	TopNegative []Contribution `json:"top_negative"`
	TopPositive []Contribution `json:"top_positive"`
}
