package classifier

import "github.com/zombar/aletheia/internal/lexicon"

const (
	StatusFlagged = "FLAGGED"
	StatusUnclear = "UNCLEAR"

	RiskCritical = "CRITICAL"
	RiskMinimal  = "MINIMAL"
)

// step is one (predicate, label) pair
type step struct {
	holds func(truth, risk float64) bool
	label string
}

// cascade picks the label of the first step whose predicate holds
type cascade struct {
	steps    []step
	fallback string
}

func newCascade(rules []lexicon.Rule, fallback string) cascade {
	c := cascade{steps: make([]step, 0, len(rules)), fallback: fallback}
	for _, r := range rules {
		c.steps = append(c.steps, step{holds: r.Holds, label: r.Label})
	}
	return c
}

func (c cascade) pick(truth, risk float64) string {
	for _, s := range c.steps {
		if s.holds(truth, risk) {
			return s.label
		}
	}
	return c.fallback
}
