package model

import (
	"math"

	"github.com/rotisserie/eris"
)

// NoDataLabel and NoDataColor are the reserved classification for records
// whose growth ratio is null or negative.
const (
	NoDataLabel = "No data"
	NoDataColor = "#CCCCCC"
)

// Tier is one labeled, colored bucket in the growth classification.
// Its range is half-open [Min, Max), except the final tier of a set,
// which is closed so a ratio of exactly 1.0 is captured.
type Tier struct {
	Label string  `json:"label" mapstructure:"label"`
	Min   float64 `json:"min" mapstructure:"min"`
	Max   float64 `json:"max" mapstructure:"max"`
	Color string  `json:"color" mapstructure:"color"`
}

// TierSet is the ordered, exhaustive partition of [0,1] used to classify
// the fraction of recently built housing.
type TierSet []Tier

const tierEpsilon = 1e-9

// Validate checks that the set covers [0,1] exactly: non-empty, ordered,
// contiguous, first min 0, last max 1. A failing set is a fatal
// configuration error caught at startup, before any data is fetched.
func (ts TierSet) Validate() error {
	if len(ts) == 0 {
		return eris.New("tiers: empty tier set")
	}
	if math.Abs(ts[0].Min) > tierEpsilon {
		return eris.Errorf("tiers: first tier starts at %g, want 0", ts[0].Min)
	}
	if math.Abs(ts[len(ts)-1].Max-1) > tierEpsilon {
		return eris.Errorf("tiers: last tier ends at %g, want 1", ts[len(ts)-1].Max)
	}
	for i, t := range ts {
		if t.Label == "" {
			return eris.Errorf("tiers: tier %d has no label", i)
		}
		if t.Color == "" {
			return eris.Errorf("tiers: tier %q has no color", t.Label)
		}
		if t.Max <= t.Min {
			return eris.Errorf("tiers: tier %q has empty range [%g, %g)", t.Label, t.Min, t.Max)
		}
		if i > 0 && math.Abs(t.Min-ts[i-1].Max) > tierEpsilon {
			return eris.Errorf("tiers: gap between %q (max %g) and %q (min %g)",
				ts[i-1].Label, ts[i-1].Max, t.Label, t.Min)
		}
	}
	return nil
}

// Classify maps a growth ratio to its (label, color). Null and negative
// ratios classify to the reserved no-data tier. A finite non-negative ratio
// that matches no tier (cannot happen with a validated set, but handled
// defensively) also falls back to no-data rather than failing.
func (ts TierSet) Classify(pctNew *float64) (string, string) {
	if pctNew == nil || *pctNew < 0 || math.IsNaN(*pctNew) {
		return NoDataLabel, NoDataColor
	}
	v := *pctNew
	for i, t := range ts {
		if i == len(ts)-1 {
			// Closed upper bound on the final tier so 1.0 lands here.
			if v >= t.Min && v <= t.Max {
				return t.Label, t.Color
			}
		} else if v >= t.Min && v < t.Max {
			return t.Label, t.Color
		}
	}
	return NoDataLabel, NoDataColor
}

// Labels returns the tier labels in configured order.
func (ts TierSet) Labels() []string {
	labels := make([]string, len(ts))
	for i, t := range ts {
		labels[i] = t.Label
	}
	return labels
}

// DefaultTiers returns the stock five-tier classification of percent of
// housing stock built since 2020, ColorBrewer blues from light to dark.
func DefaultTiers() TierSet {
	return TierSet{
		{Label: "Minimal new construction", Min: 0.00, Max: 0.01, Color: "#D9D9D9"},
		{Label: "Some new construction", Min: 0.01, Max: 0.03, Color: "#A6BDDB"},
		{Label: "Moderate growth", Min: 0.03, Max: 0.07, Color: "#3690C0"},
		{Label: "High growth", Min: 0.07, Max: 0.15, Color: "#0570B0"},
		{Label: "Construction hotspot", Min: 0.15, Max: 1.00, Color: "#034E7B"},
	}
}
