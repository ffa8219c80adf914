// Package geoid models the hierarchical census geographic identifier used as
// the join key throughout the pipeline: 2-digit state + 3-digit county +
// 6-digit tract + 1-digit block group = 12 characters.
package geoid

import (
	"github.com/rotisserie/eris"
)

// Component widths within a block-group GEOID.
const (
	StateWidth      = 2
	CountyWidth     = 3
	TractWidth      = 6
	BlockGroupWidth = 1

	// Length is the full block-group GEOID length.
	Length = StateWidth + CountyWidth + TractWidth + BlockGroupWidth

	// CountyLength is the state+county prefix length (a county FIPS).
	CountyLength = StateWidth + CountyWidth

	// TractLength is the state+county+tract prefix length (a tract FIPS).
	TractLength = StateWidth + CountyWidth + TractWidth
)

// GEOID is a validated 12-digit block-group identifier.
type GEOID string

// Parse builds a GEOID from its raw components, zero-padding each component
// independently. Padding the concatenated string instead would mask which
// component was short, so each piece is padded to its own width first.
func Parse(state, county, tract, blockGroup string) (GEOID, error) {
	s, err := padComponent(state, StateWidth)
	if err != nil {
		return "", eris.Wrapf(err, "geoid: state %q", state)
	}
	c, err := padComponent(county, CountyWidth)
	if err != nil {
		return "", eris.Wrapf(err, "geoid: county %q", county)
	}
	t, err := padComponent(tract, TractWidth)
	if err != nil {
		return "", eris.Wrapf(err, "geoid: tract %q", tract)
	}
	b, err := padComponent(blockGroup, BlockGroupWidth)
	if err != nil {
		return "", eris.Wrapf(err, "geoid: block group %q", blockGroup)
	}
	return GEOID(s + c + t + b), nil
}

// Normalize validates a pre-built identifier string. Used when reading GEOIDs
// back from cache artifacts, where they were written already concatenated.
func Normalize(raw string) (GEOID, error) {
	if len(raw) != Length {
		return "", eris.Errorf("geoid: %q has length %d, want %d", raw, len(raw), Length)
	}
	if !allDigits(raw) {
		return "", eris.Errorf("geoid: %q contains non-digit characters", raw)
	}
	return GEOID(raw), nil
}

// CountyOf returns the 5-character county FIPS prefix.
func (g GEOID) CountyOf() string {
	return string(g[:CountyLength])
}

// TractOf returns the 11-character tract FIPS prefix.
func (g GEOID) TractOf() string {
	return string(g[:TractLength])
}

// State returns the 2-character state FIPS prefix.
func (g GEOID) State() string {
	return string(g[:StateWidth])
}

func (g GEOID) String() string {
	return string(g)
}

// padComponent left-pads a digit string to the given width. A component wider
// than its field or containing non-digits is a malformed-record error.
func padComponent(raw string, width int) (string, error) {
	if raw == "" {
		return "", eris.New("empty component")
	}
	if len(raw) > width {
		return "", eris.Errorf("component wider than %d digits", width)
	}
	if !allDigits(raw) {
		return "", eris.New("component contains non-digit characters")
	}
	for len(raw) < width {
		raw = "0" + raw
	}
	return raw, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
