// Package model defines the data types shared across the enrichment pipeline:
// block-group records, the enriched dataset, growth tiers, and the sentinel
// conventions of the upstream census sources.
package model

import "github.com/wasatch-geo/blocktrends/internal/geoid"

// SuppressedValue is the out-of-band constant the Census Bureau uses for
// suppressed or unavailable estimates. It is repaired to nil at ingest and
// must never survive into arithmetic.
const SuppressedValue = -666666666

// DisplayNA is the small-negative display sentinel written for nil currency
// fields (median home value, household income) in serialized artifacts. It
// exists only for downstream "N/A" rendering and is distinct from
// SuppressedValue: one marks upstream suppression, the other display-time
// absence.
const DisplayNA = -1

// BlockGroupRecord is one census block group: its identifier, coordinates,
// raw measures, and the fields derived during enrichment. Raw measures are
// pointers because any of them can be absent in the source.
type BlockGroupRecord struct {
	GEOID geoid.GEOID `json:"geoid"`
	Name  string      `json:"name,omitempty"`

	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`

	// Housing stock by year built (ACS table B25034).
	TotalHousingUnits *float64 `json:"total_housing_units"`
	Built2020Plus     *float64 `json:"built_2020_plus"`
	Built2010to2019   *float64 `json:"built_2010_2019"`
	Built2000to2009   *float64 `json:"built_2000_2009"`

	// Units in structure (ACS table B25024).
	Units10to19 *float64 `json:"units_10_19"`
	Units20to49 *float64 `json:"units_20_49"`
	Units50Plus *float64 `json:"units_50_plus"`

	// Tenure (ACS table B25003).
	OwnerOccupied  *float64 `json:"owner_occupied"`
	RenterOccupied *float64 `json:"renter_occupied"`

	// Demographics.
	TotalPop           *float64 `json:"total_pop"`
	MedianHHIncome     *float64 `json:"median_hh_income"`
	MedianHomeValue    *float64 `json:"median_home_value"`
	Bachelors          *float64 `json:"bachelors"`
	Masters            *float64 `json:"masters"`
	ProfessionalDegree *float64 `json:"professional_degree"`
	Doctorate          *float64 `json:"doctorate"`

	// Derived during enrichment.
	CountyFIPS     string   `json:"county_fips,omitempty"`
	CountyName     string   `json:"county_name,omitempty"`
	TractFIPS      string   `json:"tract_fips,omitempty"`
	PctNewHousing  float64  `json:"pct_new_housing"`
	PctRenter      float64  `json:"pct_renter"`
	PctCollege     float64  `json:"pct_college"`
	Units10Plus    float64  `json:"units_10_plus"`
	TierLabel      string   `json:"tier_label,omitempty"`
	TierColor      string   `json:"tier_color,omitempty"`
	StateAvgPctNew float64  `json:"state_avg_pct_new"`
	MobilityScore  *float64 `json:"mobility_score"`
}

// HasCoordinates reports whether both coordinates are present.
func (r *BlockGroupRecord) HasCoordinates() bool {
	return r.Lat != nil && r.Lon != nil
}

// Dataset is the enriched output of a pipeline run: coordinate-complete
// records plus the population-weighted state benchmark. It is a derived
// artifact, rebuilt from sources on every run.
type Dataset struct {
	Records        []BlockGroupRecord `json:"records"`
	StateAvgPctNew float64            `json:"state_avg_pct_new"`
}

// Float returns a pointer to v. Shorthand for building optional measures.
func Float(v float64) *float64 {
	return &v
}

// Zero coalesces a missing numeric to zero. Applied only where the engine
// deliberately treats absence as zero before arithmetic; tier classification
// and display formatting keep the nil distinction.
func Zero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
