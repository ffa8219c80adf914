package enrich

import (
	"fmt"
	"math"

	"github.com/wasatch-geo/blocktrends/internal/geoid"
	"github.com/wasatch-geo/blocktrends/internal/model"
)

// ValidateDataset runs the structural quality checks on an enriched dataset
// and returns one finding per violation. An empty slice means the dataset is
// publishable. Findings are descriptive, never fatal: the caller decides
// whether to treat them as errors.
func ValidateDataset(ds *model.Dataset, tiers model.TierSet) []string {
	var findings []string
	report := func(format string, args ...any) {
		findings = append(findings, fmt.Sprintf(format, args...))
	}

	if ds == nil || len(ds.Records) == 0 {
		report("dataset has no records")
		return findings
	}

	validLabels := make(map[string]bool, len(tiers)+1)
	for _, lbl := range tiers.Labels() {
		validLabels[lbl] = true
	}
	validLabels[model.NoDataLabel] = true

	seen := make(map[string]bool, len(ds.Records))
	var unknownCounties int

	for i := range ds.Records {
		rec := &ds.Records[i]
		id := string(rec.GEOID)

		if _, err := geoid.Normalize(id); err != nil {
			report("row %d: %v", i, err)
			continue
		}
		if seen[id] {
			report("row %d: duplicate geoid %s", i, id)
		}
		seen[id] = true

		if !rec.HasCoordinates() {
			report("geoid %s: missing coordinates", id)
		} else if math.Abs(*rec.Lat) > 90 || math.Abs(*rec.Lon) > 180 {
			report("geoid %s: coordinates out of range (%f, %f)", id, *rec.Lat, *rec.Lon)
		}

		for _, f := range []struct {
			name  string
			value float64
		}{
			{"pct_new_housing", rec.PctNewHousing},
			{"pct_renter", rec.PctRenter},
			{"pct_college", rec.PctCollege},
		} {
			if f.value < 0 || f.value > 1 || math.IsNaN(f.value) {
				report("geoid %s: %s=%f outside [0,1]", id, f.name, f.value)
			}
		}

		if !validLabels[rec.TierLabel] {
			report("geoid %s: unrecognized tier label %q", id, rec.TierLabel)
		}
		if rec.TierColor == "" {
			report("geoid %s: empty tier color", id)
		}

		if rec.CountyName == "" {
			report("geoid %s: empty county name", id)
		} else if rec.CountyName == UnknownCountyName {
			unknownCounties++
		}

		for _, c := range []struct {
			name  string
			value *float64
		}{
			{"total_housing_units", rec.TotalHousingUnits},
			{"built_2020_plus", rec.Built2020Plus},
			{"owner_occupied", rec.OwnerOccupied},
			{"renter_occupied", rec.RenterOccupied},
			{"total_pop", rec.TotalPop},
		} {
			if c.value != nil && *c.value < 0 {
				report("geoid %s: negative count %s=%f", id, c.name, *c.value)
			}
		}

		if rec.StateAvgPctNew != ds.StateAvgPctNew {
			report("geoid %s: benchmark %f disagrees with dataset %f",
				id, rec.StateAvgPctNew, ds.StateAvgPctNew)
		}
	}

	if ds.StateAvgPctNew < 0 || ds.StateAvgPctNew > 1 || math.IsNaN(ds.StateAvgPctNew) {
		report("state benchmark %f outside [0,1]", ds.StateAvgPctNew)
	}
	if unknownCounties > 0 {
		report("%d records carry %q", unknownCounties, UnknownCountyName)
	}

	return findings
}
