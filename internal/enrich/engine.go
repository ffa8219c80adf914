// Package enrich implements the data enrichment engine: multi-source joins,
// derived-field computation, growth tier classification, the state benchmark,
// and post-run data-quality validation.
package enrich

import (
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/wasatch-geo/blocktrends/internal/census"
	"github.com/wasatch-geo/blocktrends/internal/geoid"
	"github.com/wasatch-geo/blocktrends/internal/model"
)

// UnknownCountyName is the reserved sentinel for an unresolved county lookup.
// Distinct from every real county name; a run producing any is flagged for
// investigation before publication.
const UnknownCountyName = "Unknown County"

// Inputs are the per-run source tables. Primary is authoritative and
// required; a nil Centroids or Mobility map means that optional source was
// absent for the run. Counties is required but may come from the fallback.
type Inputs struct {
	Primary   []model.BlockGroupRecord
	Centroids map[geoid.GEOID]census.Centroid
	Counties  map[string]string
	Mobility  map[string]float64
}

// Options configures an engine.
type Options struct {
	Tiers model.TierSet
	// MobilityFloor is the tract match fraction below which the mobility
	// join is flagged as a data-quality warning. Zero disables the check.
	MobilityFloor float64
}

// Report carries the degradation counts of a run. Every anomaly short of a
// fatal error lands here so callers and tests can detect degraded output
// without the run failing.
type Report struct {
	RowsIn               int      `json:"rows_in"`
	RowsOut              int      `json:"rows_out"`
	DroppedNoCentroid    int      `json:"dropped_no_centroid"`
	DroppedNoCoordinates int      `json:"dropped_no_coordinates"`
	UnknownCounties      int      `json:"unknown_counties"`
	SentinelsRepaired    int      `json:"sentinels_repaired"`
	MobilityMatched      int      `json:"mobility_matched"`
	MobilityTotal        int      `json:"mobility_total"`
	Warnings             []string `json:"warnings,omitempty"`
}

func (r *Report) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.Warnings = append(r.Warnings, msg)
	zap.L().Warn("enrich: " + msg)
}

// Engine merges the source tables into the enriched dataset. It is a pure
// function of (inputs, options): no process-wide state, safe to rerun.
type Engine struct {
	opts Options
}

// New validates the tier configuration and returns an engine. An invalid
// tier set is a fatal configuration error.
func New(opts Options) (*Engine, error) {
	if err := opts.Tiers.Validate(); err != nil {
		return nil, eris.Wrap(err, "enrich: tier configuration")
	}
	return &Engine{opts: opts}, nil
}

// Run executes the enrichment steps in dependency order and returns the
// coordinate-complete dataset, the run report, and a fatal error only when
// the primary input is unusable.
func (e *Engine) Run(in Inputs) (*model.Dataset, *Report, error) {
	log := zap.L().With(zap.String("component", "enrich.engine"))
	report := &Report{RowsIn: len(in.Primary)}

	if len(in.Primary) == 0 {
		return nil, nil, eris.New("enrich: primary table is empty")
	}
	if len(in.Counties) == 0 {
		return nil, nil, eris.New("enrich: county lookup is empty")
	}

	// Work on a copy; the engine never mutates its inputs.
	records := make([]model.BlockGroupRecord, len(in.Primary))
	copy(records, in.Primary)

	// Suppression sentinels are repaired at ingest; repeat defensively here
	// so no sentinel can reach the arithmetic below regardless of source.
	report.SentinelsRepaired = repairSentinels(records)
	if report.SentinelsRepaired > 0 {
		report.warnf("%d suppressed sentinel values repaired post-ingest", report.SentinelsRepaired)
	}

	// Step 1: coordinate join. Skipped entirely when the primary table
	// already carries coordinates, so rerunning on enriched output is a
	// row-count no-op.
	if tableHasCoordinates(records) {
		log.Info("primary table already carries coordinates, skipping centroid join")
	} else if in.Centroids != nil {
		joined := records[:0]
		for _, rec := range records {
			c, ok := in.Centroids[rec.GEOID]
			if !ok {
				report.DroppedNoCentroid++
				continue
			}
			rec.Lat = model.Float(c.Lat)
			rec.Lon = model.Float(c.Lon)
			joined = append(joined, rec)
		}
		records = joined
		if report.DroppedNoCentroid > 0 {
			// Deliberate inner-join policy: a record that cannot be placed
			// on the map contributes nothing downstream.
			report.warnf("centroid join dropped %d of %d rows with no match",
				report.DroppedNoCentroid, report.RowsIn)
		}
	}

	// Step 2: county enrichment.
	for i := range records {
		rec := &records[i]
		rec.CountyFIPS = rec.GEOID.CountyOf()
		name, ok := in.Counties[rec.CountyFIPS]
		if !ok {
			name = UnknownCountyName
			report.UnknownCounties++
		}
		rec.CountyName = name
	}
	if report.UnknownCounties > 0 {
		report.warnf("%d rows mapped to %q", report.UnknownCounties, UnknownCountyName)
	}

	// Step 3: derived ratios. Missing inputs coalesce to zero so partial
	// records still classify instead of becoming no-data.
	for i := range records {
		rec := &records[i]
		rec.PctNewHousing = ratio(model.Zero(rec.Built2020Plus), model.Zero(rec.TotalHousingUnits))
		rec.PctRenter = ratio(model.Zero(rec.RenterOccupied),
			model.Zero(rec.OwnerOccupied)+model.Zero(rec.RenterOccupied))
		college := model.Zero(rec.Bachelors) + model.Zero(rec.Masters) +
			model.Zero(rec.ProfessionalDegree) + model.Zero(rec.Doctorate)
		rec.PctCollege = ratio(college, model.Zero(rec.TotalPop))
		rec.Units10Plus = model.Zero(rec.Units10to19) + model.Zero(rec.Units20to49) +
			model.Zero(rec.Units50Plus)
	}

	// Step 4: growth tier classification.
	for i := range records {
		rec := &records[i]
		rec.TierLabel, rec.TierColor = e.opts.Tiers.Classify(&rec.PctNewHousing)
	}

	// Step 5: state benchmark, unit-weighted and broadcast to every record.
	var totalNew, totalUnits float64
	for i := range records {
		totalNew += model.Zero(records[i].Built2020Plus)
		totalUnits += model.Zero(records[i].TotalHousingUnits)
	}
	benchmark := ratio(totalNew, totalUnits)
	for i := range records {
		records[i].StateAvgPctNew = benchmark
	}
	log.Info("computed state benchmark", zap.Float64("pct_new", benchmark))

	// Step 6: mobility join, many-to-one on the tract prefix. Sibling block
	// groups of one tract share a score; unmatched rows keep a nil score.
	for i := range records {
		records[i].TractFIPS = records[i].GEOID.TractOf()
	}
	if in.Mobility != nil {
		report.MobilityTotal = len(records)
		for i := range records {
			rec := &records[i]
			if score, ok := in.Mobility[rec.TractFIPS]; ok {
				rec.MobilityScore = model.Float(score)
				report.MobilityMatched++
			}
		}
		fraction := ratio(float64(report.MobilityMatched), float64(report.MobilityTotal))
		log.Info("mobility join",
			zap.Int("matched", report.MobilityMatched),
			zap.Int("total", report.MobilityTotal),
			zap.Float64("fraction", fraction),
		)
		if e.opts.MobilityFloor > 0 && fraction < e.opts.MobilityFloor {
			report.warnf("mobility match fraction %.1f%% below floor %.1f%%",
				fraction*100, e.opts.MobilityFloor*100)
		}
	}

	// Step 8: coordinate completeness gate. The output is guaranteed
	// coordinate-complete.
	final := records[:0]
	for _, rec := range records {
		if !rec.HasCoordinates() {
			report.DroppedNoCoordinates++
			continue
		}
		final = append(final, rec)
	}
	records = final
	if report.DroppedNoCoordinates > 0 {
		report.warnf("dropped %d rows still missing coordinates", report.DroppedNoCoordinates)
	}

	report.RowsOut = len(records)
	log.Info("enrichment complete",
		zap.Int("rows_in", report.RowsIn),
		zap.Int("rows_out", report.RowsOut),
		zap.Int("warnings", len(report.Warnings)),
	)

	return &model.Dataset{Records: records, StateAvgPctNew: benchmark}, report, nil
}

// ratio divides with the zero-denominator policy: a unit with no denominator
// trivially has a zero fraction, never NaN or an error.
func ratio(num, den float64) float64 {
	if den > 0 {
		return num / den
	}
	return 0.0
}

// tableHasCoordinates reports whether the primary table carries coordinates.
func tableHasCoordinates(records []model.BlockGroupRecord) bool {
	for i := range records {
		if records[i].HasCoordinates() {
			return true
		}
	}
	return false
}

// repairSentinels rewrites any surviving suppression sentinel to nil and
// returns the count of repaired fields.
func repairSentinels(records []model.BlockGroupRecord) int {
	var repaired int
	for i := range records {
		rec := &records[i]
		for _, p := range []**float64{
			&rec.TotalHousingUnits, &rec.Built2020Plus, &rec.Built2010to2019, &rec.Built2000to2009,
			&rec.Units10to19, &rec.Units20to49, &rec.Units50Plus,
			&rec.OwnerOccupied, &rec.RenterOccupied,
			&rec.TotalPop, &rec.MedianHHIncome, &rec.MedianHomeValue,
			&rec.Bachelors, &rec.Masters, &rec.ProfessionalDegree, &rec.Doctorate,
		} {
			if *p != nil && **p == model.SuppressedValue {
				*p = nil
				repaired++
			}
		}
	}
	return repaired
}
