// Package store persists pipeline outputs: the enriched CSV artifact, the
// Excel export, and the SQLite run journal.
package store

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/wasatch-geo/blocktrends/internal/fetcher"
	"github.com/wasatch-geo/blocktrends/internal/geoid"
	"github.com/wasatch-geo/blocktrends/internal/model"
)

// datasetColumns is the enriched CSV schema, in publication order.
var datasetColumns = []string{
	"geoid", "name", "county_fips", "county_name", "tract_fips",
	"lat", "lon",
	"total_housing_units", "built_2020_plus", "built_2010_2019", "built_2000_2009",
	"units_10_19", "units_20_49", "units_50_plus", "units_10_plus",
	"owner_occupied", "renter_occupied", "total_pop",
	"median_hh_income", "median_home_value",
	"bachelors", "masters", "professional_degree", "doctorate",
	"pct_new_housing", "pct_renter", "pct_college",
	"tier_label", "tier_color", "state_avg_pct_new", "mobility_score",
}

// currencyColumns are serialized with the display sentinel when absent; every
// other optional column serializes to an empty cell.
var currencyColumns = map[string]bool{
	"median_hh_income":  true,
	"median_home_value": true,
}

// WriteDatasetCSV writes the enriched dataset artifact. Absent currency
// medians become the display sentinel; all other absent values become empty
// cells.
func WriteDatasetCSV(path string, ds *model.Dataset) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "store: mkdir %s", filepath.Dir(path))
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "store: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(datasetColumns); err != nil {
		return eris.Wrap(err, "store: write header")
	}
	for i := range ds.Records {
		if err := w.Write(datasetRow(&ds.Records[i])); err != nil {
			return eris.Wrapf(err, "store: write row %d", i)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "store: flush")
	}

	zap.L().Info("store: wrote enriched dataset",
		zap.String("path", path),
		zap.Int("rows", len(ds.Records)),
	)
	return nil
}

func datasetRow(rec *model.BlockGroupRecord) []string {
	row := make([]string, 0, len(datasetColumns))
	for _, col := range datasetColumns {
		row = append(row, datasetCell(rec, col))
	}
	return row
}

func datasetCell(rec *model.BlockGroupRecord, col string) string {
	switch col {
	case "geoid":
		return string(rec.GEOID)
	case "name":
		return rec.Name
	case "county_fips":
		return rec.CountyFIPS
	case "county_name":
		return rec.CountyName
	case "tract_fips":
		return rec.TractFIPS
	case "lat":
		return formatOptionalCell(rec.Lat, false)
	case "lon":
		return formatOptionalCell(rec.Lon, false)
	case "total_housing_units":
		return formatOptionalCell(rec.TotalHousingUnits, false)
	case "built_2020_plus":
		return formatOptionalCell(rec.Built2020Plus, false)
	case "built_2010_2019":
		return formatOptionalCell(rec.Built2010to2019, false)
	case "built_2000_2009":
		return formatOptionalCell(rec.Built2000to2009, false)
	case "units_10_19":
		return formatOptionalCell(rec.Units10to19, false)
	case "units_20_49":
		return formatOptionalCell(rec.Units20to49, false)
	case "units_50_plus":
		return formatOptionalCell(rec.Units50Plus, false)
	case "units_10_plus":
		return formatFloat(rec.Units10Plus)
	case "owner_occupied":
		return formatOptionalCell(rec.OwnerOccupied, false)
	case "renter_occupied":
		return formatOptionalCell(rec.RenterOccupied, false)
	case "total_pop":
		return formatOptionalCell(rec.TotalPop, false)
	case "median_hh_income":
		return formatOptionalCell(rec.MedianHHIncome, true)
	case "median_home_value":
		return formatOptionalCell(rec.MedianHomeValue, true)
	case "bachelors":
		return formatOptionalCell(rec.Bachelors, false)
	case "masters":
		return formatOptionalCell(rec.Masters, false)
	case "professional_degree":
		return formatOptionalCell(rec.ProfessionalDegree, false)
	case "doctorate":
		return formatOptionalCell(rec.Doctorate, false)
	case "pct_new_housing":
		return formatFloat(rec.PctNewHousing)
	case "pct_renter":
		return formatFloat(rec.PctRenter)
	case "pct_college":
		return formatFloat(rec.PctCollege)
	case "tier_label":
		return rec.TierLabel
	case "tier_color":
		return rec.TierColor
	case "state_avg_pct_new":
		return formatFloat(rec.StateAvgPctNew)
	case "mobility_score":
		return formatOptionalCell(rec.MobilityScore, false)
	default:
		return ""
	}
}

// formatOptionalCell serializes an optional value. currency fields carry the
// display sentinel when absent, everything else an empty cell. The sentinel
// exists only here and in render; the in-memory model never holds it.
func formatOptionalCell(v *float64, currency bool) string {
	if v == nil {
		if currency {
			return strconv.Itoa(model.DisplayNA)
		}
		return ""
	}
	return formatFloat(*v)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ReadDatasetCSV loads a previously written artifact, reversing the display
// sentinel back to absence. Used by the serve, validate, and export commands
// so they never recompute the pipeline.
func ReadDatasetCSV(ctx context.Context, path string) (*model.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: open %s", path)
	}
	defer f.Close()

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	header, ok := <-headerCh
	if !ok {
		for range rowCh {
		}
		if err := <-errCh; err != nil {
			return nil, eris.Wrapf(err, "store: read %s", path)
		}
		return nil, eris.Errorf("store: %s is empty", path)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	if _, ok := idx["geoid"]; !ok {
		for range rowCh {
		}
		<-errCh
		return nil, eris.Errorf("store: %s has no geoid column", path)
	}

	cell := func(row []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	ds := &model.Dataset{}
	for row := range rowCh {
		id, err := geoid.Normalize(cell(row, "geoid"))
		if err != nil {
			for range rowCh {
			}
			<-errCh
			return nil, eris.Wrapf(err, "store: %s", path)
		}
		rec := model.BlockGroupRecord{
			GEOID:      id,
			Name:       cell(row, "name"),
			CountyFIPS: cell(row, "county_fips"),
			CountyName: cell(row, "county_name"),
			TractFIPS:  cell(row, "tract_fips"),
			TierLabel:  cell(row, "tier_label"),
			TierColor:  cell(row, "tier_color"),
		}
		rec.Lat = parseOptionalCell(cell(row, "lat"), false)
		rec.Lon = parseOptionalCell(cell(row, "lon"), false)
		rec.TotalHousingUnits = parseOptionalCell(cell(row, "total_housing_units"), false)
		rec.Built2020Plus = parseOptionalCell(cell(row, "built_2020_plus"), false)
		rec.Built2010to2019 = parseOptionalCell(cell(row, "built_2010_2019"), false)
		rec.Built2000to2009 = parseOptionalCell(cell(row, "built_2000_2009"), false)
		rec.Units10to19 = parseOptionalCell(cell(row, "units_10_19"), false)
		rec.Units20to49 = parseOptionalCell(cell(row, "units_20_49"), false)
		rec.Units50Plus = parseOptionalCell(cell(row, "units_50_plus"), false)
		rec.OwnerOccupied = parseOptionalCell(cell(row, "owner_occupied"), false)
		rec.RenterOccupied = parseOptionalCell(cell(row, "renter_occupied"), false)
		rec.TotalPop = parseOptionalCell(cell(row, "total_pop"), false)
		rec.MedianHHIncome = parseOptionalCell(cell(row, "median_hh_income"), true)
		rec.MedianHomeValue = parseOptionalCell(cell(row, "median_home_value"), true)
		rec.Bachelors = parseOptionalCell(cell(row, "bachelors"), false)
		rec.Masters = parseOptionalCell(cell(row, "masters"), false)
		rec.ProfessionalDegree = parseOptionalCell(cell(row, "professional_degree"), false)
		rec.Doctorate = parseOptionalCell(cell(row, "doctorate"), false)
		rec.MobilityScore = parseOptionalCell(cell(row, "mobility_score"), false)
		rec.Units10Plus = parseFloatCell(cell(row, "units_10_plus"))
		rec.PctNewHousing = parseFloatCell(cell(row, "pct_new_housing"))
		rec.PctRenter = parseFloatCell(cell(row, "pct_renter"))
		rec.PctCollege = parseFloatCell(cell(row, "pct_college"))
		rec.StateAvgPctNew = parseFloatCell(cell(row, "state_avg_pct_new"))

		ds.Records = append(ds.Records, rec)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrapf(err, "store: read %s", path)
	}

	if len(ds.Records) > 0 {
		ds.StateAvgPctNew = ds.Records[0].StateAvgPctNew
	}
	return ds, nil
}

func parseOptionalCell(raw string, currency bool) *float64 {
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	if currency && v == float64(model.DisplayNA) {
		return nil
	}
	return model.Float(v)
}

func parseFloatCell(raw string) float64 {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}
