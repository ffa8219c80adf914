package census

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/wasatch-geo/blocktrends/internal/fetcher"
	"github.com/wasatch-geo/blocktrends/internal/geoid"
	"github.com/wasatch-geo/blocktrends/internal/model"
)

// primaryColumns is the cache/ingest schema of the primary table: identifier,
// name, optional coordinates, then every raw measure by internal name.
// Missing values are empty cells; the suppression sentinel never appears here
// because it is repaired at ingest.
var primaryColumns = []string{
	"geoid", "name", "lat", "lon",
	"total_housing_units", "built_2020_plus", "built_2010_2019", "built_2000_2009",
	"units_10_19", "units_20_49", "units_50_plus",
	"median_home_value", "owner_occupied", "renter_occupied",
	"total_pop", "median_hh_income",
	"bachelors", "masters", "professional_degree", "doctorate",
}

// WritePrimaryCSV persists the primary table as a CSV cache artifact.
func WritePrimaryCSV(path string, records []model.BlockGroupRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "census: create cache dir")
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "census: create primary csv")
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(primaryColumns); err != nil {
		return eris.Wrap(err, "census: write header")
	}

	for i := range records {
		rec := &records[i]
		row := make([]string, 0, len(primaryColumns))
		row = append(row, rec.GEOID.String(), rec.Name, formatOptional(rec.Lat), formatOptional(rec.Lon))
		for _, col := range primaryColumns[4:] {
			row = append(row, formatOptional(measure(rec, col)))
		}
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "census: write row")
		}
	}

	w.Flush()
	return eris.Wrap(w.Error(), "census: flush primary csv")
}

// ReadPrimaryCSV loads a primary table CSV, either the ACS cache artifact or
// a locally supplied primary file. Rows may or may not carry coordinates.
// A malformed GEOID is fatal, matching the API ingest path.
func ReadPrimaryCSV(ctx context.Context, path string) ([]model.BlockGroupRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "census: open primary csv")
	}
	defer f.Close() //nolint:errcheck

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	header := <-headerCh
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}
	if _, ok := col["geoid"]; !ok {
		// Drain before returning so the stream goroutine exits.
		for range rowCh {
		}
		<-errCh
		return nil, eris.Errorf("census: %s has no geoid column", path)
	}

	cell := func(row []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return row[idx]
	}

	var records []model.BlockGroupRecord
	for row := range rowCh {
		id, err := geoid.Normalize(cell(row, "geoid"))
		if err != nil {
			for range rowCh {
			}
			<-errCh
			return nil, eris.Wrap(err, "census: malformed primary row")
		}

		rec := model.BlockGroupRecord{
			GEOID: id,
			Name:  cell(row, "name"),
			Lat:   parseMeasure(cell(row, "lat")),
			Lon:   parseMeasure(cell(row, "lon")),
		}
		for _, name := range primaryColumns[4:] {
			setMeasure(&rec, name, parseMeasure(cell(row, name)))
		}
		records = append(records, rec)
	}

	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "census: read primary csv")
	}
	return records, nil
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}
