package store

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/wasatch-geo/blocktrends/internal/model"
)

// WriteDatasetXLSX exports the enriched dataset as an Excel workbook with a
// data sheet and a per-county summary sheet. Cell semantics match the CSV
// artifact: currency medians carry the display sentinel when absent,
// everything else an empty cell.
func WriteDatasetXLSX(path string, ds *model.Dataset) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "store: mkdir %s", filepath.Dir(path))
	}

	f := xlsx.NewFile()
	if err := writeDataSheet(f, ds); err != nil {
		return err
	}
	if err := writeSummarySheet(f, ds); err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "store: save %s", path)
	}

	zap.L().Info("store: wrote excel export",
		zap.String("path", path),
		zap.Int("rows", len(ds.Records)),
	)
	return nil
}

func writeDataSheet(f *xlsx.File, ds *model.Dataset) error {
	sheet, err := f.AddSheet("Block Groups")
	if err != nil {
		return eris.Wrap(err, "store: add data sheet")
	}

	header := sheet.AddRow()
	for _, col := range datasetColumns {
		header.AddCell().SetString(col)
	}

	// Identifier columns stay text: a numeric cell would drop the leading
	// zeros FIPS codes depend on.
	textColumns := map[string]bool{
		"geoid": true, "name": true, "county_fips": true, "county_name": true,
		"tract_fips": true, "tier_label": true, "tier_color": true,
	}

	for i := range ds.Records {
		rec := &ds.Records[i]
		row := sheet.AddRow()
		for _, col := range datasetColumns {
			cell := row.AddCell()
			raw := datasetCell(rec, col)
			if raw == "" {
				continue
			}
			if v, err := strconv.ParseFloat(raw, 64); err == nil && !textColumns[col] {
				cell.SetFloat(v)
			} else {
				cell.SetString(raw)
			}
		}
	}
	return nil
}

func writeSummarySheet(f *xlsx.File, ds *model.Dataset) error {
	sheet, err := f.AddSheet("County Summary")
	if err != nil {
		return eris.Wrap(err, "store: add summary sheet")
	}

	header := sheet.AddRow()
	for _, col := range []string{
		"county_fips", "county_name", "block_groups",
		"total_housing_units", "built_2020_plus", "pct_new_housing",
	} {
		header.AddCell().SetString(col)
	}

	type countyAgg struct {
		fips, name      string
		rows            int
		units, newUnits float64
	}
	byCounty := map[string]*countyAgg{}
	var order []string
	for i := range ds.Records {
		rec := &ds.Records[i]
		agg, ok := byCounty[rec.CountyFIPS]
		if !ok {
			agg = &countyAgg{fips: rec.CountyFIPS, name: rec.CountyName}
			byCounty[rec.CountyFIPS] = agg
			order = append(order, rec.CountyFIPS)
		}
		agg.rows++
		agg.units += model.Zero(rec.TotalHousingUnits)
		agg.newUnits += model.Zero(rec.Built2020Plus)
	}

	for _, fips := range order {
		agg := byCounty[fips]
		row := sheet.AddRow()
		row.AddCell().SetString(agg.fips)
		row.AddCell().SetString(agg.name)
		row.AddCell().SetInt(agg.rows)
		row.AddCell().SetFloat(agg.units)
		row.AddCell().SetFloat(agg.newUnits)
		pct := 0.0
		if agg.units > 0 {
			pct = agg.newUnits / agg.units
		}
		row.AddCell().SetFloat(pct)
	}
	return nil
}
