// Package census implements the source adapters feeding the enrichment
// pipeline: ACS block-group statistics, gazetteer centroids, Opportunity
// Atlas mobility scores, county lookups, and boundary files. Every adapter
// is cache-fronted: an existing artifact at the cache path is returned
// verbatim; invalidation is deleting the file.
package census

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/wasatch-geo/blocktrends/internal/fetcher"
	"github.com/wasatch-geo/blocktrends/internal/geoid"
	"github.com/wasatch-geo/blocktrends/internal/model"
)

// acsVariable pairs a Census API variable code with its internal column name.
type acsVariable struct {
	Code string
	Name string
}

// acsVariables is the fixed ACS 5-Year variable set, in request order.
var acsVariables = []acsVariable{
	// Year structure built (table B25034)
	{"B25034_001E", "total_housing_units"},
	{"B25034_002E", "built_2020_plus"},
	{"B25034_003E", "built_2010_2019"},
	{"B25034_004E", "built_2000_2009"},
	// Units in structure (table B25024)
	{"B25024_008E", "units_10_19"},
	{"B25024_009E", "units_20_49"},
	{"B25024_010E", "units_50_plus"},
	// Median home value (table B25077)
	{"B25077_001E", "median_home_value"},
	// Tenure (table B25003)
	{"B25003_002E", "owner_occupied"},
	{"B25003_003E", "renter_occupied"},
	// Demographics
	{"B01003_001E", "total_pop"},
	{"B19013_001E", "median_hh_income"},
	{"B15003_022E", "bachelors"},
	{"B15003_023E", "masters"},
	{"B15003_024E", "professional_degree"},
	{"B15003_025E", "doctorate"},
}

// ACSOptions configures the primary statistics fetch.
type ACSOptions struct {
	Vintage   int
	StateFIPS string
	APIKey    string
	BaseURL   string // test override; defaults to the Census API
	CachePath string
}

const censusAPIBase = "https://api.census.gov/data"

// FetchACS loads the primary block-group statistics table. The cache artifact
// is returned verbatim when present; otherwise the Census API is queried for
// every block group in the state, the result is cached, and returned.
//
// This is the required source: any failure here, including a malformed GEOID
// in an API row, is fatal to the pipeline.
func FetchACS(ctx context.Context, f fetcher.Fetcher, opts ACSOptions) ([]model.BlockGroupRecord, error) {
	log := zap.L().With(zap.String("component", "census.acs"))

	if opts.CachePath != "" {
		if _, err := os.Stat(opts.CachePath); err == nil {
			log.Info("loading cached ACS data", zap.String("path", opts.CachePath))
			return ReadPrimaryCSV(ctx, opts.CachePath)
		}
	}

	base := opts.BaseURL
	if base == "" {
		base = censusAPIBase
	}

	codes := make([]string, len(acsVariables))
	for i, v := range acsVariables {
		codes[i] = v.Code
	}
	url := fmt.Sprintf(
		"%s/%d/acs/acs5?get=NAME,%s&for=block+group:*&in=state:%s&in=county:*&in=tract:*",
		base, opts.Vintage, strings.Join(codes, ","), opts.StateFIPS,
	)
	if opts.APIKey != "" {
		url += "&key=" + opts.APIKey
	}

	log.Info("fetching ACS data", zap.Int("vintage", opts.Vintage), zap.String("state", opts.StateFIPS))

	body, err := f.Download(ctx, url)
	if err != nil {
		return nil, eris.Wrap(err, "census: fetch ACS")
	}
	defer body.Close() //nolint:errcheck

	records, err := parseACSResponse(body)
	if err != nil {
		return nil, err
	}

	if opts.CachePath != "" {
		if err := WritePrimaryCSV(opts.CachePath, records); err != nil {
			return nil, eris.Wrap(err, "census: cache ACS data")
		}
		log.Info("cached ACS data", zap.String("path", opts.CachePath), zap.Int("rows", len(records)))
	}

	return records, nil
}

// parseACSResponse decodes the Census API's array-of-arrays JSON: the first
// row is the header, each following row one block group.
func parseACSResponse(r io.Reader) ([]model.BlockGroupRecord, error) {
	var rows [][]*string
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, eris.Wrap(err, "census: decode ACS response")
	}
	if len(rows) < 2 {
		return nil, eris.New("census: ACS response has no data rows")
	}

	header := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		if h != nil {
			header[*h] = i
		}
	}
	for _, geo := range []string{"state", "county", "tract", "block group"} {
		if _, ok := header[geo]; !ok {
			return nil, eris.Errorf("census: ACS response missing %q column", geo)
		}
	}

	cell := func(row []*string, col string) string {
		idx, ok := header[col]
		if !ok || idx >= len(row) || row[idx] == nil {
			return ""
		}
		return *row[idx]
	}

	records := make([]model.BlockGroupRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		id, err := geoid.Parse(
			cell(row, "state"), cell(row, "county"), cell(row, "tract"), cell(row, "block group"),
		)
		if err != nil {
			// The primary source is trusted to be well-formed; a malformed
			// row is an upstream data-integrity bug, not something to skip.
			return nil, eris.Wrap(err, "census: malformed ACS row")
		}

		rec := model.BlockGroupRecord{GEOID: id, Name: cell(row, "NAME")}
		for _, v := range acsVariables {
			setMeasure(&rec, v.Name, parseMeasure(cell(row, v.Code)))
		}
		records = append(records, rec)
	}

	return records, nil
}

// parseMeasure converts a raw cell to an optional numeric, repairing the
// upstream suppression sentinel to nil before the value can reach any
// arithmetic.
func parseMeasure(raw string) *float64 {
	if raw == "" || strings.EqualFold(raw, "null") {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	if v == model.SuppressedValue {
		return nil
	}
	return &v
}

// setMeasure assigns a named measure onto the record.
func setMeasure(rec *model.BlockGroupRecord, name string, v *float64) {
	switch name {
	case "total_housing_units":
		rec.TotalHousingUnits = v
	case "built_2020_plus":
		rec.Built2020Plus = v
	case "built_2010_2019":
		rec.Built2010to2019 = v
	case "built_2000_2009":
		rec.Built2000to2009 = v
	case "units_10_19":
		rec.Units10to19 = v
	case "units_20_49":
		rec.Units20to49 = v
	case "units_50_plus":
		rec.Units50Plus = v
	case "median_home_value":
		rec.MedianHomeValue = v
	case "owner_occupied":
		rec.OwnerOccupied = v
	case "renter_occupied":
		rec.RenterOccupied = v
	case "total_pop":
		rec.TotalPop = v
	case "median_hh_income":
		rec.MedianHHIncome = v
	case "bachelors":
		rec.Bachelors = v
	case "masters":
		rec.Masters = v
	case "professional_degree":
		rec.ProfessionalDegree = v
	case "doctorate":
		rec.Doctorate = v
	}
}

// measure returns a named raw measure from the record.
func measure(rec *model.BlockGroupRecord, name string) *float64 {
	switch name {
	case "total_housing_units":
		return rec.TotalHousingUnits
	case "built_2020_plus":
		return rec.Built2020Plus
	case "built_2010_2019":
		return rec.Built2010to2019
	case "built_2000_2009":
		return rec.Built2000to2009
	case "units_10_19":
		return rec.Units10to19
	case "units_20_49":
		return rec.Units20to49
	case "units_50_plus":
		return rec.Units50Plus
	case "median_home_value":
		return rec.MedianHomeValue
	case "owner_occupied":
		return rec.OwnerOccupied
	case "renter_occupied":
		return rec.RenterOccupied
	case "total_pop":
		return rec.TotalPop
	case "median_hh_income":
		return rec.MedianHHIncome
	case "bachelors":
		return rec.Bachelors
	case "masters":
		return rec.Masters
	case "professional_degree":
		return rec.ProfessionalDegree
	case "doctorate":
		return rec.Doctorate
	}
	return nil
}
