package census

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/wasatch-geo/blocktrends/internal/fetcher"
	"github.com/wasatch-geo/blocktrends/internal/geoid"
)

// utahCounties is the bootstrap fallback lookup for Utah's 29 counties.
// When a reference file is present it is authoritative and this table is
// not consulted.
var utahCounties = map[string]string{
	"49001": "Beaver", "49003": "Box Elder", "49005": "Cache",
	"49007": "Carbon", "49009": "Daggett", "49011": "Davis",
	"49013": "Duchesne", "49015": "Emery", "49017": "Garfield",
	"49019": "Grand", "49021": "Iron", "49023": "Juab",
	"49025": "Kane", "49027": "Millard", "49029": "Morgan",
	"49031": "Piute", "49033": "Rich", "49035": "Salt Lake",
	"49037": "San Juan", "49039": "Sanpete", "49041": "Sevier",
	"49043": "Summit", "49045": "Tooele", "49047": "Uintah",
	"49049": "Utah", "49051": "Wasatch", "49053": "Washington",
	"49055": "Wayne", "49057": "Weber",
}

// LoadCountyLookup builds the county FIPS to county name mapping. The
// reference CSV (county_fips,county_name) wins when present; otherwise the
// hard-coded Utah table serves as a bootstrap default.
func LoadCountyLookup(ctx context.Context, path string) (map[string]string, error) {
	log := zap.L().With(zap.String("component", "census.counties"))

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			lookup, err := readCountyCSV(ctx, path)
			if err != nil {
				return nil, err
			}
			log.Info("loaded county lookup", zap.String("path", path), zap.Int("counties", len(lookup)))
			return lookup, nil
		}
	}

	lookup := make(map[string]string, len(utahCounties))
	for fips, name := range utahCounties {
		lookup[fips] = name
	}
	log.Info("built county lookup from fallback table", zap.Int("counties", len(lookup)))
	return lookup, nil
}

func readCountyCSV(ctx context.Context, path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "census: open county lookup")
	}
	defer f.Close() //nolint:errcheck

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})
	<-headerCh

	lookup := make(map[string]string)
	for row := range rowCh {
		if len(row) < 2 || len(row[0]) != geoid.CountyLength {
			continue
		}
		lookup[row[0]] = row[1]
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "census: read county lookup")
	}
	if len(lookup) == 0 {
		return nil, eris.Errorf("census: county lookup %s has no usable rows", path)
	}
	return lookup, nil
}
