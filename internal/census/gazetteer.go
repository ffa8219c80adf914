package census

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/wasatch-geo/blocktrends/internal/fetcher"
	"github.com/wasatch-geo/blocktrends/internal/geoid"
)

// Centroid is a block group's internal point coordinate pair.
type Centroid struct {
	Lat float64
	Lon float64
}

// GazetteerOptions configures the centroid source.
type GazetteerOptions struct {
	CachePath  string
	StateFIPS  string
	PrimaryCSV string // local primary table carrying lat/lon, preferred when present
	TIGERURL   string // test override; defaults to the TIGER block-group shapefile
	TempDir    string
}

const tigerBGURLFormat = "https://www2.census.gov/geo/tiger/TIGER2020/BG/tl_2020_%s_bg.zip"

// LoadGazetteer loads block-group centroids keyed by GEOID. Preference order:
// cache artifact, local primary CSV with coordinates, TIGER/Line block-group
// shapefile (whose records carry the official internal point attributes).
//
// This source is optional: the caller treats an error as a degradation, not
// a failure.
func LoadGazetteer(ctx context.Context, f fetcher.Fetcher, opts GazetteerOptions) (map[geoid.GEOID]Centroid, error) {
	log := zap.L().With(zap.String("component", "census.gazetteer"))

	if opts.CachePath != "" {
		if _, err := os.Stat(opts.CachePath); err == nil {
			log.Info("loading cached gazetteer", zap.String("path", opts.CachePath))
			return readCentroidCSV(ctx, opts.CachePath)
		}
	}

	var centroids map[geoid.GEOID]Centroid
	var err error

	if opts.PrimaryCSV != "" {
		if _, statErr := os.Stat(opts.PrimaryCSV); statErr == nil {
			log.Info("extracting centroids from primary table", zap.String("path", opts.PrimaryCSV))
			centroids, err = centroidsFromPrimary(ctx, opts.PrimaryCSV, opts.StateFIPS)
		}
	}
	// A primary table without coordinate columns extracts nothing; only a
	// non-empty extraction counts as a centroid source, otherwise the TIGER
	// download still runs.
	if len(centroids) == 0 && err == nil {
		if centroids != nil {
			log.Info("primary table carries no coordinates, falling back to TIGER")
		}
		centroids, err = centroidsFromTIGER(ctx, f, opts)
	}
	if err != nil {
		return nil, err
	}

	if opts.CachePath != "" && len(centroids) > 0 {
		if err := writeCentroidCSV(opts.CachePath, centroids); err != nil {
			return nil, eris.Wrap(err, "census: cache gazetteer")
		}
		log.Info("cached gazetteer", zap.String("path", opts.CachePath), zap.Int("rows", len(centroids)))
	}

	return centroids, nil
}

// centroidsFromPrimary pulls coordinate pairs out of a local primary table.
func centroidsFromPrimary(ctx context.Context, path, stateFIPS string) (map[geoid.GEOID]Centroid, error) {
	records, err := ReadPrimaryCSV(ctx, path)
	if err != nil {
		return nil, eris.Wrap(err, "census: gazetteer from primary")
	}

	centroids := make(map[geoid.GEOID]Centroid, len(records))
	for i := range records {
		rec := &records[i]
		if !rec.HasCoordinates() {
			continue
		}
		if stateFIPS != "" && rec.GEOID.State() != stateFIPS {
			continue
		}
		centroids[rec.GEOID] = Centroid{Lat: *rec.Lat, Lon: *rec.Lon}
	}
	return centroids, nil
}

// centroidsFromTIGER downloads the block-group shapefile and reads the
// official internal point attributes off each record.
func centroidsFromTIGER(ctx context.Context, f fetcher.Fetcher, opts GazetteerOptions) (map[geoid.GEOID]Centroid, error) {
	url := opts.TIGERURL
	if url == "" {
		url = fmt.Sprintf(tigerBGURLFormat, opts.StateFIPS)
	}
	tempDir := opts.TempDir
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "blocktrends-tiger")
	}

	shpPath, err := DownloadShapefile(ctx, f, url, tempDir)
	if err != nil {
		return nil, eris.Wrap(err, "census: gazetteer from TIGER")
	}

	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "census: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	geoidIdx := anyFieldIndex(reader, "GEOID20", "GEOID")
	latIdx := anyFieldIndex(reader, "INTPTLAT20", "INTPTLAT")
	lonIdx := anyFieldIndex(reader, "INTPTLON20", "INTPTLON")
	if geoidIdx < 0 || latIdx < 0 || lonIdx < 0 {
		return nil, eris.New("census: shapefile missing GEOID/INTPTLAT/INTPTLON fields")
	}

	centroids := make(map[geoid.GEOID]Centroid)
	var skipped int
	for reader.Next() {
		id, err := geoid.Normalize(attribute(reader, geoidIdx))
		if err != nil {
			skipped++
			continue
		}
		if opts.StateFIPS != "" && id.State() != opts.StateFIPS {
			continue
		}
		// TIGER encodes internal points as signed strings like "+40.6".
		lat, latErr := strconv.ParseFloat(strings.TrimPrefix(attribute(reader, latIdx), "+"), 64)
		lon, lonErr := strconv.ParseFloat(strings.TrimPrefix(attribute(reader, lonIdx), "+"), 64)
		if latErr != nil || lonErr != nil {
			skipped++
			continue
		}
		centroids[id] = Centroid{Lat: lat, Lon: lon}
	}

	if skipped > 0 {
		zap.L().Warn("census: skipped shapefile records without usable centroid",
			zap.Int("skipped", skipped),
		)
	}

	return centroids, nil
}

func readCentroidCSV(ctx context.Context, path string) (map[geoid.GEOID]Centroid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "census: open gazetteer cache")
	}
	defer f.Close() //nolint:errcheck

	rowCh, errCh := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{HasHeader: true, TrimSpace: true})

	centroids := make(map[geoid.GEOID]Centroid)
	for row := range rowCh {
		if len(row) < 3 {
			continue
		}
		id, err := geoid.Normalize(row[0])
		if err != nil {
			continue
		}
		lat, latErr := strconv.ParseFloat(row[1], 64)
		lon, lonErr := strconv.ParseFloat(row[2], 64)
		if latErr != nil || lonErr != nil {
			continue
		}
		centroids[id] = Centroid{Lat: lat, Lon: lon}
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "census: read gazetteer cache")
	}
	return centroids, nil
}

func writeCentroidCSV(path string, centroids map[geoid.GEOID]Centroid) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "create cache dir")
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "create gazetteer cache")
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write([]string{"geoid", "lat", "lon"}); err != nil {
		return eris.Wrap(err, "write header")
	}
	for id, c := range centroids {
		row := []string{
			id.String(),
			strconv.FormatFloat(c.Lat, 'g', -1, 64),
			strconv.FormatFloat(c.Lon, 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "write row")
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "flush gazetteer cache")
}
