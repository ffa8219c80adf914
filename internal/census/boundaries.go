package census

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/wasatch-geo/blocktrends/internal/fetcher"
	"github.com/wasatch-geo/blocktrends/internal/geoid"
)

// BoundaryOptions configures the county boundary source.
type BoundaryOptions struct {
	URL       string // national county GeoJSON; defaults to countyGeoJSONURL
	CachePath string
	StateFIPS string
}

const countyGeoJSONURL = "https://raw.githubusercontent.com/plotly/datasets/master/geojson-counties-fips.json"

// LoadCountyBoundaries downloads the national county GeoJSON, filters it to
// the configured state, caches the filtered collection, and returns it.
// Optional: failure degrades to a map without the county overlay.
func LoadCountyBoundaries(ctx context.Context, f fetcher.Fetcher, opts BoundaryOptions) (*geojson.FeatureCollection, error) {
	log := zap.L().With(zap.String("component", "census.boundaries"))

	if opts.CachePath != "" {
		if data, err := os.ReadFile(opts.CachePath); err == nil {
			log.Info("loading cached county boundaries", zap.String("path", opts.CachePath))
			var fc geojson.FeatureCollection
			if err := json.Unmarshal(data, &fc); err != nil {
				return nil, eris.Wrap(err, "census: decode cached county boundaries")
			}
			return &fc, nil
		}
	}

	url := opts.URL
	if url == "" {
		url = countyGeoJSONURL
	}

	log.Info("downloading county boundaries", zap.String("url", url))
	body, err := f.Download(ctx, url)
	if err != nil {
		return nil, eris.Wrap(err, "census: fetch county boundaries")
	}
	defer body.Close() //nolint:errcheck

	var national geojson.FeatureCollection
	if err := json.NewDecoder(body).Decode(&national); err != nil {
		return nil, eris.Wrap(err, "census: decode county boundaries")
	}

	filtered := &geojson.FeatureCollection{}
	for _, feat := range national.Features {
		if feat == nil || !strings.HasPrefix(feat.ID, opts.StateFIPS) {
			continue
		}
		filtered.Features = append(filtered.Features, feat)
	}
	log.Info("filtered county boundaries",
		zap.String("state", opts.StateFIPS),
		zap.Int("counties", len(filtered.Features)),
	)

	if opts.CachePath != "" {
		if err := writeGeoJSON(opts.CachePath, filtered); err != nil {
			return nil, eris.Wrap(err, "census: cache county boundaries")
		}
	}

	return filtered, nil
}

// TractBoundaryOptions configures the tract boundary source.
type TractBoundaryOptions struct {
	URL       string // cartographic boundary ZIP; defaults per state
	CachePath string
	StateFIPS string
	TempDir   string
}

const tractBoundaryURLFormat = "https://www2.census.gov/geo/tiger/GENZ2020/shp/cb_2020_%s_tract_500k.zip"

// LoadTractBoundaries downloads the state's cartographic tract boundary
// shapefile and converts it to a GeoJSON collection with a tract_fips
// property per feature, for the mobility overlay. Optional source.
func LoadTractBoundaries(ctx context.Context, f fetcher.Fetcher, opts TractBoundaryOptions) (*geojson.FeatureCollection, error) {
	log := zap.L().With(zap.String("component", "census.boundaries"))

	if opts.CachePath != "" {
		if data, err := os.ReadFile(opts.CachePath); err == nil {
			log.Info("loading cached tract boundaries", zap.String("path", opts.CachePath))
			var fc geojson.FeatureCollection
			if err := json.Unmarshal(data, &fc); err != nil {
				return nil, eris.Wrap(err, "census: decode cached tract boundaries")
			}
			return &fc, nil
		}
	}

	url := opts.URL
	if url == "" {
		url = fmt.Sprintf(tractBoundaryURLFormat, opts.StateFIPS)
	}
	tempDir := opts.TempDir
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "blocktrends-tiger")
	}

	shpPath, err := DownloadShapefile(ctx, f, url, tempDir)
	if err != nil {
		return nil, eris.Wrap(err, "census: tract boundaries")
	}

	fc, err := tractFeatures(shpPath)
	if err != nil {
		return nil, err
	}
	log.Info("loaded tract boundaries", zap.Int("tracts", len(fc.Features)))

	if opts.CachePath != "" {
		if err := writeGeoJSON(opts.CachePath, fc); err != nil {
			return nil, eris.Wrap(err, "census: cache tract boundaries")
		}
	}

	return fc, nil
}

// tractFeatures reads tract polygons from a shapefile into GeoJSON features.
func tractFeatures(shpPath string) (*geojson.FeatureCollection, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "census: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	geoidIdx := anyFieldIndex(reader, "GEOID", "GEOID20")
	nameIdx := anyFieldIndex(reader, "NAMELSAD", "NAME")
	if geoidIdx < 0 {
		return nil, eris.New("census: tract shapefile has no GEOID field")
	}

	fc := &geojson.FeatureCollection{}
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			skipped++
			continue
		}

		fips := attribute(reader, geoidIdx)
		if len(fips) != geoid.TractLength {
			skipped++
			continue
		}

		g := polygonToMultiPolygon(poly)
		if g == nil {
			skipped++
			continue
		}

		props := map[string]any{"tract_fips": fips}
		if nameIdx >= 0 {
			props["name"] = attribute(reader, nameIdx)
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         fips,
			Geometry:   g,
			Properties: props,
		})
	}

	if skipped > 0 {
		zap.L().Debug("census: skipped tract shapefile records", zap.Int("skipped", skipped))
	}

	return fc, nil
}

// polygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon.
func polygonToMultiPolygon(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		var end int32
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		} else {
			end = int32(len(p.Points))
		}

		flat := make([]float64, 0, 2*(end-start))
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("census: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("census: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

func writeGeoJSON(path string, fc *geojson.FeatureCollection) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "create cache dir")
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return eris.Wrap(err, "marshal geojson")
	}
	return eris.Wrap(os.WriteFile(path, data, 0o644), "write geojson")
}
