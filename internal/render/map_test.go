package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/wasatch-geo/blocktrends/internal/model"
)

func renderTestDataset() *model.Dataset {
	return &model.Dataset{
		StateAvgPctNew: 0.048,
		Records: []model.BlockGroupRecord{
			*sampleRecord(),
			{
				GEOID: "490111254002", CountyName: "Davis", TractFIPS: "49011125400",
				Lat: model.Float(41.0), Lon: model.Float(-111.95),
				TierLabel: model.NoDataLabel, TierColor: model.NoDataColor,
				MobilityScore: model.Float(0.44),
			},
		},
	}
}

func tractCollection(t *testing.T) *geojson.FeatureCollection {
	t.Helper()
	square := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{-112, 41}, {-112, 41.5}, {-111.5, 41.5}, {-111.5, 41}, {-112, 41}},
	}).SetSRID(4326)
	return &geojson.FeatureCollection{
		Features: []*geojson.Feature{
			{ID: "49011125400", Geometry: square,
				Properties: map[string]any{"tract_fips": "49011125400"}},
			{ID: "49035100100", Geometry: square,
				Properties: map[string]any{"tract_fips": "49035100100"}},
		},
	}
}

func TestRenderMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "map.html")
	ds := renderTestDataset()

	counties := &geojson.FeatureCollection{
		Features: []*geojson.Feature{{
			ID: "49035",
			Geometry: geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
				{{-112, 40}, {-112, 41}, {-111, 41}, {-111, 40}, {-112, 40}},
			}).SetSRID(4326),
			Properties: map[string]any{"NAME": "Salt Lake"},
		}},
	}

	err := RenderMap(path, ds, model.DefaultTiers(),
		Layers{Counties: counties, Tracts: tractCollection(t)}, MapOptions{})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(data)

	assert.Contains(t, html, "Utah Building Trends Explorer")
	assert.Contains(t, html, "leaflet", "Leaflet assets referenced")
	assert.Contains(t, html, "L.circleMarker")
	assert.Contains(t, html, "County Boundaries")
	assert.Contains(t, html, "Upward Mobility (Opportunity Atlas)")
	assert.Contains(t, html, "L.control.layers")
	assert.Contains(t, html, "Reset View")
	assert.Contains(t, html, "Powered by")
	assert.Contains(t, html, "Construction hotspot", "legend lists every tier")
	assert.Contains(t, html, "Minimal new construction")
	assert.NotContains(t, html, "NaN")
}

func TestRenderMapWithoutOverlays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.html")
	require.NoError(t, RenderMap(path, renderTestDataset(), model.DefaultTiers(), Layers{}, MapOptions{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Upward Mobility (Opportunity Atlas)")
}

func TestRenderMapEmptyDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.html")
	err := RenderMap(path, &model.Dataset{}, model.DefaultTiers(), Layers{}, MapOptions{})
	require.Error(t, err)
}

func TestMarkerRadius(t *testing.T) {
	assert.Equal(t, 3.0, markerRadius(0, 3, 15), "clamped to minimum")
	assert.Equal(t, 15.0, markerRadius(1e6, 3, 15), "clamped to maximum")
	mid := markerRadius(400, 3, 15)
	assert.Greater(t, mid, 3.0)
	assert.Less(t, mid, 15.0)
}

func TestMobilityOverlayJSONColors(t *testing.T) {
	fc := tractCollection(t)
	out, err := mobilityOverlayJSON(fc, renderTestDataset())
	require.NoError(t, err)

	s := string(out)
	assert.Contains(t, s, "0.440")
	assert.Contains(t, s, mobilityNoDataColor, "tract without a score gets the no-data fill")
	assert.True(t, strings.Contains(s, `"fill"`))
}

func TestLegendHTMLRanges(t *testing.T) {
	html := legendHTML(model.DefaultTiers())
	assert.Contains(t, html, "Construction hotspot (15%+)")
	assert.Contains(t, html, "Minimal new construction (&lt;1%)")
	assert.Contains(t, html, "Moderate growth (3&#8211;7%)")
}

func TestRampColor(t *testing.T) {
	assert.Equal(t, "#ECE7F2", rampColor(0.3, 0.3, 0.6))
	assert.Equal(t, "#034E7B", rampColor(0.6, 0.3, 0.6))
	assert.Equal(t, "#034E7B", rampColor(0.9, 0.3, 0.6), "clamped above domain")
}
