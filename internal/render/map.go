package render

import (
	"encoding/json"
	"fmt"
	"html/template"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/wasatch-geo/blocktrends/internal/model"
)

// MapOptions controls the rendered page. Zero values are filled with the
// Wasatch Front defaults.
type MapOptions struct {
	CenterLat       float64
	CenterLon       float64
	Zoom            int
	MarkerMinRadius float64
	MarkerMaxRadius float64
	Title           string
	Subtitle        string
	SourceNote      string
	Attribution     string
}

func (o *MapOptions) fillDefaults() {
	if o.CenterLat == 0 {
		o.CenterLat = 40.65
	}
	if o.CenterLon == 0 {
		o.CenterLon = -111.9
	}
	if o.Zoom == 0 {
		o.Zoom = 10
	}
	if o.MarkerMinRadius == 0 {
		o.MarkerMinRadius = 3
	}
	if o.MarkerMaxRadius == 0 {
		o.MarkerMaxRadius = 15
	}
	if o.Title == "" {
		o.Title = "Utah Building Trends Explorer"
	}
	if o.Subtitle == "" {
		o.Subtitle = "Where is new housing being built? Explore construction patterns across Utah's census block groups."
	}
	if o.SourceNote == "" {
		o.SourceNote = "Hover to preview · Click for details · Source: ACS"
	}
	if o.Attribution == "" {
		o.Attribution = "Powered by <b>SOCIO</b>"
	}
}

// Layers bundles the optional overlays. A nil collection means the overlay is
// omitted from the page, never an empty layer-control entry.
type Layers struct {
	Counties *geojson.FeatureCollection
	Tracts   *geojson.FeatureCollection
}

type marker struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Radius  float64 `json:"radius"`
	Color   string  `json:"color"`
	Tooltip string  `json:"tooltip"`
	Popup   string  `json:"popup"`
}

// RenderMap writes the complete interactive map page. Markers come from the
// enriched dataset; rows without coordinates were dropped upstream, so every
// record renders.
func RenderMap(path string, ds *model.Dataset, tiers model.TierSet, layers Layers, opts MapOptions) error {
	opts.fillDefaults()
	log := zap.L().With(zap.String("component", "render.map"))

	markers := make([]marker, 0, len(ds.Records))
	for i := range ds.Records {
		rec := &ds.Records[i]
		if !rec.HasCoordinates() {
			continue
		}
		markers = append(markers, marker{
			Lat:     *rec.Lat,
			Lon:     *rec.Lon,
			Radius:  markerRadius(model.Zero(rec.TotalHousingUnits), opts.MarkerMinRadius, opts.MarkerMaxRadius),
			Color:   rec.TierColor,
			Tooltip: TooltipHTML(rec),
			Popup:   PopupHTML(rec, ds.StateAvgPctNew),
		})
	}
	if len(markers) == 0 {
		return eris.New("render: dataset has no renderable records")
	}

	markersJSON, err := json.Marshal(markers)
	if err != nil {
		return eris.Wrap(err, "render: marshal markers")
	}

	countiesJSON, err := overlayJSON(layers.Counties)
	if err != nil {
		return eris.Wrap(err, "render: marshal county overlay")
	}
	tractsJSON, err := mobilityOverlayJSON(layers.Tracts, ds)
	if err != nil {
		return eris.Wrap(err, "render: marshal mobility overlay")
	}

	data := map[string]any{
		"Title":       opts.Title,
		"Subtitle":    opts.Subtitle,
		"SourceNote":  opts.SourceNote,
		"Attribution": template.HTML(opts.Attribution),
		"CenterLat":   opts.CenterLat,
		"CenterLon":   opts.CenterLon,
		"Zoom":        opts.Zoom,
		"PopupCSS":    template.HTML(popupCSS),
		"LegendHTML":  template.HTML(legendHTML(tiers)),
		"Markers":     template.JS(markersJSON),
		"Counties":    template.JS(countiesJSON),
		"Tracts":      template.JS(tractsJSON),
		"HasCounties": layers.Counties != nil,
		"HasTracts":   layers.Tracts != nil,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "render: mkdir %s", filepath.Dir(path))
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "render: create %s", path)
	}
	defer f.Close()

	if err := mapTemplate.Execute(f, data); err != nil {
		return eris.Wrap(err, "render: execute template")
	}

	log.Info("wrote map",
		zap.String("path", path),
		zap.Int("markers", len(markers)),
	)
	return nil
}

// markerRadius log-scales marker size by total housing units, clamped to the
// configured range.
func markerRadius(totalUnits, min, max float64) float64 {
	r := math.Log1p(totalUnits) * 1.5
	return math.Max(min, math.Min(max, r))
}

func overlayJSON(fc *geojson.FeatureCollection) ([]byte, error) {
	if fc == nil {
		return []byte("null"), nil
	}
	return json.Marshal(fc)
}

const mobilityNoDataColor = "#F0F0F0"

// mobilityOverlayJSON joins tract geometries with the dataset's mobility
// scores and bakes the choropleth fill into each feature, keeping the page
// script free of scale logic.
func mobilityOverlayJSON(fc *geojson.FeatureCollection, ds *model.Dataset) ([]byte, error) {
	if fc == nil {
		return []byte("null"), nil
	}

	// One score per tract: siblings share it, first wins.
	scores := map[string]float64{}
	for i := range ds.Records {
		rec := &ds.Records[i]
		if rec.MobilityScore == nil {
			continue
		}
		if _, ok := scores[rec.TractFIPS]; !ok {
			scores[rec.TractFIPS] = *rec.MobilityScore
		}
	}

	lo, hi := scoreDomain(scores)
	var matched int
	for _, feat := range fc.Features {
		if feat.Properties == nil {
			feat.Properties = map[string]any{}
		}
		fips, _ := feat.Properties["tract_fips"].(string)
		score, ok := scores[fips]
		if !ok {
			feat.Properties["fill"] = mobilityNoDataColor
			feat.Properties["label"] = "Upward Mobility Score: No data"
			continue
		}
		matched++
		feat.Properties["mobility_score"] = score
		feat.Properties["fill"] = rampColor(score, lo, hi)
		feat.Properties["label"] = fmt.Sprintf("Upward Mobility Score: %.3f", score)
	}
	zap.L().Info("render: mobility overlay",
		zap.Int("tracts", len(fc.Features)),
		zap.Int("with_scores", matched),
	)

	return json.Marshal(fc)
}

// scoreDomain returns the 5th and 95th percentile of the scores so a handful
// of outlier tracts cannot wash out the ramp.
func scoreDomain(scores map[string]float64) (float64, float64) {
	if len(scores) == 0 {
		return 0.3, 0.6
	}
	vals := make([]float64, 0, len(scores))
	for _, v := range scores {
		vals = append(vals, v)
	}
	sort.Float64s(vals)
	lo := vals[int(float64(len(vals)-1)*0.05)]
	hi := vals[int(float64(len(vals)-1)*0.95)]
	if lo == hi {
		hi = lo + 1e-9
	}
	return lo, hi
}

// rampColor interpolates between a pale and a deep blue across the domain.
func rampColor(v, lo, hi float64) string {
	t := (v - lo) / (hi - lo)
	t = math.Max(0, math.Min(1, t))
	from := [3]int{0xEC, 0xE7, 0xF2}
	to := [3]int{0x03, 0x4E, 0x7B}
	var rgb [3]int
	for i := range rgb {
		rgb[i] = from[i] + int(math.Round(t*float64(to[i]-from[i])))
	}
	return fmt.Sprintf("#%02X%02X%02X", rgb[0], rgb[1], rgb[2])
}

// legendHTML builds the discrete tier legend, highest tier first.
func legendHTML(tiers model.TierSet) string {
	var rows strings.Builder
	for i := len(tiers) - 1; i >= 0; i-- {
		t := tiers[i]
		var rangeStr string
		switch i {
		case len(tiers) - 1:
			rangeStr = fmt.Sprintf("(%d%%+)", int(t.Min*100))
		case 0:
			rangeStr = fmt.Sprintf("(&lt;%d%%)", int(t.Max*100))
		default:
			rangeStr = fmt.Sprintf("(%d&#8211;%d%%)", int(t.Min*100), int(t.Max*100))
		}
		fmt.Fprintf(&rows,
			`<div style="margin:3px 0"><span style="color:%s;font-size:16px;vertical-align:middle">&#9679;</span> <span style="vertical-align:middle">%s %s</span></div>`,
			t.Color, esc(t.Label), rangeStr)
	}
	return fmt.Sprintf(`<div id="legend" style="position:fixed;bottom:30px;left:10px;z-index:1000;background:white;padding:12px 16px;border-radius:6px;box-shadow:0 1px 4px rgba(0,0,0,0.2);font-family:Arial,sans-serif;font-size:12px;line-height:1.4;max-width:260px">
<div style="font-weight:bold;margin-bottom:6px">%% Housing Built Since 2020</div>
%s
<div style="color:#888;font-size:11px;margin-top:6px">&#9675; larger = more total units</div>
</div>`, rows.String())
}

var mapTemplate = template.Must(template.New("map").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<style>html,body,#map{height:100%;margin:0;padding:0}</style>
{{.PopupCSS}}
</head>
<body>
<div id="map"></div>

<div id="title-bar" style="position:fixed;top:0;left:0;right:0;z-index:1000;background:rgba(255,255,255,0.95);padding:10px 20px;box-shadow:0 2px 6px rgba(0,0,0,0.15);font-family:Arial,sans-serif;max-height:65px;overflow:hidden">
  <div style="font-size:14px;font-weight:bold;letter-spacing:0.5px;color:#222">{{.Title}}</div>
  <div style="font-size:12px;color:#555;margin-top:2px">{{.Subtitle}}</div>
  <div style="font-size:11px;color:#999;margin-top:1px">{{.SourceNote}}</div>
</div>

{{.LegendHTML}}

<div id="attribution" style="position:fixed;bottom:10px;right:10px;z-index:1000;background:white;padding:6px 12px;border-radius:4px;font-family:Arial,sans-serif;font-size:11px;color:#555;box-shadow:0 1px 3px rgba(0,0,0,0.2)">{{.Attribution}}</div>

<button id="reset-view-btn" style="position:fixed;top:75px;right:10px;z-index:1000;background:white;border:1px solid #ccc;border-radius:4px;padding:6px 12px;cursor:pointer;font-family:Arial,sans-serif;font-size:12px;color:#333" onmouseover="this.style.background='#f0f0f0'" onmouseout="this.style.background='white'">&#8635; Reset View</button>

<script>
var defaultCenter = [{{.CenterLat}}, {{.CenterLon}}];
var defaultZoom = {{.Zoom}};

var map = L.map('map', {preferCanvas: true}).setView(defaultCenter, defaultZoom);
L.tileLayer('https://{s}.basemaps.cartocdn.com/light_all/{z}/{x}/{y}{r}.png', {
  attribution: '&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> &copy; <a href="https://carto.com/attributions">CARTO</a>',
  subdomains: 'abcd', maxZoom: 20
}).addTo(map);

document.getElementById('reset-view-btn').onclick = function() {
  map.setView(defaultCenter, defaultZoom);
};

var overlays = {};

{{if .HasCounties}}
var counties = {{.Counties}};
var countyLayer = L.geoJSON(counties, {
  style: function() {
    return {fillOpacity: 0, color: '#888888', weight: 1.5, dashArray: '5 5'};
  },
  onEachFeature: function(feature, layer) {
    var name = feature.properties && (feature.properties.NAME || feature.properties.name);
    if (name) { layer.bindTooltip('County: ' + name); }
  }
}).addTo(map);
overlays['County Boundaries'] = countyLayer;
{{end}}

{{if .HasTracts}}
var tracts = {{.Tracts}};
var tractLayer = L.geoJSON(tracts, {
  style: function(feature) {
    return {fillColor: feature.properties.fill, fillOpacity: 0.5,
            color: '#666', weight: 0.3, opacity: 0.6};
  },
  onEachFeature: function(feature, layer) {
    layer.bindTooltip(feature.properties.label);
  }
});
overlays['Upward Mobility (Opportunity Atlas)'] = tractLayer;
{{end}}

var markers = {{.Markers}};
var markerLayer = L.featureGroup();
markers.forEach(function(m) {
  L.circleMarker([m.lat, m.lon], {
    radius: m.radius, color: m.color, weight: 0.5,
    fill: true, fillColor: m.color, fillOpacity: 0.7
  }).bindTooltip(m.tooltip).bindPopup(m.popup, {maxWidth: 320}).addTo(markerLayer);
});
markerLayer.addTo(map);
overlays['Building Trends (% New Construction)'] = markerLayer;

L.control.layers(null, overlays, {collapsed: false}).addTo(map);
</script>
</body>
</html>
`))
