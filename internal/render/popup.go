// Package render produces the self-contained Leaflet map HTML: tier-colored
// circle markers, county and mobility overlays, legend, and page chrome.
package render

import (
	"fmt"
	"html/template"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/wasatch-geo/blocktrends/internal/model"
)

// naText is what readers see for any absent or sentinel value. Raw "NaN" or
// sentinel numbers must never surface in the page.
const naText = "N/A"

var printer = message.NewPrinter(language.AmericanEnglish)

// formatCount renders a whole-number count with thousands separators.
// Absent counts read as zero; only the currency medians surface N/A.
func formatCount(v *float64) string {
	if v == nil {
		return "0"
	}
	if math.IsNaN(*v) {
		return naText
	}
	return printer.Sprintf("%d", int64(*v))
}

// formatCurrency renders a dollar amount, mapping the display sentinel back
// to N/A for values that round-tripped through a serialized artifact.
func formatCurrency(v *float64) string {
	if v == nil || math.IsNaN(*v) || *v == float64(model.DisplayNA) {
		return naText
	}
	return printer.Sprintf("$%d", int64(*v))
}

func formatPct(v float64, decimals int) string {
	return fmt.Sprintf("%.*f%%", decimals, v*100)
}

func esc(s string) string {
	return template.HTMLEscapeString(s)
}

// TooltipHTML is the compact three-line hover preview for a marker.
func TooltipHTML(rec *model.BlockGroupRecord) string {
	return fmt.Sprintf(
		`<div class="bt-tt"><b>%s</b><br>`+
			`<span style="color:%s;font-size:14px">&#9632;</span> %s new construction<br>`+
			`<span class="bt-m">%s total units</span></div>`,
		esc(rec.CountyName),
		rec.TierColor,
		formatPct(rec.PctNewHousing, 1),
		formatCount(rec.TotalHousingUnits),
	)
}

// PopupHTML is the full data card shown on click: tier badge, progress bar
// against a 20% ceiling, housing profile, and market context.
func PopupHTML(rec *model.BlockGroupRecord, stateAvg float64) string {
	barPct := math.Min(rec.PctNewHousing/0.20, 1.0) * 100

	return fmt.Sprintf(
		`<div class="bt-p">`+
			`<div class="bt-h" style="background:%s">%s</div>`+
			`<div class="bt-b">`+
			`<div class="bt-m">%s County</div>`+
			`<div style="font-weight:bold;margin-bottom:8px">%s</div>`+
			`<div class="bt-sl">New Construction</div>`+
			`<div class="bt-bar"><div style="background:%s;height:8px;border-radius:3px;width:%.0f%%"></div></div>`+
			`<div><b>%s</b> built since 2020 (%s units)</div>`+
			`<div class="bt-m">State average: %s</div>`+
			`<div class="bt-d"></div>`+
			`<div class="bt-sl">Housing Profile</div>`+
			`<div class="bt-v">Total units: %s<br>`+
			`Built 2010&#8211;2019: %s<br>`+
			`Built 2000&#8211;2009: %s<br>`+
			`In 10+ unit bldgs: %s<br>`+
			`In 50+ unit bldgs: %s</div>`+
			`<div class="bt-d"></div>`+
			`<div class="bt-sl">Market Context</div>`+
			`<div class="bt-v">Median home value: %s<br>`+
			`Renter-occupied: %s<br>`+
			`Median HH income: %s</div>`+
			`</div></div>`,
		rec.TierColor, esc(rec.TierLabel),
		esc(rec.CountyName),
		esc(rec.Name),
		rec.TierColor, barPct,
		formatPct(rec.PctNewHousing, 1),
		formatCount(rec.Built2020Plus),
		formatPct(stateAvg, 1),
		formatCount(rec.TotalHousingUnits),
		formatCount(rec.Built2010to2019),
		formatCount(rec.Built2000to2009),
		formatCount(model.Float(rec.Units10Plus)),
		formatCount(rec.Units50Plus),
		formatCurrency(rec.MedianHomeValue),
		formatPct(rec.PctRenter, 0),
		formatCurrency(rec.MedianHHIncome),
	)
}

// popupCSS is injected once into the page so per-marker HTML stays small.
const popupCSS = `<style>
.bt-p{font-family:Arial,sans-serif;width:280px;font-size:13px;line-height:1.5;margin:0;padding:0}
.bt-h{color:#fff;padding:8px 12px;border-radius:6px 6px 0 0;font-size:11px;font-weight:bold;letter-spacing:.5px;text-transform:uppercase}
.bt-b{padding:10px 12px}
.bt-sl{font-size:11px;color:#555;text-transform:uppercase;letter-spacing:.5px;margin-bottom:4px}
.bt-d{border-top:1px solid #eee;margin:8px 0}
.bt-v{font-size:12px;line-height:1.6}
.bt-m{color:#888;font-size:11px}
.bt-bar{background:#eee;height:8px;border-radius:3px;margin-bottom:4px}
.bt-tt{font-family:Arial,sans-serif;font-size:12px;padding:4px 8px;max-width:200px;line-height:1.4}
</style>`
