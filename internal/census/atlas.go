package census

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
)

// mobilityColumn is the Opportunity Atlas outcome kept as the mobility score:
// mean household income rank in adulthood for children raised at the 25th
// parental income percentile, pooled across race and gender.
const mobilityColumn = "kfr_pooled_pooled_p25"

// MobilityOptions configures the Opportunity Atlas source.
type MobilityOptions struct {
	URL       string
	CachePath string
	StateFIPS string
}

// FetchMobility loads tract-level mobility scores keyed by 11-digit tract
// FIPS, filtered to the configured state. The Atlas uses an older tract
// vintage than the primary source, so downstream joins are expected to be
// partial.
//
// This source is optional: the caller treats an error as a degradation.
func FetchMobility(ctx context.Context, f fetcher.Fetcher, opts MobilityOptions) (map[string]float64, error) {
	log := zap.L().With(zap.String("component", "census.atlas"))

	if opts.CachePath != "" {
		if _, err := os.Stat(opts.CachePath); err == nil {
			log.Info("loading cached mobility data", zap.String("path", opts.CachePath))
			return readMobilityCSV(ctx, opts.CachePath)
		}
	}

	log.Info("downloading Opportunity Atlas data", zap.String("url", opts.URL))
	body, err := f.Download(ctx, opts.URL)
	if err != nil {
		return nil, eris.Wrap(err, "census: fetch mobility data")
	}
	defer body.Close() //nolint:errcheck

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, body, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	header := <-headerCh
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}
	for _, required := range []string{"state", "county", "tract"} {
		if _, ok := col[required]; !ok {
			for range rowCh {
			}
			<-errCh
			return nil, eris.Errorf("census: mobility data missing %q column", required)
		}
	}
	scoreIdx, hasScore := col[mobilityColumn]
	if !hasScore {
		log.Warn("mobility score column not found", zap.String("column", mobilityColumn))
	}

	cell := func(row []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return row[idx]
	}

	scores := make(map[string]float64)
	var rows, malformed int
	for row := range rowCh {
		rows++
		state := numericComponent(cell(row, "state"))
		if state == "" || padLeft(state, geoid.StateWidth) != opts.StateFIPS {
			continue
		}
		if !hasScore || scoreIdx >= len(row) {
			continue
		}
		score, err := strconv.ParseFloat(row[scoreIdx], 64)
		if err != nil {
			continue
		}

		county := numericComponent(cell(row, "county"))
		tract := numericComponent(cell(row, "tract"))
		if county == "" || tract == "" {
			malformed++
			continue
		}
		fips := padLeft(state, geoid.StateWidth) +
			padLeft(county, geoid.CountyWidth) +
			padLeft(tract, geoid.TractWidth)
		if len(fips) != geoid.TractLength {
			malformed++
			continue
		}
		scores[fips] = score
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "census: read mobility data")
	}
	if malformed > 0 {
		log.Warn("skipped malformed mobility rows", zap.Int("rows", malformed))
	}
	log.Info("filtered mobility data",
		zap.Int("source_rows", rows),
		zap.Int("state_tracts", len(scores)),
	)

	if opts.CachePath != "" {
		if err := writeMobilityCSV(opts.CachePath, scores); err != nil {
			return nil, eris.Wrap(err, "census: cache mobility data")
		}
		log.Info("cached mobility data", zap.String("path", opts.CachePath))
	}

	return scores, nil
}

// numericComponent normalizes an Atlas geography cell, which may be exported
// as a float ("35.0"), to its integer digit string.
func numericComponent(raw string) string {
	if raw == "" {
		return ""
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return ""
	}
	return strconv.FormatInt(int64(v), 10)
}

func padLeft(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}

func readMobilityCSV(ctx context.Context, path string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "census: open mobility cache")
	}
	defer f.Close() //nolint:errcheck

	rowCh, errCh := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{HasHeader: true, TrimSpace: true})

	scores := make(map[string]float64)
	for row := range rowCh {
		if len(row) < 2 || len(row[0]) != geoid.TractLength {
			continue
		}
		score, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			continue
		}
		scores[row[0]] = score
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "census: read mobility cache")
	}
	return scores, nil
}

func writeMobilityCSV(path string, scores map[string]float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "create cache dir")
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "create mobility cache")
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write([]string{"tract_fips", "mobility_score"}); err != nil {
		return eris.Wrap(err, "write header")
	}
	for fips, score := range scores {
		if err := w.Write([]string{fips, strconv.FormatFloat(score, 'g', -1, 64)}); err != nil {
			return eris.Wrap(err, "write row")
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "flush mobility cache")
}
