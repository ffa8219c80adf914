package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wasatch-geo/blocktrends/internal/census"
	"github.com/wasatch-geo/blocktrends/internal/config"
	"github.com/wasatch-geo/blocktrends/internal/enrich"
	"github.com/wasatch-geo/blocktrends/internal/fetcher"
	"github.com/wasatch-geo/blocktrends/internal/model"
	"github.com/wasatch-geo/blocktrends/internal/render"
	"github.com/wasatch-geo/blocktrends/internal/store"
)

var (
	buildSkipMap bool
	buildStrict  bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Run the full pipeline: fetch, enrich, validate, write artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("component", "cmd.build"))

		journal, err := store.OpenJournal(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer journal.Close()

		run, err := journal.Begin(ctx, fmt.Sprintf("%d", cfg.Census.Vintage), cfg.Census.StateFIPS)
		if err != nil {
			return err
		}
		log.Info("starting pipeline run", zap.String("run_id", run.ID))

		report, buildErr := runPipeline(ctx, cfg)
		if buildErr != nil {
			if jerr := journal.Fail(ctx, run.ID, buildErr); jerr != nil {
				log.Error("failed to journal run failure", zap.Error(jerr))
			}
			return buildErr
		}
		if err := journal.Complete(ctx, run.ID, report); err != nil {
			return err
		}

		log.Info("pipeline run complete",
			zap.String("run_id", run.ID),
			zap.Int("rows", report.RowsOut),
			zap.Int("warnings", len(report.Warnings)),
		)
		return nil
	},
}

func runPipeline(ctx context.Context, cfg *config.Config) (*enrich.Report, error) {
	log := zap.L().With(zap.String("component", "cmd.build"))
	f := newFetcher(cfg)

	// Primary table: a local file overrides the Census API path entirely.
	var primary []model.BlockGroupRecord
	var err error
	if cfg.Paths.PrimaryCSV != "" {
		log.Info("reading primary table from file", zap.String("path", cfg.Paths.PrimaryCSV))
		primary, err = census.ReadPrimaryCSV(ctx, cfg.Paths.PrimaryCSV)
	} else {
		primary, err = census.FetchACS(ctx, f, census.ACSOptions{
			Vintage:   cfg.Census.Vintage,
			StateFIPS: cfg.Census.StateFIPS,
			APIKey:    cfg.Census.APIKey,
			CachePath: cfg.Paths.ACSCache(),
		})
	}
	if err != nil {
		return nil, err
	}
	log.Info("primary table loaded", zap.Int("rows", len(primary)))

	// Optional sources degrade to nil with a warning, never abort the run.
	centroids, err := census.LoadGazetteer(ctx, f, census.GazetteerOptions{
		CachePath:  cfg.Paths.GazetteerCache(cfg.Census.StateFIPS),
		StateFIPS:  cfg.Census.StateFIPS,
		PrimaryCSV: cfg.Paths.ACSCache(),
		TempDir:    cfg.Paths.ShapefileDir(),
	})
	if err != nil {
		log.Warn("centroid source unavailable", zap.Error(err))
		centroids = nil
	}

	counties, err := census.LoadCountyLookup(ctx, cfg.Paths.CountyLookup())
	if err != nil {
		return nil, err
	}

	mobility, err := census.FetchMobility(ctx, f, census.MobilityOptions{
		URL:       cfg.Mobility.URL,
		CachePath: cfg.Paths.MobilityCache(),
		StateFIPS: cfg.Census.StateFIPS,
	})
	if err != nil {
		log.Warn("mobility source unavailable", zap.Error(err))
		mobility = nil
	}

	engine, err := enrich.New(enrich.Options{
		Tiers:         cfg.Tiers,
		MobilityFloor: cfg.Mobility.MatchFloor,
	})
	if err != nil {
		return nil, err
	}
	ds, report, err := engine.Run(enrich.Inputs{
		Primary:   primary,
		Centroids: centroids,
		Counties:  counties,
		Mobility:  mobility,
	})
	if err != nil {
		return nil, err
	}

	logTierCounts(ds, cfg.Tiers)

	findings := enrich.ValidateDataset(ds, cfg.Tiers)
	for _, finding := range findings {
		log.Warn("validation finding", zap.String("finding", finding))
	}
	if buildStrict && len(findings) > 0 {
		return nil, eris.Errorf("build: %d validation findings in strict mode", len(findings))
	}

	if err := store.WriteDatasetCSV(cfg.Paths.EnrichedOutput(), ds); err != nil {
		return nil, err
	}

	if !buildSkipMap {
		if err := renderOutputs(ctx, f, cfg, ds); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func renderOutputs(ctx context.Context, f fetcher.Fetcher, cfg *config.Config, ds *model.Dataset) error {
	log := zap.L().With(zap.String("component", "cmd.build"))

	// Overlay geometry is presentation-only: failures degrade the page, they
	// do not fail the run.
	counties, err := census.LoadCountyBoundaries(ctx, f, census.BoundaryOptions{
		CachePath: cfg.Paths.CountyGeoJSONCache(cfg.Census.StateFIPS),
		StateFIPS: cfg.Census.StateFIPS,
	})
	if err != nil {
		log.Warn("county boundaries unavailable", zap.Error(err))
		counties = nil
	}
	tracts, err := census.LoadTractBoundaries(ctx, f, census.TractBoundaryOptions{
		CachePath: cfg.Paths.TractGeoJSONCache(cfg.Census.StateFIPS),
		StateFIPS: cfg.Census.StateFIPS,
		TempDir:   cfg.Paths.ShapefileDir(),
	})
	if err != nil {
		log.Warn("tract boundaries unavailable", zap.Error(err))
		tracts = nil
	}

	return render.RenderMap(cfg.Paths.MapOutput(), ds, cfg.Tiers,
		render.Layers{Counties: counties, Tracts: tracts},
		render.MapOptions{
			CenterLat:       cfg.Map.CenterLat,
			CenterLon:       cfg.Map.CenterLon,
			Zoom:            cfg.Map.Zoom,
			MarkerMinRadius: cfg.Map.MarkerMinRadius,
			MarkerMaxRadius: cfg.Map.MarkerMaxRadius,
			Title:           cfg.Map.Title,
			SourceNote:      fmt.Sprintf("Hover to preview · Click for details · Source: ACS %d", cfg.Census.Vintage),
		})
}

func logTierCounts(ds *model.Dataset, tiers model.TierSet) {
	counts := map[string]int{}
	for i := range ds.Records {
		counts[ds.Records[i].TierLabel]++
	}
	for _, label := range append(tiers.Labels(), model.NoDataLabel) {
		zap.L().Info("tier count",
			zap.String("tier", label),
			zap.Int("block_groups", counts[label]),
		)
	}
}

func newFetcher(cfg *config.Config) fetcher.Fetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:      time.Duration(cfg.Census.TimeoutSecs) * time.Second,
		RateLimiters: fetcher.DefaultRateLimiters(),
	})
}

func init() {
	buildCmd.Flags().BoolVar(&buildSkipMap, "skip-map", false, "write the enriched dataset without rendering the map")
	buildCmd.Flags().BoolVar(&buildStrict, "strict", false, "fail the run on any validation finding")
	rootCmd.AddCommand(buildCmd)
}
