package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wasatch-geo/blocktrends/internal/census"
)

var fetchForce bool

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Warm the source caches without building anything",
	Long:  "Downloads every remote source (ACS, gazetteer, mobility, boundaries) into the cache so a later build runs offline.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("component", "cmd.fetch"))
		f := newFetcher(cfg)
		state := cfg.Census.StateFIPS

		if fetchForce {
			for _, path := range []string{
				cfg.Paths.ACSCache(),
				cfg.Paths.GazetteerCache(state),
				cfg.Paths.MobilityCache(),
				cfg.Paths.CountyGeoJSONCache(state),
				cfg.Paths.TractGeoJSONCache(state),
			} {
				if err := os.Remove(path); err == nil {
					log.Info("removed cache artifact", zap.String("path", path))
				}
			}
		}

		// The ACS cache doubles as the gazetteer's preferred centroid source,
		// so it is fetched before the group starts.
		if _, err := census.FetchACS(ctx, f, census.ACSOptions{
			Vintage:   cfg.Census.Vintage,
			StateFIPS: state,
			APIKey:    cfg.Census.APIKey,
			CachePath: cfg.Paths.ACSCache(),
		}); err != nil {
			return err
		}

		// The remaining sources are the same ones build degrades on, so a
		// failed download warms what it can and warns instead of aborting.
		warm := func(source string, fn func() error) func() error {
			return func() error {
				if err := fn(); err != nil {
					log.Warn("source unavailable", zap.String("source", source), zap.Error(err))
				}
				return nil
			}
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(warm("gazetteer", func() error {
			_, err := census.LoadGazetteer(gctx, f, census.GazetteerOptions{
				CachePath:  cfg.Paths.GazetteerCache(state),
				StateFIPS:  state,
				PrimaryCSV: cfg.Paths.ACSCache(),
				TempDir:    cfg.Paths.ShapefileDir(),
			})
			return err
		}))
		g.Go(warm("mobility", func() error {
			_, err := census.FetchMobility(gctx, f, census.MobilityOptions{
				URL:       cfg.Mobility.URL,
				CachePath: cfg.Paths.MobilityCache(),
				StateFIPS: state,
			})
			return err
		}))
		g.Go(warm("county boundaries", func() error {
			_, err := census.LoadCountyBoundaries(gctx, f, census.BoundaryOptions{
				CachePath: cfg.Paths.CountyGeoJSONCache(state),
				StateFIPS: state,
			})
			return err
		}))
		g.Go(warm("tract boundaries", func() error {
			_, err := census.LoadTractBoundaries(gctx, f, census.TractBoundaryOptions{
				CachePath: cfg.Paths.TractGeoJSONCache(state),
				StateFIPS: state,
				TempDir:   cfg.Paths.ShapefileDir(),
			})
			return err
		}))
		if err := g.Wait(); err != nil {
			return err
		}

		log.Info("all source caches warmed", zap.String("cache_dir", cfg.Paths.CacheDir))
		return nil
	},
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchForce, "force", false, "discard cached artifacts and re-download")
	rootCmd.AddCommand(fetchCmd)
}
