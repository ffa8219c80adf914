package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wasatch-geo/blocktrends/internal/enrich"
	"github.com/wasatch-geo/blocktrends/internal/store"
)

var validateWarnOnly bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a built dataset against the data-quality rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ds, err := store.ReadDatasetCSV(ctx, cfg.Paths.EnrichedOutput())
		if err != nil {
			return eris.Wrap(err, "validate: load enriched dataset (run build first)")
		}

		findings := enrich.ValidateDataset(ds, cfg.Tiers)
		for _, finding := range findings {
			fmt.Println(finding)
		}

		zap.L().Info("validation finished",
			zap.Int("rows", len(ds.Records)),
			zap.Int("findings", len(findings)),
		)

		if len(findings) > 0 && !validateWarnOnly {
			return eris.Errorf("validate: %d findings", len(findings))
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateWarnOnly, "warn-only", false, "report findings without failing")
	rootCmd.AddCommand(validateCmd)
}
