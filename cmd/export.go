package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wasatch-geo/blocktrends/internal/store"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the built dataset as an Excel workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ds, err := store.ReadDatasetCSV(ctx, cfg.Paths.EnrichedOutput())
		if err != nil {
			return eris.Wrap(err, "export: load enriched dataset (run build first)")
		}

		out := exportOutput
		if out == "" {
			out = cfg.Paths.XLSXOutput()
		}
		if err := store.WriteDatasetXLSX(out, ds); err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("path", out),
			zap.Int("rows", len(ds.Records)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output path (default from config)")
	rootCmd.AddCommand(exportCmd)
}
