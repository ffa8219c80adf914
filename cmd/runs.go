package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wasatch-geo/blocktrends/internal/store"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent pipeline runs from the journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		journal, err := store.OpenJournal(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer journal.Close()

		runs, err := journal.List(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("no runs recorded")
			return nil
		}

		for _, r := range runs {
			line := fmt.Sprintf("%s  %-8s  vintage=%s state=%s  started=%s",
				r.ID, r.Status, r.Vintage, r.StateFIPS,
				r.StartedAt.Format(time.RFC3339))
			if r.Report != nil {
				line += fmt.Sprintf("  rows=%d warnings=%d", r.Report.RowsOut, len(r.Report.Warnings))
			}
			if r.Error != "" {
				line += "  error=" + r.Error
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
	rootCmd.AddCommand(runsCmd)
}
