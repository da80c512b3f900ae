package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"chorus/internal/config"
	"chorus/internal/jobs"
)

func newRunsCommand(configFlag *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(*configFlag)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ledger, err := jobs.Open(cfg.Paths.LogDir)
			if err != nil {
				return fmt.Errorf("open run ledger: %w", err)
			}
			defer ledger.Close()

			runs, err := ledger.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
				return nil
			}

			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				elapsed := run.FinishedAt.Sub(run.StartedAt).Round(time.Second)
				detail := run.ErrorKind
				if detail == "" {
					detail = "-"
				}
				attempts, err := ledger.Attempts(cmd.Context(), run.JobID)
				if err != nil {
					return err
				}
				rows = append(rows, []string{
					run.JobID,
					run.ObjectKey,
					run.Outcome,
					detail,
					fmt.Sprintf("%d", attempts),
					elapsed.String(),
					humanize.Time(run.StartedAt),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Job", "Object", "Outcome", "Error", "Attempts", "Duration", "Started"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to display")
	return cmd
}
