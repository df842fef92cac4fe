package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newHistoryCommand(a *app) *cobra.Command {
	var (
		limit  int
		output string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent backup sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validOutput(output); err != nil {
				return err
			}
			store, err := a.openHistory()
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("no history store configured: set HISTORY_FILE or HISTORY_DSN")
			}

			records, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if output != "text" {
				return writeStructured(cmd.OutOrStdout(), output, records)
			}

			w := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(w, "No backup sessions recorded")
				return nil
			}
			for _, r := range records {
				m := okMark
				if !r.Success {
					m = failMark
				}
				fmt.Fprintf(w, "%s %s  %-16s %s  files=%d  took %s\n", m, r.ID, r.Status,
					humanize.Time(r.StartTime), r.TotalBackupFiles,
					(time.Duration(r.DurationSeconds * float64(time.Second))).Round(time.Second))
				for _, s := range r.Strategies {
					if s.Error != "" {
						fmt.Fprintf(w, "    %s %s: %s\n", failMark, s.StrategyID, s.Error)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of sessions to show")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")
	return cmd
}
