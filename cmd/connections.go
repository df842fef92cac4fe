package cmd

import (
	"fmt"
	"io"
	"reflect"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/supporttools/BackupFlow/pkg/backup"
)

func newTestConnectionsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "test-connections",
		Short: "Test every configured database and storage target",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := a.loadConfig(ctx, false)
			if err != nil {
				return err
			}

			ok, checks := backup.NewManager(cfg, backup.WithLogger(a.log)).TestConnections(ctx)
			w := cmd.OutOrStdout()
			printChecks(w, checks)
			if !ok {
				return errReported
			}
			fmt.Fprintln(w, "All connections OK")
			return nil
		},
	}
}

func printChecks(w io.Writer, checks []backup.ConnectionCheck) {
	for _, c := range checks {
		if !c.OK {
			fmt.Fprintf(w, "%s [%s] %s %s: %s\n", failMark, c.StrategyID, c.Kind, c.Target, c.Error)
			continue
		}
		fmt.Fprintf(w, "%s [%s] %s %s\n", okMark, c.StrategyID, c.Kind, c.Target)
		if details := formatDetails(c.Details); details != "" {
			fmt.Fprintf(w, "    %s\n", details)
		}
	}
}

// formatDetails renders the scalar details as sorted key=value pairs
func formatDetails(details map[string]any) string {
	var parts []string
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		v := details[k]
		if v == nil {
			continue
		}
		switch reflect.TypeOf(v).Kind() {
		case reflect.Map, reflect.Slice, reflect.Array:
			continue
		}
		s := fmt.Sprint(v)
		if s == "" {
			continue
		}
		parts = append(parts, k+"="+s)
	}
	return strings.Join(parts, " ")
}
