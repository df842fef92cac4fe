package cmd

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/supporttools/BackupFlow/pkg/clientcheck"
	"github.com/supporttools/BackupFlow/pkg/config"
	"github.com/supporttools/BackupFlow/pkg/strategy"
	"github.com/supporttools/BackupFlow/pkg/version"
)

type infoReport struct {
	Version    version.VersionInfo                              `json:"version" yaml:"version"`
	Strategies strategy.Summary                                 `json:"strategies" yaml:"strategies"`
	Clients    map[config.DatabaseType]clientcheck.Availability `json:"clients" yaml:"clients"`
}

func newInfoCommand(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the configured strategies and available database clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validOutput(output); err != nil {
				return err
			}
			ctx := cmd.Context()
			cfg, err := a.loadConfig(ctx, true)
			if err != nil {
				return err
			}

			manager := strategy.NewManager(a.log, config.ViperLookup(a.v), nil)
			report := infoReport{
				Version:    version.Info(),
				Strategies: manager.Summary(cfg.Strategies),
				Clients:    clientcheck.NewChecker(a.log).Summary(ctx),
			}
			if output == "text" {
				printInfo(cmd.OutOrStdout(), report)
				return nil
			}
			return writeStructured(cmd.OutOrStdout(), output, report)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")
	return cmd
}

func printInfo(w io.Writer, r infoReport) {
	heading := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(w, "%s %s\n\n", heading("BackupFlow"), r.Version.Version)
	fmt.Fprintf(w, "%s %d\n", heading("Strategies:"), r.Strategies.TotalStrategies)
	for _, s := range r.Strategies.Strategies {
		fmt.Fprintf(w, "  %s\n", heading(s.ID))
		fmt.Fprintln(w, "    databases:")
		for _, db := range s.Databases {
			fmt.Fprintf(w, "      - %s://%s:%d (%d: %s)\n", db.Type, db.Host, db.Port, db.DatabaseCount, strings.Join(db.DatabaseNames, ", "))
		}
		fmt.Fprintln(w, "    storages:")
		for _, st := range s.Storages {
			prefix := ""
			if st.Prefix != nil {
				prefix = "/" + *st.Prefix
			}
			fmt.Fprintf(w, "      - %s://%s%s (region %s)\n", st.Type, st.Bucket, prefix, st.Region)
		}
		maxSize := "unlimited"
		if s.Settings.MaxBackupSizeMB != nil {
			maxSize = fmt.Sprintf("%d MB", *s.Settings.MaxBackupSizeMB)
		}
		fmt.Fprintf(w, "    compression=%t retention=%dd verify=%t timeout=%dm max_size=%s\n",
			s.Settings.Compression, s.Settings.RetentionDays, s.Settings.VerifyBackup,
			s.Settings.BackupTimeoutMinutes, maxSize)
	}

	fmt.Fprintf(w, "\n%s\n", heading("Clients:"))
	types := make([]config.DatabaseType, 0, len(r.Clients))
	for t := range r.Clients {
		types = append(types, t)
	}
	slices.Sort(types)
	for _, t := range types {
		c := r.Clients[t]
		fmt.Fprintf(w, "  %-11s system %s  library %s\n", t, mark(c.SystemAvailable), mark(c.LibraryAvailable))
	}
}

func mark(ok bool) string {
	if ok {
		return okMark
	}
	return failMark
}
