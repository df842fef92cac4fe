package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/supporttools/BackupFlow/pkg/backup"
	"github.com/supporttools/BackupFlow/pkg/metrics"
)

var (
	okMark   = color.New(color.FgGreen, color.Bold).Sprint("✓")
	failMark = color.New(color.FgRed, color.Bold).Sprint("✗")
	warnMark = color.New(color.FgYellow, color.Bold).Sprint("!")
)

// runBackup runs one session. Partial success exits 0.
func (a *app) runBackup(cmd *cobra.Command) error {
	ctx := cmd.Context()

	cfg, err := a.loadConfig(ctx, true)
	if err != nil {
		return err
	}

	session, err := a.newManager(cfg).Run(ctx)
	if session != nil {
		printSession(cmd.OutOrStdout(), session)
	}
	a.pushMetrics()
	if err != nil {
		return err
	}
	if !session.Success {
		return errReported
	}
	return nil
}

func (a *app) pushMetrics() {
	if a.settings.PushgatewayURL == "" {
		return
	}
	if err := metrics.Push(a.settings.PushgatewayURL, "backupflow"); err != nil {
		a.log.WithError(err).Warn("Failed to push metrics")
		return
	}
	a.log.WithField("url", a.settings.PushgatewayURL).Debug("Pushed metrics")
}

func printSession(w io.Writer, s *backup.Session) {
	mark := okMark
	switch s.Status {
	case backup.SessionPartialSuccess:
		mark = warnMark
	case backup.SessionAllFailed:
		mark = failMark
	}

	fmt.Fprintf(w, "%s Session %s: %s in %s\n", mark, s.ID, s.Status, s.Duration.Round(time.Second))
	for _, r := range s.Results {
		if r.Success {
			var size int64
			for _, u := range r.Uploads {
				size += u.SizeBytes
			}
			fmt.Fprintf(w, "  %s %s: %d uploads, %s\n", okMark, r.StrategyID, r.UploadCount(), humanize.IBytes(uint64(size)))
			continue
		}
		fmt.Fprintf(w, "  %s %s: %s\n", failMark, r.StrategyID, r.Error)
	}
	fmt.Fprintf(w, "Databases: %d  Storages: %d  Backup files: %d\n", s.TotalDatabases, s.TotalStorages, s.TotalBackupFiles)
}
