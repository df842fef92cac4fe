package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/supporttools/BackupFlow/pkg/metrics"
	"github.com/supporttools/BackupFlow/pkg/scheduler"
)

func newServeCommand(a *app) *cobra.Command {
	var runNow bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run backup sessions on BACKUP_SCHEDULE and serve metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if a.settings.Schedule == "" {
				return errors.New("serve requires BACKUP_SCHEDULE (a cron expression such as \"0 2 * * *\")")
			}

			cfg, err := a.loadConfig(ctx, true)
			if err != nil {
				return err
			}
			manager := a.newManager(cfg)

			sched, err := scheduler.New(a.settings.Schedule, func(ctx context.Context) error {
				session, err := manager.Run(ctx)
				if err != nil {
					return err
				}
				if !session.Success {
					return fmt.Errorf("session %s: %s", session.ID, session.Error)
				}
				return nil
			}, a.log)
			if err != nil {
				return err
			}

			metricsErr := make(chan error, 1)
			go func() {
				metricsErr <- metrics.StartMetricsServer(ctx, a.settings.MetricsPort, a.log)
			}()

			if err := sched.Start(ctx); err != nil {
				return err
			}
			defer sched.Stop()

			if runNow {
				go func() {
					if err := sched.RunOnce(ctx); err != nil {
						a.log.WithError(err).Error("Initial backup session failed")
					}
				}()
			}

			a.log.Info("BackupFlow is running. Press Ctrl+C to exit.")
			select {
			case <-ctx.Done():
				a.log.Info("Shutting down")
				return nil
			case err := <-metricsErr:
				if err != nil {
					return fmt.Errorf("metrics server failed: %w", err)
				}
				<-ctx.Done()
				return nil
			}
		},
	}
	cmd.Flags().BoolVar(&runNow, "run-now", false, "run a session immediately after starting")
	return cmd
}
