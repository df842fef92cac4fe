// Package cmd implements the backupflow command line.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/supporttools/BackupFlow/pkg/backup"
	"github.com/supporttools/BackupFlow/pkg/clientcheck"
	"github.com/supporttools/BackupFlow/pkg/config"
	"github.com/supporttools/BackupFlow/pkg/history"
	"github.com/supporttools/BackupFlow/pkg/logging"
	"github.com/supporttools/BackupFlow/pkg/strategy"
	"gopkg.in/yaml.v3"
)

// errReported marks failures whose details were already printed
var errReported = errors.New("failed")

type app struct {
	configPath string
	logLevel   string
	logFile    string

	v        *viper.Viper
	settings config.AppSettings
	log      *logrus.Logger
	closers  []io.Closer
}

// Execute runs the command line and returns the process exit code
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, a := newRootCommand()
	defer a.close()

	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		}
		return 1
	}
	return 0
}

func newRootCommand() (*cobra.Command, *app) {
	a := &app{}

	root := &cobra.Command{
		Use:   "backupflow",
		Short: "Run multi-strategy database backups to object storage",
		Long: `backupflow dumps every configured MySQL and PostgreSQL database and uploads
the artifacts to R2 or S3 compatible storage.

Strategies come from DATABASES/STORAGES (one strategy) or DATABASES_n/STORAGES_n
(several strategies), read from the environment or the --config file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBackup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML settings file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	root.PersistentFlags().StringVar(&a.logFile, "log-file", "", "also write logs to this file (overrides LOG_FILE)")

	root.AddCommand(
		newTestConnectionsCommand(a),
		newInfoCommand(a),
		newServeCommand(a),
		newPresignCommand(a),
		newHistoryCommand(a),
		newVersionCommand(),
	)
	return root, a
}

// setup loads settings and builds the logger shared by every subcommand
func (a *app) setup(cmd *cobra.Command) error {
	v, err := config.NewViper(a.configPath)
	if err != nil {
		return err
	}
	settings, err := config.LoadSettings(v)
	if err != nil {
		return err
	}

	if a.logLevel != "" {
		settings.LogLevel = a.logLevel
	} else if settings.Debug {
		settings.LogLevel = "debug"
	}
	if a.logFile != "" {
		settings.LogFile = a.logFile
	}

	log, closer, err := logging.New(logging.Options{
		Level:  settings.LogLevel,
		File:   settings.LogFile,
		Format: settings.LogFormat,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	a.v = v
	a.settings = settings
	a.log = log
	a.closers = append(a.closers, closer)
	config.DisplaySettings(log, settings)
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
	a.closers = nil
}

// loadConfig parses and validates strategies. The client check is skipped
// for commands that never dump.
func (a *app) loadConfig(ctx context.Context, checkClients bool) (config.BackupConfig, error) {
	var checker strategy.ClientChecker
	if checkClients {
		checker = clientcheck.NewChecker(a.log)
	}
	return strategy.NewManager(a.log, config.ViperLookup(a.v), checker).LoadConfig(ctx)
}

// openHistory opens the configured history store; nil when none is configured
func (a *app) openHistory() (history.Store, error) {
	store, err := history.Open(a.settings, a.log)
	if err != nil {
		return nil, err
	}
	if store != nil {
		a.closers = append(a.closers, store)
	}
	return store, nil
}

// newManager builds the orchestrator, recording sessions when history is configured
func (a *app) newManager(cfg config.BackupConfig) *backup.Manager {
	opts := []backup.Option{backup.WithLogger(a.log)}

	store, err := a.openHistory()
	if err != nil {
		a.log.WithError(err).Warn("Session history unavailable, continuing without it")
	} else if store != nil {
		opts = append(opts, backup.WithRecorder(store))
	}
	return backup.NewManager(cfg, opts...)
}

// writeStructured renders v as json or yaml
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func validOutput(format string) error {
	switch format {
	case "text", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s (use text, json or yaml)", format)
	}
}
