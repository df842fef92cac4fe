// Package mysql provides the MySQL database adapter
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"github.com/supporttools/BackupFlow/pkg/backuperr"
	"github.com/supporttools/BackupFlow/pkg/config"
	"github.com/supporttools/BackupFlow/pkg/database/common"
)

// dumpMarkers identify mysqldump output during validation
var dumpMarkers = []string{"mysqldump", "mysql dump"}

// Adapter implements common.Adapter for MySQL
type Adapter struct {
	cfg config.DatabaseConfig
	log logrus.FieldLogger

	open     func(driverName, dsn string) (*sql.DB, error)
	lookPath func(file string) (string, error)
	command  func(ctx context.Context, name string, args ...string) *exec.Cmd
	now      func() time.Time
}

// Option customizes an Adapter
type Option func(*Adapter)

// WithOpener replaces sql.Open
func WithOpener(open func(driverName, dsn string) (*sql.DB, error)) Option {
	return func(a *Adapter) { a.open = open }
}

// WithLookPath replaces exec.LookPath for locating mysqldump
func WithLookPath(lookPath func(string) (string, error)) Option {
	return func(a *Adapter) { a.lookPath = lookPath }
}

// WithCommand replaces exec.CommandContext
func WithCommand(command func(ctx context.Context, name string, args ...string) *exec.Cmd) Option {
	return func(a *Adapter) { a.command = command }
}

// New creates a MySQL adapter
func New(cfg config.DatabaseConfig, log logrus.FieldLogger, opts ...Option) (*Adapter, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}

	a := &Adapter{
		cfg:      cfg,
		log:      log.WithField("database_type", config.DatabaseMySQL).WithField("host", cfg.Host),
		open:     sql.Open,
		lookPath: exec.LookPath,
		command:  exec.CommandContext,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// validate ensures the configuration is usable
func validate(cfg config.DatabaseConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("MySQL host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid MySQL port: %d", cfg.Port)
	}
	if cfg.Username == "" {
		return fmt.Errorf("MySQL user is required")
	}
	return nil
}

// dsn builds a go-sql-driver DSN for the given database ("" for none)
func (a *Adapter) dsn(databaseName string) string {
	c := mysql.NewConfig()
	c.User = a.cfg.Username
	c.Passwd = a.cfg.Password
	c.Net = "tcp"
	c.Addr = fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port)
	c.DBName = databaseName
	c.Timeout = time.Duration(a.cfg.ConnectionTimeout) * time.Second
	return c.FormatDSN()
}

// connect opens and pings a connection pool
func (a *Adapter) connect(ctx context.Context, databaseName string) (*sql.DB, error) {
	db, err := a.open("mysql", a.dsn(databaseName))
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL server: %w", err)
	}
	return db, nil
}

func (a *Adapter) connectionTimeout() time.Duration {
	if a.cfg.ConnectionTimeout <= 0 {
		return config.DefaultConnectionTimeout * time.Second
	}
	return time.Duration(a.cfg.ConnectionTimeout) * time.Second
}

// TestConnection runs SELECT 1 against the server
func (a *Adapter) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.connectionTimeout())
	defer cancel()

	db, err := a.connect(ctx, "")
	if err != nil {
		return err
	}
	defer db.Close()

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("MySQL test query failed: %w", err)
	}

	a.log.Debug("MySQL connection test passed")
	return nil
}

// CreateSingleDatabaseBackup dumps one database with mysqldump, or with the
// built-in SQL client when mysqldump is not installed
func (a *Adapter) CreateSingleDatabaseBackup(ctx context.Context, databaseName, outputPath string) (*common.BackupResult, error) {
	start := a.now()
	result := &common.BackupResult{Path: outputPath}

	out, err := common.CreateOutput(outputPath)
	if err != nil {
		return result, backuperr.BackupExecution(err, "MySQL backup of %s failed", databaseName)
	}

	if _, lookErr := a.lookPath("mysqldump"); lookErr == nil {
		result.Client = "system"
		err = a.systemDump(ctx, databaseName, out)
	} else {
		result.Client = "library"
		a.log.WithField("database", databaseName).Info("mysqldump not found, using built-in SQL client")
		err = a.libraryDump(ctx, databaseName, out)
	}

	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	result.Duration = a.now().Sub(start)

	if err != nil {
		os.Remove(outputPath)
		result.Error = err.Error()
		return result, backuperr.BackupExecution(err, "MySQL backup of %s failed", databaseName)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return result, backuperr.BackupExecution(err, "MySQL backup of %s produced no file", databaseName)
	}
	result.Success = true
	result.SizeBytes = info.Size()

	a.log.WithFields(logrus.Fields{
		"database": databaseName,
		"client":   result.Client,
		"bytes":    result.SizeBytes,
		"duration": result.Duration.String(),
	}).Info("MySQL backup created")

	return result, nil
}

// dumpArgs builds the mysqldump arguments after --defaults-file
func (a *Adapter) dumpArgs(databaseName string) []string {
	args := []string{
		"--host=" + a.cfg.Host,
		"--port=" + strconv.Itoa(a.cfg.Port),
		"--user=" + a.cfg.Username,
		"--max-allowed-packet=1024M",
		"--single-transaction",
		"--quick",
		"--triggers",
		"--routines",
		"--events",
		"--set-gtid-purged=OFF",
	}
	args = append(args, common.OptionArgs(a.cfg.BackupOptions)...)
	return append(args, databaseName)
}

// systemDump runs mysqldump with the password supplied through a private option file
func (a *Adapter) systemDump(ctx context.Context, databaseName string, out *common.Output) error {
	optionFile, err := a.writeOptionFile()
	if err != nil {
		return err
	}
	defer os.Remove(optionFile)

	args := append([]string{"--defaults-extra-file=" + optionFile}, a.dumpArgs(databaseName)...)
	cmd := a.command(ctx, "mysqldump", args...)

	a.log.WithField("command", a.BackupCommand(databaseName)).Debug("Running mysqldump")
	return common.RunCommand(ctx, cmd, out)
}

// writeOptionFile writes a 0600 [client] option file holding the password
func (a *Adapter) writeOptionFile() (string, error) {
	f, err := os.CreateTemp("", "backupflow-mysql-*.cnf")
	if err != nil {
		return "", fmt.Errorf("failed to create MySQL option file: %w", err)
	}
	defer f.Close()

	if err := f.Chmod(0600); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to secure MySQL option file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "[client]\npassword=\"%s\"\n", optionValue(a.cfg.Password)); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write MySQL option file: %w", err)
	}
	return f.Name(), nil
}

// optionEscaper applies the escapes MySQL recognizes in option file values
var optionEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`'`, `\'`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
	"\b", `\b`,
)

// optionValue escapes s for a double-quoted option file value
func optionValue(s string) string {
	return optionEscaper.Replace(s)
}

// BackupCommand returns the mysqldump command line without credentials
func (a *Adapter) BackupCommand(databaseName string) string {
	args := append([]string{"--defaults-extra-file=<temp>"}, a.dumpArgs(databaseName)...)
	return common.RedactArgs("mysqldump", args)
}

// ValidateBackup checks the dump header
func (a *Adapter) ValidateBackup(path string) error {
	if err := common.ValidateDump(path, dumpMarkers); err != nil {
		return backuperr.BackupExecution(err, "MySQL backup validation failed")
	}
	a.log.WithField("path", path).Debug("MySQL backup validation passed")
	return nil
}

// Close releases resources. Connections are opened per call, so there is nothing to release.
func (a *Adapter) Close() error {
	return nil
}
