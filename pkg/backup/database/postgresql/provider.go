// Package postgresql provides the PostgreSQL database adapter
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/supporttools/BackupFlow/pkg/backuperr"
	"github.com/supporttools/BackupFlow/pkg/config"
	"github.com/supporttools/BackupFlow/pkg/database/common"
)

// dumpMarkers identify pg_dump output during validation
var dumpMarkers = []string{"pg_dump", "postgresql"}

// Adapter implements common.Adapter for PostgreSQL
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

// WithLookPath replaces exec.LookPath for locating pg_dump
func WithLookPath(lookPath func(string) (string, error)) Option {
	return func(a *Adapter) { a.lookPath = lookPath }
}

// WithCommand replaces exec.CommandContext
func WithCommand(command func(ctx context.Context, name string, args ...string) *exec.Cmd) Option {
	return func(a *Adapter) { a.command = command }
}

// New creates a PostgreSQL adapter
func New(cfg config.DatabaseConfig, log logrus.FieldLogger, opts ...Option) (*Adapter, error) {
	if cfg.Host == "" {
		return nil, errors.New("PostgreSQL host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid PostgreSQL port: %d", cfg.Port)
	}
	if cfg.Username == "" {
		return nil, errors.New("PostgreSQL user is required")
	}
	if _, _, err := sslMode(cfg); err != nil {
		return nil, err
	}

	a := &Adapter{
		cfg:      cfg,
		log:      log.WithField("database_type", config.DatabasePostgreSQL).WithField("host", cfg.Host),
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

// sslMode returns the sslmode handed to lib/pq. lib/pq has no prefer or allow
// mode, so those (and an unset mode) start with require and report fallback.
func sslMode(cfg config.DatabaseConfig) (mode string, fallback bool, err error) {
	raw, _ := cfg.BackupOptions["sslmode"].(string)
	switch raw = strings.ToLower(strings.TrimSpace(raw)); raw {
	case "", "prefer", "allow":
		return "require", true, nil
	case "disable", "require", "verify-ca", "verify-full":
		return raw, false, nil
	default:
		return "", false, fmt.Errorf("unsupported PostgreSQL sslmode: %s", raw)
	}
}

// dsn builds a lib/pq connection URL for the given database
func (a *Adapter) dsn(databaseName, sslmode string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(a.cfg.Username, a.cfg.Password),
		Host:   fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port),
		Path:   "/" + databaseName,
	}
	q := url.Values{}
	q.Set("sslmode", sslmode)
	q.Set("connect_timeout", strconv.Itoa(int(a.connectionTimeout().Seconds())))
	u.RawQuery = q.Encode()
	return u.String()
}

func (a *Adapter) connectionTimeout() time.Duration {
	if a.cfg.ConnectionTimeout <= 0 {
		return config.DefaultConnectionTimeout * time.Second
	}
	return time.Duration(a.cfg.ConnectionTimeout) * time.Second
}

// firstDatabase is the database used for server level queries
func (a *Adapter) firstDatabase() string {
	if len(a.cfg.DatabaseNames) > 0 {
		return a.cfg.DatabaseNames[0]
	}
	return "postgres"
}

// connect opens and pings a connection pool. Without an explicit sslmode a
// server that refuses SSL is retried in plain text.
func (a *Adapter) connect(ctx context.Context, databaseName string) (*sql.DB, error) {
	mode, fallback, err := sslMode(a.cfg)
	if err != nil {
		return nil, err
	}
	db, err := a.ping(ctx, databaseName, mode)
	if err != nil && fallback && errors.Is(err, pq.ErrSSLNotSupported) {
		a.log.Debug("Server does not support SSL, connecting without it")
		db, err = a.ping(ctx, databaseName, "disable")
	}
	return db, err
}

func (a *Adapter) ping(ctx context.Context, databaseName, sslmode string) (*sql.DB, error) {
	db, err := a.open("postgres", a.dsn(databaseName, sslmode))
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL server: %w", err)
	}
	return db, nil
}

// TestConnection runs SELECT 1 against the first configured database
func (a *Adapter) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.connectionTimeout())
	defer cancel()

	db, err := a.connect(ctx, a.firstDatabase())
	if err != nil {
		return err
	}
	defer db.Close()

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("PostgreSQL test query failed: %w", err)
	}

	a.log.Debug("PostgreSQL connection test passed")
	return nil
}

// CreateSingleDatabaseBackup dumps one database with pg_dump, or with the
// built-in SQL client when pg_dump is not installed
func (a *Adapter) CreateSingleDatabaseBackup(ctx context.Context, databaseName, outputPath string) (*common.BackupResult, error) {
	start := a.now()
	result := &common.BackupResult{Path: outputPath}

	out, err := common.CreateOutput(outputPath)
	if err != nil {
		return result, backuperr.BackupExecution(err, "PostgreSQL backup of %s failed", databaseName)
	}

	if _, lookErr := a.lookPath("pg_dump"); lookErr == nil {
		result.Client = "system"
		err = a.systemDump(ctx, databaseName, out)
	} else {
		result.Client = "library"
		a.log.WithField("database", databaseName).Info("pg_dump not found, using built-in SQL client")
		err = a.libraryDump(ctx, databaseName, out)
	}

	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	result.Duration = a.now().Sub(start)

	if err != nil {
		os.Remove(outputPath)
		result.Error = err.Error()
		return result, backuperr.BackupExecution(err, "PostgreSQL backup of %s failed", databaseName)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return result, backuperr.BackupExecution(err, "PostgreSQL backup of %s produced no file", databaseName)
	}
	result.Success = true
	result.SizeBytes = info.Size()

	a.log.WithFields(logrus.Fields{
		"database": databaseName,
		"client":   result.Client,
		"bytes":    result.SizeBytes,
		"duration": result.Duration.String(),
	}).Info("PostgreSQL backup created")

	return result, nil
}

// dumpArgs builds the pg_dump arguments
func (a *Adapter) dumpArgs(databaseName string) []string {
	args := []string{
		"--host=" + a.cfg.Host,
		"--port=" + strconv.Itoa(a.cfg.Port),
		"--username=" + a.cfg.Username,
		"--no-password",
		"--clean",
		"--no-owner",
		"--no-privileges",
	}
	options := make(map[string]any, len(a.cfg.BackupOptions))
	for k, v := range a.cfg.BackupOptions {
		// sslmode is a connection setting, not a pg_dump flag
		if k != "sslmode" {
			options[k] = v
		}
	}
	args = append(args, common.OptionArgs(options)...)
	return append(args, "--dbname="+databaseName)
}

// systemDump runs pg_dump with the password passed through PGPASSWORD
func (a *Adapter) systemDump(ctx context.Context, databaseName string, out *common.Output) error {
	cmd := a.command(ctx, "pg_dump", a.dumpArgs(databaseName)...)
	cmd.Env = append(os.Environ(), "PGPASSWORD="+a.cfg.Password, "PGCONNECT_TIMEOUT="+strconv.Itoa(int(a.connectionTimeout().Seconds())))
	if mode, ok := a.cfg.BackupOptions["sslmode"].(string); ok && mode != "" {
		cmd.Env = append(cmd.Env, "PGSSLMODE="+mode)
	}

	a.log.WithField("command", a.BackupCommand(databaseName)).Debug("Running pg_dump")
	return common.RunCommand(ctx, cmd, out)
}

// BackupCommand returns the pg_dump command line. The password never appears on it.
func (a *Adapter) BackupCommand(databaseName string) string {
	return common.RedactArgs("pg_dump", a.dumpArgs(databaseName))
}

// ValidateBackup checks the dump header
func (a *Adapter) ValidateBackup(path string) error {
	if err := common.ValidateDump(path, dumpMarkers); err != nil {
		return backuperr.BackupExecution(err, "PostgreSQL backup validation failed")
	}
	a.log.WithField("path", path).Debug("PostgreSQL backup validation passed")
	return nil
}

// Close releases resources. Connections are opened per call.
func (a *Adapter) Close() error {
	return nil
}
