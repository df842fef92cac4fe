// Package clientcheck verifies that the tooling needed to dump each database engine is present.
package clientcheck

import (
	"context"
	"database/sql"
	"fmt"
	"os/exec"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/supporttools/BackupFlow/pkg/backuperr"
	"github.com/supporttools/BackupFlow/pkg/config"
)

// ClientType is the kind of client that will perform dumps for an engine
type ClientType string

const (
	// ClientSystem means the engine's command line tools are installed
	ClientSystem ClientType = "system"
	// ClientLibrary means only the Go SQL driver is available
	ClientLibrary ClientType = "library"
)

// probeTimeout bounds each "<tool> --version" probe
const probeTimeout = 5 * time.Second

// CommandRunner runs a command and reports whether it exited successfully
type CommandRunner func(ctx context.Context, name string, args ...string) error

// execRunner runs commands through os/exec, discarding output
func execRunner(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// engineTools lists the binaries that must all be present for system mode
var engineTools = map[config.DatabaseType][]string{
	config.DatabaseMySQL:      {"mysqldump", "mysql"},
	config.DatabasePostgreSQL: {"pg_dump", "psql"},
}

// engineDrivers maps engines to database/sql driver names
var engineDrivers = map[config.DatabaseType]string{
	config.DatabaseMySQL:      "mysql",
	config.DatabasePostgreSQL: "postgres",
}

// Checker probes for database client tooling
type Checker struct {
	log     logrus.FieldLogger
	run     CommandRunner
	drivers func() []string
}

// Option configures a Checker
type Option func(*Checker)

// WithRunner replaces the command runner used for probes
func WithRunner(run CommandRunner) Option {
	return func(c *Checker) { c.run = run }
}

// WithDrivers replaces the source of registered SQL driver names
func WithDrivers(drivers func() []string) Option {
	return func(c *Checker) { c.drivers = drivers }
}

// NewChecker creates a checker
func NewChecker(log logrus.FieldLogger, opts ...Option) *Checker {
	c := &Checker{
		log:     log,
		run:     execRunner,
		drivers: sql.Drivers,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckAll checks every distinct engine in types. It fails with a single
// ClientUnavailable error naming all engines that have no usable client.
func (c *Checker) CheckAll(ctx context.Context, types []config.DatabaseType) (map[config.DatabaseType]ClientType, error) {
	result := make(map[config.DatabaseType]ClientType)
	var missing []string

	seen := make(map[config.DatabaseType]bool)
	for _, dbType := range types {
		if seen[dbType] {
			continue
		}
		seen[dbType] = true

		clientType, ok := c.Check(ctx, dbType)
		if !ok {
			missing = append(missing, string(dbType))
			continue
		}
		result[dbType] = clientType
		c.log.WithField("database", dbType).WithField("client", clientType).Info("Database client available")
	}

	if len(missing) > 0 {
		return result, backuperr.ClientUnavailable(nil,
			"missing client tools for the following database types: %s", strings.Join(missing, ", "))
	}

	return result, nil
}

// Check returns the client type usable for one engine
func (c *Checker) Check(ctx context.Context, dbType config.DatabaseType) (ClientType, bool) {
	if _, known := engineTools[dbType]; !known {
		c.log.WithField("database", dbType).Warn("Unsupported database type")
		return "", false
	}
	if c.SystemAvailable(ctx, dbType) {
		return ClientSystem, true
	}
	if c.LibraryAvailable(dbType) {
		return ClientLibrary, true
	}
	return "", false
}

// SystemAvailable reports whether all command line tools for the engine respond to --version
func (c *Checker) SystemAvailable(ctx context.Context, dbType config.DatabaseType) bool {
	tools, ok := engineTools[dbType]
	if !ok {
		return false
	}

	for _, tool := range tools {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := c.run(probeCtx, tool, "--version")
		cancel()
		if err != nil {
			c.log.WithField("tool", tool).WithError(err).Debug("System client tool not available")
			return false
		}
	}

	c.log.WithField("database", dbType).Debug("System client tools check passed")
	return true
}

// LibraryAvailable reports whether a Go SQL driver for the engine is registered
func (c *Checker) LibraryAvailable(dbType config.DatabaseType) bool {
	driver, ok := engineDrivers[dbType]
	if !ok {
		return false
	}
	return slices.Contains(c.drivers(), driver)
}

// Availability describes the clients found for one engine
type Availability struct {
	SystemAvailable  bool `json:"systemAvailable" yaml:"system_available"`
	LibraryAvailable bool `json:"libraryAvailable" yaml:"library_available"`
}

// Summary reports client availability for every supported engine
func (c *Checker) Summary(ctx context.Context) map[config.DatabaseType]Availability {
	summary := make(map[config.DatabaseType]Availability, len(engineTools))
	for dbType := range engineTools {
		summary[dbType] = Availability{
			SystemAvailable:  c.SystemAvailable(ctx, dbType),
			LibraryAvailable: c.LibraryAvailable(dbType),
		}
	}
	return summary
}

// installCommands holds per-platform installation commands
var installCommands = map[config.DatabaseType][][2]string{
	config.DatabaseMySQL: {
		{"ubuntu/debian", "sudo apt-get install -y mysql-client"},
		{"centos/rhel", "sudo yum install -y mysql"},
		{"macos", "brew install mysql-client"},
		{"windows", "Download and install MySQL Community Server"},
	},
	config.DatabasePostgreSQL: {
		{"ubuntu/debian", "sudo apt-get install -y postgresql-client"},
		{"centos/rhel", "sudo yum install -y postgresql"},
		{"macos", "brew install postgresql"},
		{"windows", "Download and install PostgreSQL"},
	},
}

// platformFor maps runtime.GOOS to the platform label used in guidance
func platformFor(goos string) string {
	switch goos {
	case "darwin":
		return "macos"
	case "windows":
		return "windows"
	default:
		return "ubuntu/debian"
	}
}

// InstallationGuidance renders install instructions for the given engines,
// marking the entry that matches the current platform
func InstallationGuidance(types []config.DatabaseType) string {
	current := platformFor(runtime.GOOS)
	highlight := color.New(color.FgGreen, color.Bold).SprintFunc()
	heading := color.New(color.FgRed, color.Bold).SprintFunc()

	var b strings.Builder
	for _, dbType := range types {
		commands, ok := installCommands[dbType]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s %s client tools:\n", heading("✗"), dbType)
		for _, entry := range commands {
			line := fmt.Sprintf("  %-14s %s", entry[0]+":", entry[1])
			if entry[0] == current {
				line = highlight(line)
			}
			b.WriteString(line + "\n")
		}
		fmt.Fprintf(&b, "  %-14s build with the %s driver (already linked in official builds)\n",
			"go driver:", engineDrivers[dbType])
	}
	return b.String()
}
