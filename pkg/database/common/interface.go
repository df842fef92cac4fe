// Package common provides shared types and helpers for database adapters
package common

import (
	"context"
	"time"
)

// Adapter is implemented by every database engine adapter
type Adapter interface {
	// TestConnection verifies the server is reachable with the configured credentials
	TestConnection(ctx context.Context) error

	// CreateSingleDatabaseBackup dumps one database to outputPath.
	// A path ending in .gz produces a gzip-compressed dump.
	CreateSingleDatabaseBackup(ctx context.Context, databaseName, outputPath string) (*BackupResult, error)

	// ValidateBackup checks that a dump file looks like output of this engine's dump tool
	ValidateBackup(path string) error

	// GetDatabaseInfo returns server version and size details
	GetDatabaseInfo(ctx context.Context) (map[string]any, error)

	// BackupCommand returns the dump command line with credentials hidden
	BackupCommand(databaseName string) string

	// Close releases any held resources
	Close() error
}

// BackupResult describes a finished dump
type BackupResult struct {
	Success   bool          `json:"success"`
	Path      string        `json:"path"`
	SizeBytes int64         `json:"sizeBytes"`
	Duration  time.Duration `json:"duration"`
	Client    string        `json:"client"`
	Error     string        `json:"error,omitempty"`
}
