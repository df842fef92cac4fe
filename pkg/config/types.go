package config

import "fmt"

// DatabaseType identifies a supported database engine
type DatabaseType string

const (
	// DatabaseMySQL is the MySQL engine
	DatabaseMySQL DatabaseType = "mysql"
	// DatabasePostgreSQL is the PostgreSQL engine
	DatabasePostgreSQL DatabaseType = "postgresql"
)

// DefaultPort returns the well-known port of the engine
func (t DatabaseType) DefaultPort() int {
	switch t {
	case DatabaseMySQL:
		return 3306
	case DatabasePostgreSQL:
		return 5432
	default:
		return 0
	}
}

// StorageType identifies a supported object storage provider
type StorageType string

const (
	// StorageR2 is Cloudflare R2
	StorageR2 StorageType = "r2"
	// StorageS3 is Amazon S3 or any S3-compatible endpoint
	StorageS3 StorageType = "s3"
)

// DefaultConnectionTimeout is the database connection timeout in seconds
const DefaultConnectionTimeout = 30

// DatabaseConfig describes one database server and the databases to dump from it
type DatabaseConfig struct {
	Type              DatabaseType   `json:"type" yaml:"type"`
	Host              string         `json:"host" yaml:"host"`
	Port              int            `json:"port" yaml:"port"`
	Username          string         `json:"username" yaml:"username"`
	Password          string         `json:"-" yaml:"-"`
	DatabaseNames     []string       `json:"databaseNames" yaml:"database_names"`
	ConnectionTimeout int            `json:"connectionTimeout" yaml:"connection_timeout"`
	BackupOptions     map[string]any `json:"backupOptions,omitempty" yaml:"backup_options,omitempty"`
}

// Key identifies a database name on this server in result maps
func (d DatabaseConfig) Key(databaseName string) string {
	return fmt.Sprintf("%s_%s", d.Host, databaseName)
}

// StorageConfig describes one object storage target
type StorageConfig struct {
	Type           StorageType    `json:"type" yaml:"type"`
	Endpoint       *string        `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	AccessKey      string         `json:"-" yaml:"-"`
	SecretKey      string         `json:"-" yaml:"-"`
	Bucket         string         `json:"bucket" yaml:"bucket"`
	Region         string         `json:"region" yaml:"region"`
	Prefix         *string        `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	StorageOptions map[string]any `json:"storageOptions,omitempty" yaml:"storage_options,omitempty"`
}

// EndpointOrEmpty returns the configured endpoint or ""
func (s StorageConfig) EndpointOrEmpty() string {
	if s.Endpoint == nil {
		return ""
	}
	return *s.Endpoint
}

// PrefixOrEmpty returns the configured prefix or ""
func (s StorageConfig) PrefixOrEmpty() string {
	if s.Prefix == nil {
		return ""
	}
	return *s.Prefix
}

// BackupStrategy is an independent unit of backup work: N databases fanned out to M storages
type BackupStrategy struct {
	ID                   string           `json:"id" yaml:"id"`
	Databases            []DatabaseConfig `json:"databases" yaml:"databases"`
	Storages             []StorageConfig  `json:"storages" yaml:"storages"`
	BackupNameTemplate   string           `json:"backupNameTemplate" yaml:"backup_name_template"`
	Compression          bool             `json:"compression" yaml:"compression"`
	RetentionDays        int              `json:"retentionDays" yaml:"retention_days"`
	MaxBackupSizeMB      *int             `json:"maxBackupSizeMB,omitempty" yaml:"max_backup_size_mb,omitempty"`
	BackupTimeoutMinutes int              `json:"backupTimeoutMinutes" yaml:"backup_timeout_minutes"`
	VerifyBackup         bool             `json:"verifyBackup" yaml:"verify_backup"`
}

// Strategy defaults
const (
	DefaultBackupNameTemplate   = "backup_{timestamp}"
	DefaultRetentionDays        = 30
	DefaultBackupTimeoutMinutes = 60
)

// NewBackupStrategy returns a strategy populated with the default settings
func NewBackupStrategy(id string, databases []DatabaseConfig, storages []StorageConfig) BackupStrategy {
	return BackupStrategy{
		ID:                   id,
		Databases:            databases,
		Storages:             storages,
		BackupNameTemplate:   DefaultBackupNameTemplate,
		Compression:          true,
		RetentionDays:        DefaultRetentionDays,
		MaxBackupSizeMB:      nil, // unlimited
		BackupTimeoutMinutes: DefaultBackupTimeoutMinutes,
		VerifyBackup:         true,
	}
}

// BackupConfig is the validated, top-level configuration handed to the orchestrator.
// The global overrides are carried for compatibility and are never consulted.
type BackupConfig struct {
	Strategies          []BackupStrategy `json:"strategies" yaml:"strategies"`
	GlobalCompression   *bool            `json:"globalCompression,omitempty" yaml:"global_compression,omitempty"`
	GlobalRetentionDays *int             `json:"globalRetentionDays,omitempty" yaml:"global_retention_days,omitempty"`
	GlobalVerifyBackup  *bool            `json:"globalVerifyBackup,omitempty" yaml:"global_verify_backup,omitempty"`
}
