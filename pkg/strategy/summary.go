package strategy

import "github.com/supporttools/BackupFlow/pkg/config"

// Summary describes the configured strategies without credentials
type Summary struct {
	TotalStrategies int               `json:"totalStrategies" yaml:"total_strategies"`
	Strategies      []StrategySummary `json:"strategies" yaml:"strategies"`
}

// StrategySummary describes one strategy
type StrategySummary struct {
	ID        string            `json:"id" yaml:"strategy_id"`
	Databases []DatabaseSummary `json:"databases" yaml:"databases"`
	Storages  []StorageSummary  `json:"storages" yaml:"storages"`
	Settings  SettingsSummary   `json:"settings" yaml:"settings"`
}

// DatabaseSummary describes one database server entry
type DatabaseSummary struct {
	Type          config.DatabaseType `json:"type" yaml:"type"`
	Host          string              `json:"host" yaml:"host"`
	Port          int                 `json:"port" yaml:"port"`
	DatabaseCount int                 `json:"databaseCount" yaml:"database_count"`
	DatabaseNames []string            `json:"databaseNames" yaml:"database_names"`
}

// StorageSummary describes one storage target
type StorageSummary struct {
	Type   config.StorageType `json:"type" yaml:"type"`
	Bucket string             `json:"bucket" yaml:"bucket"`
	Region string             `json:"region" yaml:"region"`
	Prefix *string            `json:"prefix" yaml:"prefix"`
}

// SettingsSummary holds the per-strategy tunables
type SettingsSummary struct {
	BackupNameTemplate   string `json:"backupNameTemplate" yaml:"backup_name_template"`
	Compression          bool   `json:"compression" yaml:"compression"`
	RetentionDays        int    `json:"retentionDays" yaml:"retention_days"`
	VerifyBackup         bool   `json:"verifyBackup" yaml:"verify_backup"`
	BackupTimeoutMinutes int    `json:"backupTimeoutMinutes" yaml:"backup_timeout_minutes"`
	MaxBackupSizeMB      *int   `json:"maxBackupSizeMB,omitempty" yaml:"max_backup_size_mb,omitempty"`
}

// Summary builds a credential-free description of strategies
func (m *Manager) Summary(strategies []config.BackupStrategy) Summary {
	summary := Summary{
		TotalStrategies: len(strategies),
		Strategies:      make([]StrategySummary, 0, len(strategies)),
	}

	for _, s := range strategies {
		info := StrategySummary{
			ID: s.ID,
			Settings: SettingsSummary{
				BackupNameTemplate:   s.BackupNameTemplate,
				Compression:          s.Compression,
				RetentionDays:        s.RetentionDays,
				VerifyBackup:         s.VerifyBackup,
				BackupTimeoutMinutes: s.BackupTimeoutMinutes,
				MaxBackupSizeMB:      s.MaxBackupSizeMB,
			},
		}
		for _, db := range s.Databases {
			info.Databases = append(info.Databases, DatabaseSummary{
				Type:          db.Type,
				Host:          db.Host,
				Port:          db.Port,
				DatabaseCount: len(db.DatabaseNames),
				DatabaseNames: db.DatabaseNames,
			})
		}
		for _, storage := range s.Storages {
			info.Storages = append(info.Storages, StorageSummary{
				Type:   storage.Type,
				Bucket: storage.Bucket,
				Region: storage.Region,
				Prefix: storage.Prefix,
			})
		}
		summary.Strategies = append(summary.Strategies, info)
	}

	return summary
}
