// Package history persists a summary of finished backup sessions.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/supporttools/BackupFlow/pkg/backup"
	"github.com/supporttools/BackupFlow/pkg/config"
)

// SessionRecord is the stored form of a backup session
type SessionRecord struct {
	ID               string           `json:"id" yaml:"id"`
	Status           string           `json:"status" yaml:"status"`
	Success          bool             `json:"success" yaml:"success"`
	Error            string           `json:"error,omitempty" yaml:"error,omitempty"`
	StartTime        time.Time        `json:"startTime" yaml:"start_time"`
	EndTime          time.Time        `json:"endTime" yaml:"end_time"`
	DurationSeconds  float64          `json:"durationSeconds" yaml:"duration_seconds"`
	TotalDatabases   int              `json:"totalDatabases" yaml:"total_databases"`
	TotalStorages    int              `json:"totalStorages" yaml:"total_storages"`
	TotalBackupFiles int              `json:"totalBackupFiles" yaml:"total_backup_files"`
	Strategies       []StrategyRecord `json:"strategies" yaml:"strategies"`
}

// StrategyRecord is the stored form of one strategy result
type StrategyRecord struct {
	StrategyID      string   `json:"strategyId" yaml:"strategy_id"`
	Status          string   `json:"status" yaml:"status"`
	Success         bool     `json:"success" yaml:"success"`
	Error           string   `json:"error,omitempty" yaml:"error,omitempty"`
	Uploads         int      `json:"uploads" yaml:"uploads"`
	RemotePaths     []string `json:"remotePaths,omitempty" yaml:"remote_paths,omitempty"`
	DurationSeconds float64  `json:"durationSeconds" yaml:"duration_seconds"`
}

// FromSession converts a session into its stored form
func FromSession(s *backup.Session) SessionRecord {
	record := SessionRecord{
		ID:               s.ID,
		Status:           string(s.Status),
		Success:          s.Success,
		Error:            s.Error,
		StartTime:        s.StartTime,
		EndTime:          s.EndTime,
		DurationSeconds:  s.Duration.Seconds(),
		TotalDatabases:   s.TotalDatabases,
		TotalStorages:    s.TotalStorages,
		TotalBackupFiles: s.TotalBackupFiles,
	}
	for _, r := range s.Results {
		sr := StrategyRecord{
			StrategyID:      r.StrategyID,
			Status:          string(r.Status),
			Success:         r.Success,
			Error:           r.Error,
			Uploads:         r.UploadCount(),
			DurationSeconds: r.Duration.Seconds(),
		}
		for _, u := range r.Uploads {
			sr.RemotePaths = append(sr.RemotePaths, fmt.Sprintf("%s://%s/%s", u.StorageType, u.Bucket, u.RemotePath))
		}
		record.Strategies = append(record.Strategies, sr)
	}
	return record
}

// Store records sessions and lists the most recent ones, newest first
type Store interface {
	Record(ctx context.Context, s *backup.Session) error
	List(ctx context.Context, limit int) ([]SessionRecord, error)
	Close() error
}

// Open returns the store selected by settings: the database when HistoryDSN
// is set, the JSON file when HistoryFile is set, otherwise nil.
func Open(settings config.AppSettings, log logrus.FieldLogger) (Store, error) {
	switch {
	case settings.HistoryDSN != "":
		store, err := NewDBStore(settings.HistoryDSN, settings.Debug, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	case settings.HistoryFile != "":
		store, err := NewFileStore(settings.HistoryFile, settings.HistoryLimit, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, nil
	}
}
