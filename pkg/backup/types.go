package backup

import (
	"time"

	"github.com/supporttools/BackupFlow/pkg/config"
)

// StrategyStatus is the lifecycle state of one strategy run
type StrategyStatus string

const (
	StrategyPending   StrategyStatus = "pending"
	StrategyRunning   StrategyStatus = "running"
	StrategySucceeded StrategyStatus = "succeeded"
	StrategyFailed    StrategyStatus = "failed"
)

// SessionStatus is the lifecycle state of a backup session
type SessionStatus string

const (
	SessionStarted           SessionStatus = "started"
	SessionRunningStrategies SessionStatus = "running_strategies"
	SessionAllSucceeded      SessionStatus = "all_succeeded"
	SessionPartialSuccess    SessionStatus = "partial_success"
	SessionAllFailed         SessionStatus = "all_failed"
)

// UploadRecord describes one artifact copy stored in one storage target
type UploadRecord struct {
	BackupID     string `json:"backupId" yaml:"backup_id"`
	Key          string `json:"key" yaml:"key"`
	DatabaseType string `json:"databaseType" yaml:"database_type"`
	Database     string `json:"database" yaml:"database"`
	LocalPath    string `json:"localPath" yaml:"local_path"`
	StorageType  string `json:"storageType" yaml:"storage_type"`
	Bucket       string `json:"bucket" yaml:"bucket"`
	RemotePath   string `json:"remotePath" yaml:"remote_path"`
	SizeBytes    int64  `json:"sizeBytes" yaml:"size_bytes"`
}

// StrategyExecutionResult is the outcome of one strategy.
// BackupFiles and RemotePaths are keyed by host_database and hold one entry per upload.
type StrategyExecutionResult struct {
	StrategyID      string              `json:"strategyId" yaml:"strategy_id"`
	Status          StrategyStatus      `json:"status" yaml:"status"`
	Success         bool                `json:"success" yaml:"success"`
	Error           string              `json:"error,omitempty" yaml:"error,omitempty"`
	BackupFiles     map[string][]string `json:"backupFiles" yaml:"backup_files"`
	RemotePaths     map[string][]string `json:"remotePaths" yaml:"remote_paths"`
	Uploads         []UploadRecord      `json:"uploads" yaml:"uploads"`
	StartTime       time.Time           `json:"startTime" yaml:"start_time"`
	EndTime         time.Time           `json:"endTime" yaml:"end_time"`
	Duration        time.Duration       `json:"-" yaml:"-"`
	DurationSeconds float64             `json:"durationSeconds" yaml:"duration_seconds"`
}

func newStrategyResult(id string, start time.Time) *StrategyExecutionResult {
	return &StrategyExecutionResult{
		StrategyID:  id,
		Status:      StrategyPending,
		BackupFiles: make(map[string][]string),
		RemotePaths: make(map[string][]string),
		StartTime:   start,
	}
}

// UploadCount returns the number of stored artifact copies
func (r *StrategyExecutionResult) UploadCount() int {
	n := 0
	for _, paths := range r.RemotePaths {
		n += len(paths)
	}
	return n
}

func (r *StrategyExecutionResult) addUpload(u UploadRecord) {
	r.BackupFiles[u.Key] = append(r.BackupFiles[u.Key], u.LocalPath)
	r.RemotePaths[u.Key] = append(r.RemotePaths[u.Key], u.RemotePath)
	r.Uploads = append(r.Uploads, u)
}

// Session is the outcome of one run over every configured strategy
type Session struct {
	ID               string                    `json:"id" yaml:"id"`
	Status           SessionStatus             `json:"status" yaml:"status"`
	Success          bool                      `json:"success" yaml:"success"`
	Error            string                    `json:"error,omitempty" yaml:"error,omitempty"`
	StartTime        time.Time                 `json:"startTime" yaml:"start_time"`
	EndTime          time.Time                 `json:"endTime" yaml:"end_time"`
	Duration         time.Duration             `json:"-" yaml:"-"`
	DurationSeconds  float64                   `json:"durationSeconds" yaml:"duration_seconds"`
	TotalDatabases   int                       `json:"totalDatabases" yaml:"total_databases"`
	TotalStorages    int                       `json:"totalStorages" yaml:"total_storages"`
	TotalBackupFiles int                       `json:"totalBackupFiles" yaml:"total_backup_files"`
	Results          []StrategyExecutionResult `json:"results" yaml:"results"`
	Config           config.BackupConfig       `json:"config" yaml:"config"`
}

// Succeeded returns the ids of strategies that succeeded
func (s *Session) Succeeded() []string {
	var ids []string
	for _, r := range s.Results {
		if r.Success {
			ids = append(ids, r.StrategyID)
		}
	}
	return ids
}

// Failed returns the results of strategies that failed
func (s *Session) Failed() []StrategyExecutionResult {
	var failed []StrategyExecutionResult
	for _, r := range s.Results {
		if !r.Success {
			failed = append(failed, r)
		}
	}
	return failed
}
