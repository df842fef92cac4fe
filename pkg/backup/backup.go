// Package backup runs backup strategies: every database of a strategy is
// dumped once and the artifact is uploaded to every storage of that strategy.
package backup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/supporttools/BackupFlow/pkg/backuperr"
	"github.com/supporttools/BackupFlow/pkg/config"
	"github.com/supporttools/BackupFlow/pkg/database"
	dbcommon "github.com/supporttools/BackupFlow/pkg/database/common"
	"github.com/supporttools/BackupFlow/pkg/metrics"
	"github.com/supporttools/BackupFlow/pkg/storage"
	storagecommon "github.com/supporttools/BackupFlow/pkg/storage/common"
	"github.com/supporttools/BackupFlow/pkg/storage/local"
)

// ErrNoStrategies is returned by Run when the configuration holds no strategies
var ErrNoStrategies = errors.New("no backup strategies configured")

// DatabaseFactory creates a database adapter
type DatabaseFactory func(cfg config.DatabaseConfig, log logrus.FieldLogger) (dbcommon.Adapter, error)

// StorageFactory creates a storage adapter
type StorageFactory func(cfg config.StorageConfig, log logrus.FieldLogger) (storagecommon.Adapter, error)

// Recorder persists finished sessions
type Recorder interface {
	Record(ctx context.Context, session *Session) error
}

// Manager executes the strategies of a BackupConfig
type Manager struct {
	cfg        config.BackupConfig
	log        logrus.FieldLogger
	newDB      DatabaseFactory
	newStorage StorageFactory
	recorder   Recorder
	tempRoot   string
	now        func() time.Time
	newID      func() string
}

// Option customizes a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(m *Manager) { m.log = log }
}

// WithDatabaseFactory replaces the database registry
func WithDatabaseFactory(f DatabaseFactory) Option {
	return func(m *Manager) { m.newDB = f }
}

// WithStorageFactory replaces the storage registry
func WithStorageFactory(f StorageFactory) Option {
	return func(m *Manager) { m.newStorage = f }
}

// WithRecorder stores every finished session
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithTempRoot sets the directory strategy workspaces are created in
func WithTempRoot(dir string) Option {
	return func(m *Manager) { m.tempRoot = dir }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a backup manager
func NewManager(cfg config.BackupConfig, opts ...Option) *Manager {
	m := &Manager{
		cfg:        cfg,
		log:        logrus.StandardLogger(),
		newDB:      database.New,
		newStorage: storage.New,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run executes every strategy in order. Strategy failures are reported in the
// session and never abort later strategies. An error is returned only when
// there is nothing to run.
func (m *Manager) Run(ctx context.Context) (*Session, error) {
	start := m.now()
	session := &Session{
		ID:        "multi_backup_" + strconv.FormatInt(start.Unix(), 10),
		Status:    SessionStarted,
		StartTime: start,
		Config:    m.cfg,
	}
	log := m.log.WithField("session", session.ID)
	log.Info("Starting multi-strategy backup session")

	if len(m.cfg.Strategies) == 0 {
		session.Status = SessionAllFailed
		session.Error = ErrNoStrategies.Error()
		m.finish(ctx, log, session)
		return session, ErrNoStrategies
	}

	for _, s := range m.cfg.Strategies {
		session.TotalDatabases += len(s.Databases)
		session.TotalStorages += len(s.Storages)
	}
	log.WithFields(logrus.Fields{
		"strategies": len(m.cfg.Strategies),
		"databases":  session.TotalDatabases,
		"storages":   session.TotalStorages,
	}).Info("Executing backup strategies sequentially")

	session.Status = SessionRunningStrategies
	for i, s := range m.cfg.Strategies {
		log.Infof("Executing strategy %d/%d: %s", i+1, len(m.cfg.Strategies), s.ID)
		result := m.executeStrategy(ctx, log.WithField("strategy", s.ID), s)
		session.Results = append(session.Results, *result)
	}

	var failures []string
	for _, r := range session.Results {
		if r.Success {
			session.TotalBackupFiles += r.UploadCount()
			continue
		}
		failures = append(failures, fmt.Sprintf("%s: %s", r.StrategyID, r.Error))
	}

	succeeded := len(session.Results) - len(failures)
	switch {
	case len(failures) == 0:
		session.Status = SessionAllSucceeded
		session.Success = true
	case succeeded > 0:
		session.Status = SessionPartialSuccess
		session.Success = true
	default:
		session.Status = SessionAllFailed
	}
	if len(failures) > 0 {
		session.Error = "some strategies failed: " + strings.Join(failures, "; ")
		log.Warnf("Some strategies failed: %d/%d", len(failures), len(session.Results))
	}

	m.finish(ctx, log, session)
	return session, nil
}

// finish stamps the end time, publishes metrics and records the session
func (m *Manager) finish(ctx context.Context, log logrus.FieldLogger, session *Session) {
	session.EndTime = m.now()
	session.Duration = session.EndTime.Sub(session.StartTime)
	session.DurationSeconds = session.Duration.Seconds()
	metrics.SessionResults.WithLabelValues(string(session.Status)).Inc()

	log.WithFields(logrus.Fields{
		"status":       session.Status,
		"duration":     session.Duration.String(),
		"backup_files": session.TotalBackupFiles,
	}).Info("Multi-strategy backup session completed")

	if m.recorder != nil {
		if err := m.recorder.Record(ctx, session); err != nil {
			log.WithError(err).Warn("Failed to record backup session")
		}
	}
}

// executeStrategy runs one strategy, converting any error or panic into a failed result
func (m *Manager) executeStrategy(ctx context.Context, log logrus.FieldLogger, s config.BackupStrategy) (result *StrategyExecutionResult) {
	result = newStrategyResult(s.ID, m.now())
	result.Status = StrategyRunning

	defer func() {
		if r := recover(); r != nil {
			result.Status = StrategyFailed
			result.Success = false
			result.Error = fmt.Sprintf("strategy panicked: %v", r)
		}
		result.EndTime = m.now()
		result.Duration = result.EndTime.Sub(result.StartTime)
		result.DurationSeconds = result.Duration.Seconds()
		metrics.StrategyResults.WithLabelValues(s.ID, string(result.Status)).Inc()

		if result.Success {
			metrics.LastSuccessTimestamp.WithLabelValues(s.ID).Set(float64(result.EndTime.Unix()))
			log.WithField("duration", result.Duration.String()).Info("Strategy executed successfully")
		} else {
			log.WithField("error", result.Error).Error("Strategy execution failed")
		}
	}()

	if err := m.runStrategy(ctx, log, s, result); err != nil {
		result.Status = StrategyFailed
		result.Error = err.Error()
		return result
	}
	result.Status = StrategySucceeded
	result.Success = true
	return result
}

func (m *Manager) runStrategy(ctx context.Context, log logrus.FieldLogger, s config.BackupStrategy, result *StrategyExecutionResult) error {
	log.WithFields(logrus.Fields{
		"databases": len(s.Databases),
		"storages":  len(s.Storages),
	}).Info("Starting strategy execution")

	if err := ctx.Err(); err != nil {
		return backuperr.BackupExecution(err, "backup session cancelled")
	}

	ws, err := local.NewWorkspace(m.tempRoot, s.ID, log)
	if err != nil {
		return backuperr.BackupExecution(err, "failed to prepare backup workspace")
	}
	defer ws.Cleanup()

	targets := newStorageTargets(s.Storages, m.newStorage, log)

	for _, dbCfg := range s.Databases {
		if err := m.backupServer(ctx, log, s, dbCfg, ws, targets, result); err != nil {
			return err
		}
	}
	return nil
}

// backupServer backs up every database name of one database config
func (m *Manager) backupServer(ctx context.Context, log logrus.FieldLogger, s config.BackupStrategy, dbCfg config.DatabaseConfig,
	ws *local.Workspace, targets *storageTargets, result *StrategyExecutionResult) error {
	log = log.WithFields(logrus.Fields{"database_type": dbCfg.Type, "host": dbCfg.Host})
	log.Info("Processing database server")

	adapter, err := m.newDB(dbCfg, log)
	if err != nil {
		return err
	}
	defer adapter.Close()

	if err := adapter.TestConnection(ctx); err != nil {
		return backuperr.Connectivity(err, "database connection failed: %s", dbCfg.Host)
	}

	for _, name := range dbCfg.DatabaseNames {
		if err := m.backupDatabase(ctx, log.WithField("database", name), s, dbCfg, adapter, name, ws, targets, result); err != nil {
			return err
		}
	}
	return nil
}

// backupDatabase dumps one database and uploads it to every storage target.
// The dump, verification and uploads share one timeout.
func (m *Manager) backupDatabase(ctx context.Context, log logrus.FieldLogger, s config.BackupStrategy, dbCfg config.DatabaseConfig,
	adapter dbcommon.Adapter, name string, ws *local.Workspace, targets *storageTargets, result *StrategyExecutionResult) error {
	ctx, cancel := context.WithTimeout(ctx, strategyTimeout(s))
	defer cancel()

	backupTime := m.now()
	fileName := BackupFileName(backupTime, dbCfg.Type, name, s.Compression)
	path := ws.Path(fileName)
	defer ws.Remove(path)

	log.WithField("path", path).Info("Backing up database")
	log.WithField("command", adapter.BackupCommand(name)).Debug("Backup command")

	dump, err := adapter.CreateSingleDatabaseBackup(ctx, name, path)
	if err != nil {
		metrics.BackupCount.WithLabelValues(s.ID, string(dbCfg.Type), "error").Inc()
		return asExecution(err, "database backup failed: %s", name)
	}
	metrics.BackupCount.WithLabelValues(s.ID, string(dbCfg.Type), "success").Inc()
	metrics.BackupDuration.WithLabelValues(s.ID, string(dbCfg.Type)).Observe(dump.Duration.Seconds())

	size, err := ws.RecordBackupMetrics(path, s.ID, name)
	if err != nil {
		return backuperr.BackupExecution(err, "database backup failed: %s", name)
	}
	if s.MaxBackupSizeMB != nil && size > int64(*s.MaxBackupSizeMB)*1024*1024 {
		return backuperr.BackupExecution(nil, "backup of %s is %s, exceeding the %d MB limit",
			name, humanize.IBytes(uint64(size)), *s.MaxBackupSizeMB)
	}

	if s.VerifyBackup {
		if err := adapter.ValidateBackup(path); err != nil {
			return asExecution(err, "backup file validation failed: %s", fileName)
		}
	}

	backupID := m.newID()
	metadata := map[string]string{
		"strategy_id":   s.ID,
		"backup_id":     backupID,
		"backup_time":   backupTime.Format(time.RFC3339),
		"database_type": string(dbCfg.Type),
		"database_name": name,
		"compression":   strconv.FormatBool(s.Compression),
	}

	for i, stCfg := range s.Storages {
		target, err := targets.get(ctx, i)
		if err != nil {
			return err
		}

		remotePath := RemotePath(stCfg.PrefixOrEmpty(), fileName)
		log.WithFields(logrus.Fields{
			"storage": fmt.Sprintf("%s/%s", stCfg.Type, stCfg.Bucket),
			"remote":  remotePath,
		}).Info("Uploading to storage")

		if _, err := target.UploadFile(ctx, path, remotePath, metadata); err != nil {
			return backuperr.BackupExecution(err, "upload to %s/%s failed", stCfg.Type, stCfg.Bucket)
		}

		result.addUpload(UploadRecord{
			BackupID:     backupID,
			Key:          dbCfg.Key(name),
			DatabaseType: string(dbCfg.Type),
			Database:     name,
			LocalPath:    path,
			StorageType:  string(stCfg.Type),
			Bucket:       stCfg.Bucket,
			RemotePath:   remotePath,
			SizeBytes:    size,
		})
		log.WithField("remote", remotePath).Info("Upload successful")

		if s.RetentionDays > 0 {
			deleted, err := target.CleanupOldFiles(ctx, s.RetentionDays, retentionPrefix(stCfg.PrefixOrEmpty()))
			if err != nil {
				log.WithError(err).Warn("Old backup cleanup failed")
			} else if len(deleted) > 0 {
				log.Infof("Cleaned up %d old backup files", len(deleted))
			}
		}
	}
	return nil
}

func strategyTimeout(s config.BackupStrategy) time.Duration {
	if s.BackupTimeoutMinutes <= 0 {
		return config.DefaultBackupTimeoutMinutes * time.Minute
	}
	return time.Duration(s.BackupTimeoutMinutes) * time.Minute
}

// asExecution keeps typed errors from adapters and wraps anything else
func asExecution(err error, format string, args ...any) error {
	var typed *backuperr.Error
	if errors.As(err, &typed) {
		return err
	}
	return backuperr.BackupExecution(err, format, args...)
}

// storageTargets creates each storage adapter of a strategy on first use and
// tests its connection once
type storageTargets struct {
	cfgs     []config.StorageConfig
	factory  StorageFactory
	log      logrus.FieldLogger
	adapters []storagecommon.Adapter
}

func newStorageTargets(cfgs []config.StorageConfig, factory StorageFactory, log logrus.FieldLogger) *storageTargets {
	return &storageTargets{
		cfgs:     cfgs,
		factory:  factory,
		log:      log,
		adapters: make([]storagecommon.Adapter, len(cfgs)),
	}
}

func (t *storageTargets) get(ctx context.Context, i int) (storagecommon.Adapter, error) {
	if t.adapters[i] != nil {
		return t.adapters[i], nil
	}

	cfg := t.cfgs[i]
	adapter, err := t.factory(cfg, t.log)
	if err != nil {
		return nil, err
	}
	if err := adapter.TestConnection(ctx); err != nil {
		return nil, backuperr.Connectivity(err, "storage connection failed: %s", cfg.Bucket)
	}

	t.adapters[i] = adapter
	return adapter, nil
}
