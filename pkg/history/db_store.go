package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/supporttools/BackupFlow/pkg/backup"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sessionRow is the backup_sessions table
type sessionRow struct {
	ID               string    `gorm:"primaryKey;type:varchar(255)"`
	Status           string    `gorm:"type:varchar(32);index"`
	Success          bool      `gorm:"not null"`
	Error            string    `gorm:"type:text"`
	StartedAt        time.Time `gorm:"index"`
	EndedAt          time.Time
	DurationSeconds  float64
	TotalDatabases   int
	TotalStorages    int
	TotalBackupFiles int
	Strategies       []strategyRow `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

func (sessionRow) TableName() string {
	return "backup_sessions"
}

// strategyRow is the strategy_results table
type strategyRow struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	SessionID       string `gorm:"type:varchar(255);index;not null"`
	StrategyID      string `gorm:"type:varchar(255);index"`
	Status          string `gorm:"type:varchar(32)"`
	Success         bool
	Error           string `gorm:"type:text"`
	Uploads         int
	RemotePaths     string `gorm:"type:text"`
	DurationSeconds float64
}

func (strategyRow) TableName() string {
	return "strategy_results"
}

// DBStore keeps session history in a MySQL database
type DBStore struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

// NewDBStore connects to dsn and migrates the history tables
func NewDBStore(dsn string, debug bool, log logrus.FieldLogger) (*DBStore, error) {
	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := db.AutoMigrate(&sessionRow{}, &strategyRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate history tables: %w", err)
	}

	return OpenDBStore(db, log), nil
}

// OpenDBStore wraps an existing connection without migrating
func OpenDBStore(db *gorm.DB, log logrus.FieldLogger) *DBStore {
	return &DBStore{db: db, log: log.WithField("history", "database")}
}

// Record inserts the session and its strategy results in one transaction
func (s *DBStore) Record(ctx context.Context, session *backup.Session) error {
	record := FromSession(session)
	row := sessionRow{
		ID:               record.ID,
		Status:           record.Status,
		Success:          record.Success,
		Error:            record.Error,
		StartedAt:        record.StartTime,
		EndedAt:          record.EndTime,
		DurationSeconds:  record.DurationSeconds,
		TotalDatabases:   record.TotalDatabases,
		TotalStorages:    record.TotalStorages,
		TotalBackupFiles: record.TotalBackupFiles,
	}
	for _, sr := range record.Strategies {
		row.Strategies = append(row.Strategies, strategyRow{
			SessionID:       record.ID,
			StrategyID:      sr.StrategyID,
			Status:          sr.Status,
			Success:         sr.Success,
			Error:           sr.Error,
			Uploads:         sr.Uploads,
			RemotePaths:     strings.Join(sr.RemotePaths, "\n"),
			DurationSeconds: sr.DurationSeconds,
		})
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to record session %s: %w", record.ID, err)
	}
	s.log.WithField("session_id", record.ID).Debug("Recorded backup session")
	return nil
}

// List returns up to limit sessions, newest first
func (s *DBStore) List(ctx context.Context, limit int) ([]SessionRecord, error) {
	var rows []sessionRow
	q := s.db.WithContext(ctx).Preload("Strategies").Order("started_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	out := make([]SessionRecord, 0, len(rows))
	for _, row := range rows {
		record := SessionRecord{
			ID:               row.ID,
			Status:           row.Status,
			Success:          row.Success,
			Error:            row.Error,
			StartTime:        row.StartedAt,
			EndTime:          row.EndedAt,
			DurationSeconds:  row.DurationSeconds,
			TotalDatabases:   row.TotalDatabases,
			TotalStorages:    row.TotalStorages,
			TotalBackupFiles: row.TotalBackupFiles,
		}
		for _, sr := range row.Strategies {
			var paths []string
			if sr.RemotePaths != "" {
				paths = strings.Split(sr.RemotePaths, "\n")
			}
			record.Strategies = append(record.Strategies, StrategyRecord{
				StrategyID:      sr.StrategyID,
				Status:          sr.Status,
				Success:         sr.Success,
				Error:           sr.Error,
				Uploads:         sr.Uploads,
				RemotePaths:     paths,
				DurationSeconds: sr.DurationSeconds,
			})
		}
		out = append(out, record)
	}
	return out, nil
}

// Close closes the underlying connection
func (s *DBStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
