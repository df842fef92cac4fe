package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/supporttools/BackupFlow/pkg/backup"
)

// fileContents is the JSON document written by FileStore
type fileContents struct {
	Sessions    []SessionRecord `json:"sessions"`
	LastUpdated time.Time       `json:"lastUpdated"`
	Version     string          `json:"version"`
}

// FileStore keeps the most recent sessions in a JSON file
type FileStore struct {
	path  string
	limit int
	log   logrus.FieldLogger

	mutex    sync.RWMutex
	contents fileContents
}

// NewFileStore opens or creates the history file at path, keeping at most limit sessions
func NewFileStore(path string, limit int, log logrus.FieldLogger) (*FileStore, error) {
	if limit <= 0 {
		limit = 50
	}
	s := &FileStore{
		path:     path,
		limit:    limit,
		log:      log.WithField("history_file", path),
		contents: fileContents{Version: "1.0"},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.log.Debug("History file does not exist, starting fresh")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read history file: %w", err)
	}
	if err := json.Unmarshal(data, &s.contents); err != nil {
		return fmt.Errorf("failed to unmarshal history: %w", err)
	}
	s.log.Debugf("Loaded history with %d sessions", len(s.contents.Sessions))
	return nil
}

// Record appends a session and drops the oldest beyond the limit
func (s *FileStore) Record(ctx context.Context, session *backup.Session) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.contents.Sessions = append(s.contents.Sessions, FromSession(session))
	if extra := len(s.contents.Sessions) - s.limit; extra > 0 {
		s.contents.Sessions = s.contents.Sessions[extra:]
	}
	return s.save()
}

// save writes the file. Callers hold the lock.
func (s *FileStore) save() error {
	s.contents.LastUpdated = time.Now()

	data, err := json.MarshalIndent(s.contents, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for history: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace history file: %w", err)
	}

	s.log.Debugf("Saved history with %d sessions", len(s.contents.Sessions))
	return nil
}

// List returns up to limit sessions, newest first. limit <= 0 returns all.
func (s *FileStore) List(ctx context.Context, limit int) ([]SessionRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	n := len(s.contents.Sessions)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]SessionRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.contents.Sessions[i])
	}
	return out, nil
}

// Close is a no-op; every Record is written through
func (s *FileStore) Close() error {
	return nil
}
