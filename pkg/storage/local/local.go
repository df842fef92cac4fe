// Package local manages the temporary directories backups are written to
// before upload.
package local

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/supporttools/BackupFlow/pkg/metrics"
)

// Workspace is a temporary directory owned by one strategy run
type Workspace struct {
	dir string
	log logrus.FieldLogger
}

// NewWorkspace creates a private directory under root. An empty root uses os.TempDir.
func NewWorkspace(root, strategyID string, log logrus.FieldLogger) (*Workspace, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0755); err != nil {
			return nil, fmt.Errorf("failed to create backup directory %s: %w", root, err)
		}
	}

	dir, err := os.MkdirTemp(root, "backupflow_"+sanitize(strategyID)+"_")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	log = log.WithField("workspace", dir)
	log.Debug("Created backup workspace")
	return &Workspace{dir: dir, log: log}, nil
}

// Dir returns the workspace directory
func (w *Workspace) Dir() string {
	return w.dir
}

// Path returns the full path for a backup file
func (w *Workspace) Path(fileName string) string {
	return filepath.Join(w.dir, filepath.Base(fileName))
}

// RecordBackupMetrics records the size of a finished backup file
func (w *Workspace) RecordBackupMetrics(path, strategyID, database string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat backup file: %w", err)
	}

	metrics.BackupSize.WithLabelValues(strategyID, database).Set(float64(info.Size()))
	return info.Size(), nil
}

// Remove deletes one backup file. A missing file is not an error.
func (w *Workspace) Remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		w.log.WithError(err).WithField("path", path).Warn("Failed to remove local backup file")
		return
	}
	w.log.WithField("path", path).Debug("Removed local backup file")
}

// Cleanup removes the workspace and everything in it
func (w *Workspace) Cleanup() {
	if err := os.RemoveAll(w.dir); err != nil {
		w.log.WithError(err).Warn("Failed to remove backup workspace")
		return
	}
	w.log.Debug("Removed backup workspace")
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
