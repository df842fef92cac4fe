package backup

import (
	"fmt"
	"strings"
	"time"

	"github.com/supporttools/BackupFlow/pkg/config"
)

// timestampFormat is YYYYMMDD_HHMMSS
const timestampFormat = "20060102_150405"

// NormalizePrefix strips leading and trailing slashes
func NormalizePrefix(prefix string) string {
	return strings.Trim(prefix, "/")
}

// RemotePath joins a storage prefix and a file name
func RemotePath(prefix, fileName string) string {
	if p := NormalizePrefix(prefix); p != "" {
		return p + "/" + fileName
	}
	return fileName
}

// retentionPrefix is the listing prefix for retention cleanup. The trailing
// slash keeps "backups" from matching "backups-old/".
func retentionPrefix(prefix string) string {
	if p := NormalizePrefix(prefix); p != "" {
		return p + "/"
	}
	return ""
}

// BackupFileName returns {YYYYMMDD_HHMMSS}_{engine}_{database}.sql[.gz]
func BackupFileName(t time.Time, engine config.DatabaseType, database string, compression bool) string {
	name := fmt.Sprintf("%s_%s_%s.sql", t.Format(timestampFormat), engine, database)
	if compression {
		name += ".gz"
	}
	return name
}
