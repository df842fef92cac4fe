package uri

import (
	"strings"

	"github.com/supporttools/BackupFlow/pkg/config"
)

// SplitList splits a '|' separated configuration list, trimming entries and dropping empties
func SplitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, "|") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// ParseDatabases parses a '|' separated list of database URIs. The first
// invalid entry aborts the whole list.
func (p *Parser) ParseDatabases(s string) ([]config.DatabaseConfig, error) {
	items := SplitList(s)
	databases := make([]config.DatabaseConfig, 0, len(items))

	for i, item := range items {
		db, err := p.ParseDatabaseURI(item)
		if err != nil {
			p.log.WithField("index", i+1).WithField("uri", Redact(item)).Debug("Database entry rejected")
			return nil, err
		}
		databases = append(databases, db)
	}

	return databases, nil
}

// ParseStorages parses a '|' separated list of storage configurations. Entries
// with a scheme:// prefix are URIs, everything else uses the legacy colon format.
func (p *Parser) ParseStorages(s string) ([]config.StorageConfig, error) {
	items := SplitList(s)
	storages := make([]config.StorageConfig, 0, len(items))

	for i, item := range items {
		var (
			storage config.StorageConfig
			err     error
		)
		if isURI(item) {
			storage, err = p.ParseStorageURI(item)
		} else {
			storage, err = p.ParseLegacyStorage(item)
		}
		if err != nil {
			p.log.WithField("index", i+1).WithField("uri", Redact(item)).Debug("Storage entry rejected")
			return nil, err
		}
		storages = append(storages, storage)
	}

	return storages, nil
}

// isURI reports whether s starts with scheme://. A legacy entry may carry an
// endpoint URL in a later field, so "://" anywhere is not enough.
func isURI(s string) bool {
	i := strings.Index(s, "://")
	return i > 0 && !strings.Contains(s[:i], ":")
}
