package mysql

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// systemDatabases are never reported as user databases
var systemDatabases = map[string]bool{
	"information_schema": true,
	"mysql":              true,
	"performance_schema": true,
	"sys":                true,
}

// ListDatabases returns the non-system databases on the server
func (a *Adapter) ListDatabases(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.connectionTimeout())
	defer cancel()

	db, err := a.connect(ctx, "")
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SHOW DATABASES")
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	defer rows.Close()

	var databases []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan database name: %w", err)
		}
		if systemDatabases[name] {
			continue
		}
		databases = append(databases, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating database rows: %w", err)
	}

	return databases, nil
}

// GetDatabaseInfo reports the server version and the size of each configured database
func (a *Adapter) GetDatabaseInfo(ctx context.Context) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, a.connectionTimeout())
	defer cancel()

	db, err := a.connect(ctx, "")
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var version string
	if err := db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version); err != nil {
		return nil, fmt.Errorf("failed to query MySQL version: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(a.cfg.DatabaseNames)), ",")
	args := make([]any, len(a.cfg.DatabaseNames))
	for i, name := range a.cfg.DatabaseNames {
		args[i] = name
	}

	sizes := make(map[string]string, len(a.cfg.DatabaseNames))
	var total uint64
	if len(args) > 0 {
		rows, err := db.QueryContext(ctx,
			"SELECT table_schema, COALESCE(SUM(data_length + index_length), 0) FROM information_schema.tables "+
				"WHERE table_schema IN ("+placeholders+") GROUP BY table_schema", args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query database sizes: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				schema string
				size   uint64
			)
			if err := rows.Scan(&schema, &size); err != nil {
				return nil, fmt.Errorf("failed to scan database size: %w", err)
			}
			sizes[schema] = humanize.Bytes(size)
			total += size
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating size rows: %w", err)
		}
	}

	return map[string]any{
		"type":       "mysql",
		"host":       a.cfg.Host,
		"port":       a.cfg.Port,
		"version":    version,
		"databases":  a.cfg.DatabaseNames,
		"sizes":      sizes,
		"total_size": humanize.Bytes(total),
	}, nil
}
