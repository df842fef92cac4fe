package postgresql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lib/pq"
)

// GetDatabaseInfo reports the server version and the size of each configured database
func (a *Adapter) GetDatabaseInfo(ctx context.Context) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, a.connectionTimeout())
	defer cancel()

	db, err := a.connect(ctx, a.firstDatabase())
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var version string
	if err := db.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		return nil, fmt.Errorf("failed to query PostgreSQL version: %w", err)
	}

	sizes := make(map[string]string, len(a.cfg.DatabaseNames))
	var total uint64
	for _, name := range a.cfg.DatabaseNames {
		var size int64
		if err := db.QueryRowContext(ctx, "SELECT pg_database_size($1)", name).Scan(&size); err != nil {
			return nil, fmt.Errorf("failed to query size of %s: %w", name, err)
		}
		sizes[name] = humanize.Bytes(uint64(size))
		total += uint64(size)
	}

	return map[string]any{
		"type":       "postgresql",
		"host":       a.cfg.Host,
		"port":       a.cfg.Port,
		"version":    version,
		"databases":  a.cfg.DatabaseNames,
		"sizes":      sizes,
		"total_size": humanize.Bytes(total),
	}, nil
}

// tableRef names a table in a schema
type tableRef struct {
	schema string
	name   string
}

func (t tableRef) quoted() string {
	return pq.QuoteIdentifier(t.schema) + "." + pq.QuoteIdentifier(t.name)
}

// libraryDump writes a plain SQL dump of user tables through database/sql.
// Column definitions come from information_schema; indexes, constraints other
// than NOT NULL, sequences and functions need pg_dump.
func (a *Adapter) libraryDump(ctx context.Context, databaseName string, out io.Writer) error {
	db, err := a.connect(ctx, databaseName)
	if err != nil {
		return err
	}
	defer db.Close()

	w := bufio.NewWriter(out)
	fmt.Fprintf(w, "--\n-- PostgreSQL database dump generated by the BackupFlow SQL client\n--\n")
	fmt.Fprintf(w, "-- Host: %s    Database: %s\n", a.cfg.Host, databaseName)
	fmt.Fprintf(w, "-- Dump started at %s\n\n", a.now().UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "SET client_encoding = 'UTF8';\nSET standard_conforming_strings = on;\n\n")

	tables, err := listTables(ctx, db)
	if err != nil {
		return err
	}

	for _, table := range tables {
		if err := dumpTable(ctx, db, w, table); err != nil {
			return fmt.Errorf("failed to dump table %s: %w", table.quoted(), err)
		}
	}

	fmt.Fprintf(w, "--\n-- PostgreSQL database dump complete\n--\n")
	return w.Flush()
}

func listTables(ctx context.Context, db *sql.DB) ([]tableRef, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT table_schema, table_name FROM information_schema.tables "+
			"WHERE table_type = 'BASE TABLE' AND table_schema NOT IN ('pg_catalog', 'information_schema') "+
			"ORDER BY table_schema, table_name")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []tableRef
	for rows.Next() {
		var t tableRef
		if err := rows.Scan(&t.schema, &t.name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func dumpTable(ctx context.Context, db *sql.DB, w *bufio.Writer, table tableRef) error {
	rows, err := db.QueryContext(ctx,
		"SELECT column_name, data_type, udt_name, is_nullable, column_default FROM information_schema.columns "+
			"WHERE table_schema = $1 AND table_name = $2 ORDER BY ordinal_position", table.schema, table.name)
	if err != nil {
		return err
	}

	var columns []string
	udtNames := make(map[string]string)
	for rows.Next() {
		var (
			name, dataType, udtName, nullable string
			columnDefault                     sql.NullString
		)
		if err := rows.Scan(&name, &dataType, &udtName, &nullable, &columnDefault); err != nil {
			rows.Close()
			return err
		}
		udtNames[name] = udtName
		if dataType == "USER-DEFINED" || dataType == "ARRAY" {
			dataType = udtName
		}
		column := pq.QuoteIdentifier(name) + " " + dataType
		if columnDefault.Valid {
			column += " DEFAULT " + columnDefault.String
		}
		if nullable == "NO" {
			column += " NOT NULL"
		}
		columns = append(columns, column)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	fmt.Fprintf(w, "--\n-- Name: %s; Type: TABLE\n--\n\n", table.quoted())
	fmt.Fprintf(w, "DROP TABLE IF EXISTS %s;\nCREATE TABLE %s (\n    %s\n);\n\n",
		table.quoted(), table.quoted(), strings.Join(columns, ",\n    "))

	data, err := db.QueryContext(ctx, "SELECT * FROM "+table.quoted())
	if err != nil {
		return err
	}
	defer data.Close()

	names, err := data.Columns()
	if err != nil {
		return err
	}
	quotedNames := make([]string, len(names))
	for i, n := range names {
		quotedNames[i] = pq.QuoteIdentifier(n)
	}
	insertPrefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES (", table.quoted(), strings.Join(quotedNames, ", "))

	values := make([]any, len(names))
	pointers := make([]any, len(names))
	for i := range values {
		pointers[i] = &values[i]
	}

	for data.Next() {
		if err := data.Scan(pointers...); err != nil {
			return err
		}
		literals := make([]string, len(values))
		for i, v := range values {
			literals[i] = literal(v, udtNames[names[i]])
		}
		w.WriteString(insertPrefix + strings.Join(literals, ", ") + ");\n")
	}
	if err := data.Err(); err != nil {
		return err
	}
	w.WriteString("\n")
	return nil
}

// literal renders a scanned value as a PostgreSQL literal. bytea columns are
// written in hex form so the dump stays valid UTF-8.
func literal(v any, udtName string) string {
	switch value := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		if udtName == "bytea" {
			return `'\x` + hex.EncodeToString(value) + `'::bytea`
		}
		return pq.QuoteLiteral(string(value))
	case string:
		return pq.QuoteLiteral(value)
	case int64, float64:
		return fmt.Sprint(value)
	case bool:
		if value {
			return "true"
		}
		return "false"
	case time.Time:
		return pq.QuoteLiteral(value.Format(time.RFC3339Nano))
	default:
		return pq.QuoteLiteral(fmt.Sprint(value))
	}
}
