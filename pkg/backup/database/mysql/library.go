package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"
)

// insertBatch is the number of rows written per INSERT statement
const insertBatch = 100

// libraryDump writes a logical dump through database/sql. It covers base
// tables and their rows; routines, triggers and events need mysqldump.
func (a *Adapter) libraryDump(ctx context.Context, databaseName string, out io.Writer) error {
	db, err := a.connect(ctx, databaseName)
	if err != nil {
		return err
	}
	defer db.Close()

	w := bufio.NewWriter(out)

	fmt.Fprintf(w, "-- MySQL dump generated by the BackupFlow SQL client\n--\n")
	fmt.Fprintf(w, "-- Host: %s    Database: %s\n", a.cfg.Host, databaseName)
	fmt.Fprintf(w, "-- Dump started at %s\n\n", a.now().UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "SET NAMES utf8mb4;\nSET FOREIGN_KEY_CHECKS=0;\n\n")

	tables, err := listTables(ctx, db)
	if err != nil {
		return err
	}

	for _, table := range tables {
		if err := dumpTable(ctx, db, w, table); err != nil {
			return fmt.Errorf("failed to dump table %s: %w", table, err)
		}
	}

	fmt.Fprintf(w, "SET FOREIGN_KEY_CHECKS=1;\n-- Dump completed\n")
	return w.Flush()
}

func listTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SHOW FULL TABLES WHERE Table_type = 'BASE TABLE'")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name, tableType string
		if err := rows.Scan(&name, &tableType); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func dumpTable(ctx context.Context, db *sql.DB, w *bufio.Writer, table string) error {
	var name, createStmt string
	if err := db.QueryRowContext(ctx, "SHOW CREATE TABLE "+quoteIdent(table)).Scan(&name, &createStmt); err != nil {
		return err
	}

	fmt.Fprintf(w, "--\n-- Table structure for table %s\n--\n\n", quoteIdent(table))
	fmt.Fprintf(w, "DROP TABLE IF EXISTS %s;\n%s;\n\n", quoteIdent(table), createStmt)

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(table))
	if err != nil {
		return err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return err
	}

	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	count := 0
	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return err
		}
		if count%insertBatch == 0 {
			if count > 0 {
				w.WriteString(";\n")
			}
			fmt.Fprintf(w, "INSERT INTO %s VALUES ", quoteIdent(table))
		} else {
			w.WriteString(",")
		}
		w.WriteString("(")
		for i, v := range values {
			if i > 0 {
				w.WriteString(",")
			}
			w.WriteString(literal(v))
		}
		w.WriteString(")")
		count++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if count > 0 {
		w.WriteString(";\n")
	}
	w.WriteString("\n")
	return nil
}

// quoteIdent quotes a MySQL identifier
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

var literalEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"'", "\\'",
	"\x00", "\\0",
	"\n", "\\n",
	"\r", "\\r",
	"\x1a", "\\Z",
)

// literal renders a scanned value as a MySQL literal
func literal(v any) string {
	switch value := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return "'" + literalEscaper.Replace(string(value)) + "'"
	case string:
		return "'" + literalEscaper.Replace(value) + "'"
	case int64, float64:
		return fmt.Sprint(value)
	case bool:
		if value {
			return "1"
		}
		return "0"
	case time.Time:
		return "'" + value.Format("2006-01-02 15:04:05.999999") + "'"
	default:
		return "'" + literalEscaper.Replace(fmt.Sprint(value)) + "'"
	}
}
