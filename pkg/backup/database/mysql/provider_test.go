package mysql

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supporttools/BackupFlow/pkg/backuperr"
	"github.com/supporttools/BackupFlow/pkg/config"
	"github.com/supporttools/BackupFlow/pkg/database/common"
)

func testConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Type:              config.DatabaseMySQL,
		Host:              "db.local",
		Port:              3306,
		Username:          "backup",
		Password:          "s3cret",
		DatabaseNames:     []string{"app"},
		ConnectionTimeout: 5,
		BackupOptions:     map[string]any{"ignore-table": "app.sessions"},
	}
}

func newMockAdapter(t *testing.T, opts ...Option) (*Adapter, sqlmock.Sqlmock, *string) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	var dsn string
	logger, _ := test.NewNullLogger()
	opts = append([]Option{WithOpener(func(driverName, d string) (*sql.DB, error) {
		assert.Equal(t, "mysql", driverName)
		dsn = d
		return db, nil
	})}, opts...)

	a, err := New(testConfig(), logger, opts...)
	require.NoError(t, err)
	return a, mock, &dsn
}

func TestNewValidatesConfig(t *testing.T) {
	logger, _ := test.NewNullLogger()

	cfg := testConfig()
	cfg.Host = ""
	_, err := New(cfg, logger)
	assert.ErrorContains(t, err, "host is required")

	cfg = testConfig()
	cfg.Port = 70000
	_, err = New(cfg, logger)
	assert.ErrorContains(t, err, "invalid MySQL port")

	cfg = testConfig()
	cfg.Username = ""
	_, err = New(cfg, logger)
	assert.ErrorContains(t, err, "user is required")
}

func TestTestConnection(t *testing.T) {
	a, mock, dsn := newMockAdapter(t)

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectClose()

	require.NoError(t, a.TestConnection(context.Background()))
	assert.Contains(t, *dsn, "backup:s3cret@tcp(db.local:3306)/")
	assert.Contains(t, *dsn, "timeout=5s")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTestConnectionQueryFailure(t *testing.T) {
	a, mock, _ := newMockAdapter(t)

	mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("access denied"))
	mock.ExpectClose()

	err := a.TestConnection(context.Background())
	assert.ErrorContains(t, err, "access denied")
}

func TestGetDatabaseInfo(t *testing.T) {
	a, mock, _ := newMockAdapter(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT VERSION()")).
		WillReturnRows(sqlmock.NewRows([]string{"VERSION()"}).AddRow("8.0.36"))
	mock.ExpectQuery("SELECT table_schema").WithArgs("app").
		WillReturnRows(sqlmock.NewRows([]string{"table_schema", "size"}).AddRow("app", int64(2048)))
	mock.ExpectClose()

	info, err := a.GetDatabaseInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "8.0.36", info["version"])
	assert.Equal(t, "2.0 kB", info["sizes"].(map[string]string)["app"])
	assert.Equal(t, "2.0 kB", info["total_size"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDatabasesSkipsSystemSchemas(t *testing.T) {
	a, mock, _ := newMockAdapter(t)

	mock.ExpectQuery("SHOW DATABASES").WillReturnRows(sqlmock.NewRows([]string{"Database"}).
		AddRow("information_schema").AddRow("app").AddRow("mysql").AddRow("billing").AddRow("sys"))
	mock.ExpectClose()

	databases, err := a.ListDatabases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"app", "billing"}, databases)
}

func TestLibraryDumpWhenMysqldumpMissing(t *testing.T) {
	a, mock, dsn := newMockAdapter(t, WithLookPath(func(string) (string, error) {
		return "", exec.ErrNotFound
	}))

	mock.ExpectQuery(regexp.QuoteMeta("SHOW FULL TABLES WHERE Table_type = 'BASE TABLE'")).
		WillReturnRows(sqlmock.NewRows([]string{"Tables_in_app", "Table_type"}).AddRow("users", "BASE TABLE"))
	mock.ExpectQuery(regexp.QuoteMeta("SHOW CREATE TABLE `users`")).
		WillReturnRows(sqlmock.NewRows([]string{"Table", "Create Table"}).
			AddRow("users", "CREATE TABLE `users` (`id` int, `name` varchar(20))"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `users`")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow([]byte("1"), []byte("O'Brien")).
			AddRow([]byte("2"), nil))
	mock.ExpectClose()

	out := filepath.Join(t.TempDir(), "app.sql")
	result, err := a.CreateSingleDatabaseBackup(context.Background(), "app", out)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "library", result.Client)
	assert.Positive(t, result.SizeBytes)
	assert.Contains(t, *dsn, "/app?")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	dump := string(data)
	assert.Contains(t, dump, "DROP TABLE IF EXISTS `users`;")
	assert.Contains(t, dump, "INSERT INTO `users` VALUES ('1','O\\'Brien'),('2',NULL);")

	assert.NoError(t, a.ValidateBackup(out))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSystemDumpCompressed(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	var gotArgs []string
	a, _, _ := newMockAdapter(t,
		WithLookPath(func(string) (string, error) { return "/usr/bin/mysqldump", nil }),
		WithCommand(func(ctx context.Context, name string, args ...string) *exec.Cmd {
			gotArgs = args
			return exec.CommandContext(ctx, "sh", "-c", "echo '-- MySQL dump 10.13  Distrib 8.0.36'; echo 'CREATE TABLE t (id int);'")
		}),
	)

	out := filepath.Join(t.TempDir(), "app.sql.gz")
	result, err := a.CreateSingleDatabaseBackup(context.Background(), "app", out)
	require.NoError(t, err)
	assert.Equal(t, "system", result.Client)
	require.NoError(t, a.ValidateBackup(out))

	require.NotEmpty(t, gotArgs)
	assert.True(t, strings.HasPrefix(gotArgs[0], "--defaults-extra-file="))
	assert.Contains(t, gotArgs, "--single-transaction")
	assert.Contains(t, gotArgs, "--ignore-table=app.sessions")
	assert.Equal(t, "app", gotArgs[len(gotArgs)-1])
	for _, arg := range gotArgs {
		assert.NotContains(t, arg, "s3cret")
	}

	// the option file holding the password is removed after the dump
	_, statErr := os.Stat(strings.TrimPrefix(gotArgs[0], "--defaults-extra-file="))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSystemDumpFailureRemovesPartialFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	a, _, _ := newMockAdapter(t,
		WithLookPath(func(string) (string, error) { return "/usr/bin/mysqldump", nil }),
		WithCommand(func(ctx context.Context, name string, args ...string) *exec.Cmd {
			return exec.CommandContext(ctx, "sh", "-c", "echo partial; echo 'Access denied for user' >&2; exit 2")
		}),
	)

	out := filepath.Join(t.TempDir(), "app.sql")
	result, err := a.CreateSingleDatabaseBackup(context.Background(), "app", out)
	require.Error(t, err)
	assert.True(t, backuperr.IsKind(err, backuperr.KindBackupExecution))
	assert.Contains(t, err.Error(), "Access denied")
	assert.False(t, result.Success)
	assert.NoFileExists(t, out)
}

func TestBackupCommandHidesPassword(t *testing.T) {
	a, _, _ := newMockAdapter(t)

	line := a.BackupCommand("app")
	assert.True(t, strings.HasPrefix(line, "mysqldump --defaults-extra-file=<temp>"))
	assert.NotContains(t, line, "s3cret")
	assert.True(t, strings.HasSuffix(line, " app"))
}

func TestOptionFileEscapesPassword(t *testing.T) {
	a, _, _ := newMockAdapter(t)
	a.cfg.Password = "p\"a\\s's\nw\to\rr\bd"

	path, err := a.writeOptionFile()
	require.NoError(t, err)
	defer os.Remove(path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[client]\npassword=\"p\\\"a\\\\s\\'s\\nw\\to\\rr\\bd\"\n", string(data))
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestOptionValueLeavesPlainPasswords(t *testing.T) {
	assert.Equal(t, "s3cret-P@ss#1", optionValue("s3cret-P@ss#1"))
	assert.Equal(t, `C:\\tmp`, optionValue(`C:\tmp`))
}

func TestValidateBackupRejectsForeignDump(t *testing.T) {
	a, _, _ := newMockAdapter(t)

	path := filepath.Join(t.TempDir(), "other.sql")
	require.NoError(t, os.WriteFile(path, []byte("-- PostgreSQL database dump\n"), 0600))

	err := a.ValidateBackup(path)
	require.Error(t, err)
	assert.True(t, backuperr.IsKind(err, backuperr.KindBackupExecution))
}

var _ common.Adapter = (*Adapter)(nil)
