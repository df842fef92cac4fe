package common

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputCompressesGzPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dump.sql.gz")

	out, err := CreateOutput(path)
	require.NoError(t, err)
	_, err = io.WriteString(out, "-- MySQL dump 10.13\nCREATE TABLE t (id int);\n")
	require.NoError(t, err)
	require.NoError(t, out.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Contains(t, string(data), "CREATE TABLE t")
}

func TestValidateDump(t *testing.T) {
	dir := t.TempDir()
	markers := []string{"mysqldump", "mysql dump"}

	plain := filepath.Join(dir, "ok.sql")
	require.NoError(t, os.WriteFile(plain, []byte("-- MySQL dump 10.13  Distrib 8.0\n"), 0600))
	assert.NoError(t, ValidateDump(plain, markers))

	empty := filepath.Join(dir, "empty.sql")
	require.NoError(t, os.WriteFile(empty, nil, 0600))
	assert.ErrorContains(t, ValidateDump(empty, markers), "empty")

	assert.ErrorContains(t, ValidateDump(filepath.Join(dir, "missing.sql"), markers), "does not exist")

	wrong := filepath.Join(dir, "wrong.sql")
	var b bytes.Buffer
	for i := 0; i < 60; i++ {
		b.WriteString("SELECT 1;\n")
	}
	b.WriteString("-- mysqldump finished\n")
	require.NoError(t, os.WriteFile(wrong, b.Bytes(), 0600))
	assert.ErrorContains(t, ValidateDump(wrong, markers), "format incorrect")

	notGzip := filepath.Join(dir, "bad.sql.gz")
	require.NoError(t, os.WriteFile(notGzip, []byte("plain text"), 0600))
	assert.ErrorContains(t, ValidateDump(notGzip, markers), "gzip")

	compressed := filepath.Join(dir, "ok.sql.gz")
	out, err := CreateOutput(compressed)
	require.NoError(t, err)
	_, _ = io.WriteString(out, "--\n-- PostgreSQL database dump\n--\n")
	require.NoError(t, out.Close())
	assert.NoError(t, ValidateDump(compressed, []string{"pg_dump", "postgresql"}))
}

func TestOptionArgs(t *testing.T) {
	args := OptionArgs(map[string]any{
		"single-transaction":    true,
		"lock-tables":           false,
		"skip-comments":         "",
		"default-character-set": "utf8mb4",
		"ignore-table":          []string{"db.a", "db.b"},
	})

	assert.Equal(t, []string{
		"--default-character-set=utf8mb4",
		"--ignore-table=db.a",
		"--ignore-table=db.b",
		"--single-transaction",
		"--skip-comments",
	}, args)
}

func TestRedactArgs(t *testing.T) {
	line := RedactArgs("mysqldump", []string{"--user=root", "--password=hunter2", "db"})
	assert.Equal(t, "mysqldump --user=root --password=*** db", line)
}

func TestRunCommandCapturesStderr(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	var out bytes.Buffer
	err := RunCommand(context.Background(), exec.Command("sh", "-c", "echo dumped; echo denied >&2; exit 2"), &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
	assert.Equal(t, "dumped\n", out.String())

	out.Reset()
	require.NoError(t, RunCommand(context.Background(), exec.Command("sh", "-c", "echo ok"), &out))
	assert.Equal(t, "ok\n", out.String())
}

func TestRunCommandKillsOnCancel(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := RunCommand(ctx, exec.Command("sleep", "10"), io.Discard)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}
