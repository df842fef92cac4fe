package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, level)

	level, err = ParseLevel(" DEBUG ")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, level)

	_, err = ParseLevel("loud")
	assert.ErrorContains(t, err, `invalid log level "loud"`)
}

func TestTextOutputHasNoColorsOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	log, closer, err := New(Options{Level: "info", Output: &buf})
	require.NoError(t, err)
	defer closer.Close()

	log.WithField("strategy", "nightly").Info("Starting backup session")
	assert.Contains(t, buf.String(), `msg="Starting backup session"`)
	assert.Contains(t, buf.String(), "strategy=nightly")
	assert.NotContains(t, buf.String(), "\x1b[")

	log.Debug("hidden")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log, _, err := New(Options{Format: "json", Output: &buf})
	require.NoError(t, err)

	log.WithField("session_id", "s1").Warn("partial")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, "s1", entry["session_id"])
}

func TestFileTee(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "backupflow.log")

	log, closer, err := New(Options{File: path, Output: &buf})
	require.NoError(t, err)
	log.Error("upload failed")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "upload failed")
	assert.Contains(t, buf.String(), "upload failed")
}

func TestUnsupportedFormat(t *testing.T) {
	_, _, err := New(Options{Format: "xml"})
	assert.ErrorContains(t, err, "unsupported log format: xml")
}
