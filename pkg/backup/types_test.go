package backup

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supporttools/BackupFlow/pkg/config"
	"gopkg.in/yaml.v3"
)

func TestSessionSerializesSecondsAndHidesCredentials(t *testing.T) {
	db := dbConfig("db1", "app")
	db.Password = "hunter2"
	st := storageConfig("bkt", "prod")
	st.AccessKey = "AKIAEXAMPLE"
	st.SecretKey = "topsecret"

	session := Session{
		ID:              "s1",
		Status:          SessionAllSucceeded,
		Duration:        90 * time.Second,
		DurationSeconds: 90,
		Results: []StrategyExecutionResult{
			{StrategyID: "nightly", Duration: 1500 * time.Millisecond, DurationSeconds: 1.5},
		},
		Config: config.BackupConfig{Strategies: []config.BackupStrategy{
			config.NewBackupStrategy("nightly", []config.DatabaseConfig{db}, []config.StorageConfig{st}),
		}},
	}

	data, err := json.Marshal(session)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 90.0, decoded["durationSeconds"])
	assert.NotContains(t, decoded, "duration")
	result := decoded["results"].([]any)[0].(map[string]any)
	assert.Equal(t, 1.5, result["durationSeconds"])
	assert.NotContains(t, result, "duration")
	assert.Contains(t, decoded, "config")

	for _, secret := range []string{"hunter2", "AKIAEXAMPLE", "topsecret"} {
		assert.NotContains(t, string(data), secret)
	}

	out, err := yaml.Marshal(session)
	require.NoError(t, err)
	assert.Contains(t, string(out), "duration_seconds: 90")
	assert.NotContains(t, string(out), "topsecret")
}
