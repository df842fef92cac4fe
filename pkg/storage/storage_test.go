package storage

import (
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supporttools/BackupFlow/pkg/config"
	"github.com/supporttools/BackupFlow/pkg/storage/s3"
)

func TestNewDispatchesOnType(t *testing.T) {
	logger, _ := test.NewNullLogger()
	endpoint := "https://acct.r2.cloudflarestorage.com"

	for _, storageType := range []config.StorageType{config.StorageR2, config.StorageS3} {
		adapter, err := New(config.StorageConfig{
			Type:      storageType,
			Endpoint:  &endpoint,
			AccessKey: "ak",
			SecretKey: "sk",
			Bucket:    "b",
		}, logger)
		require.NoError(t, err, storageType)
		assert.IsType(t, &s3.Client{}, adapter)
		assert.Equal(t, storageType, adapter.Info()["type"])
	}
}

func TestNewUnsupportedType(t *testing.T) {
	logger, _ := test.NewNullLogger()

	_, err := New(config.StorageConfig{Type: "gcs", AccessKey: "ak", SecretKey: "sk", Bucket: "b"}, logger)
	assert.ErrorIs(t, err, ErrUnsupportedStorage)
	assert.EqualError(t, err, "unsupported storage type: gcs")
}
