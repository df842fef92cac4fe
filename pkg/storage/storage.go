// Package storage maps storage types to their adapters
package storage

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/supporttools/BackupFlow/pkg/backuperr"
	"github.com/supporttools/BackupFlow/pkg/config"
	"github.com/supporttools/BackupFlow/pkg/storage/common"
	"github.com/supporttools/BackupFlow/pkg/storage/s3"
)

// Adapter is the interface all storage adapters implement
type Adapter = common.Adapter

// Constructor builds an adapter for one storage config
type Constructor func(cfg config.StorageConfig, log logrus.FieldLogger) (common.Adapter, error)

// ErrUnsupportedStorage is returned for storage types without an adapter
var ErrUnsupportedStorage = backuperr.StrategyConfiguration(nil, "unsupported storage type")

var constructors = map[config.StorageType]Constructor{
	config.StorageR2: func(cfg config.StorageConfig, log logrus.FieldLogger) (common.Adapter, error) {
		return s3.NewR2(cfg, log)
	},
	config.StorageS3: func(cfg config.StorageConfig, log logrus.FieldLogger) (common.Adapter, error) {
		return s3.NewS3(cfg, log)
	},
}

// New creates the adapter registered for cfg.Type
func New(cfg config.StorageConfig, log logrus.FieldLogger) (common.Adapter, error) {
	constructor, ok := constructors[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStorage, cfg.Type)
	}
	return constructor(cfg, log)
}
