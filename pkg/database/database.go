// Package database maps database types to their adapters
package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/supporttools/BackupFlow/pkg/backup/database/mysql"
	"github.com/supporttools/BackupFlow/pkg/backup/database/postgresql"
	"github.com/supporttools/BackupFlow/pkg/backuperr"
	"github.com/supporttools/BackupFlow/pkg/config"
	"github.com/supporttools/BackupFlow/pkg/database/common"
)

// Adapter is the interface all database adapters implement
type Adapter = common.Adapter

// Constructor builds an adapter for one database config
type Constructor func(cfg config.DatabaseConfig, log logrus.FieldLogger) (common.Adapter, error)

// ErrUnsupportedDatabase is returned for database types without an adapter
var ErrUnsupportedDatabase = backuperr.StrategyConfiguration(nil, "unsupported database type")

var constructors = map[config.DatabaseType]Constructor{
	config.DatabaseMySQL: func(cfg config.DatabaseConfig, log logrus.FieldLogger) (common.Adapter, error) {
		return mysql.New(cfg, log)
	},
	config.DatabasePostgreSQL: func(cfg config.DatabaseConfig, log logrus.FieldLogger) (common.Adapter, error) {
		return postgresql.New(cfg, log)
	},
}

// New creates the adapter registered for cfg.Type
func New(cfg config.DatabaseConfig, log logrus.FieldLogger) (common.Adapter, error) {
	constructor, ok := constructors[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDatabase, cfg.Type)
	}
	return constructor(cfg, log)
}

// Supported lists the registered database types
func Supported() []config.DatabaseType {
	return []config.DatabaseType{config.DatabaseMySQL, config.DatabasePostgreSQL}
}
