// Package strategy discovers backup strategies from configuration and validates them.
package strategy

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/supporttools/BackupFlow/pkg/backuperr"
	"github.com/supporttools/BackupFlow/pkg/clientcheck"
	"github.com/supporttools/BackupFlow/pkg/config"
	"github.com/supporttools/BackupFlow/pkg/uri"
)

// ClientChecker gates strategy loading on database client availability
type ClientChecker interface {
	CheckAll(ctx context.Context, types []config.DatabaseType) (map[config.DatabaseType]clientcheck.ClientType, error)
}

// Manager builds the strategy list from a key lookup
type Manager struct {
	log     logrus.FieldLogger
	lookup  config.Lookup
	parser  *uri.Parser
	checker ClientChecker
}

// NewManager creates a strategy manager. checker may be nil to skip the client check.
func NewManager(log logrus.FieldLogger, lookup config.Lookup, checker ClientChecker) *Manager {
	return &Manager{
		log:     log,
		lookup:  lookup,
		parser:  uri.NewParser(log),
		checker: checker,
	}
}

// ParseStrategiesFromEnv discovers strategies. DATABASES/STORAGES define a single
// strategy; otherwise DATABASES_n/STORAGES_n are probed from n=1 until neither is set.
func (m *Manager) ParseStrategiesFromEnv(ctx context.Context) ([]config.BackupStrategy, error) {
	var strategies []config.BackupStrategy

	dbStr, hasDB := m.lookup("DATABASES")
	storageStr, hasStorage := m.lookup("STORAGES")

	if hasDB && hasStorage {
		strategy, err := m.parseStrategy("strategy_1", dbStr, storageStr, "")
		if err != nil {
			return nil, backuperr.StrategyConfiguration(err, "failed to parse strategy 1")
		}
		strategies = append(strategies, strategy)
		m.log.Info("Shorthand strategy configuration parsed: 1 strategy")
	} else {
		for index := 1; ; index++ {
			dbKey := fmt.Sprintf("DATABASES_%d", index)
			storageKey := fmt.Sprintf("STORAGES_%d", index)

			dbStr, hasDB := m.lookup(dbKey)
			storageStr, hasStorage := m.lookup(storageKey)

			if !hasDB && !hasStorage {
				break
			}
			if !hasDB || !hasStorage {
				return nil, backuperr.StrategyConfiguration(nil,
					"strategy %d configuration incomplete: need to set both %s and %s", index, dbKey, storageKey)
			}

			strategy, err := m.parseStrategy(fmt.Sprintf("strategy_%d", index), dbStr, storageStr, fmt.Sprintf("_%d", index))
			if err != nil {
				return nil, backuperr.StrategyConfiguration(err, "failed to parse strategy %d", index)
			}
			strategies = append(strategies, strategy)
		}
	}

	if len(strategies) == 0 {
		return nil, backuperr.StrategyConfiguration(nil,
			"no strategy configuration found: set DATABASES and STORAGES (single strategy) or DATABASES_1 and STORAGES_1 (multi-strategy)")
	}

	if err := m.checkClients(ctx, strategies); err != nil {
		return nil, err
	}

	m.log.WithField("count", len(strategies)).Info("Backup strategies parsed")
	return strategies, nil
}

// parseStrategy builds one strategy, reading its settings with the given key suffix
func (m *Manager) parseStrategy(id, dbStr, storageStr, suffix string) (config.BackupStrategy, error) {
	var strategy config.BackupStrategy

	databases, err := m.parser.ParseDatabases(dbStr)
	if err != nil {
		return strategy, err
	}
	if len(databases) == 0 {
		return strategy, backuperr.StrategyConfiguration(nil, "strategy %s has no valid database configuration", id)
	}

	storages, err := m.parser.ParseStorages(storageStr)
	if err != nil {
		return strategy, err
	}
	if len(storages) == 0 {
		return strategy, backuperr.StrategyConfiguration(nil, "strategy %s has no valid storage configuration", id)
	}

	strategy = config.NewBackupStrategy(id, databases, storages)
	strategy.BackupNameTemplate = config.StringOrDefault(m.lookup, "BACKUP_NAME_TEMPLATE"+suffix, config.DefaultBackupNameTemplate)
	strategy.Compression = config.BoolOrDefault(m.lookup, "COMPRESSION"+suffix, true)
	strategy.MaxBackupSizeMB = config.OptionalInt(m.lookup, "MAX_BACKUP_SIZE_MB"+suffix)
	strategy.VerifyBackup = config.BoolOrDefault(m.lookup, "VERIFY_BACKUP"+suffix, true)

	if strategy.RetentionDays, err = config.IntOrDefault(m.lookup, "RETENTION_DAYS"+suffix, config.DefaultRetentionDays); err != nil {
		return strategy, backuperr.StrategyConfiguration(err, "strategy %s", id)
	}
	if strategy.BackupTimeoutMinutes, err = config.IntOrDefault(m.lookup, "BACKUP_TIMEOUT"+suffix, config.DefaultBackupTimeoutMinutes); err != nil {
		return strategy, backuperr.StrategyConfiguration(err, "strategy %s", id)
	}

	m.log.WithFields(logrus.Fields{
		"strategy":  id,
		"databases": len(databases),
		"storages":  len(storages),
	}).Info("Strategy parsed")

	return strategy, nil
}

// checkClients runs one availability check over every engine the strategies need
func (m *Manager) checkClients(ctx context.Context, strategies []config.BackupStrategy) error {
	if m.checker == nil {
		return nil
	}

	var types []config.DatabaseType
	for _, s := range strategies {
		for _, db := range s.Databases {
			types = append(types, db.Type)
		}
	}
	if len(types) == 0 {
		return nil
	}

	available, err := m.checker.CheckAll(ctx, types)
	if err != nil {
		m.log.WithError(err).Error("Database client check failed")
		m.log.Error("Install the missing client tools:\n" + clientcheck.InstallationGuidance(types))
		return backuperr.StrategyConfiguration(err, "database client check failed")
	}

	for dbType, clientType := range available {
		m.log.WithField("database", dbType).WithField("client", clientType).Debug("Database client check passed")
	}
	return nil
}

// ValidateStrategies checks the strategy set and fails on the first violation
func (m *Manager) ValidateStrategies(strategies []config.BackupStrategy) error {
	if len(strategies) == 0 {
		return backuperr.StrategyConfiguration(nil, "no backup strategies configured")
	}

	ids := make(map[string]bool, len(strategies))
	for _, s := range strategies {
		if ids[s.ID] {
			return backuperr.StrategyConfiguration(nil, "duplicate strategy ID: %s", s.ID)
		}
		ids[s.ID] = true

		if len(s.Databases) == 0 {
			return backuperr.StrategyConfiguration(nil, "strategy %s has no database configuration", s.ID)
		}
		for _, db := range s.Databases {
			if len(db.DatabaseNames) == 0 {
				return backuperr.StrategyConfiguration(nil, "strategy %s database configuration missing database names", s.ID)
			}
			if db.Host == "" || db.Username == "" {
				return backuperr.StrategyConfiguration(nil, "strategy %s database configuration incomplete: host and username are required", s.ID)
			}
		}

		if len(s.Storages) == 0 {
			return backuperr.StrategyConfiguration(nil, "strategy %s has no storage configuration", s.ID)
		}
		for _, storage := range s.Storages {
			if storage.Bucket == "" || storage.AccessKey == "" || storage.SecretKey == "" {
				return backuperr.StrategyConfiguration(nil, "strategy %s storage configuration incomplete: bucket and credentials are required", s.ID)
			}
		}

		if s.RetentionDays <= 0 {
			return backuperr.StrategyConfiguration(nil, "strategy %s retention days must be greater than 0", s.ID)
		}
		if s.BackupTimeoutMinutes <= 0 {
			return backuperr.StrategyConfiguration(nil, "strategy %s backup timeout must be greater than 0", s.ID)
		}
	}

	m.log.WithField("count", len(strategies)).Info("Strategy validation passed")
	return nil
}

// CreateBackupConfig wraps validated strategies. Global overrides stay unset.
func (m *Manager) CreateBackupConfig(strategies []config.BackupStrategy) config.BackupConfig {
	return config.BackupConfig{Strategies: strategies}
}

// LoadConfig parses, validates and packages the strategies
func (m *Manager) LoadConfig(ctx context.Context) (config.BackupConfig, error) {
	strategies, err := m.ParseStrategiesFromEnv(ctx)
	if err != nil {
		return config.BackupConfig{}, errors.Wrap(err, "config load failed")
	}
	if err := m.ValidateStrategies(strategies); err != nil {
		return config.BackupConfig{}, errors.Wrap(err, "config load failed")
	}
	return m.CreateBackupConfig(strategies), nil
}
