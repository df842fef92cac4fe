package backup

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	dbcommon "github.com/supporttools/BackupFlow/pkg/database/common"
)

// ConnectionCheck is the outcome of one connectivity test
type ConnectionCheck struct {
	StrategyID string         `json:"strategyId" yaml:"strategy_id"`
	Kind       string         `json:"kind" yaml:"kind"`
	Target     string         `json:"target" yaml:"target"`
	OK         bool           `json:"ok" yaml:"ok"`
	Error      string         `json:"error,omitempty" yaml:"error,omitempty"`
	Details    map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
}

// TestConnections tests every database and storage of every strategy. It never
// stops at the first failure and reports true only when every check passed.
// Reachable targets carry their server or bucket details; a database whose
// details cannot be read still counts as connected.
func (m *Manager) TestConnections(ctx context.Context) (bool, []ConnectionCheck) {
	allOK := true
	var checks []ConnectionCheck

	record := func(check ConnectionCheck, err error) {
		log := m.log.WithFields(logrus.Fields{"strategy": check.StrategyID, "target": check.Target})
		if err != nil {
			allOK = false
			check.Error = err.Error()
			log.WithError(err).Errorf("%s connection failed", check.Kind)
		} else {
			check.OK = true
			log.Infof("%s connection OK", check.Kind)
		}
		checks = append(checks, check)
	}

	for _, s := range m.cfg.Strategies {
		for _, dbCfg := range s.Databases {
			check := ConnectionCheck{
				StrategyID: s.ID,
				Kind:       "database",
				Target:     fmt.Sprintf("%s://%s:%d", dbCfg.Type, dbCfg.Host, dbCfg.Port),
			}
			adapter, err := m.newDB(dbCfg, m.log)
			if err == nil {
				if err = adapter.TestConnection(ctx); err == nil {
					check.Details = m.databaseDetails(ctx, adapter, check)
				}
				adapter.Close()
			}
			record(check, err)
		}

		for _, stCfg := range s.Storages {
			check := ConnectionCheck{
				StrategyID: s.ID,
				Kind:       "storage",
				Target:     fmt.Sprintf("%s://%s", stCfg.Type, stCfg.Bucket),
			}
			adapter, err := m.newStorage(stCfg, m.log)
			if err == nil {
				if err = adapter.TestConnection(ctx); err == nil {
					check.Details = adapter.Info()
				}
			}
			record(check, err)
		}
	}

	return allOK, checks
}

func (m *Manager) databaseDetails(ctx context.Context, adapter dbcommon.Adapter, check ConnectionCheck) map[string]any {
	info, err := adapter.GetDatabaseInfo(ctx)
	if err != nil {
		m.log.WithFields(logrus.Fields{"strategy": check.StrategyID, "target": check.Target}).
			WithError(err).Warn("Failed to read database details")
		return nil
	}
	return info
}
