package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/supporttools/BackupFlow/pkg/config"
	"github.com/supporttools/BackupFlow/pkg/storage"
)

type presigner interface {
	GeneratePresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

func newPresignCommand(a *app) *cobra.Command {
	var (
		strategyID string
		index      int
		key        string
		expiry     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "presign",
		Short: "Print a presigned download URL for a stored backup",
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				return errors.New("--key is required")
			}
			ctx := cmd.Context()
			cfg, err := a.loadConfig(ctx, false)
			if err != nil {
				return err
			}

			stCfg, err := findStorage(cfg, strategyID, index)
			if err != nil {
				return err
			}
			adapter, err := storage.New(stCfg, a.log)
			if err != nil {
				return err
			}
			p, ok := adapter.(presigner)
			if !ok {
				return fmt.Errorf("%s storage does not support presigned URLs", stCfg.Type)
			}

			url, err := p.GeneratePresignedURL(ctx, key, expiry)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
	cmd.Flags().StringVar(&strategyID, "strategy", "strategy_1", "strategy id")
	cmd.Flags().IntVar(&index, "storage", 0, "zero-based index of the storage within the strategy")
	cmd.Flags().StringVar(&key, "key", "", "object key to sign")
	cmd.Flags().DurationVar(&expiry, "expiry", time.Hour, "URL lifetime")
	return cmd
}

func findStorage(cfg config.BackupConfig, strategyID string, index int) (config.StorageConfig, error) {
	for _, s := range cfg.Strategies {
		if s.ID != strategyID {
			continue
		}
		if index < 0 || index >= len(s.Storages) {
			return config.StorageConfig{}, fmt.Errorf("strategy %s has %d storages, index %d is out of range", strategyID, len(s.Storages), index)
		}
		return s.Storages[index], nil
	}
	return config.StorageConfig{}, fmt.Errorf("strategy %s not found", strategyID)
}
