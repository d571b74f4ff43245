package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"riddle-league/internal/config"
)

// NewSeedCmd loads a YAML catalog of users, competitions and riddles.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load users, competitions and riddles from a YAML catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "fixtures/sample.yaml", "catalog file")
	return cmd
}

func runSeed(ctx context.Context, configPath, file string) error {
	d, err := loadDeps(ctx, configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	if d.cfg.Store.Driver == config.DriverMemory {
		d.logger.Warn("seeding the memory store only lasts for this process")
	}
	if err := seedFile(ctx, d.store, file); err != nil {
		return err
	}
	d.logger.Info("catalog seeded", zap.String("file", file), zap.String("store", d.cfg.Store.Driver))
	return nil
}
