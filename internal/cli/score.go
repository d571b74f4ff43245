package cli

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewScoreCmd scores one riddle and prints the outcome as JSON.
func NewScoreCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "score <riddle-id>",
		Short: "Score a riddle whose window has ended",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd.Context(), *configPath, args[0])
		},
	}
}

// NewSweepCmd runs one sweep over every past-due riddle.
func NewSweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Score every closed riddle that is still unscored",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context(), *configPath)
		},
	}
}

func runScore(ctx context.Context, configPath, riddleID string) error {
	d, err := loadDeps(ctx, configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	outcome, err := d.trigger.Fire(ctx, riddleID)
	if err != nil {
		d.logger.Error("score riddle", zap.String("riddle_id", riddleID), zap.Error(err))
		return err
	}
	return printJSON(outcome)
}

func runSweep(ctx context.Context, configPath string) error {
	d, err := loadDeps(ctx, configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	report, err := d.sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
