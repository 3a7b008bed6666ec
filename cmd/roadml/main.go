package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"roadsafety/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("✗"), err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "roadml",
		Short:         "Road-safety tabular modeling pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "roadml.yaml", "run configuration file")
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().String("data", "", "override dataset.path")
	root.PersistentFlags().String("output", "", "override output.dir")
	root.PersistentFlags().Int64("seed", -1, "override split and balance seeds")
	root.PersistentFlags().Float64("test-size", 0, "override split.test_size")
	root.PersistentFlags().Int("folds", -1, "override cross_validation.folds")

	addCommands(root)
	return root
}

// Action carries what every command needs: flags, logger and configuration.
type Action struct {
	cmd    *cobra.Command
	logger *slog.Logger
}

func newAction(cmd *cobra.Command) (*Action, error) {
	level, err := parseLevel(getString(cmd, "log-level"))
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return &Action{cmd: cmd, logger: logger}, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return level, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// loadConfig reads the configuration file and applies the flag overrides.
func (a *Action) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getString(a.cmd, "config"))
	if err != nil {
		return nil, err
	}
	if err := applyOverrides(a.cmd, cfg); err != nil {
		return nil, err
	}
	a.logger.Debug("configuration loaded",
		slog.String("dataset", cfg.Dataset.Path),
		slog.String("task", string(cfg.Task)),
		slog.Int("models", len(cfg.Models)))
	return cfg, nil
}

func applyOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	changed := false
	if flags.Changed("data") {
		cfg.Dataset.Path = getString(cmd, "data")
		changed = true
	}
	if flags.Changed("output") {
		cfg.Output.Dir = getString(cmd, "output")
	}
	if flags.Changed("seed") {
		seed, _ := flags.GetInt64("seed")
		cfg.Split.Seed = seed
		cfg.Balance.Seed = seed
		changed = true
	}
	if flags.Changed("test-size") {
		cfg.Split.TestSize, _ = flags.GetFloat64("test-size")
		changed = true
	}
	if flags.Changed("folds") {
		cfg.CrossValidation.Folds, _ = flags.GetInt("folds")
		changed = true
	}
	if changed {
		return cfg.Validate()
	}
	return nil
}

func getString(cmd *cobra.Command, name string) string {
	result, _ := cmd.Flags().GetString(name)
	return result
}

func getBool(cmd *cobra.Command, name string) bool {
	result, _ := cmd.Flags().GetBool(name)
	return result
}
