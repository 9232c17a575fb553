package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/penwyp/claudequota/config"
	"github.com/penwyp/claudequota/logging"
	"github.com/penwyp/claudequota/models"
	"github.com/penwyp/claudequota/orchestrator"
	"github.com/penwyp/claudequota/output"
)

// ExitError carries a process exit code. Its output has already been printed.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// cli holds state shared by the commands of one invocation.
type cli struct {
	cfgFile string
	cfg     *config.Config
	now     func() time.Time
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	c := &cli{now: time.Now}

	rootCmd := &cobra.Command{
		Use:   "claudequota",
		Short: "Estimate Claude Code usage in the current 5-hour window",
		Long: `claudequota reads the local Claude Code conversation logs, tracks the rolling
5-hour usage window and prints a JSON report of weighted token usage against
the plan's quota.

Exit status is 1 when usage reaches the warning threshold and 2 on failure.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initialize(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync()
		},
		RunE: c.runUsage,
	}

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default is $HOME/"+models.ConfigFileName+")")
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "usage",
			Short: "Print the usage report (default command)",
			Args:  cobra.NoArgs,
			RunE:  c.runUsage,
		},
		newCalibrateCommand(c),
		newWatchCommand(c),
		newVersionCommand(),
	)
	return rootCmd
}

// Execute runs the CLI.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func (c *cli) initialize(cmd *cobra.Command) error {
	if cmd.Name() == "version" {
		return nil
	}

	cfg, err := config.NewLoader(c.cfgFile, cmd.Flags()).Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logging.InitGlobalLogger(cfg.App.LogLevel, cfg.App.LogFile); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	c.cfg = cfg
	return nil
}

func (c *cli) runUsage(cmd *cobra.Command, args []string) error {
	engine := orchestrator.NewEngineFromConfig(c.cfg, nil)
	rep := engine.Compute(c.now())

	if err := output.WriteJSON(cmd.OutOrStdout(), rep); err != nil {
		return err
	}

	switch {
	case rep.Failed():
		return &ExitError{Code: models.ExitCodeFailure, Err: fmt.Errorf("%s", rep.Error)}
	case rep.TokenPercent >= c.cfg.Report.WarnThreshold:
		logging.LogInfof("usage %.1f%% is at or above the %.0f%% threshold", rep.TokenPercent, c.cfg.Report.WarnThreshold)
		return &ExitError{Code: models.ExitCodeWarn}
	}
	return nil
}
