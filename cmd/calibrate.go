package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/penwyp/claudequota/limits"
	"github.com/penwyp/claudequota/orchestrator"
	"github.com/penwyp/claudequota/output"
)

func newCalibrateCommand(c *cli) *cobra.Command {
	var (
		text     string
		textFile string
	)

	cmd := &cobra.Command{
		Use:   "calibrate [percent]",
		Short: "Record the usage percentage shown by Claude Code",
		Long: `Record the session usage percentage reported by Claude Code against the
weighted tokens counted in the current window. Each reading refines the
estimated token ceiling; the last 10 readings are kept.

The percentage can be given directly ("30" or "30%") or extracted from
captured screen text with --text or --text-file ("-" reads stdin).
Without any input the calibration history is shown.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := calibrationInput(cmd, args, text, textFile)
			if err != nil {
				return err
			}

			engine := orchestrator.NewEngineFromConfig(c.cfg, nil)
			if input == "" {
				status := output.NewStatusFormatter(nil).Format(engine.Calibration(), engine.Plan())
				_, err := fmt.Fprintln(cmd.OutOrStdout(), status)
				return err
			}

			percent, err := limits.ParseReportedPercent(input)
			if err != nil {
				return err
			}
			result, err := engine.Calibrate(percent, c.now())
			if err != nil {
				return err
			}
			return output.WriteJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "screen text containing \"NN% used\"")
	cmd.Flags().StringVar(&textFile, "text-file", "", "file with screen text, or - for stdin")
	return cmd
}

func calibrationInput(cmd *cobra.Command, args []string, text, textFile string) (string, error) {
	sources := 0
	for _, set := range []bool{len(args) > 0, text != "", textFile != ""} {
		if set {
			sources++
		}
	}
	if sources > 1 {
		return "", fmt.Errorf("give the percentage as an argument, --text or --text-file, not several")
	}

	switch {
	case len(args) > 0:
		return args[0], nil
	case text != "":
		return text, nil
	case textFile == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return nonBlank(string(data))
	case textFile != "":
		data, err := os.ReadFile(textFile)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", textFile, err)
		}
		return nonBlank(string(data))
	}
	return "", nil
}

func nonBlank(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("screen text is empty")
	}
	return s, nil
}
