package cmd

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/penwyp/claudequota/output"
)

// Version information set by linker during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

type VersionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	Compiler  string `json:"compiler"`
}

func currentVersion() VersionInfo {
	return VersionInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		Compiler:  runtime.Compiler,
	}
}

func newVersionCommand() *cobra.Command {
	var (
		versionOutput string
		versionShort  bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version information for claudequota including build details and system information.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := currentVersion()
			out := cmd.OutOrStdout()

			if versionShort {
				versionOutput = "short"
			}
			switch versionOutput {
			case "json":
				return output.WriteJSON(out, info)
			case "short":
				_, err := fmt.Fprintln(out, info.Version)
				return err
			default:
				return outputVersionDefault(out, info)
			}
		},
	}

	cmd.Flags().StringVarP(&versionOutput, "output", "o", "default", "output format (default, json, short)")
	cmd.Flags().BoolVarP(&versionShort, "short", "s", false, "show only version number")
	return cmd
}

func outputVersionDefault(w io.Writer, info VersionInfo) error {
	lines := []string{
		"claudequota - Claude Code usage window estimator",
		fmt.Sprintf("Version:     %s", info.Version),
	}
	if info.GitCommit != "unknown" {
		lines = append(lines, fmt.Sprintf("Git Commit:  %s", info.GitCommit))
	}
	if info.BuildTime != "unknown" {
		lines = append(lines, fmt.Sprintf("Build Time:  %s", info.BuildTime))
	}
	lines = append(lines,
		fmt.Sprintf("Go Version:  %s", info.GoVersion),
		fmt.Sprintf("OS/Arch:     %s/%s", info.OS, info.Arch),
		fmt.Sprintf("Compiler:    %s", info.Compiler),
	)

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
