// Package cmd provides CLI commands for the bundler binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags for commands that render a result.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for inspect and bundle.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (inspect, bundle only)",
	}
)

// Shared flags for commands that perform a run.
var (
	// ConfigFlag points at the YAML config file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config file (default: bundler.yaml when present)",
		EnvVars: []string{"BUNDLER_CONFIG"},
	}

	// LogLevelFlag sets the minimum log level written to stderr.
	LogLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level: debug, info, warn, error",
		EnvVars: []string{"BUNDLER_LOG_LEVEL"},
	}

	// LogFormatFlag selects json or console log lines.
	LogFormatFlag = &cli.StringFlag{
		Name:    "log-format",
		Usage:   "Log format: json, console",
		EnvVars: []string{"BUNDLER_LOG_FORMAT"},
	}

	// RunIDFlag overrides the generated run ID.
	RunIDFlag = &cli.StringFlag{
		Name:  "run-id",
		Usage: "Run ID (default: random UUID)",
	}

	// QuietFlag suppresses the result summary.
	QuietFlag = &cli.BoolFlag{
		Name:    "quiet",
		Aliases: []string{"q"},
		Usage:   "Suppress the result summary",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// RunFlags returns the shared flags for commands that perform a run.
func RunFlags() []cli.Flag {
	return append([]cli.Flag{
		ConfigFlag,
		LogLevelFlag,
		LogFormatFlag,
		RunIDFlag,
		QuietFlag,
	}, ReadOnlyFlags()...)
}
