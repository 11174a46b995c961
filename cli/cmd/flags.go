// Package cmd provides the commands for the novacore binary.
package cmd

import "github.com/urfave/cli/v2"

// Exit codes shared by both binaries.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitConfig  = 2
	ExitBackend = 3
	ExitSignal  = 4
)

// Shared flags for read-only commands.
var (
	// ConfigFlag selects an optional YAML config file; without it the
	// environment alone configures the process.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to YAML config file (environment overrides it)",
		EnvVars: []string{"NOVACORE_CONFIG"},
	}

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
	// Only valid for select read-only commands (stats, webhooks inspect).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (stats, webhooks inspect only)",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// --tui is included everywhere so unsupported commands can answer with
// an explicit message instead of "flag not defined".
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}
