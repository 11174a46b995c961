// Package main provides the novacore admin CLI entrypoint.
//
// All commands are read-only against the KV backend; mutation is
// limited to `kv flushall`, which requires explicit confirmation.
//
// Usage:
//
//	novacore <command> [subcommand] [options]
//
// Exit codes:
//   - 0: clean
//   - 1: runtime failure (including a denied `check`)
//   - 2: configuration error
//   - 3: backend unreachable
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/oriys/novacore/cli/cmd"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "novacore",
		Usage:          "Novacore trust and transport admin CLI",
		Version:        fmt.Sprintf("%s (commit: %s)", cmd.Version, commit),
		Flags:          []cli.Flag{cmd.ConfigFlag},
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.CheckCommand(),
			cmd.FetchCommand(),
			cmd.WebhooksCommand(),
			cmd.DeliveriesCommand(),
			cmd.StatsCommand(),
			cmd.KVCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled cli.ExitCoder errors; this
		// branch covers unexpected errors that were not wrapped.
		os.Exit(cmd.ExitFailure)
	}
}

// exitErrHandler preserves exit codes from cli.Exit so command
// contracts (check's allowed/denied distinction, config vs backend
// failures) survive to the shell.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N"; skip those.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(cmd.ExitFailure)
}
