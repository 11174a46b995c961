package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// KVCommand returns the kv command with backend maintenance
// subcommands.
func KVCommand() *cli.Command {
	return &cli.Command{
		Name:  "kv",
		Usage: "Key/value backend maintenance",
		Subcommands: []*cli.Command{
			kvPingCommand(),
			kvFlushAllCommand(),
		},
	}
}

func kvPingCommand() *cli.Command {
	return &cli.Command{
		Name:   "ping",
		Usage:  "Verify the backend answers",
		Action: kvPingAction,
	}
}

func kvPingAction(c *cli.Context) error {
	app, err := buildApp(c)
	if err != nil {
		return err
	}
	if err := app.Store.Ping(c.Context); err != nil {
		return cli.Exit(fmt.Sprintf("backend unreachable: %v", err), ExitBackend)
	}
	fmt.Fprintln(c.App.Writer, "PONG")
	return nil
}

func kvFlushAllCommand() *cli.Command {
	return &cli.Command{
		Name:  "flushall",
		Usage: "Delete every key in the backend",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "yes",
				Usage: "Confirm the flush (required)",
			},
		},
		Action: kvFlushAllAction,
	}
}

func kvFlushAllAction(c *cli.Context) error {
	if !c.Bool("yes") {
		return cli.Exit("flushall deletes every key; re-run with --yes to confirm", ExitFailure)
	}
	app, err := buildApp(c)
	if err != nil {
		return err
	}
	if err := app.Store.FlushAll(c.Context); err != nil {
		return exitErr(err)
	}
	fmt.Fprintln(c.App.Writer, "OK")
	return nil
}
