package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/oriys/novacore/cli/render"
)

// StatsCommand returns the stats command: derived counts over the
// webhook store and the reminder queue.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show aggregate statistics (webhooks, deliveries, reminders)",
		Flags:  ReadOnlyFlags(),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	app, err := buildApp(c)
	if err != nil {
		return err
	}

	snap, err := app.Reader.Stats(c.Context)
	if err != nil {
		return exitErr(err)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitFailure)
	}
	if c.Bool("tui") {
		return r.RenderTUI("stats", snap)
	}
	return exitErr(r.Render(snap))
}
