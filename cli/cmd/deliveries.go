package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/oriys/novacore/cli/render"
)

// DeliveriesCommand returns the deliveries command: the recent
// delivery log for one webhook.
func DeliveriesCommand() *cli.Command {
	return &cli.Command{
		Name:      "deliveries",
		Usage:     "Show recent deliveries for a webhook, newest first",
		ArgsUsage: "<webhookId>",
		Flags: append(ReadOnlyFlags(),
			&cli.Int64Flag{
				Name:  "limit",
				Usage: "Maximum deliveries to show",
				Value: 20,
			},
		),
		Action: deliveriesAction,
	}
}

func deliveriesAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: deliveries <webhookId>", ExitFailure)
	}

	app, err := buildApp(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for deliveries", ExitFailure)
	}

	log, err := app.Reader.Deliveries(c.Context, c.Args().First(), c.Int64("limit"))
	if err != nil {
		return exitErr(err)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitFailure)
	}
	return exitErr(r.Render(log))
}
