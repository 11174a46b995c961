package cmd

import (
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/oriys/novacore/cli/render"
	"github.com/oriys/novacore/kv"
)

// WebhooksCommand returns the webhooks command with subcommands.
func WebhooksCommand() *cli.Command {
	return &cli.Command{
		Name:  "webhooks",
		Usage: "Inspect webhook registrations",
		Subcommands: []*cli.Command{
			webhooksListCommand(),
			webhooksInspectCommand(),
		},
	}
}

func webhooksListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List registered webhooks",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "user",
				Usage: "Restrict to one user's webhooks",
			},
		),
		Action: webhooksListAction,
	}
}

func webhooksListAction(c *cli.Context) error {
	app, err := buildApp(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for webhooks list", ExitFailure)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitFailure)
	}

	hooks, err := app.Reader.Webhooks(c.Context, c.String("user"))
	if err != nil {
		return exitErr(err)
	}
	return exitErr(r.Render(hooks))
}

func webhooksInspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show one webhook in full (secret excluded)",
		ArgsUsage: "<webhookId>",
		Flags:     ReadOnlyFlags(),
		Action:    webhooksInspectAction,
	}
}

func webhooksInspectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: webhooks inspect <webhookId>", ExitFailure)
	}

	app, err := buildApp(c)
	if err != nil {
		return err
	}

	detail, err := app.Reader.Webhook(c.Context, c.Args().First())
	if err != nil {
		if errors.Is(err, kv.ErrAbsent) {
			return cli.Exit("webhook not found: "+c.Args().First(), ExitFailure)
		}
		return exitErr(err)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitFailure)
	}
	if c.Bool("tui") {
		return r.RenderTUI("inspect_webhook", detail)
	}
	return exitErr(r.Render(detail))
}
