package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/oriys/novacore/cli/render"
)

// CheckCommand returns the check command: evaluate one URL against the
// guard policy without fetching it.
func CheckCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Evaluate a URL against the outbound policy (exit 0 allowed, 1 denied)",
		ArgsUsage: "<url>",
		Flags:     ReadOnlyFlags(),
		Action:    checkAction,
	}
}

func checkAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: check <url>", ExitFailure)
	}

	app, err := buildApp(c)
	if err != nil {
		return err
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitFailure)
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for check", ExitFailure)
	}

	decision := app.Guard.Check(c.Context, c.Args().First())
	if err := r.Render(decision); err != nil {
		return exitErr(err)
	}
	if !decision.Allowed {
		return cli.Exit("", ExitFailure)
	}
	return nil
}
