package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/oriys/novacore/cli/render"
	"github.com/oriys/novacore/transport"
)

// FetchResult is the fetch command output.
type FetchResult struct {
	Status   int    `json:"status"`
	Bytes    int    `json:"bytes"`
	TimingMs int64  `json:"timingMs"`
	FinalURL string `json:"finalUrl"`
}

// FetchCommand returns the fetch command: a guarded GET through the
// redirect loop.
func FetchCommand() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch a URL through the guard and redirect loop",
		ArgsUsage: "<url>",
		Flags: append(ReadOnlyFlags(),
			&cli.BoolFlag{
				Name:  "body",
				Usage: "Print the response body to stdout instead of the summary",
			},
		),
		Action: fetchAction,
	}
}

func fetchAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: fetch <url>", ExitFailure)
	}

	app, err := buildApp(c)
	if err != nil {
		return err
	}
	if !app.Config.Features.WebFetchEnabled {
		return cli.Exit("web fetch is disabled (set WEB_FETCH_ENABLED=true)", ExitConfig)
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for fetch", ExitFailure)
	}

	resp, err := app.Fetcher.Fetch(c.Context, c.Args().First(), transport.FetchOptions{})
	if err != nil {
		return exitErr(err)
	}

	if c.Bool("body") {
		_, err := c.App.Writer.Write(resp.Body)
		return exitErr(err)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitFailure)
	}
	return exitErr(r.Render(FetchResult{
		Status:   resp.Status,
		Bytes:    len(resp.Body),
		TimingMs: resp.TimingMs,
		FinalURL: resp.FinalURL,
	}))
}
