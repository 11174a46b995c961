package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/oriys/novacore/cli/render"
)

// Version is the canonical project version, shared by both binaries.
const Version = "0.1.0"

// VersionResponse is the version command output.
type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// VersionCommand returns the version command. It never touches the
// backend.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return cli.Exit(err.Error(), ExitFailure)
		}
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version", ExitFailure)
		}
		return r.Render(VersionResponse{Version: Version, Commit: commit})
	}
}
