package cmd

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// newTestApp wires the commands into an app whose exit handler is a
// no-op, so Run returns the ExitCoder instead of terminating the test
// process.
func newTestApp() (*cli.App, *bytes.Buffer) {
	var buf bytes.Buffer
	app := &cli.App{
		Name:           "novacore",
		Writer:         &buf,
		ErrWriter:      io.Discard,
		ExitErrHandler: func(*cli.Context, error) {},
		Flags:          []cli.Flag{ConfigFlag},
		Commands: []*cli.Command{
			CheckCommand(),
			FetchCommand(),
			WebhooksCommand(),
			DeliveriesCommand(),
			StatsCommand(),
			KVCommand(),
			VersionCommand("abc1234"),
		},
	}
	return app, &buf
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var ec cli.ExitCoder
	require.ErrorAs(t, err, &ec)
	return ec.ExitCode()
}

func TestCheckDeniedExitsOne(t *testing.T) {
	app, _ := newTestApp()
	err := app.Run([]string{"novacore", "check", "--format", "json", "http://127.0.0.1/admin"})
	assert.Equal(t, ExitFailure, exitCode(t, err))
}

func TestCheckAllowedExitsZero(t *testing.T) {
	app, _ := newTestApp()
	err := app.Run([]string{"novacore", "check", "--format", "json", "http://8.8.8.8/status"})
	assert.Equal(t, ExitOK, exitCode(t, err))
}

func TestCheckRequiresURL(t *testing.T) {
	app, _ := newTestApp()
	err := app.Run([]string{"novacore", "check"})
	assert.Equal(t, ExitFailure, exitCode(t, err))
}

func TestFetchDisabledIsConfigError(t *testing.T) {
	app, _ := newTestApp()
	err := app.Run([]string{"novacore", "fetch", "http://8.8.8.8/"})
	assert.Equal(t, ExitConfig, exitCode(t, err))
}

func TestWebhooksInspectMissing(t *testing.T) {
	app, _ := newTestApp()
	err := app.Run([]string{"novacore", "webhooks", "inspect", "--format", "json", "wh-missing"})
	require.Error(t, err)
	assert.Equal(t, ExitFailure, exitCode(t, err))
	assert.Contains(t, err.Error(), "not found")
}

func TestDeliveriesRequiresWebhookID(t *testing.T) {
	app, _ := newTestApp()
	err := app.Run([]string{"novacore", "deliveries"})
	assert.Equal(t, ExitFailure, exitCode(t, err))
}

func TestStatsRendersOnEmptyStore(t *testing.T) {
	app, _ := newTestApp()
	err := app.Run([]string{"novacore", "stats", "--format", "json"})
	assert.Equal(t, ExitOK, exitCode(t, err))
}

func TestKVPing(t *testing.T) {
	app, buf := newTestApp()
	err := app.Run([]string{"novacore", "kv", "ping"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "PONG")
}

func TestKVFlushAllRequiresConfirmation(t *testing.T) {
	app, _ := newTestApp()
	err := app.Run([]string{"novacore", "kv", "flushall"})
	assert.Equal(t, ExitFailure, exitCode(t, err))
	assert.Contains(t, err.Error(), "--yes")
}

func TestKVFlushAllConfirmed(t *testing.T) {
	app, buf := newTestApp()
	err := app.Run([]string{"novacore", "kv", "flushall", "--yes"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "OK")
}

func TestBadConfigFileIsConfigError(t *testing.T) {
	app, _ := newTestApp()
	err := app.Run([]string{"novacore", "--config", "/nonexistent.yaml", "stats", "--format", "json"})
	assert.Equal(t, ExitConfig, exitCode(t, err))
}

func TestTUIRejectedWhereUnsupported(t *testing.T) {
	app, _ := newTestApp()
	for _, args := range [][]string{
		{"novacore", "check", "--tui", "http://8.8.8.8/"},
		{"novacore", "deliveries", "--tui", "wh-1"},
		{"novacore", "version", "--tui"},
	} {
		err := app.Run(args)
		assert.Equal(t, ExitFailure, exitCode(t, err), "%v", args)
	}
}
