package main

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/deepset-ai/deepset-cloud-sdk-go/service"
)

func contextWithLogLevel(level string) *cli.Context {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.String("log-level", level, "")
	return cli.NewContext(cli.NewApp(), set, nil)
}

func TestSetupLogger(t *testing.T) {
	t.Run("valid levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", "WARN"} {
			assert.NoError(t, setupLogger(contextWithLogLevel(level)), "level %q", level)
		}
	})

	t.Run("invalid level", func(t *testing.T) {
		err := setupLogger(contextWithLogLevel("verbose"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}

func TestCLITimeout(t *testing.T) {
	assert.Equal(t, service.NoTimeout, cliTimeout(0), "a zero flag disables the deadline")
	assert.Equal(t, service.NoTimeout, cliTimeout(-5*time.Second))
	assert.Equal(t, time.Minute, cliTimeout(time.Minute))
}

func TestUploadCommand_RequiresPaths(t *testing.T) {
	app := &cli.App{
		Name: "deepset",
		Commands: []*cli.Command{
			{
				Name:   "upload",
				Action: uploadCommand,
			},
		},
	}
	err := app.Run([]string{"deepset", "upload"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one path")
}
