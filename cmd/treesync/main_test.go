package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openmined/treesync/internal/client"
	"github.com/openmined/treesync/internal/config"
	"github.com/openmined/treesync/internal/version"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand_PrintsDetailedVersion(t *testing.T) {
	cmd := &cobra.Command{Use: "treesync"}
	cmd.AddCommand(newVersionCmd())

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	require.Equal(t, version.Detailed(), strings.TrimSpace(out.String()))
}

func TestInitConfigCommand(t *testing.T) {
	out := filepath.Join(t.TempDir(), "cfg", "server.json")

	run := func(args ...string) error {
		cmd := &cobra.Command{Use: "treesync"}
		cmd.AddCommand(newInitConfigCmd())
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	require.NoError(t, run("init-config", "server", "-o", out))
	cfg, err := config.Load(out)
	require.NoError(t, err)
	assert.Equal(t, config.ServerTemplate().Server, cfg.Server)

	assert.Error(t, run("init-config", "client", "-o", out))
	require.NoError(t, run("init-config", "client", "-o", out, "--force"))
	cfg, err = config.Load(out)
	require.NoError(t, err)
	assert.NotNil(t, cfg.Client)

	assert.Error(t, run("init-config", "bogus", "-o", out))
}

func TestSetupLogging(t *testing.T) {
	assert.Error(t, setupLogging("loud", ""))

	logFile := filepath.Join(t.TempDir(), "logs", "treesync.log")
	require.NoError(t, setupLogging("debug", logFile))
	t.Cleanup(func() { setupLogging("info", "") })

	require.NoError(t, closeLogging())
	assert.FileExists(t, logFile)
}

func TestRun_ValidationErrors(t *testing.T) {
	ctx := context.Background()

	err := run(ctx, &config.Config{})
	assert.ErrorIs(t, err, config.ErrNoRole)

	missing := filepath.Join(t.TempDir(), "does-not-exist")
	err = run(ctx, config.NewServer(0, missing))
	assert.Error(t, err)

	clientRoot := filepath.Join(t.TempDir(), "client")
	err = run(ctx, config.NewClient("0.0.0.0", 0, clientRoot))
	assert.ErrorIs(t, err, client.ErrInvalidHost)
	_, statErr := os.Stat(clientRoot)
	assert.True(t, os.IsNotExist(statErr))
}
