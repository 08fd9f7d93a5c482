package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "whatschat", cmd.Use)
	assert.Contains(t, cmd.Long, "shared store")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{
		"serve", "stats", "shutdown", "register", "login", "profile",
		"contacts", "add-contact", "remove-contact", "history", "send", "read",
		"group", "watch", "persona",
	}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGroupSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"create", "add", "leave"} {
		sub, _, err := cmd.Find([]string{"group", name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	userFlag := cmd.PersistentFlags().Lookup("user")
	require.NotNil(t, userFlag)
	assert.Equal(t, "u", userFlag.Shorthand)

	for _, name := range []string{"config", "db", "relay"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestShutdownCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	shutdownCmd, _, err := cmd.Find([]string{"shutdown"})
	require.NoError(t, err)

	reason := shutdownCmd.Flags().Lookup("reason")
	require.NotNil(t, reason)
	assert.Equal(t, "maintenance", reason.DefValue)
	assert.NotNil(t, shutdownCmd.Flags().Lookup("at"))
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"contacts", "--format", "xml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
