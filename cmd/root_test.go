package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"ocr", "provider", "points", "health", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "inspect-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestOcrCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"attempts", "user", "provider"} {
		flag := ocrCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "ocr should have --%s flag", flagName)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestProviderCommand_HasSubcommands(t *testing.T) {
	cmds := providerCmd.Commands()
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"list", "add", "test", "switch", "show", "remove"}
	for _, name := range expected {
		assert.True(t, names[name], "provider should have subcommand %q", name)
	}
}

func TestProviderAddCommand_FlagDefaults(t *testing.T) {
	for flagName, def := range map[string]string{
		"timeout":  "30",
		"retries":  "3",
		"priority": "100",
		"default":  "false",
	} {
		flag := providerAddCmd.Flags().Lookup(flagName)
		require.NotNil(t, flag, "provider add should have --%s flag", flagName)
		assert.Equal(t, def, flag.DefValue, "--%s default", flagName)
	}
}

func TestProviderTestCommand_Flags(t *testing.T) {
	flag := providerTestCmd.Flags().Lookup("all")
	require.NotNil(t, flag, "provider test should have --all flag")
	assert.Equal(t, "false", flag.DefValue)
}

func TestPointsCommand_Flags(t *testing.T) {
	flag := pointsCmd.PersistentFlags().Lookup("limit")
	require.NotNil(t, flag, "points should have --limit flag")
	assert.Equal(t, "20", flag.DefValue)
}
