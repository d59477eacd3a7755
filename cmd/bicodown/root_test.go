package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test", Run: func(*cobra.Command, []string) {}}
	cmd.Flags().String("cookie", "", "")
	cmd.Flags().String("log-level", "", "")
	addHarvestFlags(cmd)
	return cmd
}

func TestCollectFlagsOnlyChanged(t *testing.T) {
	cmd := newFlagCommand()
	require.NoError(t, cmd.ParseFlags([]string{"--sort", "1", "--images", "-o", "/tmp/out"}))

	flags := collectFlags(cmd)
	assert.Equal(t, 1, flags["sort"])
	assert.Equal(t, true, flags["images"])
	assert.Equal(t, "/tmp/out", flags["output"])

	_, ok := flags["workers"]
	assert.False(t, ok, "defaults must not override config values")
	_, ok = flags["cookie"]
	assert.False(t, ok)
}

func TestCollectFlagsIgnoresMissingFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "bare"}
	assert.Empty(t, collectFlags(cmd))
}

func TestCodecCommands(t *testing.T) {
	assert.Error(t, encodeCmd.RunE(encodeCmd, []string{"not-a-number"}))
	assert.Error(t, decodeCmd.RunE(decodeCmd, []string{"BV"}))
}
