package commands

import (
	"os"
	"testing"
)

func TestVerboseFlagForcesDebugLogging(t *testing.T) {
	t.Setenv("LOG_LEVEL", "info")
	verbose = true
	defer func() { verbose = false }()

	rootCmd.PersistentPreRun(rootCmd, nil)

	if got := os.Getenv("LOG_LEVEL"); got != "debug" {
		t.Errorf("LOG_LEVEL = %q, want debug", got)
	}
}

func TestVerboseFlagOffLeavesLevelAlone(t *testing.T) {
	t.Setenv("LOG_LEVEL", "info")
	verbose = false

	rootCmd.PersistentPreRun(rootCmd, nil)

	if got := os.Getenv("LOG_LEVEL"); got != "info" {
		t.Errorf("LOG_LEVEL = %q, want info", got)
	}
}
