// Testing utilities shared between command tests. They point enseal at a
// temporary home and run commands through a fresh root.
package cmd

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/PolarWolf314/enseal/internal/configs"
	logger "github.com/PolarWolf314/enseal/internal/logging"
)

// setupTestEnvironment points the user settings at a fresh temporary home
// and restores the originals when the test ends.
func setupTestEnvironment(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	original := configs.UserEnsealSettings
	configs.UserEnsealSettings = configs.NewUserSettings(
		filepath.Join(home, "config"),
		filepath.Join(home, "data"),
		"testuser",
	)
	t.Setenv("NO_COLOR", "1")
	t.Setenv("ENSEAL_RELAY", "")

	ResetGlobalState()
	SetLogger(logger.Logger{})
	t.Cleanup(func() {
		configs.UserEnsealSettings = original
		ResetGlobalState()
	})
	return home
}

// switchHome moves the user settings to another temporary home within the
// same test, simulating a second person.
func switchHome(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	configs.UserEnsealSettings = configs.NewUserSettings(
		filepath.Join(home, "config"),
		filepath.Join(home, "data"),
		"otheruser",
	)
}

// runCommand executes args against a fresh root and returns what was
// written to its output.
func runCommand(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	ResetGlobalState()

	root := &cobra.Command{Use: "enseal", SilenceErrors: true, SilenceUsage: true}
	Setup(root)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	if stdin != nil {
		root.SetIn(stdin)
	}
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}
