package main

import (
	"errors"
	"os"
	"os/exec"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMainExitCodes(t *testing.T) {
	cases := []struct {
		name     string
		args     []string
		exitCode int
		contains string
	}{
		{name: "help", args: []string{"--help"}, exitCode: 0, contains: "Usage:"},
		{name: "version", args: []string{"version"}, exitCode: 0, contains: "bettervoice "},
		{name: "unknown command", args: []string{"not-a-command"}, exitCode: 2, contains: "unknown command"},
		{name: "enhance without text", args: []string{"enhance"}, exitCode: 2, contains: "enhance"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			output, err := runMainSubprocess(t, tc.args...)
			require.Contains(t, string(output), tc.contains)
			if tc.exitCode == 0 {
				require.NoError(t, err, string(output))
				return
			}
			var exitErr *exec.ExitError
			require.True(t, errors.As(err, &exitErr), "err = %v", err)
			require.Equal(t, tc.exitCode, exitErr.ExitCode())
		})
	}
}

func TestMainHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	args := []string{"bettervoice"}
	if dash := slices.Index(os.Args, "--"); dash >= 0 {
		args = append(args, os.Args[dash+1:]...)
	}
	os.Args = args

	main()
}

func runMainSubprocess(t *testing.T, args ...string) ([]byte, error) {
	t.Helper()

	cmd := exec.Command(os.Args[0], append([]string{"-test.run=TestMainHelperProcess", "--"}, args...)...)
	cmd.Env = append(os.Environ(),
		"GO_WANT_HELPER_PROCESS=1",
		"XDG_STATE_HOME="+t.TempDir(),
		"XDG_CONFIG_HOME="+t.TempDir(),
		"XDG_DATA_HOME="+t.TempDir(),
	)
	return cmd.CombinedOutput()
}
