package indicator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNotifierReplacesAndDismissesNotification(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "busctl-args.log")
	t.Setenv("BUSCTL_ARGS_FILE", argsFile)
	t.Setenv("LANG", "en_US.UTF-8")
	installBusctlStub(t, `
printf '%s\n' "$*" >> "${BUSCTL_ARGS_FILE}"
if [[ "${6:-}" == "Notify" ]]; then
  echo "u 42"
fi
`)

	n := New(true, nil)
	n.ShowRecording(context.Background())
	n.ShowEnhancing(context.Background())
	n.ShowError(context.Background(), "")
	n.Hide(context.Background())

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	require.Contains(t, lines[0], "Notify susssasa{sv}i bettervoice 0 audio-input-microphone Recording…  0 1 urgency y 0 300000")
	require.Contains(t, lines[1], "bettervoice 42 accessories-text-editor Polishing… ")
	require.Contains(t, lines[2], "bettervoice 42 dialog-error Speech recognition error  0 1 urgency y 2 1600")
	require.True(t, strings.HasSuffix(lines[3], "CloseNotification u 42"))
}

func TestNotifierDisabledSkipsDispatch(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "busctl-args.log")
	t.Setenv("BUSCTL_ARGS_FILE", argsFile)
	installBusctlStub(t, `
printf '%s\n' "$*" >> "${BUSCTL_ARGS_FILE}"
`)

	n := New(false, nil)
	n.ShowRecording(context.Background())
	n.ShowTranscribing(context.Background())
	n.ShowError(context.Background(), "ignored")
	n.Hide(context.Background())

	_, err := os.Stat(argsFile)
	require.True(t, os.IsNotExist(err))
}

func TestNotifierSurvivesMissingDaemon(t *testing.T) {
	installBusctlStub(t, `
echo "Failed to connect to bus" >&2
exit 1
`)

	n := New(true, nil)
	n.ShowRecording(context.Background())
	n.Hide(context.Background())

	n.mu.Lock()
	defer n.mu.Unlock()
	require.Zero(t, n.id)
}

func TestNotificationArgs(t *testing.T) {
	args := notification{ReplaceID: 7, Icon: "dialog-error", Summary: "Mic muted", Body: "unmute and retry", Urgency: urgencyCritical, TimeoutMS: 1600}.args("bettervoice")
	require.Equal(t, []string{
		"--user", "call", notifyDest, notifyPath, notifyIface,
		"Notify", "susssasa{sv}i",
		"bettervoice", "7", "dialog-error", "Mic muted", "unmute and retry",
		"0", "1", "urgency", "y", "2", "1600",
	}, args)
}

func TestParseNotifyID(t *testing.T) {
	id, err := parseNotifyID("u 42")
	require.NoError(t, err)
	require.Equal(t, uint32(42), id)

	for _, bad := range []string{"", "s 42", "u", "u forty", "u 99999999999"} {
		_, err := parseNotifyID(bad)
		require.Error(t, err, bad)
	}
}

func installBusctlStub(t *testing.T, body string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "busctl")
	script := "#!/usr/bin/env bash\nset -euo pipefail\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}
