package indicator

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const (
	notifyDest  = "org.freedesktop.Notifications"
	notifyPath  = "/org/freedesktop/Notifications"
	notifyIface = "org.freedesktop.Notifications"
)

// Freedesktop urgency levels, sent as the "urgency" byte hint.
const (
	urgencyLow      byte = 0
	urgencyCritical byte = 2
)

// notification is one Notify call. ReplaceID 0 asks the server for a new id.
type notification struct {
	ReplaceID uint32
	Icon      string
	Summary   string
	Body      string
	Urgency   byte
	TimeoutMS int
}

// args renders n as busctl call arguments for the Notify method.
func (n notification) args(appName string) []string {
	return []string{
		"--user", "call", notifyDest, notifyPath, notifyIface,
		"Notify", "susssasa{sv}i",
		appName,
		strconv.FormatUint(uint64(n.ReplaceID), 10),
		n.Icon,
		n.Summary,
		n.Body,
		"0", // no actions
		"1", "urgency", "y", strconv.Itoa(int(n.Urgency)),
		strconv.Itoa(n.TimeoutMS),
	}
}

// desktopNotify sends n over the session bus and returns the id the
// notification server assigned.
func desktopNotify(ctx context.Context, appName string, n notification) (uint32, error) {
	out, err := busctl(ctx, n.args(appName)...)
	if err != nil {
		return 0, fmt.Errorf("desktop notify: %w", err)
	}
	return parseNotifyID(out)
}

// desktopDismiss closes the notification with id.
func desktopDismiss(ctx context.Context, id uint32) error {
	_, err := busctl(ctx, "--user", "call", notifyDest, notifyPath, notifyIface,
		"CloseNotification", "u", strconv.FormatUint(uint64(id), 10))
	if err != nil {
		return fmt.Errorf("desktop dismiss: %w", err)
	}
	return nil
}

// parseNotifyID reads busctl's "u <id>" reply.
func parseNotifyID(out string) (uint32, error) {
	fields := strings.Fields(out)
	if len(fields) != 2 || fields[0] != "u" {
		return 0, fmt.Errorf("desktop notify: unexpected reply %q", out)
	}
	value, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("desktop notify: parse id %q: %w", fields[1], err)
	}
	return uint32(value), nil
}

func busctl(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "busctl", args...).CombinedOutput()
	trimmed := strings.TrimSpace(string(out))
	if err != nil {
		if trimmed == "" {
			return "", err
		}
		return "", fmt.Errorf("%w (%s)", err, trimmed)
	}
	return trimmed, nil
}
