package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/theirongolddev/pburn/internal/model"
	"github.com/theirongolddev/pburn/internal/monitor"
)

// runFunc executes a command; swapped out in tests.
type runFunc func(ctx context.Context, name string, args ...string) error

func execRun(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// DesktopNotifier shows a native notification through notify-send on Linux
// and osascript on macOS.
type DesktopNotifier struct {
	goos string
	run  runFunc
}

// NewDesktopNotifier returns a notifier for the current OS.
func NewDesktopNotifier() *DesktopNotifier {
	return &DesktopNotifier{goos: runtime.GOOS, run: execRun}
}

func (d *DesktopNotifier) Name() string { return "desktop" }

// Send displays n. Critical alerts stay up longer and use the critical urgency.
func (d *DesktopNotifier) Send(ctx context.Context, n monitor.Notification) error {
	title := n.Level.Icon() + " " + n.Title
	switch d.goos {
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s sound name %s",
			appleString(n.Message), appleString(title), appleString(soundFor(n.Level)))
		return d.run(ctx, "osascript", "-e", script)
	case "linux", "freebsd", "openbsd", "netbsd":
		return d.run(ctx, "notify-send",
			"--app-name=pburn",
			"--urgency="+urgencyFor(n.Level),
			"--expire-time="+strconv.Itoa(expireMillis(n.Level)),
			title, n.Message)
	default:
		return fmt.Errorf("desktop notifications are not supported on %s", d.goos)
	}
}

func urgencyFor(l model.Level) string {
	if l == model.Critical {
		return "critical"
	}
	return "normal"
}

func expireMillis(l model.Level) int {
	if l == model.Critical {
		return 15000
	}
	return 10000
}

func soundFor(l model.Level) string {
	if l == model.Critical {
		return "Sosumi"
	}
	return "default"
}

// appleString quotes s as an AppleScript string literal.
func appleString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
