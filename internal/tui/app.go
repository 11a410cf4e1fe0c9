// Package tui provides the live Bubble Tea watch view for pburn.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/pburn/internal/cli"
	"github.com/theirongolddev/pburn/internal/model"
	"github.com/theirongolddev/pburn/internal/monitor"
	"github.com/theirongolddev/pburn/internal/tui/components"
	"github.com/theirongolddev/pburn/internal/tui/theme"
)

// Engine is the part of the monitor the watch view drives. *monitor.Scheduler
// implements it.
type Engine interface {
	Publisher() *monitor.Publisher
	Notifications() *monitor.Subscription[monitor.Notification]
	Refresh()
	Stats() monitor.Stats
	Settings() monitor.Settings
}

// SnapshotMsg carries a newly published snapshot.
type SnapshotMsg struct {
	Snapshot *model.Snapshot
}

// AlertMsg carries a notification emitted by the policy.
type AlertMsg struct {
	Notification monitor.Notification
}

// StoppedMsg is sent once the engine has closed its streams.
type StoppedMsg struct{}

type tickMsg time.Time

const (
	minTerminalWidth = 60
	maxContentWidth  = 120
	maxRecentAlerts  = 5
)

// App is the root Bubble Tea model.
type App struct {
	engine Engine
	snaps  *monitor.Subscription[*model.Snapshot]
	alerts *monitor.Subscription[monitor.Notification]
	now    func() time.Time

	snap       *model.Snapshot
	stats      monitor.Stats
	recent     []monitor.Notification
	refreshing bool
	stopped    bool

	width    int
	height   int
	showHelp bool

	spinner spinner.Model
}

// NewApp subscribes to the engine. Create it before starting the engine so the
// first snapshot is not missed.
func NewApp(engine Engine) App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Active.Accent)

	return App{
		engine:  engine,
		snaps:   engine.Publisher().Subscribe(),
		alerts:  engine.Notifications(),
		now:     time.Now,
		snap:    engine.Publisher().Current(),
		stats:   engine.Stats(),
		spinner: sp,
	}
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	return tea.Batch(
		waitForSnapshot(a.snaps),
		waitForAlert(a.alerts),
		a.spinner.Tick,
		tickCmd(),
	)
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if a.showHelp && msg.String() != "ctrl+c" {
				a.showHelp = false
				return a, nil
			}
			a.close()
			return a, tea.Quit
		case "?":
			a.showHelp = !a.showHelp
			return a, nil
		case "r":
			if !a.stopped {
				a.refreshing = true
				a.engine.Refresh()
			}
			return a, nil
		}
		if a.showHelp {
			a.showHelp = false
		}
		return a, nil

	case SnapshotMsg:
		a.snap = msg.Snapshot
		a.refreshing = false
		a.stats = a.engine.Stats()
		return a, waitForSnapshot(a.snaps)

	case AlertMsg:
		a.recent = append([]monitor.Notification{msg.Notification}, a.recent...)
		if len(a.recent) > maxRecentAlerts {
			a.recent = a.recent[:maxRecentAlerts]
		}
		return a, waitForAlert(a.alerts)

	case StoppedMsg:
		a.stopped = true
		a.refreshing = false
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case tickMsg:
		prev := a.stats
		a.stats = a.engine.Stats()
		// A failed refresh publishes nothing, so watch the failure counter.
		if a.refreshing && a.stats.PollCount > prev.PollCount {
			a.refreshing = false
		}
		return a, tickCmd()
	}
	return a, nil
}

func (a *App) close() {
	a.snaps.Close()
	a.alerts.Close()
}

// View implements tea.Model.
func (a App) View() string {
	if a.width == 0 {
		return ""
	}
	if a.width < minTerminalWidth {
		return fmt.Sprintf("\n  Terminal too narrow (%d cols)\n\n  pburn needs at least %d columns.\n",
			a.width, minTerminalWidth)
	}
	if a.showHelp {
		return a.viewHelp()
	}
	return a.viewMain()
}

func (a App) contentWidth() int {
	return min(a.width, maxContentWidth)
}

func (a App) viewMain() string {
	t := theme.Active
	cw := a.contentWidth()

	var sections []string
	sections = append(sections, a.viewHeader(cw))

	if a.snap == nil {
		waiting := lipgloss.NewStyle().Foreground(t.TextMuted).
			Render(a.spinner.View() + " Waiting for the first budget reading...")
		if a.stats.LastError != "" {
			waiting += "\n\n" + lipgloss.NewStyle().Foreground(t.Red).Render("Last error: "+a.stats.LastError)
		}
		sections = append(sections, "", "  "+waiting)
	} else {
		readings := a.snap.Readings()
		widths := components.LayoutRow(cw, len(readings))
		cards := make([]string, 0, len(readings))
		for i, r := range readings {
			cards = append(cards, components.BudgetCard(r, widths[i]))
		}
		sections = append(sections, components.CardRow(cards))
		if a.stats.LastError != "" && a.stats.ConsecutiveFailures > 0 {
			sections = append(sections, lipgloss.NewStyle().Foreground(t.Orange).
				Render(fmt.Sprintf("  Last poll failed (%dx): %s", a.stats.ConsecutiveFailures, a.stats.LastError)))
		}
	}

	sections = append(sections, a.viewAlerts(cw))

	body := lipgloss.JoinVertical(lipgloss.Left, sections...)
	status := components.RenderStatusBar(a.width, a.statusInfo())

	bodyH := max(a.height-lipgloss.Height(status), 1)
	body = lipgloss.Place(a.width, bodyH, lipgloss.Center, lipgloss.Top, truncateHeight(body, bodyH))
	return lipgloss.JoinVertical(lipgloss.Left, body, status)
}

func (a App) viewHeader(width int) string {
	t := theme.Active

	title := lipgloss.NewStyle().Foreground(t.AccentBright).Bold(true).Render("◈ Packy budget")
	right := ""
	if a.snap != nil {
		overall := a.snap.OverallStatus()
		right = lipgloss.NewStyle().Foreground(t.Level(overall)).Bold(overall.Alerting()).
			Render(overall.Icon() + " " + cli.LevelLabel(overall))
	}
	gap := max(width-lipgloss.Width(title)-lipgloss.Width(right)-2, 1)
	return " " + title + strings.Repeat(" ", gap) + right + " "
}

func (a App) viewAlerts(width int) string {
	t := theme.Active
	if len(a.recent) == 0 {
		return components.ContentCard("Recent alerts",
			lipgloss.NewStyle().Foreground(t.TextDim).Render("none this session"), width, false)
	}

	var b strings.Builder
	for i, n := range a.recent {
		if i > 0 {
			b.WriteString("\n")
		}
		ts := lipgloss.NewStyle().Foreground(t.TextDim).Render(n.At.Local().Format("15:04:05"))
		msg := lipgloss.NewStyle().Foreground(t.Level(n.Level)).Render(n.Message)
		b.WriteString(ts + "  " + msg)
	}
	return components.ContentCard("Recent alerts", b.String(), width, false)
}

func (a App) statusInfo() string {
	var parts []string
	switch {
	case a.stopped:
		parts = append(parts, "stopped")
	case a.refreshing:
		parts = append(parts, a.spinner.View()+" refreshing")
	}
	if a.snap != nil {
		now := a.now()
		age := "updated " + cli.FormatAge(a.snap.Age(now))
		if a.snap.IsStale(now, a.engine.Settings().StaleAfter) {
			age = "stale, " + age
		}
		parts = append(parts, age)
	}
	if q := a.engine.Settings().Quiet; q.Enabled() {
		label := "quiet " + q.String()
		if q.Contains(a.now()) {
			label += " (active)"
		}
		parts = append(parts, label)
	}
	parts = append(parts, "every "+cli.FormatDuration(a.engine.Settings().Interval))
	return strings.Join(parts, " │ ")
}

func (a App) viewHelp() string {
	t := theme.Active

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderAccent).
		Padding(1, 3)
	titleStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Bold(true)
	keyStyle := lipgloss.NewStyle().Foreground(t.Cyan).Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(t.TextMuted)

	var b strings.Builder
	b.WriteString(titleStyle.Render("◈ Keyboard Shortcuts"))
	b.WriteString("\n\n")
	bindings := []struct{ key, desc string }{
		{"r", "Poll the budget now"},
		{"?", "Toggle help"},
		{"q", "Quit"},
	}
	for _, bind := range bindings {
		fmt.Fprintf(&b, "  %s  %s\n",
			keyStyle.Render(fmt.Sprintf("%-6s", bind.key)),
			descStyle.Render(bind.desc))
	}
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Foreground(t.TextDim).Render("Press any key to close"))

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, cardStyle.Render(b.String()))
}

// ─── Commands ───────────────────────────────────────────────────

func waitForSnapshot(sub *monitor.Subscription[*model.Snapshot]) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-sub.C()
		if !ok {
			return StoppedMsg{}
		}
		return SnapshotMsg{Snapshot: s}
	}
}

func waitForAlert(sub *monitor.Subscription[monitor.Notification]) tea.Cmd {
	return func() tea.Msg {
		n, ok := <-sub.C()
		if !ok {
			return nil
		}
		return AlertMsg{Notification: n}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func truncateHeight(s string, limit int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= limit {
		return s
	}
	return strings.Join(lines[:limit], "\n")
}
