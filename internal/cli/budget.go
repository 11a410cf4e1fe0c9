package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/pburn/internal/model"
)

// BarWidth is the default width of budget progress bars.
const BarWidth = 20

// LevelColor maps a budget level to its theme color.
func LevelColor(l model.Level) lipgloss.Color {
	switch l {
	case model.Critical:
		return ColorRed
	case model.Warning:
		return ColorYellow
	case model.Moderate:
		return ColorBlue
	default:
		return ColorGreen
	}
}

// LevelStyle returns the foreground style for a level. Alerting levels are bold.
func LevelStyle(l model.Level) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(LevelColor(l)).Bold(l.Alerting())
}

// LevelLabel is the title-cased level name.
func LevelLabel(l model.Level) string {
	name := l.String()
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// StatusMessage is the one-line advice shown next to a bucket.
func StatusMessage(l model.Level) string {
	switch l {
	case model.Critical:
		return "[!] Critical - close to the limit"
	case model.Warning:
		return "[!] Warning - high usage"
	case model.Moderate:
		return "[i] Moderate usage"
	default:
		return "[OK] Normal usage"
	}
}

// RenderBar renders a fixed-width bar for a percentage, colored by level.
// Percentages outside [0, 100] are clamped for drawing only.
func RenderBar(pct float64, width int, l model.Level) string {
	if width <= 0 {
		return ""
	}
	pct = min(max(pct, 0), 100)
	filled := int(pct / 100 * float64(width))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return lipgloss.NewStyle().Foreground(LevelColor(l)).Render(bar)
}

// StaleTag labels a snapshot that is not fresh, or returns "" when it is.
func StaleTag(s *model.Snapshot, now time.Time, stale bool) string {
	if s == nil || !stale {
		return ""
	}
	return warnStyle.Render(fmt.Sprintf("[stale, fetched %s]", FormatAge(s.Age(now))))
}

// RenderBrief renders the one-line summary, e.g.
// "🔵 Daily 65.2% | 🟢 Monthly 42.8%".
func RenderBrief(s *model.Snapshot) string {
	if s == nil {
		return mutedStyle.Render("no budget data")
	}
	parts := make([]string, 0, len(model.Kinds))
	for _, r := range s.Readings() {
		parts = append(parts, fmt.Sprintf("%s %s %s",
			r.Level.Icon(), r.Bucket.Kind.Label(), FormatPercent(r.Bucket.Percentage())))
	}
	return strings.Join(parts, " | ")
}

// RenderReport renders the detailed multi-section budget report.
func RenderReport(s *model.Snapshot, now time.Time, stale bool) string {
	var b strings.Builder

	b.WriteString(RenderTitle("Packy Budget Report"))
	b.WriteString("\n\n")

	if s == nil {
		b.WriteString("  ")
		b.WriteString(mutedStyle.Render("No budget data yet."))
		b.WriteString("\n")
		return b.String()
	}

	overall := s.OverallStatus()
	fmt.Fprintf(&b, "  Overall: %s %s\n\n", overall.Icon(), LevelStyle(overall).Render(LevelLabel(overall)))

	for _, r := range s.Readings() {
		bk := r.Bucket
		b.WriteString("  ")
		b.WriteString(headerStyle.Render(bk.Kind.Label() + " budget"))
		b.WriteString("\n")
		fmt.Fprintf(&b, "    %s %s\n", RenderBar(bk.Percentage(), BarWidth, r.Level), FormatPercent(bk.Percentage()))
		fmt.Fprintf(&b, "    %-11s %s\n", "Used:", costStyle.Render(FormatUSD(bk.Used)))
		fmt.Fprintf(&b, "    %-11s %s\n", "Total:", valueStyle.Render(FormatUSD(bk.Total)))
		remaining := valueStyle.Render(FormatUSD(bk.Remaining()))
		if bk.Remaining() < 0 {
			remaining = LevelStyle(model.Critical).Render(FormatUSD(bk.Remaining()))
		}
		fmt.Fprintf(&b, "    %-11s %s\n", "Remaining:", remaining)
		fmt.Fprintf(&b, "    %-11s %s\n\n", "Status:", LevelStyle(r.Level).Render(StatusMessage(r.Level)))
	}

	fmt.Fprintf(&b, "  %s %s", dimStyle.Render("Updated"), s.FetchedAt().Local().Format("2006-01-02 15:04:05"))
	if tag := StaleTag(s, now, stale); tag != "" {
		b.WriteString("  ")
		b.WriteString(tag)
	}
	b.WriteString("\n")
	return b.String()
}

// RenderAlerts lists buckets at Warning or above, or a single all-clear line.
func RenderAlerts(s *model.Snapshot) string {
	if s == nil {
		return mutedStyle.Render("no budget data")
	}
	var lines []string
	for _, r := range s.Readings() {
		if !r.Level.Alerting() {
			continue
		}
		lines = append(lines, LevelStyle(r.Level).Render(fmt.Sprintf("[%s] %s budget at %s",
			strings.ToUpper(r.Level.String()), r.Bucket.Kind.Label(), FormatPercent(r.Bucket.Percentage()))))
	}
	if len(lines) == 0 {
		return costStyle.Render("[OK] All budgets within normal range")
	}
	return strings.Join(lines, "\n")
}
