package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/pburn/internal/cli"
	"github.com/theirongolddev/pburn/internal/model"
	"github.com/theirongolddev/pburn/internal/tui/theme"
)

// BudgetBar renders a level-colored progress bar followed by the percentage.
// The bar is clamped to 100% while the label shows the real value.
func BudgetBar(r model.Reading, barWidth int) string {
	t := theme.Active
	color := t.Level(r.Level)

	bar := progress.New(
		progress.WithSolidFill(string(color)),
		progress.WithWidth(max(barWidth, 4)),
		progress.WithoutPercentage(),
	)
	bar.EmptyColor = string(t.TextDim)

	pctStyle := lipgloss.NewStyle().Foreground(color).Bold(r.Level.Alerting())
	return bar.ViewAs(r.Bucket.DisplayPercentage()/100) + " " +
		pctStyle.Render(fmt.Sprintf("%5.1f%%", r.Bucket.Percentage()))
}

// BudgetCard renders one bucket: bar, amounts and status advice.
func BudgetCard(r model.Reading, outerWidth int) string {
	t := theme.Active
	inner := CardInnerWidth(outerWidth)

	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	valueStyle := lipgloss.NewStyle().Foreground(t.TextPrimary)
	levelStyle := lipgloss.NewStyle().Foreground(t.Level(r.Level)).Bold(r.Level.Alerting())

	b := r.Bucket
	remaining := valueStyle.Render(cli.FormatUSD(b.Remaining()))
	if b.Remaining() < 0 {
		remaining = lipgloss.NewStyle().Foreground(t.Red).Bold(true).Render(cli.FormatUSD(b.Remaining()))
	}

	var body strings.Builder
	body.WriteString(BudgetBar(r, inner-7))
	body.WriteString("\n\n")
	fmt.Fprintf(&body, "%s %s\n", labelStyle.Render("Used      "), valueStyle.Render(cli.FormatUSD(b.Used)))
	fmt.Fprintf(&body, "%s %s\n", labelStyle.Render("Total     "), valueStyle.Render(cli.FormatUSD(b.Total)))
	fmt.Fprintf(&body, "%s %s\n\n", labelStyle.Render("Remaining "), remaining)
	body.WriteString(levelStyle.Render(cli.StatusMessage(r.Level)))

	title := fmt.Sprintf("%s %s budget", r.Level.Icon(), b.Kind.Label())
	return ContentCard(title, body.String(), outerWidth, r.Level == model.Critical)
}
