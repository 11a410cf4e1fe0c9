package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/pburn/internal/config"
	"github.com/theirongolddev/pburn/internal/credential"
	"github.com/theirongolddev/pburn/internal/monitor"
	"github.com/theirongolddev/pburn/internal/tui/theme"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-time setup wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

// setupAnswers holds the wizard's string fields until they are validated.
type setupAnswers struct {
	token      string
	interval   string
	warning    string
	critical   string
	quietStart string
	quietEnd   string
	desktop    bool
	theme      string
}

var intervalOptions = []huh.Option[string]{
	huh.NewOption("30 seconds", (30 * time.Second).String()),
	huh.NewOption("1 minute", time.Minute.String()),
	huh.NewOption("5 minutes", (5 * time.Minute).String()),
	huh.NewOption("15 minutes", (15 * time.Minute).String()),
}

func runSetup(_ *cobra.Command, _ []string) error {
	cfg, _ := config.Load()
	creds := credential.Open(cfg.API.Token)

	ans := setupAnswers{
		interval:   cfg.Polling.Interval.String(),
		warning:    strconv.FormatFloat(cfg.Alerts.Warning, 'f', -1, 64),
		critical:   strconv.FormatFloat(cfg.Alerts.Critical, 'f', -1, 64),
		quietStart: cfg.Notification.QuietStart,
		quietEnd:   cfg.Notification.QuietEnd,
		desktop:    cfg.Notification.Desktop,
		theme:      cfg.Appearance.Theme,
	}

	tokenHint := "Leave blank to keep the current token"
	if tok, err := creds.Resolve(); err == nil {
		tokenHint = fmt.Sprintf("Current: %s (from %s). Leave blank to keep it.", tok.Masked(), tok.Source)
	}

	themes := make([]huh.Option[string], 0, len(theme.All))
	for _, t := range theme.All {
		themes = append(themes, huh.NewOption(t.Name, t.Name))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Welcome to pburn!").
				Description("A few questions and your PackyCode budget is monitored."),
			huh.NewInput().
				Title("1. PackyCode API token").
				Description(tokenHint).
				EchoMode(huh.EchoModePassword).
				Validate(func(s string) error {
					if s = strings.TrimSpace(s); s == "" {
						return nil
					}
					return credential.Validate(s, time.Now())
				}).
				Value(&ans.token),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("2. Poll interval").
				Options(withCurrent(intervalOptions, ans.interval)...).
				Value(&ans.interval),
			huh.NewInput().
				Title("3. Warning threshold (%)").
				Validate(validatePercent).
				Value(&ans.warning),
			huh.NewInput().
				Title("4. Critical threshold (%)").
				Validate(validatePercent).
				Value(&ans.critical),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("5. Quiet hours start (HH:MM, blank to disable)").
				Validate(validateClock).
				Value(&ans.quietStart),
			huh.NewInput().
				Title("   Quiet hours end (HH:MM)").
				Validate(validateClock).
				Value(&ans.quietEnd),
			huh.NewConfirm().
				Title("6. Desktop notifications?").
				Value(&ans.desktop),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("7. Color theme").
				Options(themes...).
				Value(&ans.theme),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	if err := applySetup(&cfg, ans); err != nil {
		return err
	}

	if tok := strings.TrimSpace(ans.token); tok != "" {
		if err := creds.Set(tok); err != nil {
			cfg.API.Token = tok
			fmt.Println("  No OS keyring available; the token goes into the config file.")
		} else {
			cfg.API.Token = ""
			fmt.Println("  Token stored in the OS keyring.")
		}
	}

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Saved to %s\n", config.ConfigPath())
	fmt.Println("  Run `pburn setup` anytime to reconfigure.")
	fmt.Println()
	return nil
}

// applySetup copies the wizard answers into cfg and validates the result.
func applySetup(cfg *config.Config, ans setupAnswers) error {
	if err := cfg.Polling.Interval.UnmarshalText([]byte(ans.interval)); err != nil {
		return err
	}
	warning, err := strconv.ParseFloat(strings.TrimSpace(ans.warning), 64)
	if err != nil {
		return fmt.Errorf("warning threshold: %w", err)
	}
	critical, err := strconv.ParseFloat(strings.TrimSpace(ans.critical), 64)
	if err != nil {
		return fmt.Errorf("critical threshold: %w", err)
	}
	cfg.Alerts.Warning = warning
	cfg.Alerts.Critical = critical

	cfg.Notification.QuietStart = strings.TrimSpace(ans.quietStart)
	cfg.Notification.QuietEnd = strings.TrimSpace(ans.quietEnd)
	cfg.Notification.Desktop = ans.desktop
	cfg.Appearance.Theme = ans.theme

	_, err = cfg.Settings()
	return err
}

// withCurrent makes sure the current value is selectable.
func withCurrent(opts []huh.Option[string], current string) []huh.Option[string] {
	for _, o := range opts {
		if o.Value == current {
			return opts
		}
	}
	return append([]huh.Option[string]{huh.NewOption(current+" (current)", current)}, opts...)
}

func validatePercent(s string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v <= 0 || v > 100 {
		return fmt.Errorf("enter a number between 0 and 100")
	}
	return nil
}

func validateClock(s string) error {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	_, err := monitor.ParseClock(s)
	return err
}
