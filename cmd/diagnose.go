package cmd

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/pburn/internal/cli"
	"github.com/theirongolddev/pburn/internal/config"
	"github.com/theirongolddev/pburn/internal/credential"
	"github.com/theirongolddev/pburn/internal/model"
	"github.com/theirongolddev/pburn/internal/store"
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Check configuration, token, network and notifiers",
	RunE:  runDiagnose,
}

func init() {
	rootCmd.AddCommand(diagnoseCmd)
}

// finding is one line of the diagnose report. Level reuses the budget scale:
// Normal is a pass, Warning a soft problem, Critical a failure.
type finding struct {
	level  model.Level
	label  string
	detail string
}

func runDiagnose(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	now := time.Now()

	fmt.Println()
	fmt.Println(cli.RenderTitle("pburn diagnose"))
	fmt.Println()

	cfg, cfgFindings := diagnoseConfig()
	printFindings("Config", cfgFindings)

	creds := credential.Open(cfg.API.Token)
	tokFindings := diagnoseToken(creds, now)
	printFindings("Token", tokFindings)

	netFindings := diagnoseNetwork(ctx, cfg)
	printFindings("Network", netFindings)

	printFindings("System", diagnoseSystem(creds))

	for _, fs := range [][]finding{cfgFindings, tokFindings, netFindings} {
		for _, f := range fs {
			if f.level == model.Critical {
				return &exitError{code: 1}
			}
		}
	}
	return nil
}

func diagnoseConfig() (config.Config, []finding) {
	var out []finding
	if config.Exists() {
		out = append(out, finding{model.Normal, "file", config.ConfigPath()})
	} else {
		out = append(out, finding{model.Warning, "file", "none; using defaults (run `pburn setup`)"})
	}

	cfg, err := config.Load()
	if err != nil {
		return config.DefaultConfig(), append(out, finding{model.Critical, "parse", err.Error()})
	}
	settings, err := cfg.Settings()
	if err != nil {
		return cfg, append(out, finding{model.Critical, "values", err.Error()})
	}
	out = append(out,
		finding{model.Normal, "endpoint", cfg.API.Endpoint},
		finding{model.Normal, "interval", settings.Interval.String()},
		finding{model.Normal, "quiet hours", describeQuiet(settings.Quiet)},
	)
	return cfg, out
}

func diagnoseToken(creds *credential.Manager, now time.Time) []finding {
	tok, err := creds.Resolve()
	if err != nil {
		return []finding{{model.Critical, "token", err.Error()}}
	}

	out := []finding{{model.Normal, "token", fmt.Sprintf("%s from %s", tok.Masked(), tok.Source)}}
	if tok.Source == credential.SourceConfig {
		out = append(out, finding{model.Warning, "storage", "stored in plain text; `pburn config set-token` moves it to the keyring"})
	}

	kind := finding{model.Normal, "kind", string(tok.Kind)}
	switch {
	case tok.Expired(now):
		kind = finding{model.Critical, "kind", fmt.Sprintf("%s, expired %s ago", tok.Kind, cli.FormatDuration(now.Sub(tok.ExpiresAt)))}
	case !tok.ExpiresAt.IsZero() && tok.ExpiresAt.Sub(now) < 24*time.Hour:
		kind = finding{model.Warning, "kind", fmt.Sprintf("%s, expires in %s", tok.Kind, cli.FormatDuration(tok.ExpiresAt.Sub(now)))}
	case !tok.ExpiresAt.IsZero():
		kind.detail = fmt.Sprintf("%s, expires %s", tok.Kind, tok.ExpiresAt.Local().Format(time.DateTime))
	}
	return append(out, kind)
}

// diagnoseNetwork does one fetch with no retries so the timing is honest.
func diagnoseNetwork(ctx context.Context, cfg config.Config) []finding {
	e, err := newEngine(cfg)
	if err != nil {
		return []finding{{model.Critical, "client", err.Error()}}
	}
	ctx, cancel := context.WithTimeout(ctx, e.settings.FetchTimeout)
	defer cancel()

	start := time.Now()
	raw, err := e.client.Fetch(ctx)
	took := time.Since(start).Round(time.Millisecond)
	if err != nil {
		f := finding{model.Critical, "fetch", fmt.Sprintf("failed after %s: %v", took, err)}
		if hint := errorHint(err); hint != "" {
			f.detail += "\n      " + hint
		}
		return []finding{f}
	}

	out := []finding{{model.Normal, "fetch", fmt.Sprintf("%s in %s", e.client.Endpoint(), took)}}
	for _, b := range raw.Buckets {
		out = append(out, finding{model.Normal, string(b.Kind), fmt.Sprintf("%s of %s", cli.FormatUSD(b.Used), cli.FormatUSD(b.Total))})
	}
	return out
}

func diagnoseSystem(creds *credential.Manager) []finding {
	out := []finding{{model.Normal, "platform", runtime.GOOS + "/" + runtime.GOARCH}}

	if creds.HasKeyring() {
		out = append(out, finding{model.Normal, "keyring", "available"})
	} else {
		out = append(out, finding{model.Warning, "keyring", "unavailable; tokens fall back to config.toml"})
	}

	var notifier string
	switch runtime.GOOS {
	case "linux":
		notifier = "notify-send"
	case "darwin":
		notifier = "osascript"
	}
	switch {
	case notifier == "":
		out = append(out, finding{model.Warning, "desktop", "no desktop notifier for " + runtime.GOOS})
	default:
		if path, err := exec.LookPath(notifier); err == nil {
			out = append(out, finding{model.Normal, "desktop", path})
		} else {
			out = append(out, finding{model.Warning, "desktop", notifier + " not found in PATH"})
		}
	}

	out = append(out, finding{model.Normal, "cache", store.DefaultPath()})
	return out
}

func printFindings(section string, fs []finding) {
	fmt.Printf("  [%s]\n", section)
	for _, f := range fs {
		mark := "ok"
		switch f.level {
		case model.Warning:
			mark = "warn"
		case model.Critical:
			mark = "FAIL"
		}
		fmt.Printf("    %s %-12s %s\n", cli.LevelStyle(f.level).Render(fmt.Sprintf("%-4s", mark)), f.label, f.detail)
	}
	fmt.Println()
}
