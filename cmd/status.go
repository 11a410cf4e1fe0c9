package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/pburn/internal/cli"
	"github.com/theirongolddev/pburn/internal/config"
	"github.com/theirongolddev/pburn/internal/daemon"
	"github.com/theirongolddev/pburn/internal/model"
)

var (
	flagBrief     bool
	flagJSON      bool
	flagAlertOnly bool
	flagNoDaemon  bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current budget usage",
	Long: "Fetch the daily and monthly budget and print a report. If a daemon is running\n" +
		"its snapshot is used; if the fetch fails the last cached snapshot is shown\n" +
		"tagged with its age.",
	RunE: runStatus,
}

func init() {
	registerStatusFlags(statusCmd)
	rootCmd.AddCommand(statusCmd)
}

func registerStatusFlags(c *cobra.Command) {
	c.Flags().BoolVarP(&flagBrief, "brief", "b", false, "One-line summary")
	c.Flags().BoolVar(&flagJSON, "json", false, "Print the snapshot as JSON")
	c.Flags().BoolVarP(&flagAlertOnly, "alert-only", "a", false, "Only print buckets at warning or above")
	c.Flags().BoolVar(&flagNoDaemon, "no-daemon", false, "Fetch directly even if a daemon is running")
}

// statusResult is what status renders: a snapshot plus how fresh it is.
type statusResult struct {
	snap   *model.Snapshot
	stale  bool
	source string
	err    error
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	res, ok := statusFromDaemon(ctx, cfg.Daemon.Addr)
	if !ok {
		if res, err = statusFromAPI(ctx, cfg); err != nil {
			return err
		}
	}
	if res.snap == nil {
		return res.err
	}
	if res.err != nil {
		fmt.Fprintf(os.Stderr, "  Fetch failed: %v\n", res.err)
		if hint := errorHint(res.err); hint != "" {
			fmt.Fprintf(os.Stderr, "  %s\n", hint)
		}
	}

	now := time.Now()
	switch {
	case flagJSON:
		return printStatusJSON(res, now)
	case flagBrief:
		line := cli.RenderBrief(res.snap)
		if tag := cli.StaleTag(res.snap, now, res.stale); tag != "" {
			line += " " + tag
		}
		fmt.Println(line)
	case flagAlertOnly:
		fmt.Println(cli.RenderAlerts(res.snap))
		if tag := cli.StaleTag(res.snap, now, res.stale); tag != "" {
			fmt.Println(tag)
		}
	default:
		fmt.Println()
		fmt.Print(cli.RenderReport(res.snap, now, res.stale))
		zerolog.Ctx(ctx).Debug().Str("source", res.source).Msg("status rendered")
	}
	return nil
}

// statusFromDaemon reads the running daemon's snapshot. ok is false when no
// daemon answers or it has nothing to show yet.
func statusFromDaemon(ctx context.Context, addr string) (statusResult, bool) {
	if flagNoDaemon {
		return statusResult{}, false
	}
	pctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	st, err := daemon.NewClient(addr).Status(pctx)
	if err != nil || st.Snapshot == nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("addr", addr).Msg("daemon not used")
		return statusResult{}, false
	}

	res := statusResult{snap: st.Snapshot, stale: st.Stale, source: "daemon"}
	if st.Scheduler.ConsecutiveFailures > 0 && st.Scheduler.LastError != "" {
		res.err = fmt.Errorf("daemon: %s", st.Scheduler.LastError)
	}
	return res, true
}

// statusFromAPI fetches directly, falling back to the cache on failure.
func statusFromAPI(ctx context.Context, cfg config.Config) (statusResult, error) {
	e, err := newEngine(cfg)
	if err != nil {
		return statusResult{}, err
	}

	cache := openCache(ctx)
	if cache != nil {
		defer cache.Close()
	}

	snap, err := pollOnce(ctx, e, cache)
	res := statusResult{snap: snap, err: err, source: "api"}
	if err != nil && snap != nil {
		res.stale = true
		res.source = "cache"
	}
	return res, nil
}

// printStatusJSON adds freshness fields to the snapshot's own JSON form.
func printStatusJSON(res statusResult, now time.Time) error {
	base, err := json.Marshal(res.snap)
	if err != nil {
		return err
	}
	var out map[string]any
	if err := json.Unmarshal(base, &out); err != nil {
		return err
	}
	out["stale"] = res.stale
	out["age_sec"] = res.snap.Age(now).Seconds()
	out["source"] = res.source
	if res.err != nil {
		out["error"] = res.err.Error()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
