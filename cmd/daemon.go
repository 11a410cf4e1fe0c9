package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/pburn/internal/cli"
	"github.com/theirongolddev/pburn/internal/config"
	"github.com/theirongolddev/pburn/internal/daemon"
	"github.com/theirongolddev/pburn/internal/metrics"
	"github.com/theirongolddev/pburn/internal/model"
	"github.com/theirongolddev/pburn/internal/monitor"
	"github.com/theirongolddev/pburn/internal/store"
)

var (
	flagDaemonAddr     string
	flagDaemonInterval time.Duration
	flagDaemonDetach   bool
	flagDaemonPIDFile  string
	flagDaemonLogFile  string
	flagDaemonChild    bool
	flagDaemonSince    int64
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the budget monitor in the background with an HTTP API",
	Long: "Poll the budget, deliver alerts and serve /v1/status, /v1/events,\n" +
		"/v1/stream (SSE), /v1/ws (WebSocket) and /metrics.",
	RunE: runDaemon,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon process and API status",
	RunE:  runDaemonStatus,
}

var daemonRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Ask the running daemon to poll now",
	RunE:  runDaemonRefresh,
}

var daemonEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent daemon alerts",
	RunE:  runDaemonEvents,
}

var daemonNotifyCmd = &cobra.Command{
	Use:       "notify on|off",
	Short:     "Mute or unmute the running daemon's alerts",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE:      runDaemonNotify,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE:  runDaemonStop,
}

func init() {
	defaultPID := filepath.Join(store.Dir(), "pburnd.pid")
	defaultLog := filepath.Join(store.Dir(), "pburnd.log")

	daemonCmd.PersistentFlags().StringVar(&flagDaemonAddr, "addr", "", "HTTP listen address (default [daemon] addr)")
	daemonCmd.PersistentFlags().StringVar(&flagDaemonPIDFile, "pid-file", defaultPID, "PID file path")
	daemonCmd.PersistentFlags().StringVar(&flagDaemonLogFile, "log-file", defaultLog, "Log file path for detached mode")

	daemonCmd.Flags().DurationVar(&flagDaemonInterval, "interval", 0, "Polling interval (default [polling] interval)")
	daemonCmd.Flags().BoolVar(&flagDaemonDetach, "detach", false, "Run daemon as a background process")
	daemonCmd.Flags().BoolVar(&flagDaemonChild, "child", false, "Internal: mark detached child process")
	_ = daemonCmd.Flags().MarkHidden("child")

	daemonEventsCmd.Flags().Int64Var(&flagDaemonSince, "since", 0, "Only events after this ID")

	daemonCmd.AddCommand(daemonStatusCmd, daemonRefreshCmd, daemonEventsCmd, daemonNotifyCmd, daemonStopCmd)
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	if flagDaemonDetach && flagDaemonChild {
		return errors.New("invalid daemon launch mode")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	overrideInterval(&cfg, flagDaemonInterval)
	addr := daemonAddr(cfg)

	if flagDaemonDetach {
		return startDaemonDetached(addr)
	}

	return runDaemonForeground(cmd.Context(), cfg, addr)
}

func startDaemonDetached(addr string) error {
	if err := pidFile().Check(); err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	args := filterDetachArg(os.Args[1:])
	args = append(args, "--child")

	if err := os.MkdirAll(filepath.Dir(flagDaemonLogFile), 0o750); err != nil {
		return fmt.Errorf("create daemon log directory: %w", err)
	}

	//nolint:gosec // daemon log path is configured by the local user
	logf, err := os.OpenFile(flagDaemonLogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open daemon log file: %w", err)
	}
	defer func() { _ = logf.Close() }()

	cmd := exec.Command(exe, args...) //nolint:gosec // exe/args come from current process invocation
	cmd.Stdout = logf
	cmd.Stderr = logf
	cmd.Stdin = nil
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start detached daemon: %w", err)
	}

	fmt.Printf("  Started daemon (pid %d)\n", cmd.Process.Pid)
	fmt.Printf("  PID file: %s\n", flagDaemonPIDFile)
	fmt.Printf("  API: http://%s/v1/status\n", addr)
	fmt.Printf("  Log: %s\n", flagDaemonLogFile)
	return nil
}

func runDaemonForeground(ctx context.Context, cfg config.Config, addr string) error {
	pf := pidFile()
	if err := pf.Acquire(daemon.RuntimeState{
		PID:        os.Getpid(),
		Addr:       addr,
		StartedAt:  time.Now(),
		ConfigPath: config.ConfigPath(),
	}); err != nil {
		return err
	}
	defer pf.Release()

	log := zerolog.Ctx(ctx).With().Str("component", "daemon").Logger()
	e, err := newEngine(cfg,
		monitor.WithLogger(log),
		monitor.WithFailureHook(func(err error) {
			if errors.Is(err, model.ErrAuth) {
				log.Error().Err(err).Msg("API token rejected; run `pburn config set-token`")
			}
		}),
	)
	if err != nil {
		return err
	}

	metrics.Register()

	opts := []daemon.Option{
		daemon.WithDispatcher(newDispatcher(cfg, log)),
		daemon.WithLogger(log),
	}
	if cache := openCache(ctx); cache != nil {
		defer cache.Close()
		opts = append(opts, daemon.WithCache(cache))
	}

	svc := daemon.New(daemon.Config{
		Addr:         addr,
		EventsBuffer: cfg.Daemon.EventsBuffer,
	}, e.scheduler, opts...)

	fmt.Printf("  pburn daemon listening on http://%s\n", addr)
	fmt.Printf("  Polling %s every %s\n", e.client.Endpoint(), e.settings.Interval)
	fmt.Printf("  Quiet hours: %s\n", describeQuiet(e.settings.Quiet))
	fmt.Printf("  Stop with: pburn daemon stop --pid-file %s\n", flagDaemonPIDFile)

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runDaemonStatus(cmd *cobra.Command, _ []string) error {
	pf := pidFile()
	pid, alive := pf.Running()
	switch {
	case pid == 0:
		fmt.Printf("  Daemon: not running (no pid file at %s)\n", pf.Path)
		return nil
	case !alive:
		fmt.Printf("  Daemon: stale pid file (pid %d not alive)\n", pid)
		return nil
	}

	cfg, _ := config.Load()
	addr := daemonAddr(cfg)
	if st, err := pf.State(); err == nil && st.Addr != "" {
		addr = st.Addr
	}

	fmt.Printf("  Daemon PID: %d\n", pid)
	fmt.Printf("  Address: http://%s\n", addr)

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
	defer cancel()
	st, err := daemon.NewClient(addr).Status(ctx)
	if err != nil {
		fmt.Printf("  API status: unreachable (%v)\n", err)
		return nil
	}

	now := time.Now()
	fmt.Printf("  Uptime: %s\n", cli.FormatDuration(now.Sub(st.StartedAt)))
	fmt.Printf("  State: %s, every %ds\n", st.Scheduler.State, st.PollIntervalSec)
	if st.Scheduler.LastSuccessAt.IsZero() {
		fmt.Printf("  Last poll: pending\n")
	} else {
		fmt.Printf("  Last poll: %s (%s)\n",
			st.Scheduler.LastSuccessAt.Local().Format(time.RFC3339),
			cli.FormatAge(now.Sub(st.Scheduler.LastSuccessAt)))
	}
	fmt.Printf("  Poll count: %d\n", st.Scheduler.PollCount)
	if st.Snapshot != nil {
		line := cli.RenderBrief(st.Snapshot)
		if tag := cli.StaleTag(st.Snapshot, now, st.Stale); tag != "" {
			line += " " + tag
		}
		fmt.Printf("  Budget: %s\n", line)
	}
	fmt.Printf("  Quiet hours: %s\n", st.QuietHours)
	fmt.Printf("  Notifications: %s via %s\n", onOff(st.NotificationsEnabled), strings.Join(st.Notifiers, ", "))
	fmt.Printf("  Events: %d buffered, %d stream subscribers\n", st.EventCount, st.SubscriberCount)
	if st.Scheduler.LastError != "" {
		fmt.Printf("  Last error: %s (%d consecutive)\n", st.Scheduler.LastError, st.Scheduler.ConsecutiveFailures)
	}
	return nil
}

// daemonClient targets the running daemon, preferring the address it recorded.
func daemonClient() *daemon.Client {
	cfg, _ := config.Load()
	addr := daemonAddr(cfg)
	if st, err := pidFile().State(); err == nil && st.Addr != "" && flagDaemonAddr == "" {
		addr = st.Addr
	}
	return daemon.NewClient(addr)
}

func runDaemonRefresh(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
	defer cancel()
	if err := daemonClient().Refresh(ctx); err != nil {
		return fmt.Errorf("daemon refresh: %w", err)
	}
	fmt.Println("  Poll requested.")
	return nil
}

func runDaemonEvents(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
	defer cancel()
	evs, err := daemonClient().Events(ctx, flagDaemonSince)
	if err != nil {
		return fmt.Errorf("daemon events: %w", err)
	}

	t := cli.Table{Headers: []string{"#", "Time", "Level", "Alert"}, LeftCols: 4}
	for _, ev := range evs {
		if ev.Type != daemon.EventAlert || ev.Alert == nil {
			continue
		}
		a := ev.Alert
		t.Rows = append(t.Rows, []string{
			strconv.FormatInt(ev.ID, 10),
			a.At.Local().Format(time.DateTime),
			cli.LevelStyle(a.Level).Render(cli.LevelLabel(a.Level)),
			a.Message,
		})
	}
	if len(t.Rows) == 0 {
		fmt.Println("  No alerts recorded.")
		return nil
	}
	fmt.Print(cli.RenderTable(t))
	return nil
}

func runDaemonNotify(cmd *cobra.Command, args []string) error {
	var on bool
	switch args[0] {
	case "on":
		on = true
	case "off":
	default:
		return fmt.Errorf("want on or off, got %q", args[0])
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
	defer cancel()
	if err := daemonClient().SetNotifications(ctx, on); err != nil {
		return fmt.Errorf("daemon notify: %w", err)
	}
	fmt.Printf("  Notifications: %s\n", onOff(on))
	return nil
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	pid, err := pidFile().Stop(8 * time.Second)
	if err != nil {
		return err
	}
	fmt.Printf("  Stopped daemon (pid %d)\n", pid)
	return nil
}

func daemonAddr(cfg config.Config) string {
	if flagDaemonAddr != "" {
		return flagDaemonAddr
	}
	if cfg.Daemon.Addr != "" {
		return cfg.Daemon.Addr
	}
	return daemon.DefaultAddr
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "muted"
}

func filterDetachArg(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == "--detach" || strings.HasPrefix(a, "--detach=") {
			continue
		}
		out = append(out, a)
	}
	return out
}

func pidFile() daemon.PIDFile { return daemon.PIDFile{Path: flagDaemonPIDFile} }
