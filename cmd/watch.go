package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/theirongolddev/pburn/internal/monitor"
	"github.com/theirongolddev/pburn/internal/store"
	"github.com/theirongolddev/pburn/internal/tui"
)

var (
	flagWatchNoNotify bool
	flagWatchLogFile  string
	flagWatchInterval time.Duration
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"monitor"},
	Short:   "Live budget view with alerts",
	Long: "Poll the budget continuously and show a live view. Alerts are delivered\n" +
		"through the configured notifiers while the view is open.",
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&flagWatchNoNotify, "no-notify", false, "Show alerts in the view only")
	watchCmd.Flags().DurationVar(&flagWatchInterval, "interval", 0, "Polling interval (default [polling] interval)")
	watchCmd.Flags().StringVar(&flagWatchLogFile, "log-file", filepath.Join(store.Dir(), "watch.log"), "Where to write logs while the view is open")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	overrideInterval(&cfg, flagWatchInterval)

	// Logs would tear the alt-screen view, so they go to a file.
	log := zerolog.Nop()
	if err := os.MkdirAll(filepath.Dir(flagWatchLogFile), 0o750); err == nil {
		//nolint:gosec // log path is configured by the local user
		if f, err := os.OpenFile(flagWatchLogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600); err == nil {
			defer func() { _ = f.Close() }()
			log = newLogger(f, zerolog.Ctx(cmd.Context()).GetLevel().String())
		}
	}
	ctx := log.WithContext(cmd.Context())

	if !flagNoColor {
		lipgloss.SetColorProfile(termenv.NewOutput(os.Stdout).EnvColorProfile())
	}

	e, err := newEngine(cfg, monitor.WithLogger(log))
	if err != nil {
		return err
	}

	cache := openCache(ctx)
	if cache != nil {
		defer cache.Close()
		if snap, err := cache.LastSnapshot(); err == nil {
			e.scheduler.Publisher().Seed(snap)
		}
	}

	dispatcher := newDispatcher(cfg, log)
	if flagWatchNoNotify {
		dispatcher.SetEnabled(false)
	}
	if cache != nil {
		dispatcher.OnSent(func(n monitor.Notification) {
			if err := cache.SaveNotification(n); err != nil {
				log.Warn().Err(err).Msg("caching alert")
			}
		})
	}

	// Subscribe before the scheduler starts so nothing is missed.
	app := tui.NewApp(e.scheduler)
	snaps := e.scheduler.Publisher().Subscribe()
	notes := e.scheduler.Notifications()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return e.scheduler.Run(gctx) })
	g.Go(func() error { return dispatcher.Run(gctx, notes) })
	g.Go(func() error {
		defer snaps.Close()
		for snap := range snaps.All(gctx) {
			if cache == nil {
				continue
			}
			if err := cache.SaveSnapshot(snap); err != nil {
				log.Warn().Err(err).Msg("caching snapshot")
			}
		}
		return nil
	})

	_, uiErr := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	cancel()
	if err := g.Wait(); err != nil {
		return err
	}
	if uiErr != nil && ctx.Err() == nil {
		return fmt.Errorf("watch view: %w", uiErr)
	}
	return nil
}
