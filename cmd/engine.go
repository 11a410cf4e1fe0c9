package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/theirongolddev/pburn/internal/config"
	"github.com/theirongolddev/pburn/internal/credential"
	"github.com/theirongolddev/pburn/internal/model"
	"github.com/theirongolddev/pburn/internal/monitor"
	"github.com/theirongolddev/pburn/internal/notify"
	"github.com/theirongolddev/pburn/internal/packy"
	"github.com/theirongolddev/pburn/internal/store"
)

// engine bundles the pieces every monitoring command needs.
type engine struct {
	cfg       config.Config
	settings  monitor.Settings
	creds     *credential.Manager
	client    *packy.Client
	scheduler *monitor.Scheduler
}

// overrideInterval applies an --interval flag. Zero keeps the configured value;
// cfg.Settings clamps anything below the minimum.
func overrideInterval(cfg *config.Config, d time.Duration) {
	if d > 0 {
		cfg.Polling.Interval.Duration = d
	}
}

// newEngine builds the API client and scheduler from cfg. Scheduler options
// such as a logger or failure hook are passed through.
func newEngine(cfg config.Config, opts ...monitor.Option) (*engine, error) {
	settings, err := cfg.Settings()
	if err != nil {
		return nil, err
	}

	creds := credential.Open(cfg.API.Token)
	client, err := packy.NewClient(creds.TokenSource, cfg.ClientOptions())
	if err != nil {
		return nil, err
	}

	pub := monitor.NewPublisher(monitor.DefaultSubscriberBuffer)
	return &engine{
		cfg:       cfg,
		settings:  settings,
		creds:     creds,
		client:    client,
		scheduler: monitor.NewScheduler(client, settings, pub, opts...),
	}, nil
}

// newDispatcher builds the configured notifiers. The log notifier is always on.
func newDispatcher(cfg config.Config, log zerolog.Logger) *notify.Dispatcher {
	notifiers := []notify.Notifier{notify.NewLogNotifier(log)}
	if cfg.Notification.Desktop {
		notifiers = append(notifiers, notify.NewDesktopNotifier())
	}
	if cfg.Notification.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.Notification.WebhookURL, cfg.Notification.WebhookSecret))
	}

	d := notify.NewDispatcher(log, notifiers...)
	d.SetEnabled(cfg.Notification.Enabled)
	return d
}

// openCache opens the snapshot cache. A broken cache degrades to none.
func openCache(ctx context.Context) *store.Cache {
	c, err := store.Open(store.DefaultPath())
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("path", store.DefaultPath()).Msg("snapshot cache unavailable")
		return nil
	}
	return c
}

// pollOnce fetches a fresh snapshot and records it in the cache. On failure it
// returns the cached snapshot, if any, alongside the error.
func pollOnce(ctx context.Context, e *engine, cache *store.Cache) (*model.Snapshot, error) {
	log := zerolog.Ctx(ctx)

	snap, err := e.scheduler.Poll(ctx)
	if err == nil {
		if cache != nil {
			if serr := cache.SaveSnapshot(snap); serr != nil {
				log.Warn().Err(serr).Msg("caching snapshot")
			}
		}
		return snap, nil
	}

	if cache == nil {
		return nil, err
	}
	last, cerr := cache.LastSnapshot()
	if cerr != nil {
		log.Warn().Err(cerr).Msg("reading cached snapshot")
		return nil, err
	}
	return last, err
}

// describeQuiet renders a quiet-hours window for humans.
func describeQuiet(q monitor.QuietHours) string {
	if !q.Enabled() {
		return "disabled"
	}
	return fmt.Sprintf("%s (Critical alerts still fire)", q)
}
