// Package app wires configuration, storage, the Telegram adapter, the
// scheduling engine, background jobs and the web API into one runnable
// process.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"invbot/internal/bot"
	"invbot/internal/chats"
	"invbot/internal/config"
	"invbot/internal/event"
	"invbot/internal/eventbus"
	"invbot/internal/inventory"
	"invbot/internal/jobs"
	"invbot/internal/notifier"
	"invbot/internal/runtime/supervisor"
	"invbot/internal/schedule"
	"invbot/internal/storage"
	"invbot/internal/transport/telegram"
	"invbot/internal/web"
	"invbot/pkg/logx"
)

const (
	notifyRatePerSec = 20
	notifySendWait   = 10 * time.Second
)

// lazySender lets the logging service exist before the Telegram adapter:
// the telegram log sink drops lines until the adapter is attached.
type lazySender struct {
	mu sync.RWMutex
	s  logx.TelegramSender
}

func (l *lazySender) set(s logx.TelegramSender) {
	l.mu.Lock()
	l.s = s
	l.mu.Unlock()
}

func (l *lazySender) SendPlain(ctx context.Context, chatID int64, text string) error {
	l.mu.RLock()
	s := l.s
	l.mu.RUnlock()
	if s == nil {
		return nil
	}
	return s.SendPlain(ctx, chatID, text)
}

// Run builds the whole application from the config file and blocks until
// ctx is canceled or a component fails fatally.
func Run(ctx context.Context, configPath string) error {
	bootLog := logx.NewConsole("INFO")

	mgr := config.NewManager(configPath, bootLog)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sender := &lazySender{}
	logSvc, log := logx.New(logxConfig(cfg.Logging), sender)
	defer logSvc.Close()

	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return err
	}
	token := cfg.Telegram.Token
	if token == "" {
		token = os.Getenv("BOT_TOKEN")
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("component", "telegram")))
	if err != nil {
		return fmt.Errorf("telegram adapter: %w", err)
	}
	sender.set(adapter)

	dataDir := cfg.Storage.DataDir
	registry := chats.NewRegistry(filepath.Join(dataDir, "chats.json"), log)
	if err := registry.Load(); err != nil {
		return err
	}
	events := event.NewStore(filepath.Join(dataDir, "events.json"), loc, log)
	if err := events.Load(); err != nil {
		return err
	}

	busyTimeout, err := config.ParseDurationOrDefault("inventory.busy_timeout", cfg.Inventory.BusyTimeout, 5*time.Second)
	if err != nil {
		return err
	}
	db, err := storage.OpenSQLite(cfg.Inventory.SQLitePath, busyTimeout)
	if err != nil {
		return fmt.Errorf("open inventory db: %w", err)
	}
	defer db.Close()
	inv, err := inventory.NewStore(db, log.With(logx.String("component", "inventory")))
	if err != nil {
		return err
	}
	if err := inv.Seed(ctx, inventory.DefaultTemplate()); err != nil {
		return fmt.Errorf("seed inventory catalog: %w", err)
	}

	notify := notifier.New(adapter, registry, notifyRatePerSec, notifySendWait,
		log.With(logx.String("component", "notifier")))
	bus := eventbus.New()

	tick, err := config.ParseDurationOrDefault("scheduler.tick", cfg.Scheduler.Tick, time.Second)
	if err != nil {
		return err
	}
	engine := schedule.NewEngine(
		schedule.NewPendingStore(filepath.Join(dataDir, "pending_notifications.json")),
		events, notify, bus,
		log.With(logx.String("component", "schedule")),
		schedule.WithTick(tick),
	)
	if err := engine.Load(); err != nil {
		return fmt.Errorf("load pending notifications: %w", err)
	}
	engine.ReplanRepeatingEvents()

	botSvc := bot.New(adapter, registry, events, engine, inv,
		cfg.Access.AdminPassword, log.With(logx.String("component", "bot")))

	counters := NewDispatchCounters()

	runner := jobs.NewRunner(loc, log.With(logx.String("component", "jobs")))
	runner.AddEveryMinute("replan_repeating", engine.ReplanRepeatingEvents)
	if err := runner.AddDaily("inventory_clear", cfg.Scheduler.InventoryClearTime, func() {
		cctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := inv.Clear(cctx); err != nil {
			log.Error("daily inventory clear failed", logx.Err(err))
		}
	}); err != nil {
		return fmt.Errorf("scheduler.inventory_clear_time: %w", err)
	}

	sup := supervisor.New(ctx,
		supervisor.WithLogger(log.With(logx.String("component", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	sup.Go("engine", engine.Run)
	sup.Go("bot", botSvc.Run)
	sup.Go0("dispatch_counters", func(c context.Context) { counters.Run(c, bus) })
	sup.Go("config_watch", mgr.Watch)

	if cfg.Web.Enabled {
		srv := web.NewServer(cfg.Web.Addr, cfg.Web.AllowedOrigins,
			events, engine, registry, notify, counters,
			log.With(logx.String("component", "web")))
		sup.Go("web", srv.Serve)
	}

	// Hot-reload the logging section; everything else needs a restart.
	updates := mgr.Subscribe(4)
	defer mgr.Unsubscribe(updates)
	sup.Go0("config_reload", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-updates:
				if !ok {
					return
				}
				logSvc.Apply(logxConfig(next.Logging))
				log.Info("logging configuration reloaded")
			}
		}
	})

	runner.Start()
	log.Info("started",
		logx.String("data_dir", dataDir),
		logx.Bool("web", cfg.Web.Enabled),
		logx.String("timezone", cfg.Scheduler.Timezone))

	<-sup.Context().Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := runner.Stop(stopCtx); err != nil {
		log.Warn("job runner stop", logx.Err(err))
	}
	if err := sup.Stop(stopCtx); err != nil {
		log.Warn("shutdown incomplete", logx.Err(err))
	}
	if err := sup.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func logxConfig(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File: logx.FileConfig{
			Enabled: c.File.Enabled,
			Path:    c.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    c.Telegram.Enabled,
			ChatID:     c.Telegram.ChatID,
			MinLevel:   c.Telegram.MinLevel,
			RatePerSec: c.Telegram.RatePerSec,
		},
	}
}
