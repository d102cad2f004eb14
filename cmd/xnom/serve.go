package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"xnom/internal/api"
	"xnom/internal/cmdlog"
	"xnom/internal/config"
	"xnom/internal/engage"
	"xnom/internal/logging"
	"xnom/internal/metrics"
	"xnom/internal/push"
)

var (
	serveAddr     string
	noMonitor     bool
	noAutoEngage  bool
	noConfigWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API, push hub, notification monitor and engagement loop",
	Long: `Starts the HTTP server (/health, /metrics, /ws and the JWT-protected /api),
begins polling mentions, and starts the auto-engagement loop when it is
enabled in settings. SIGINT or SIGTERM stops the loops and closes the hub
and the store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdlog.Run("serve", func() error { return runServe(cmd.Context()) })
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().BoolVar(&noMonitor, "no-monitor", false, "Do not start notification monitoring")
	serveCmd.Flags().BoolVar(&noAutoEngage, "no-auto-engage", false, "Do not start the auto-engagement loop")
	serveCmd.Flags().BoolVar(&noConfigWatch, "no-watch", false, "Do not reload settings when the config file changes")
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	hub := push.NewHub()
	sinks := push.Multi{hub}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		tg, err := push.NewTelegramSink(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MinPriority)
		if err != nil {
			logging.Warn("telegram_disabled", map[string]any{"error": err})
		} else {
			sinks = append(sinks, tg)
		}
	}

	a, err := newApp(ctx, cfg, sinks)
	if err != nil {
		return err
	}
	defer a.Close()
	defer hub.Close()

	iss, err := a.issuer()
	if err != nil {
		return err
	}

	deps := api.Deps{
		Pipeline: a.pipeline,
		Engine:   a.engine,
		Settings: a.settings,
		Ideas:    a.ideas,
		Auth:     iss,
		Judge:    a.judge,
		Store:    a.store,
		Rate:     a.client,
		Push:     hub,
	}
	if cfg.Server.MetricsAddr == "" {
		deps.Metrics = metrics.Handler()
	} else if ms := metrics.StartServer(cfg.Server.MetricsAddr); ms != nil {
		logging.Info("metrics_listen", map[string]any{"addr": cfg.Server.MetricsAddr})
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ms.Shutdown(sctx)
		}()
	}
	srv := api.NewServer(cfg.Server.Addr, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	if !noConfigWatch {
		g.Go(func() error {
			err := config.Watch(gctx, configPath, func(next config.Config) {
				if err := a.settings.ApplyConfig(gctx, next); err != nil {
					logging.Error("settings_apply_error", map[string]any{"error": err})
				}
			})
			if err != nil {
				// not fatal
				logging.Warn("config_watch_disabled", map[string]any{"path": configPath, "error": err})
			}
			return nil
		})
	}

	if !noMonitor {
		a.pipeline.Start(gctx)
	}
	if !noAutoEngage {
		if err := a.engine.Start(gctx); err != nil {
			if errors.Is(err, engage.ErrDisabled) {
				logging.Info("auto_engage_off", nil)
			} else {
				logging.Error("auto_engage_start_error", map[string]any{"error": err})
			}
		}
	}
	logging.Info("serve_ready", map[string]any{
		"addr":       cfg.Server.Addr,
		"monitoring": a.pipeline.IsActive(),
		"engaging":   a.engine.IsActive(),
		"ai":         a.judge.Provider(),
	})

	err = g.Wait()
	logging.Info("serve_shutdown", nil)
	a.pipeline.Stop()
	a.engine.Stop()
	a.pipeline.Wait()
	a.engine.Wait()
	return err
}
