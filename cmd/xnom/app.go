package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"xnom/internal/auth"
	"xnom/internal/config"
	"xnom/internal/engage"
	"xnom/internal/ingest"
	"xnom/internal/jobs"
	"xnom/internal/judge"
	"xnom/internal/logging"
	"xnom/internal/push"
	"xnom/internal/settings"
	"xnom/internal/store"
	"xnom/internal/store/postgres"
	"xnom/internal/store/sqlite"
	"xnom/internal/suggest"
	"xnom/internal/xclient"
)

// app holds the wired services shared by every subcommand.
type app struct {
	cfg      config.Config
	store    store.Store
	client   *xclient.HTTPClient
	judge    judge.Judge
	push     push.Broadcaster
	settings *settings.Service
	sched    *jobs.Scheduler
	pipeline *ingest.Pipeline
	engine   *engage.Engine
	ideas    *suggest.Generator
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", configPath, err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logging.Configure(cfg.Log.Level)
	return cfg, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (store.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		if cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, err
			}
		}
		db, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "postgres", "postgresql":
		if cfg.DSN == "" {
			return nil, errors.New("storage.dsn (or DATABASE_URL) is required for postgres")
		}
		db, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// newApp wires the services. sink receives push events; one-shot commands
// pass push.LogSink.
func newApp(ctx context.Context, cfg config.Config, sink push.Broadcaster) (*app, error) {
	st, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	j, err := judge.New(ctx, cfg.LLM)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("judge: %w", err)
	}
	if !j.Available() {
		logging.Warn("judge_unavailable", map[string]any{"provider": cfg.LLM.Provider})
	}
	if cfg.Credentials.BearerToken == "" {
		logging.Warn("missing_credentials", map[string]any{"hint": "set X_BEARER_TOKEN; API calls will fail"})
	}

	a := &app{
		cfg:      cfg,
		store:    st,
		client:   xclient.NewHTTPClient(cfg.Credentials.BearerToken, cfg.Credentials.UserToken),
		judge:    j,
		push:     sink,
		settings: settings.NewService(st, cfg),
		sched:    jobs.NewScheduler(nil),
	}
	a.pipeline = ingest.NewPipeline(a.client, st, j, sink, a.settings, a.sched, ingest.Options{
		Interval: cfg.Notifications.PollInterval,
	})
	a.engine = engage.NewEngine(a.client, st, j, sink, a.settings, a.sched, engage.Options{
		Interval:     cfg.Engagement.Interval,
		InitialDelay: cfg.Engagement.InitialDelay,
	})
	a.ideas = suggest.NewGenerator(j, st, a.sched.Clock(), cfg.QuietHours)
	return a, nil
}

func (a *app) issuer() (*auth.Issuer, error) {
	return auth.NewIssuer(a.cfg.Auth.JWTSecret, a.cfg.Auth.TokenTTL)
}

func (a *app) Close() {
	a.engine.Close()
	if err := a.store.Close(); err != nil {
		logging.Warn("store_close_error", map[string]any{"error": err})
	}
}
