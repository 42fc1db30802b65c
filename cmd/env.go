package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/brand-discovery/internal/launcher"
	"github.com/sells-group/brand-discovery/internal/pipeline"
	"github.com/sells-group/brand-discovery/internal/reconciler"
	"github.com/sells-group/brand-discovery/internal/store"
	"github.com/sells-group/brand-discovery/internal/uploader"
	"github.com/sells-group/brand-discovery/internal/webhook"
	"github.com/sells-group/brand-discovery/pkg/firecrawl"
	"github.com/sells-group/brand-discovery/pkg/r2"
)

// appEnv holds the initialized store, clients, and pipeline components the
// serve/discover/reconcile commands share.
type appEnv struct {
	Store        store.Store
	Firecrawl    firecrawl.Client
	Bucket       r2.Client
	Uploader     *uploader.Uploader
	Orchestrator *pipeline.Orchestrator
	Webhook      *webhook.Handler
	Reconciler   *reconciler.Reconciler
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "brands.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv validates config for the given mode and wires up the components.
// Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &appEnv{}

	if mode == "serve" || mode == "upload" || mode == "cleanup" {
		bucket, err := r2.New(ctx, cfg.R2)
		if err != nil {
			return nil, err
		}
		env.Bucket = bucket
		env.Uploader = uploader.New(bucket, cfg.Upload)
	}

	// upload and cleanup work straight against the bucket.
	if mode == "upload" || mode == "cleanup" {
		return env, nil
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	env.Store = st

	fc := firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
	env.Firecrawl = fc

	l := launcher.New(fc, st, cfg.Discovery)
	env.Orchestrator = pipeline.NewOrchestrator(st, l)
	env.Reconciler = reconciler.New(st, fc, env.Orchestrator, cfg.Reconciler.BatchSize)

	if env.Uploader != nil {
		env.Webhook = webhook.NewHandler(st, env.Uploader, env.Orchestrator, cfg.Webhook.Secret)
	}

	return env, nil
}
