package loom

import (
	"context"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/loomworks/loom/go/pkg/workspace/cache"
	"github.com/loomworks/loom/go/pkg/workspace/extract"
	"github.com/loomworks/loom/go/pkg/workspace/feedback"
	"github.com/loomworks/loom/go/pkg/workspace/logging"
	"github.com/loomworks/loom/go/pkg/workspace/metrics"
	"github.com/loomworks/loom/go/pkg/workspace/remote"
	"github.com/loomworks/loom/go/pkg/workspace/store"
	"github.com/loomworks/loom/go/pkg/workspace/stream"
	syncctl "github.com/loomworks/loom/go/pkg/workspace/sync"
)

// App bundles the wired workspace core for the CLI commands.
type App struct {
	Log      *zap.Logger
	Cache    *cache.Store
	Remote   *remote.Client
	Ws       *store.Workspace
	Engine   *stream.Engine
	Syncer   *syncctl.Controller
	Recorder *feedback.Recorder
	Registry *prometheus.Registry
	tokens   *remote.TokenSource
}

// newApp wires every component from the resolved configuration.
func newApp() (*App, error) {
	log, err := logging.New(viper.GetBool("debug"))
	if err != nil {
		return nil, err
	}

	cachePath := viper.GetString("cache")
	tokenPath := viper.GetString("token-file")
	if cachePath == "" || tokenPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir := filepath.Join(home, ".loom")
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
		if cachePath == "" {
			cachePath = filepath.Join(dir, "cache.db")
		}
		if tokenPath == "" {
			tokenPath = filepath.Join(dir, "token")
		}
	}
	cacheStore, err := cache.Open(cachePath)
	if err != nil {
		return nil, err
	}

	tokens := remote.NewTokenSource(tokenPath, log)
	tokens.Start(context.Background())

	client := remote.NewClient(viper.GetString("server"), tokens.Token)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	ws := store.New(store.Options{
		Cache:   cacheStore,
		Remote:  client,
		Logger:  log,
		Metrics: m,
	})

	extractor := extract.NewService(viper.GetString("server")+"/api/extract", log)
	engine := stream.New(ws, client, extractor, log, m)

	return &App{
		Log:      log,
		Cache:    cacheStore,
		Remote:   client,
		Ws:       ws,
		Engine:   engine,
		Syncer:   syncctl.New(ws, client, log, m),
		Recorder: feedback.New(ws, client, log),
		Registry: registry,
		tokens:   tokens,
	}, nil
}

// Close flushes state and releases resources.
func (a *App) Close() {
	a.Engine.Stop()
	a.Ws.Close()
	a.tokens.Stop()
	if err := a.Cache.Close(); err != nil {
		a.Log.Warn("cache close failed", zap.Error(err))
	}
	_ = a.Log.Sync() //nolint:errcheck
}
