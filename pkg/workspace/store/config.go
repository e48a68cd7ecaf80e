package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/loomworks/loom/go/pkg/workspace/cache"
	"github.com/loomworks/loom/go/pkg/workspace/model"
	"github.com/loomworks/loom/go/pkg/workspace/wire"
)

// Config returns the current workspace settings.
func (ws *Workspace) Config() model.Config {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.config
}

// CachedConfig returns the config hydrated from the local cache at
// startup, and whether one existed. The sync controller uses this when
// deciding whether the remote copy is a never-written baseline.
func (ws *Workspace) CachedConfig() (model.Config, bool) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.cachedConfig, ws.hadCachedConfig
}

// SetConfig applies a local settings change: persisted to cache and
// pushed upstream fire-and-forget, unless a sync-driven overwrite armed
// the echo suppression token.
func (ws *Workspace) SetConfig(cfg model.Config) {
	ws.mu.Lock()
	ws.config = cfg
	ws.mu.Unlock()
	ws.persist(cache.SlotConfig)

	if ws.suppressConfigPush.Consume() {
		return
	}
	ws.pushConfig(cfg)
}

// SetConfigSynced applies a config decided by the sync controller and
// arms the suppression token so the next local echo does not push back.
func (ws *Workspace) SetConfigSynced(cfg model.Config) {
	ws.mu.Lock()
	ws.config = cfg
	ws.mu.Unlock()
	ws.persist(cache.SlotConfig)
	ws.suppressConfigPush.Arm()
}

func (ws *Workspace) pushConfig(cfg model.Config) {
	if ws.remote == nil {
		return
	}
	go func() {
		rec := wire.ConfigToWire(cfg.Sanitized())
		if err := ws.remote.PutConfig(context.Background(), rec); err != nil {
			ws.log.Warn("config push failed", zap.Error(err))
		}
	}()
}

// SetAPIKey stores a provider credential locally. API keys are never
// pushed upstream.
func (ws *Workspace) SetAPIKey(provider, key string) {
	ws.mu.Lock()
	replaced := false
	for i := range ws.apiKeys {
		if ws.apiKeys[i].Provider == provider {
			ws.apiKeys[i].Key = key
			replaced = true
			break
		}
	}
	if !replaced {
		ws.apiKeys = append(ws.apiKeys, model.APIKey{
			ID:       model.NewID(),
			Provider: provider,
			Key:      key,
		})
	}
	ws.mu.Unlock()
	ws.persist(cache.SlotAPIKeys)
}

// APIKeys returns the locally stored credentials.
func (ws *Workspace) APIKeys() []model.APIKey {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	out := make([]model.APIKey, len(ws.apiKeys))
	copy(out, ws.apiKeys)
	return out
}
