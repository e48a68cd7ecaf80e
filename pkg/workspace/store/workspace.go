// Package store holds the authoritative in-memory state of the workspace
// client: config, sessions, knowledge bases, agents, API keys and tool
// servers. Every mutation goes through the Workspace object, which mirrors
// each collection to the persistent cache through a debounced write and
// pushes syncable changes to the backend opportunistically.
package store

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/loomworks/loom/go/pkg/workspace/cache"
	"github.com/loomworks/loom/go/pkg/workspace/debounce"
	"github.com/loomworks/loom/go/pkg/workspace/metrics"
	"github.com/loomworks/loom/go/pkg/workspace/model"
	"github.com/loomworks/loom/go/pkg/workspace/wire"
)

// Backend is the subset of the remote client the stores push to. Pushes
// are fire-and-forget: failures are logged and never surfaced.
type Backend interface {
	PutConfig(ctx context.Context, rec *wire.ConfigRecord) error
	CreateSession(ctx context.Context, rec wire.SessionRecord) (*wire.SessionRecord, error)
	DeleteSession(ctx context.Context, sessionID string) error
	ListMessages(ctx context.Context, sessionID string) ([]wire.MessageRecord, error)
	AppendMessage(ctx context.Context, sessionID string, rec wire.MessageRecord) error
	CreateToolServer(ctx context.Context, rec wire.ToolServerRecord) error
	DeleteToolServer(ctx context.Context, id string) error
}

// DefaultDebounceDelay is the quiet period before a mutated collection is
// written to the cache.
const DefaultDebounceDelay = 250 * time.Millisecond

// Options configures a Workspace. Cache and Remote may be nil (state is
// then purely in-memory, pushes are skipped).
type Options struct {
	Cache         *cache.Store
	Remote        Backend
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
	DebounceDelay time.Duration
}

// pushSuppression is a single-use token: armed by a sync-driven overwrite
// so the next local mutation does not echo straight back to the backend.
type pushSuppression struct {
	armed atomic.Bool
}

func (p *pushSuppression) Arm()          { p.armed.Store(true) }
func (p *pushSuppression) Consume() bool { return p.armed.Swap(false) }

// Workspace owns all entity collections. Constructed once per process and
// passed by reference to every consumer.
type Workspace struct {
	mu      sync.Mutex
	log     *zap.Logger
	cache   *cache.Store
	remote  Backend
	metrics *metrics.Metrics

	config          model.Config
	cachedConfig    model.Config
	hadCachedConfig bool

	sessions        []model.Session
	activeSessionID string

	knowledgeBases []model.KnowledgeBase
	selectedKBIDs  []string

	agents        []model.Agent
	activeAgentID string

	apiKeys     []model.APIKey
	toolServers []model.ToolServer

	suppressConfigPush pushSuppression
	debouncers         map[cache.Slot]*debounce.Debouncer
	switchHooks        []func(prev, next string)
}

// New builds a Workspace: hydrates every collection from the cache, seeds
// the reserved system agents, and guarantees at least one session exists.
func New(opts Options) *Workspace {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}
	if opts.DebounceDelay <= 0 {
		opts.DebounceDelay = DefaultDebounceDelay
	}

	ws := &Workspace{
		log:     opts.Logger,
		cache:   opts.Cache,
		remote:  opts.Remote,
		metrics: opts.Metrics,
		config:  model.DefaultConfig(),
	}

	ws.hydrateFromCache()
	ws.seedSystemAgents()

	if len(ws.sessions) == 0 {
		ws.sessions = []model.Session{model.NewSession()}
	}
	if ws.activeSessionID == "" {
		ws.activeSessionID = ws.sessions[0].ID
	}
	if len(ws.selectedKBIDs) == 0 && len(ws.knowledgeBases) > 0 {
		ws.selectedKBIDs = []string{ws.knowledgeBases[0].ID}
	}
	if ws.activeAgentID == "" {
		ws.activeAgentID = model.SystemAgentGeneral
	}

	ws.debouncers = map[cache.Slot]*debounce.Debouncer{}
	for _, slot := range []cache.Slot{
		cache.SlotConfig, cache.SlotSessions, cache.SlotKnowledgeBases,
		cache.SlotAgents, cache.SlotAPIKeys, cache.SlotToolServers,
	} {
		slot := slot
		ws.debouncers[slot] = debounce.New(opts.DebounceDelay, func() {
			ws.writeSlot(slot)
		})
	}

	return ws
}

func (ws *Workspace) hydrateFromCache() {
	if ws.cache == nil {
		return
	}

	loadSlot := func(slot cache.Slot, out any) bool {
		value, ok, err := ws.cache.Get(slot)
		if err != nil {
			ws.log.Warn("failed to read cache slot", zap.String("slot", string(slot)), zap.Error(err))
			return false
		}
		if !ok {
			return false
		}
		if err := json.Unmarshal([]byte(value), out); err != nil {
			ws.log.Warn("discarding undecodable cache slot", zap.String("slot", string(slot)), zap.Error(err))
			return false
		}
		return true
	}

	var cfg model.Config
	if loadSlot(cache.SlotConfig, &cfg) {
		// Cached config was written sanitized; trust it as-is.
		ws.config = cfg
		ws.cachedConfig = cfg
		ws.hadCachedConfig = true
	}
	loadSlot(cache.SlotSessions, &ws.sessions)
	loadSlot(cache.SlotKnowledgeBases, &ws.knowledgeBases)
	loadSlot(cache.SlotAgents, &ws.agents)
	loadSlot(cache.SlotAPIKeys, &ws.apiKeys)
	loadSlot(cache.SlotToolServers, &ws.toolServers)
}

func (ws *Workspace) seedSystemAgents() {
	present := map[string]bool{}
	for _, a := range ws.agents {
		present[a.ID] = true
	}
	for _, sys := range model.SystemAgents() {
		if !present[sys.ID] {
			ws.agents = append(ws.agents, sys)
		}
	}
}

// persist schedules a debounced cache write for the slot.
func (ws *Workspace) persist(slot cache.Slot) {
	if ws.cache == nil {
		return
	}
	ws.debouncers[slot].Trigger()
}

// writeSlot serializes the current collection and writes it. Runs at
// debounce flush time so it always sees the latest value.
func (ws *Workspace) writeSlot(slot cache.Slot) {
	ws.mu.Lock()
	var payload any
	switch slot {
	case cache.SlotConfig:
		payload = ws.config.Sanitized()
	case cache.SlotSessions:
		payload = ws.sessions
	case cache.SlotKnowledgeBases:
		payload = ws.knowledgeBases
	case cache.SlotAgents:
		payload = ws.agents
	case cache.SlotAPIKeys:
		payload = ws.apiKeys
	case cache.SlotToolServers:
		payload = ws.toolServers
	}
	data, err := json.Marshal(payload)
	ws.mu.Unlock()

	if err != nil {
		ws.log.Warn("failed to serialize cache slot", zap.String("slot", string(slot)), zap.Error(err))
		return
	}
	if err := ws.cache.Put(slot, string(data)); err != nil {
		ws.log.Warn("failed to persist cache slot", zap.String("slot", string(slot)), zap.Error(err))
		return
	}
	ws.metrics.CacheFlushes.Inc()
}

// Flush forces every pending cache write out now. Call on shutdown.
func (ws *Workspace) Flush() {
	for _, d := range ws.debouncers {
		d.Flush()
	}
}

// Close flushes pending writes and stops the debouncers.
func (ws *Workspace) Close() {
	ws.Flush()
	for _, d := range ws.debouncers {
		d.Stop()
	}
}

// RegisterSwitchHook adds a callback invoked on every active-session
// switch with the previous and next session ids. The streaming engine
// uses this to cancel an exchange bound to the session being left.
func (ws *Workspace) RegisterSwitchHook(fn func(prev, next string)) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.switchHooks = append(ws.switchHooks, fn)
}
