// Package sync reconciles the local workspace with the remote backend on
// sign-in. One pass runs five independent steps; a failed step degrades
// that collection and never aborts the others.
package sync

import (
	"context"
	"sync/atomic"

	"dario.cat/mergo"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/loomworks/loom/go/pkg/workspace/metrics"
	"github.com/loomworks/loom/go/pkg/workspace/model"
	"github.com/loomworks/loom/go/pkg/workspace/store"
	"github.com/loomworks/loom/go/pkg/workspace/wire"
)

// State is the controller's lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateSyncing
	StateSynced
)

func (s State) String() string {
	switch s {
	case StateSyncing:
		return "syncing"
	case StateSynced:
		return "synced"
	default:
		return "idle"
	}
}

// Backend is the subset of the remote client the controller pulls from.
type Backend interface {
	GetConfig(ctx context.Context) (*wire.ConfigRecord, error)
	PutConfig(ctx context.Context, rec *wire.ConfigRecord) error
	ListKnowledgeBases(ctx context.Context) ([]wire.KnowledgeBaseRecord, error)
	ListFiles(ctx context.Context, kbID string) ([]wire.FileRecord, error)
	ListAgents(ctx context.Context) ([]wire.AgentRecord, error)
	ListSessions(ctx context.Context) ([]wire.SessionRecord, error)
	ListToolServers(ctx context.Context) ([]wire.ToolServerRecord, error)
}

// Controller runs the sign-in reconciliation pass. Run is single-flight:
// a pass that is already underway or already finished is not repeated
// until Reset.
type Controller struct {
	ws      *store.Workspace
	backend Backend
	log     *zap.Logger
	metrics *metrics.Metrics
	state   atomic.Int32
}

// New builds a sync controller.
func New(ws *store.Workspace, backend Backend, log *zap.Logger, m *metrics.Metrics) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Controller{ws: ws, backend: backend, log: log, metrics: m}
}

// State returns the controller's current lifecycle position.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Reset returns the controller to idle so the next Run executes again.
// Call on sign-out.
func (c *Controller) Reset() {
	c.state.Store(int32(StateIdle))
}

// Run executes one reconciliation pass. Steps are independent: each
// failure is collected, logged once at the end, and leaves the other
// collections synced. The aggregate error is informational; the
// workspace is usable regardless.
func (c *Controller) Run(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateSyncing)) {
		return nil
	}

	var errs *multierror.Error
	for _, step := range []struct {
		name string
		fn   func(context.Context) error
	}{
		{"config", c.syncConfig},
		{"knowledge_bases", c.syncKnowledgeBases},
		{"agents", c.syncAgents},
		{"sessions", c.syncSessions},
		{"tool_servers", c.syncToolServers},
	} {
		if err := step.fn(ctx); err != nil {
			errs = multierror.Append(errs, err)
			c.log.Warn("sync step failed", zap.String("step", step.name), zap.Error(err))
		}
	}

	c.state.Store(int32(StateSynced))
	c.metrics.SyncRuns.Inc()

	if err := errs.ErrorOrNil(); err != nil {
		c.log.Warn("sync pass finished with degraded collections", zap.Error(err))
		return err
	}
	return nil
}

// syncConfig reconciles settings. A remote config indistinguishable from
// the factory baseline (all three marker fields at defaults) while a
// local cached copy exists means the remote copy was never written; the
// local settings win and are pushed up once. This covers divergence in
// any field, marker or not. In every other case the remote copy wins,
// overlaid on defaults.
func (c *Controller) syncConfig(ctx context.Context) error {
	rec, err := c.backend.GetConfig(ctx)
	if err != nil {
		return err
	}

	remote := wire.ConfigToInternal(rec)
	local := c.ws.Config()
	_, hadCache := c.ws.CachedConfig()

	if remote.AtBaseline() && hadCache {
		if err := c.backend.PutConfig(ctx, wire.ConfigToWire(local.Sanitized())); err != nil {
			return err
		}
		c.ws.SetConfigSynced(local)
		return nil
	}

	merged := remote
	if err := mergo.Merge(&merged, model.DefaultConfig()); err != nil {
		return err
	}
	merged.ProviderAPIKey = local.ProviderAPIKey
	merged.SQLPassword = local.SQLPassword
	c.ws.SetConfigSynced(merged)
	return nil
}

// syncKnowledgeBases fetches the base list and every file list in
// parallel. A failed file fetch degrades that base to an empty file list
// instead of failing the step.
func (c *Controller) syncKnowledgeBases(ctx context.Context) error {
	recs, err := c.backend.ListKnowledgeBases(ctx)
	if err != nil {
		return err
	}

	files := make([][]model.FileRecord, len(recs))
	g, gctx := errgroup.WithContext(ctx)
	for i, rec := range recs {
		i, rec := i, rec
		g.Go(func() error {
			fileRecs, err := c.backend.ListFiles(gctx, rec.ID)
			if err != nil {
				c.log.Warn("file list fetch failed, degrading to empty",
					zap.String("knowledge_base", rec.ID), zap.Error(err))
				return nil
			}
			out := make([]model.FileRecord, 0, len(fileRecs))
			for _, fr := range fileRecs {
				out = append(out, wire.FileToInternal(fr))
			}
			files[i] = out
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors

	bases := make([]model.KnowledgeBase, 0, len(recs))
	for i, rec := range recs {
		bases = append(bases, wire.KnowledgeBaseToInternal(rec, files[i]))
	}
	c.ws.ReplaceKnowledgeBases(bases)
	return nil
}

func (c *Controller) syncAgents(ctx context.Context) error {
	recs, err := c.backend.ListAgents(ctx)
	if err != nil {
		return err
	}
	agents := make([]model.Agent, 0, len(recs))
	for _, rec := range recs {
		agents = append(agents, wire.AgentToInternal(rec))
	}
	c.ws.MergeAgents(agents)
	return nil
}

func (c *Controller) syncSessions(ctx context.Context) error {
	recs, err := c.backend.ListSessions(ctx)
	if err != nil {
		return err
	}
	sessions := make([]model.Session, 0, len(recs))
	for _, rec := range recs {
		sessions = append(sessions, wire.SessionToInternal(rec))
	}
	c.ws.ReplaceSessions(sessions)
	return nil
}

// syncToolServers maps every fetched record to StatusConnected: the list
// endpoint carries no connection state, and an entry the backend returns
// is one it is serving.
func (c *Controller) syncToolServers(ctx context.Context) error {
	recs, err := c.backend.ListToolServers(ctx)
	if err != nil {
		return err
	}
	servers := make([]model.ToolServer, 0, len(recs))
	for _, rec := range recs {
		servers = append(servers, wire.ToolServerToInternal(rec, model.StatusConnected))
	}
	c.ws.ReplaceToolServers(servers)
	return nil
}
