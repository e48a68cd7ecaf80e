package sync

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/go/pkg/workspace/cache"
	"github.com/loomworks/loom/go/pkg/workspace/model"
	"github.com/loomworks/loom/go/pkg/workspace/store"
	"github.com/loomworks/loom/go/pkg/workspace/wire"
)

func ptr[T any](v T) *T { return &v }

type fakeBackend struct {
	mu           sync.Mutex
	config       *wire.ConfigRecord
	configErr    error
	configPushes []*wire.ConfigRecord
	kbs          []wire.KnowledgeBaseRecord
	files        map[string][]wire.FileRecord
	filesErr     map[string]error
	agents       []wire.AgentRecord
	agentsErr    error
	sessions     []wire.SessionRecord
	toolServers  []wire.ToolServerRecord
	listCalls    int
}

func (f *fakeBackend) GetConfig(context.Context) (*wire.ConfigRecord, error) {
	if f.configErr != nil {
		return nil, f.configErr
	}
	if f.config == nil {
		return &wire.ConfigRecord{}, nil
	}
	return f.config, nil
}

func (f *fakeBackend) PutConfig(_ context.Context, rec *wire.ConfigRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configPushes = append(f.configPushes, rec)
	return nil
}

func (f *fakeBackend) ListKnowledgeBases(context.Context) ([]wire.KnowledgeBaseRecord, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()
	return f.kbs, nil
}

func (f *fakeBackend) ListFiles(_ context.Context, kbID string) ([]wire.FileRecord, error) {
	if err := f.filesErr[kbID]; err != nil {
		return nil, err
	}
	return f.files[kbID], nil
}

func (f *fakeBackend) ListAgents(context.Context) ([]wire.AgentRecord, error) {
	if f.agentsErr != nil {
		return nil, f.agentsErr
	}
	return f.agents, nil
}

func (f *fakeBackend) ListSessions(context.Context) ([]wire.SessionRecord, error) {
	return f.sessions, nil
}

func (f *fakeBackend) ListToolServers(context.Context) ([]wire.ToolServerRecord, error) {
	return f.toolServers, nil
}

func newTestWorkspace(t *testing.T) *store.Workspace {
	t.Helper()
	ws := store.New(store.Options{DebounceDelay: 5 * time.Millisecond})
	t.Cleanup(ws.Close)
	return ws
}

func TestRun_FullPass(t *testing.T) {
	backend := &fakeBackend{
		config: &wire.ConfigRecord{
			LLMModel: ptr("gpt-4o"),
			Theme:    ptr("dark"),
		},
		kbs: []wire.KnowledgeBaseRecord{
			{ID: "kb1", Name: ptr("Docs")},
		},
		files: map[string][]wire.FileRecord{
			"kb1": {{ID: "f1", Filename: ptr("guide.pdf"), Status: ptr("ready")}},
		},
		agents: []wire.AgentRecord{
			{ID: "custom-1", Name: ptr("Mine")},
		},
		sessions: []wire.SessionRecord{
			{ID: "s1", Title: ptr("Quarterly numbers")},
		},
		toolServers: []wire.ToolServerRecord{
			{ID: "srv1", Label: ptr("github")},
		},
	}
	ws := newTestWorkspace(t)
	c := New(ws, backend, nil, nil)

	require.Equal(t, StateIdle, c.State())
	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, StateSynced, c.State())

	cfg := ws.Config()
	assert.Equal(t, "gpt-4o", cfg.ChatModel)
	assert.Equal(t, "dark", cfg.Theme)
	// Absent remote fields fall back to defaults.
	assert.Equal(t, model.DefaultSearchProvider, cfg.SearchProvider)
	assert.Equal(t, model.DefaultResultCount, cfg.ResultCount)

	kbs := ws.KnowledgeBases()
	require.Len(t, kbs, 1)
	require.Len(t, kbs[0].Files, 1)
	assert.Equal(t, "guide.pdf", kbs[0].Files[0].Name)
	assert.Equal(t, model.FileStatusReady, kbs[0].Files[0].Status)

	ids := map[string]bool{}
	for _, a := range ws.Agents() {
		ids[a.ID] = true
	}
	assert.True(t, ids["custom-1"])
	assert.True(t, ids[model.SystemAgentGeneral])

	sessions := ws.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "Quarterly numbers", sessions[0].Title)
	assert.Empty(t, sessions[0].Messages)

	servers := ws.ToolServers()
	require.Len(t, servers, 1)
	assert.Equal(t, model.StatusConnected, servers[0].Status)
}

func TestRun_BaselineRemoteLosesToDivergedLocal(t *testing.T) {
	c, err := cache.Open(":memory:")
	require.NoError(t, err)
	defer c.Close()

	diverged := model.DefaultConfig()
	diverged.ChatModel = "claude-sonnet-4"
	data, err := json.Marshal(diverged)
	require.NoError(t, err)
	require.NoError(t, c.Put(cache.SlotConfig, string(data)))

	ws := store.New(store.Options{Cache: c, DebounceDelay: 5 * time.Millisecond})
	defer ws.Close()

	backend := &fakeBackend{config: &wire.ConfigRecord{}}
	ctrl := New(ws, backend, nil, nil)
	require.NoError(t, ctrl.Run(context.Background()))

	// Local settings survived and were pushed up exactly once.
	assert.Equal(t, "claude-sonnet-4", ws.Config().ChatModel)
	require.Len(t, backend.configPushes, 1)
	assert.Equal(t, "claude-sonnet-4", *backend.configPushes[0].LLMModel)
}

func TestRun_BaselineRemoteKeepsNonMarkerLocalChanges(t *testing.T) {
	c, err := cache.Open(":memory:")
	require.NoError(t, err)
	defer c.Close()

	// Marker fields at defaults, but theme and result count customized.
	diverged := model.DefaultConfig()
	diverged.Theme = "dark"
	diverged.ResultCount = 42
	data, err := json.Marshal(diverged)
	require.NoError(t, err)
	require.NoError(t, c.Put(cache.SlotConfig, string(data)))

	ws := store.New(store.Options{Cache: c, DebounceDelay: 5 * time.Millisecond})
	defer ws.Close()

	backend := &fakeBackend{config: &wire.ConfigRecord{}}
	ctrl := New(ws, backend, nil, nil)
	require.NoError(t, ctrl.Run(context.Background()))

	cfg := ws.Config()
	assert.Equal(t, "dark", cfg.Theme)
	assert.Equal(t, 42, cfg.ResultCount)
	require.Len(t, backend.configPushes, 1)
	require.NotNil(t, backend.configPushes[0].Theme)
	assert.Equal(t, "dark", *backend.configPushes[0].Theme)
}

func TestRun_RemoteWinsWhenNotBaseline(t *testing.T) {
	c, err := cache.Open(":memory:")
	require.NoError(t, err)
	defer c.Close()

	diverged := model.DefaultConfig()
	diverged.ChatModel = "local-model"
	data, _ := json.Marshal(diverged)
	require.NoError(t, c.Put(cache.SlotConfig, string(data)))

	ws := store.New(store.Options{Cache: c, DebounceDelay: 5 * time.Millisecond})
	defer ws.Close()

	backend := &fakeBackend{config: &wire.ConfigRecord{LLMModel: ptr("remote-model")}}
	ctrl := New(ws, backend, nil, nil)
	require.NoError(t, ctrl.Run(context.Background()))

	assert.Equal(t, "remote-model", ws.Config().ChatModel)
	assert.Empty(t, backend.configPushes)
}

func TestRun_FailedStepDegradesWithoutAborting(t *testing.T) {
	backend := &fakeBackend{
		agentsErr: assert.AnError,
		sessions:  []wire.SessionRecord{{ID: "s1"}},
	}
	ws := newTestWorkspace(t)
	c := New(ws, backend, nil, nil)

	err := c.Run(context.Background())
	require.Error(t, err)

	// Sessions still synced, agents kept their local seed.
	sessions := ws.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].ID)
	assert.NotEmpty(t, ws.Agents())
	assert.Equal(t, StateSynced, c.State())
}

func TestRun_FileFetchFailureDegradesToEmptyList(t *testing.T) {
	backend := &fakeBackend{
		kbs: []wire.KnowledgeBaseRecord{
			{ID: "kb1"}, {ID: "kb2"},
		},
		files: map[string][]wire.FileRecord{
			"kb2": {{ID: "f1"}},
		},
		filesErr: map[string]error{"kb1": assert.AnError},
	}
	ws := newTestWorkspace(t)
	c := New(ws, backend, nil, nil)

	require.NoError(t, c.Run(context.Background()))

	kbs := ws.KnowledgeBases()
	require.Len(t, kbs, 2)
	assert.Empty(t, kbs[0].Files)
	assert.Len(t, kbs[1].Files, 1)
}

func TestRun_SingleFlightUntilReset(t *testing.T) {
	backend := &fakeBackend{}
	ws := newTestWorkspace(t)
	c := New(ws, backend, nil, nil)

	require.NoError(t, c.Run(context.Background()))
	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, 1, backend.listCalls)

	c.Reset()
	assert.Equal(t, StateIdle, c.State())
	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, 2, backend.listCalls)
}

func TestRun_SyncedConfigDoesNotEchoBack(t *testing.T) {
	backend := &fakeBackend{config: &wire.ConfigRecord{LLMModel: ptr("remote-model")}}
	ws := newTestWorkspace(t)
	c := New(ws, backend, nil, nil)
	require.NoError(t, c.Run(context.Background()))

	// The sync-applied config armed suppression: re-applying it locally
	// must not produce a push.
	ws.SetConfig(ws.Config())
	time.Sleep(50 * time.Millisecond)
	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Empty(t, backend.configPushes)
}
