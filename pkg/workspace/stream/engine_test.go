package stream

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/go/pkg/workspace/extract"
	"github.com/loomworks/loom/go/pkg/workspace/model"
	"github.com/loomworks/loom/go/pkg/workspace/store"
	"github.com/loomworks/loom/go/pkg/workspace/wire"
)

// fakeStreamBackend serves a canned NDJSON body and records the request.
type fakeStreamBackend struct {
	mu   sync.Mutex
	req  *wire.StreamRequest
	body io.ReadCloser
	err  error
}

func (f *fakeStreamBackend) Stream(_ context.Context, req *wire.StreamRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return f.body, nil
}

func (f *fakeStreamBackend) request() *wire.StreamRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.req
}

func ndjson(lines ...string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(strings.Join(lines, "\n") + "\n"))
}

func newTestEngine(t *testing.T, backend Backend) (*Engine, *store.Workspace) {
	t.Helper()
	ws := store.New(store.Options{DebounceDelay: 5 * time.Millisecond})
	t.Cleanup(ws.Close)
	return New(ws, backend, nil, nil, nil), ws
}

func messageByID(t *testing.T, ws *store.Workspace, sessionID, messageID string) model.Message {
	t.Helper()
	s, ok := ws.Session(sessionID)
	require.True(t, ok)
	for _, m := range s.Messages {
		if m.ID == messageID {
			return m
		}
	}
	t.Fatalf("message %s not found in session %s", messageID, sessionID)
	return model.Message{}
}

func waitDone(t *testing.T, e *Engine) {
	t.Helper()
	assert.Eventually(t, func() bool {
		_, _, active := e.Active()
		return !active
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSubmit_AppliesChunkStream(t *testing.T) {
	backend := &fakeStreamBackend{body: ndjson(
		`{"type":"thinking","text":"planning"}`,
		`{"type":"thinking","text":"planning the answer"}`,
		`{"type":"content","text":"Hello"}`,
		`{"type":"content","text":", world"}`,
		`{"type":"sql","query":"SELECT 1"}`,
		`{"type":"table","columns":["n"],"rows":[[1]],"total":1}`,
		`{"type":"tool_calls_meta","tool_calls":[{"name":"web_search"}]}`,
		`{"type":"from_the_future","text":"ignored"}`,
	)}
	e, ws := newTestEngine(t, backend)

	id, msgID, err := e.Submit(model.NewSessionID, "what is up", Options{})
	require.NoError(t, err)
	assert.NotEqual(t, model.NewSessionID, id)
	waitDone(t, e)

	m := messageByID(t, ws, id, msgID)
	assert.Equal(t, "Hello, world", m.Text)
	assert.Equal(t, "planning the answer", m.Thinking)
	assert.Greater(t, m.ThinkingSeconds, 0.0)
	assert.Equal(t, "SELECT 1", m.GeneratedQuery)
	require.NotNil(t, m.Table)
	assert.Equal(t, []string{"n"}, m.Table.Columns)
	require.Len(t, m.ToolCalls, 1)
	assert.Equal(t, "web_search", m.ToolCalls[0].Name)

	// First query becomes the session title.
	s, _ := ws.Session(id)
	assert.Equal(t, "what is up", s.Title)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, model.RoleUser, s.Messages[0].Role)
}

func TestSubmit_BuildsRequestFromWorkspaceState(t *testing.T) {
	backend := &fakeStreamBackend{body: ndjson(`{"type":"content","text":"ok"}`)}
	e, ws := newTestEngine(t, backend)

	cfg := ws.Config()
	cfg.ResultCount = 9
	cfg.Rerank = true
	ws.SetConfig(cfg)
	ws.ReplaceKnowledgeBases([]model.KnowledgeBase{{ID: "kb1"}})
	ws.ReplaceToolServers([]model.ToolServer{{ID: "srv1", Enabled: true}, {ID: "srv2"}})

	_, _, err := e.Submit(model.NewSessionID, "question", Options{WebSearch: true, DeepReasoning: true})
	require.NoError(t, err)
	waitDone(t, e)

	req := backend.request()
	require.NotNil(t, req)
	assert.Equal(t, "question", req.Query)
	assert.Equal(t, model.DefaultChatModel, req.Model)
	assert.Equal(t, []string{"kb1"}, req.KnowledgeBaseIDs)
	assert.Equal(t, []string{"srv1"}, req.ToolServerIDs)
	assert.True(t, req.WebSearch)
	assert.True(t, req.DeepReasoning)
	assert.Equal(t, 9, req.TopK)
	assert.True(t, req.RerankEnabled)
	assert.Equal(t, model.DefaultBlendMode, req.HybridMode)
	assert.Empty(t, req.History)
}

func TestSubmit_HistoryExcludesCurrentTurn(t *testing.T) {
	backend := &fakeStreamBackend{body: ndjson(`{"type":"content","text":"second answer"}`)}
	e, ws := newTestEngine(t, backend)

	id := ws.EnsureSessionID(model.NewSessionID)
	ws.AppendMessage(id, model.Message{ID: "u1", Role: model.RoleUser, Text: "first question"})
	ws.AppendMessage(id, model.Message{ID: "a1", Role: model.RoleAssistant, Text: "first answer"})

	_, _, err := e.Submit(id, "second question", Options{})
	require.NoError(t, err)
	waitDone(t, e)

	req := backend.request()
	require.Len(t, req.History, 2)
	assert.Equal(t, "first question", req.History[0].Content)
	assert.Equal(t, "first answer", req.History[1].Content)
}

func TestSubmit_SQLModeWithoutDataSource(t *testing.T) {
	backend := &fakeStreamBackend{}
	e, ws := newTestEngine(t, backend)

	id, msgID, err := e.Submit(model.NewSessionID, "show revenue", Options{SQLMode: true})
	require.Error(t, err)

	// No exchange was opened; a synthetic warning landed instead.
	assert.Nil(t, backend.request())
	m := messageByID(t, ws, id, msgID)
	assert.Equal(t, model.RoleAssistant, m.Role)
	assert.Contains(t, m.Text, "data source")
	assert.True(t, strings.HasPrefix(m.Text, "⚠ "))
}

func TestSubmit_RetryQuerySkipsUserMessage(t *testing.T) {
	backend := &fakeStreamBackend{body: ndjson(`{"type":"content","text":"take two"}`)}
	e, ws := newTestEngine(t, backend)

	id := ws.EnsureSessionID(model.NewSessionID)
	ws.AppendMessage(id, model.Message{ID: "u1", Role: model.RoleUser, Text: "question"})
	ws.AppendMessage(id, model.Message{ID: "a1", Role: model.RoleAssistant, Text: "weak answer"})

	_, msgID, err := e.Submit(id, "question", Options{RetryQuery: true})
	require.NoError(t, err)
	waitDone(t, e)

	s, _ := ws.Session(id)
	require.Len(t, s.Messages, 3)
	assert.Equal(t, model.RoleAssistant, s.Messages[2].Role)
	assert.Equal(t, "take two", messageByID(t, ws, id, msgID).Text)
}

func TestStop_DiscardsLaterChunks(t *testing.T) {
	pr, pw := io.Pipe()
	backend := &fakeStreamBackend{body: pr}
	e, ws := newTestEngine(t, backend)

	id, msgID, err := e.Submit(model.NewSessionID, "long answer", Options{})
	require.NoError(t, err)

	_, werr := pw.Write([]byte(`{"type":"content","text":"partial"}` + "\n"))
	require.NoError(t, werr)
	assert.Eventually(t, func() bool {
		return messageByID(t, ws, id, msgID).Text == "partial"
	}, 2*time.Second, 5*time.Millisecond)

	e.Stop()
	pw.Write([]byte(`{"type":"content","text":" never lands"}` + "\n")) //nolint:errcheck
	pw.Close()
	waitDone(t, e)

	// Applied chunks stay, chunks after the stop do not.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "partial", messageByID(t, ws, id, msgID).Text)
}

func TestSessionSwitch_CancelsBoundExchange(t *testing.T) {
	pr, pw := io.Pipe()
	backend := &fakeStreamBackend{body: pr}
	e, ws := newTestEngine(t, backend)

	ws.ReplaceSessions([]model.Session{
		{ID: "s1", Messages: []model.Message{}},
		{ID: "s2", Messages: []model.Message{}},
	})

	id, msgID, err := e.Submit("s1", "question", Options{})
	require.NoError(t, err)
	require.Equal(t, "s1", id)

	pw.Write([]byte(`{"type":"content","text":"partial"}` + "\n")) //nolint:errcheck
	assert.Eventually(t, func() bool {
		return messageByID(t, ws, id, msgID).Text == "partial"
	}, 2*time.Second, 5*time.Millisecond)

	ws.SelectSession(context.Background(), "s2")

	_, _, active := e.Active()
	assert.False(t, active)

	pw.Write([]byte(`{"type":"content","text":" more"}` + "\n")) //nolint:errcheck
	pw.Close()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "partial", messageByID(t, ws, id, msgID).Text)
}

func TestSubmit_TransportFailureAppendsErrorTurn(t *testing.T) {
	backend := &fakeStreamBackend{err: assert.AnError}
	e, ws := newTestEngine(t, backend)

	id, msgID, err := e.Submit(model.NewSessionID, "question", Options{})
	require.NoError(t, err)
	waitDone(t, e)

	// The error lands as its own assistant turn after the untouched
	// placeholder: user, placeholder, error message.
	assert.Eventually(t, func() bool {
		s, ok := ws.Session(id)
		return ok && len(s.Messages) == 3
	}, 2*time.Second, 5*time.Millisecond)

	s, _ := ws.Session(id)
	assert.Empty(t, messageByID(t, ws, id, msgID).Text)
	last := s.Messages[2]
	assert.Equal(t, model.RoleAssistant, last.Role)
	assert.True(t, strings.HasPrefix(last.Text, "⚠ "))
	assert.NotEqual(t, msgID, last.ID)
}

func TestSubmit_MalformedChunkKeepsPartialAnswer(t *testing.T) {
	backend := &fakeStreamBackend{body: ndjson(
		`{"type":"content","text":"partial answer"}`,
		`{not json`,
	)}
	e, ws := newTestEngine(t, backend)

	id, msgID, err := e.Submit(model.NewSessionID, "question", Options{})
	require.NoError(t, err)
	waitDone(t, e)

	assert.Eventually(t, func() bool {
		s, ok := ws.Session(id)
		return ok && len(s.Messages) == 3
	}, 2*time.Second, 5*time.Millisecond)

	// Already-applied chunks survive; the failure is a separate turn.
	s, _ := ws.Session(id)
	assert.Equal(t, "partial answer", messageByID(t, ws, id, msgID).Text)
	assert.True(t, strings.HasPrefix(s.Messages[2].Text, "⚠ "))
}

func TestSubmit_NewSubmissionStopsPrevious(t *testing.T) {
	pr, pw := io.Pipe()
	backend := &fakeStreamBackend{body: pr}
	e, ws := newTestEngine(t, backend)

	id, firstID, err := e.Submit(model.NewSessionID, "first", Options{})
	require.NoError(t, err)
	pw.Write([]byte(`{"type":"content","text":"one"}` + "\n")) //nolint:errcheck
	assert.Eventually(t, func() bool {
		return messageByID(t, ws, id, firstID).Text == "one"
	}, 2*time.Second, 5*time.Millisecond)

	backend.mu.Lock()
	backend.body = ndjson(`{"type":"content","text":"two"}`)
	backend.mu.Unlock()

	_, secondID, err := e.Submit(id, "second", Options{})
	require.NoError(t, err)
	pw.Close()
	waitDone(t, e)

	assert.Equal(t, "one", messageByID(t, ws, id, firstID).Text)
	assert.Eventually(t, func() bool {
		return messageByID(t, ws, id, secondID).Text == "two"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestChunks_RefreshElapsedTime(t *testing.T) {
	pr, pw := io.Pipe()
	backend := &fakeStreamBackend{body: pr}
	e, ws := newTestEngine(t, backend)

	id, msgID, err := e.Submit(model.NewSessionID, "question", Options{})
	require.NoError(t, err)

	pw.Write([]byte(`{"type":"content","text":"a"}` + "\n")) //nolint:errcheck
	assert.Eventually(t, func() bool {
		return messageByID(t, ws, id, msgID).ThinkingSeconds > 0
	}, 2*time.Second, 5*time.Millisecond)
	first := messageByID(t, ws, id, msgID).ThinkingSeconds

	// Every later content or table chunk advances the elapsed time.
	time.Sleep(30 * time.Millisecond)
	pw.Write([]byte(`{"type":"content","text":"b"}` + "\n")) //nolint:errcheck
	assert.Eventually(t, func() bool {
		return messageByID(t, ws, id, msgID).ThinkingSeconds > first
	}, 2*time.Second, 5*time.Millisecond)
	second := messageByID(t, ws, id, msgID).ThinkingSeconds

	time.Sleep(30 * time.Millisecond)
	pw.Write([]byte(`{"type":"table","columns":["n"],"rows":[[1]],"total":1}` + "\n")) //nolint:errcheck
	assert.Eventually(t, func() bool {
		return messageByID(t, ws, id, msgID).ThinkingSeconds > second
	}, 2*time.Second, 5*time.Millisecond)

	pw.Close()
	waitDone(t, e)
}

func TestSubmit_DeepReasoningSeedsThinkingMarker(t *testing.T) {
	pr, pw := io.Pipe()
	backend := &fakeStreamBackend{body: pr}
	e, ws := newTestEngine(t, backend)

	id, msgID, err := e.Submit(model.NewSessionID, "hard question", Options{DeepReasoning: true})
	require.NoError(t, err)

	assert.Equal(t, "Thinking...", messageByID(t, ws, id, msgID).Thinking)

	pw.Write([]byte(`{"type":"thinking","text":"step one"}` + "\n")) //nolint:errcheck
	assert.Eventually(t, func() bool {
		return messageByID(t, ws, id, msgID).Thinking == "step one"
	}, 2*time.Second, 5*time.Millisecond)
	pw.Close()
	waitDone(t, e)
}

func TestAugmentQuery(t *testing.T) {
	assert.Equal(t, "q", extract.AugmentQuery("q", nil))

	out := extract.AugmentQuery("q", []extract.Part{
		{Filename: "notes.txt", Text: "alpha"},
		{Filename: "broken.pdf", Text: ""},
	})
	assert.Contains(t, out, "Attached file: notes.txt")
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "Attached file: broken.pdf")
}
