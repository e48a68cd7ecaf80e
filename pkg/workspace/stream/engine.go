// Package stream runs streaming exchanges against the backend chat
// endpoint. The engine owns at most one in-flight exchange, applies the
// incoming chunk stream to the assistant placeholder message through the
// workspace store, and tears the exchange down on stop, session switch
// or transport failure.
package stream

import (
	"bufio"
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/loomworks/loom/go/pkg/workspace/apperrors"
	"github.com/loomworks/loom/go/pkg/workspace/extract"
	"github.com/loomworks/loom/go/pkg/workspace/metrics"
	"github.com/loomworks/loom/go/pkg/workspace/model"
	"github.com/loomworks/loom/go/pkg/workspace/store"
	"github.com/loomworks/loom/go/pkg/workspace/wire"
)

// historyWindow caps how many prior messages accompany a stream request.
const historyWindow = 10

// maxChunkBytes bounds a single chunk line. Table chunks can be large.
const maxChunkBytes = 4 << 20

// failurePrefix marks a synthetic assistant message that reports an
// exchange failure instead of model output.
const failurePrefix = "⚠ "

// Backend opens streaming exchanges.
type Backend interface {
	Stream(ctx context.Context, req *wire.StreamRequest) (io.ReadCloser, error)
}

// Options carries the per-submission toggles.
type Options struct {
	Attachments   []model.Attachment
	WebSearch     bool
	DeepReasoning bool
	SQLMode       bool
	DataSourceID  string

	// RetryQuery re-runs a prior query: no new user message is added,
	// only a fresh assistant placeholder.
	RetryQuery bool
}

// exchange is one in-flight streaming response, bound to the session and
// assistant message ids captured at submission time.
type exchange struct {
	sessionID string
	messageID string
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

// Engine drives streaming exchanges. At most one is active at a time; a
// new submission stops the previous one.
type Engine struct {
	mu        sync.Mutex
	ws        *store.Workspace
	backend   Backend
	extractor extract.Extractor
	log       *zap.Logger
	metrics   *metrics.Metrics
	active    *exchange
}

// New builds an engine and registers it for session-switch cancellation:
// leaving the session an exchange is bound to stops that exchange.
func New(ws *store.Workspace, backend Backend, extractor extract.Extractor, log *zap.Logger, m *metrics.Metrics) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	e := &Engine{
		ws:        ws,
		backend:   backend,
		extractor: extractor,
		log:       log,
		metrics:   m,
	}
	ws.RegisterSwitchHook(func(prev, next string) {
		if prev == next {
			return
		}
		e.stopIfBoundTo(prev)
	})
	return e
}

// Submit starts a streaming exchange for the query in the given session.
// It appends the user message and the assistant placeholder synchronously
// and returns the effective session id and the placeholder message id;
// chunks are applied in the background.
func (e *Engine) Submit(sessionID, query string, opts Options) (string, string, error) {
	e.Stop()

	id := e.ws.EnsureSessionID(sessionID)

	if opts.SQLMode && opts.DataSourceID == "" {
		warn := model.Message{
			ID:   model.NewID(),
			Role: model.RoleAssistant,
			Text: failurePrefix + "SQL mode needs a connected data source. Configure one in settings first.",
			Time: time.Now(),
		}
		e.ws.AppendMessage(id, warn)
		return id, warn.ID, apperrors.New(apperrors.ErrCodeInvalidInput, "sql mode without a data source", nil)
	}

	// History is captured before this turn's messages land.
	history := historyTurns(e.ws.RecentTurns(id, historyWindow))

	if !opts.RetryQuery {
		userMsg := model.Message{
			ID:   model.NewID(),
			Role: model.RoleUser,
			Text: query,
			Time: time.Now(),
		}
		for _, att := range opts.Attachments {
			userMsg.Attachments = append(userMsg.Attachments, att.Name)
		}
		if e.ws.AppendMessage(id, userMsg) == 0 {
			e.ws.RenameSessionFromQuery(id, query)
		}
		e.ws.PushMessage(id, userMsg)
	}

	placeholder := model.Message{
		ID:   model.NewID(),
		Role: model.RoleAssistant,
		Time: time.Now(),
	}
	if opts.DeepReasoning {
		placeholder.Thinking = "Thinking..."
	}
	e.ws.AppendMessage(id, placeholder)

	ctx, cancel := context.WithCancel(context.Background())
	ex := &exchange{sessionID: id, messageID: placeholder.ID, cancel: cancel}

	e.mu.Lock()
	e.active = ex
	e.mu.Unlock()

	e.metrics.ExchangesStarted.Inc()
	go e.run(ctx, ex, query, history, opts)

	return id, placeholder.ID, nil
}

// Stop cancels the active exchange, if any. Already-applied chunks stay.
func (e *Engine) Stop() {
	e.mu.Lock()
	ex := e.active
	e.active = nil
	e.mu.Unlock()
	if ex == nil {
		return
	}
	ex.cancelled.Store(true)
	ex.cancel()
	e.metrics.ExchangesCancelled.Inc()
}

// Active reports the session and message ids of the in-flight exchange.
func (e *Engine) Active() (string, string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return "", "", false
	}
	return e.active.sessionID, e.active.messageID, true
}

func (e *Engine) stopIfBoundTo(sessionID string) {
	e.mu.Lock()
	bound := e.active != nil && e.active.sessionID == sessionID
	e.mu.Unlock()
	if bound {
		e.Stop()
	}
}

// clear drops ex from the active slot if it is still there.
func (e *Engine) clear(ex *exchange) {
	e.mu.Lock()
	if e.active == ex {
		e.active = nil
	}
	e.mu.Unlock()
}

func (e *Engine) run(ctx context.Context, ex *exchange, query string, history []wire.HistoryTurn, opts Options) {
	defer e.clear(ex)

	var images []model.InlineImage
	if e.extractor != nil && len(opts.Attachments) > 0 {
		var parts []extract.Part
		parts, images = e.extractor.Extract(ctx, opts.Attachments)
		query = extract.AugmentQuery(query, parts)
	}

	req := e.buildRequest(query, images, history, opts)

	body, err := e.backend.Stream(ctx, req)
	if err != nil {
		e.finishWithError(ex, err)
		return
	}
	defer body.Close()

	thinkingStart := time.Now()
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxChunkBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		chunk, err := wire.DecodeChunk(line)
		if err != nil {
			e.finishWithError(ex, err)
			return
		}
		if chunk == nil {
			continue
		}
		if ex.cancelled.Load() {
			return
		}
		e.apply(ex, chunk, thinkingStart)
	}

	if err := scanner.Err(); err != nil && !ex.cancelled.Load() {
		e.finishWithError(ex, apperrors.New(apperrors.ErrCodeStreamOpen, "exchange stream broke", err))
		return
	}
	if ex.cancelled.Load() {
		return
	}

	e.metrics.ExchangesCompleted.Inc()
	if final, ok := e.finalMessage(ex); ok {
		e.ws.PushMessage(ex.sessionID, final)
	}
}

func (e *Engine) buildRequest(query string, images []model.InlineImage, history []wire.HistoryTurn, opts Options) *wire.StreamRequest {
	cfg := e.ws.Config()

	req := &wire.StreamRequest{
		Query:            query,
		Model:            cfg.ChatModel,
		KnowledgeBaseIDs: e.ws.SelectedKnowledgeBaseIDs(),
		WebSearch:        opts.WebSearch,
		DeepReasoning:    opts.DeepReasoning,
		SQLMode:          opts.SQLMode,
		DataSourceID:     opts.DataSourceID,
		ToolServerIDs:    e.ws.EnabledToolServerIDs(),
		History:          history,
		TopK:             cfg.ResultCount,
		RerankEnabled:    cfg.Rerank,
		HybridMode:       cfg.BlendMode,
		HybridWeight:     cfg.BlendWeight,
		Multimodal:       cfg.Multimodal,
		SearchProvider:   cfg.SearchProvider,
	}
	for _, img := range images {
		req.Images = append(req.Images, wire.InlineImage{
			Name:      img.Name,
			MediaType: img.MediaType,
			Data:      img.Data,
		})
	}

	if agent, ok := e.ws.ActiveAgent(); ok {
		if agent.Model != "" {
			req.Model = agent.Model
		}
		req.SystemPrompt = agent.SystemPrompt
	}
	return req
}

// apply folds one chunk into the placeholder message. Thinking snapshots
// replace, content fragments append, everything else replaces its field.
func (e *Engine) apply(ex *exchange, chunk wire.Chunk, thinkingStart time.Time) {
	switch c := chunk.(type) {
	case wire.ThinkingChunk:
		e.metrics.Chunks.WithLabelValues("thinking").Inc()
		e.ws.UpdateMessage(ex.sessionID, ex.messageID, func(m *model.Message) {
			m.Thinking = c.Text
			m.ThinkingSeconds = time.Since(thinkingStart).Seconds()
		})
	case wire.ContentChunk:
		e.metrics.Chunks.WithLabelValues("content").Inc()
		e.ws.UpdateMessage(ex.sessionID, ex.messageID, func(m *model.Message) {
			m.Text += c.Text
			m.ThinkingSeconds = time.Since(thinkingStart).Seconds()
		})
	case wire.SQLChunk:
		e.metrics.Chunks.WithLabelValues("sql").Inc()
		e.ws.UpdateMessage(ex.sessionID, ex.messageID, func(m *model.Message) {
			m.GeneratedQuery = c.Query
		})
	case wire.TableChunk:
		e.metrics.Chunks.WithLabelValues("table").Inc()
		e.ws.UpdateMessage(ex.sessionID, ex.messageID, func(m *model.Message) {
			table := c.Table
			m.Table = &table
			m.ThinkingSeconds = time.Since(thinkingStart).Seconds()
		})
	case wire.ToolCallsChunk:
		e.metrics.Chunks.WithLabelValues("tool_calls").Inc()
		e.ws.UpdateMessage(ex.sessionID, ex.messageID, func(m *model.Message) {
			m.ToolCalls = c.Calls
		})
	}
}

// finishWithError appends a synthetic failure message as its own
// assistant turn. The placeholder keeps whatever partially streamed in.
func (e *Engine) finishWithError(ex *exchange, err error) {
	if ex.cancelled.Load() {
		return
	}
	e.metrics.ExchangesFailed.Inc()
	e.log.Warn("exchange failed",
		zap.String("session", ex.sessionID),
		zap.String("message", ex.messageID),
		zap.Error(err))
	e.ws.AppendMessage(ex.sessionID, model.Message{
		ID:   model.NewID(),
		Role: model.RoleAssistant,
		Text: failurePrefix + "The response could not be completed: " + err.Error(),
		Time: time.Now(),
	})
}

func (e *Engine) finalMessage(ex *exchange) (model.Message, bool) {
	s, ok := e.ws.Session(ex.sessionID)
	if !ok {
		return model.Message{}, false
	}
	for _, m := range s.Messages {
		if m.ID == ex.messageID {
			return m, true
		}
	}
	return model.Message{}, false
}

func historyTurns(msgs []model.Message) []wire.HistoryTurn {
	var out []wire.HistoryTurn
	for _, m := range msgs {
		if m.Text == "" {
			continue
		}
		out = append(out, wire.HistoryTurn{Role: string(m.Role), Content: m.Text})
	}
	return out
}
