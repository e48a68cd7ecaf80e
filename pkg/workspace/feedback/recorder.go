// Package feedback records user ratings of assistant messages, both on
// the local message and upstream.
package feedback

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/loomworks/loom/go/pkg/workspace/apperrors"
	"github.com/loomworks/loom/go/pkg/workspace/store"
	"github.com/loomworks/loom/go/pkg/workspace/wire"
)

// Backend receives feedback records.
type Backend interface {
	CreateFeedback(ctx context.Context, rec wire.FeedbackRecord) error
}

// Recorder applies ratings optimistically: the local message is marked
// immediately and the remote record is pushed fire-and-forget.
type Recorder struct {
	ws      *store.Workspace
	backend Backend
	log     *zap.Logger
}

// New builds a feedback recorder.
func New(ws *store.Workspace, backend Backend, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{ws: ws, backend: backend, log: log}
}

// Record rates the assistant message at the given index. The message
// must be an assistant message directly preceded by a user message; the
// remote record captures the exchanged texts and the workspace context
// the answer was produced under.
func (r *Recorder) Record(sessionID string, messageIndex int, isPositive bool) error {
	userMsg, asstMsg, ok := r.ws.SetFeedback(sessionID, messageIndex, isPositive)
	if !ok {
		return apperrors.New(apperrors.ErrCodeInvalidInput,
			"feedback needs an assistant message preceded by a user message", nil)
	}

	if r.backend == nil {
		return nil
	}

	rec := wire.FeedbackRecord{
		SessionID:     sessionID,
		UserText:      userMsg.Text,
		AssistantText: asstMsg.Text,
		IsPositive:    isPositive,
		Model:         r.ws.Config().ChatModel,
		KnowledgeBase: r.ws.SelectedKnowledgeBaseIDs(),
		SQLMode:       asstMsg.GeneratedQuery != "",
		DeepReasoning: asstMsg.Thinking != "",
	}
	if agent, ok := r.ws.ActiveAgent(); ok {
		rec.AgentID = agent.ID
		rec.WebSearch = agent.DefaultPreset.Sources.WebSearch
		if agent.Model != "" {
			rec.Model = agent.Model
		}
	}
	if len(asstMsg.ToolCalls) > 0 {
		if data, err := json.Marshal(asstMsg.ToolCalls); err == nil {
			rec.ToolCalls = data
		}
	}

	go func() {
		if err := r.backend.CreateFeedback(context.Background(), rec); err != nil {
			r.log.Warn("feedback push failed",
				zap.String("session", sessionID),
				zap.Int("message_index", messageIndex),
				zap.Error(err))
		}
	}()
	return nil
}
