package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/loomworks/loom/go/pkg/workspace/cache"
	"github.com/loomworks/loom/go/pkg/workspace/model"
	"github.com/loomworks/loom/go/pkg/workspace/wire"
)

const maxTitleRunes = 50

// Sessions returns a copy of the session collection.
func (ws *Workspace) Sessions() []model.Session {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	out := make([]model.Session, len(ws.sessions))
	copy(out, ws.sessions)
	return out
}

// ActiveSessionID returns the id of the currently selected session.
func (ws *Workspace) ActiveSessionID() string {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.activeSessionID
}

// ActiveSession returns the selected session, if any.
func (ws *Workspace) ActiveSession() (model.Session, bool) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for _, s := range ws.sessions {
		if s.ID == ws.activeSessionID {
			return s, true
		}
	}
	return model.Session{}, false
}

// Session returns the session with the given id.
func (ws *Workspace) Session(id string) (model.Session, bool) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for _, s := range ws.sessions {
		if s.ID == id {
			return s, true
		}
	}
	return model.Session{}, false
}

// CreateSession adds a local placeholder session and selects it. The
// placeholder keeps the transient id until its first use.
func (ws *Workspace) CreateSession() model.Session {
	ws.mu.Lock()
	prev := ws.activeSessionID
	var out model.Session
	created := false
	found := false
	for _, s := range ws.sessions {
		if s.ID == model.NewSessionID {
			ws.activeSessionID = s.ID
			out = s
			found = true
			break
		}
	}
	if !found {
		out = model.NewSession()
		ws.sessions = append([]model.Session{out}, ws.sessions...)
		ws.activeSessionID = out.ID
		created = true
	}
	hooks := make([]func(prev, next string), len(ws.switchHooks))
	copy(hooks, ws.switchHooks)
	ws.mu.Unlock()

	for _, hook := range hooks {
		hook(prev, out.ID)
	}
	if created {
		ws.persist(cache.SlotSessions)
	}
	return out
}

// EnsureSessionID replaces the transient placeholder id with a generated
// one on first use and creates the remote counterpart in the background.
// Returns the effective session id.
func (ws *Workspace) EnsureSessionID(id string) string {
	if id != model.NewSessionID {
		return id
	}

	ws.mu.Lock()
	newID := model.NewID()
	var created model.Session
	for i := range ws.sessions {
		if ws.sessions[i].ID == model.NewSessionID {
			ws.sessions[i].ID = newID
			created = ws.sessions[i]
			break
		}
	}
	if ws.activeSessionID == model.NewSessionID {
		ws.activeSessionID = newID
	}
	ws.mu.Unlock()
	ws.persist(cache.SlotSessions)

	if ws.remote != nil {
		go func() {
			if _, err := ws.remote.CreateSession(context.Background(), wire.SessionToWire(created)); err != nil {
				ws.log.Warn("session create push failed", zap.String("session", newID), zap.Error(err))
			}
		}()
	}
	return newID
}

// SelectSession switches the active session and lazily hydrates its
// message history. Hydration is idempotent: a session that already has
// messages is left alone, and the local placeholder is never hydrated
// since it has no remote counterpart.
func (ws *Workspace) SelectSession(ctx context.Context, id string) {
	ws.mu.Lock()
	prev := ws.activeSessionID
	found := false
	needsHydration := false
	for _, s := range ws.sessions {
		if s.ID == id {
			found = true
			needsHydration = len(s.Messages) == 0 && id != model.NewSessionID
			break
		}
	}
	if !found {
		ws.mu.Unlock()
		return
	}
	ws.activeSessionID = id
	hooks := make([]func(prev, next string), len(ws.switchHooks))
	copy(hooks, ws.switchHooks)
	ws.mu.Unlock()

	for _, hook := range hooks {
		hook(prev, id)
	}

	if !needsHydration || ws.remote == nil {
		return
	}

	recs, err := ws.remote.ListMessages(ctx, id)
	if err != nil {
		ws.log.Warn("message hydration failed", zap.String("session", id), zap.Error(err))
		return
	}

	msgs := make([]model.Message, 0, len(recs))
	for _, rec := range recs {
		msgs = append(msgs, wire.MessageToInternal(rec))
	}

	ws.mu.Lock()
	for i := range ws.sessions {
		// Only fill if still empty; a stream may have landed meanwhile.
		if ws.sessions[i].ID == id && len(ws.sessions[i].Messages) == 0 {
			ws.sessions[i].Messages = msgs
			break
		}
	}
	ws.mu.Unlock()
	ws.persist(cache.SlotSessions)
}

// DeleteSession removes a session: remote delete first (best effort),
// then local removal, then a replacement placeholder if it was the last
// session.
func (ws *Workspace) DeleteSession(ctx context.Context, id string) {
	if ws.remote != nil && id != model.NewSessionID {
		if err := ws.remote.DeleteSession(ctx, id); err != nil {
			ws.log.Warn("session delete push failed", zap.String("session", id), zap.Error(err))
		}
	}

	ws.mu.Lock()
	kept := ws.sessions[:0]
	for _, s := range ws.sessions {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	ws.sessions = kept
	if len(ws.sessions) == 0 {
		ws.sessions = []model.Session{model.NewSession()}
	}
	if ws.activeSessionID == id {
		ws.activeSessionID = ws.sessions[0].ID
	}
	ws.mu.Unlock()
	ws.persist(cache.SlotSessions)
}

// RenameSessionFromQuery derives a session title from its first user
// query, truncated.
func (ws *Workspace) RenameSessionFromQuery(id, query string) {
	title := query
	if runes := []rune(title); len(runes) > maxTitleRunes {
		title = string(runes[:maxTitleRunes])
	}

	ws.mu.Lock()
	for i := range ws.sessions {
		if ws.sessions[i].ID == id {
			ws.sessions[i].Title = title
			break
		}
	}
	ws.mu.Unlock()
	ws.persist(cache.SlotSessions)
}

// AppendMessage adds a message to a session and returns its index, or -1
// when the session does not exist.
func (ws *Workspace) AppendMessage(sessionID string, msg model.Message) int {
	ws.mu.Lock()
	index := -1
	for i := range ws.sessions {
		if ws.sessions[i].ID == sessionID {
			ws.sessions[i].Messages = append(ws.sessions[i].Messages, msg)
			index = len(ws.sessions[i].Messages) - 1
			break
		}
	}
	ws.mu.Unlock()
	if index >= 0 {
		ws.persist(cache.SlotSessions)
	}
	return index
}

// UpdateMessage mutates one message in place, keyed by session and
// message id. This is the streaming engine's only write path.
func (ws *Workspace) UpdateMessage(sessionID, messageID string, fn func(*model.Message)) bool {
	ws.mu.Lock()
	updated := false
	for i := range ws.sessions {
		if ws.sessions[i].ID != sessionID {
			continue
		}
		for j := range ws.sessions[i].Messages {
			if ws.sessions[i].Messages[j].ID == messageID {
				fn(&ws.sessions[i].Messages[j])
				updated = true
				break
			}
		}
		break
	}
	ws.mu.Unlock()
	if updated {
		ws.persist(cache.SlotSessions)
	}
	return updated
}

// SetFeedback applies a rating to the assistant message at index,
// provided it is preceded by a user message. Returns the user/assistant
// pair for the remote record.
func (ws *Workspace) SetFeedback(sessionID string, index int, positive bool) (model.Message, model.Message, bool) {
	ws.mu.Lock()
	var userMsg, asstMsg model.Message
	applied := false
	for i := range ws.sessions {
		if ws.sessions[i].ID != sessionID {
			continue
		}
		msgs := ws.sessions[i].Messages
		if index <= 0 || index >= len(msgs) {
			break
		}
		if msgs[index].Role != model.RoleAssistant || msgs[index-1].Role != model.RoleUser {
			break
		}
		msgs[index].Feedback = &model.Feedback{IsPositive: positive}
		userMsg, asstMsg = msgs[index-1], msgs[index]
		applied = true
		break
	}
	ws.mu.Unlock()
	if applied {
		ws.persist(cache.SlotSessions)
	}
	return userMsg, asstMsg, applied
}

// PushMessage stores a message upstream fire-and-forget.
func (ws *Workspace) PushMessage(sessionID string, msg model.Message) {
	if ws.remote == nil || sessionID == model.NewSessionID {
		return
	}
	go func() {
		if err := ws.remote.AppendMessage(context.Background(), sessionID, wire.MessageToWire(msg)); err != nil {
			ws.log.Warn("message push failed", zap.String("session", sessionID), zap.Error(err))
		}
	}()
}

// RecentTurns returns up to limit of the session's most recent messages,
// oldest first, for the stream request history window.
func (ws *Workspace) RecentTurns(sessionID string, limit int) []model.Message {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for _, s := range ws.sessions {
		if s.ID != sessionID {
			continue
		}
		start := len(s.Messages) - limit
		if start < 0 {
			start = 0
		}
		out := make([]model.Message, len(s.Messages)-start)
		copy(out, s.Messages[start:])
		return out
	}
	return nil
}

// ReplaceSessions swaps in a backend-sourced session collection (message
// lists empty, hydrated lazily) and selects the first session.
func (ws *Workspace) ReplaceSessions(sessions []model.Session) {
	ws.mu.Lock()
	ws.sessions = sessions
	if len(ws.sessions) == 0 {
		ws.sessions = []model.Session{model.NewSession()}
	}
	ws.activeSessionID = ws.sessions[0].ID
	ws.mu.Unlock()
	ws.persist(cache.SlotSessions)
}
