package store

import (
	"github.com/loomworks/loom/go/pkg/workspace/cache"
	"github.com/loomworks/loom/go/pkg/workspace/model"
)

// KnowledgeBases returns a copy of the knowledge base collection.
func (ws *Workspace) KnowledgeBases() []model.KnowledgeBase {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	out := make([]model.KnowledgeBase, len(ws.knowledgeBases))
	copy(out, ws.knowledgeBases)
	return out
}

// SelectedKnowledgeBaseIDs returns the current selection.
func (ws *Workspace) SelectedKnowledgeBaseIDs() []string {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	out := make([]string, len(ws.selectedKBIDs))
	copy(out, ws.selectedKBIDs)
	return out
}

// ToggleKnowledgeBase flips a knowledge base in or out of the selection.
// The selection can never drop below one base while any exist, so
// toggling off the only selected base is a no-op.
func (ws *Workspace) ToggleKnowledgeBase(id string) {
	ws.mu.Lock()
	exists := false
	for _, kb := range ws.knowledgeBases {
		if kb.ID == id {
			exists = true
			break
		}
	}
	if !exists {
		ws.mu.Unlock()
		return
	}

	selectedAt := -1
	for i, sid := range ws.selectedKBIDs {
		if sid == id {
			selectedAt = i
			break
		}
	}
	if selectedAt >= 0 {
		if len(ws.selectedKBIDs) > 1 {
			ws.selectedKBIDs = append(ws.selectedKBIDs[:selectedAt], ws.selectedKBIDs[selectedAt+1:]...)
		}
	} else {
		ws.selectedKBIDs = append(ws.selectedKBIDs, id)
	}
	ws.mu.Unlock()
}

// UpdateKnowledgeBase mutates one knowledge base in place. Files are only
// reachable through here, keyed by their owning base.
func (ws *Workspace) UpdateKnowledgeBase(id string, fn func(*model.KnowledgeBase)) bool {
	ws.mu.Lock()
	updated := false
	for i := range ws.knowledgeBases {
		if ws.knowledgeBases[i].ID == id {
			fn(&ws.knowledgeBases[i])
			updated = true
			break
		}
	}
	ws.mu.Unlock()
	if updated {
		ws.persist(cache.SlotKnowledgeBases)
	}
	return updated
}

// ReplaceKnowledgeBases swaps in a backend-sourced collection wholesale.
// A selection pointing at a base no longer present falls back to the
// first available.
func (ws *Workspace) ReplaceKnowledgeBases(list []model.KnowledgeBase) {
	ws.mu.Lock()
	ws.knowledgeBases = list

	present := map[string]bool{}
	for _, kb := range list {
		present[kb.ID] = true
	}
	kept := ws.selectedKBIDs[:0]
	for _, id := range ws.selectedKBIDs {
		if present[id] {
			kept = append(kept, id)
		}
	}
	ws.selectedKBIDs = kept
	if len(ws.selectedKBIDs) == 0 && len(list) > 0 {
		ws.selectedKBIDs = []string{list[0].ID}
	}
	ws.mu.Unlock()
	ws.persist(cache.SlotKnowledgeBases)
}
