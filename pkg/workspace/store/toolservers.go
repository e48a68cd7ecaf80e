package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/loomworks/loom/go/pkg/workspace/cache"
	"github.com/loomworks/loom/go/pkg/workspace/model"
	"github.com/loomworks/loom/go/pkg/workspace/wire"
)

// ToolServers returns a copy of the ordered tool server collection.
func (ws *Workspace) ToolServers() []model.ToolServer {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	out := make([]model.ToolServer, len(ws.toolServers))
	copy(out, ws.toolServers)
	return out
}

// EnabledToolServerIDs returns the ids of enabled servers in order.
func (ws *Workspace) EnabledToolServerIDs() []string {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	var out []string
	for _, ts := range ws.toolServers {
		if ts.Enabled {
			out = append(out, ts.ID)
		}
	}
	return out
}

// AddToolServer appends a tool server and registers it upstream
// fire-and-forget.
func (ws *Workspace) AddToolServer(ts model.ToolServer) {
	if ts.ID == "" {
		ts.ID = model.NewID()
	}
	ws.mu.Lock()
	ws.toolServers = append(ws.toolServers, ts)
	ws.mu.Unlock()
	ws.persist(cache.SlotToolServers)

	if ws.remote != nil {
		go func() {
			if err := ws.remote.CreateToolServer(context.Background(), wire.ToolServerToWire(ts)); err != nil {
				ws.log.Warn("tool server create push failed", zap.String("id", ts.ID), zap.Error(err))
			}
		}()
	}
}

// RemoveToolServer deletes a tool server locally and upstream.
func (ws *Workspace) RemoveToolServer(id string) {
	ws.mu.Lock()
	kept := ws.toolServers[:0]
	for _, ts := range ws.toolServers {
		if ts.ID != id {
			kept = append(kept, ts)
		}
	}
	ws.toolServers = kept
	ws.mu.Unlock()
	ws.persist(cache.SlotToolServers)

	if ws.remote != nil {
		go func() {
			if err := ws.remote.DeleteToolServer(context.Background(), id); err != nil {
				ws.log.Warn("tool server delete push failed", zap.String("id", id), zap.Error(err))
			}
		}()
	}
}

// MoveToolServer moves a server to an arbitrary position. Order is
// meaningful: it is the priority and display order.
func (ws *Workspace) MoveToolServer(id string, newIndex int) {
	ws.mu.Lock()
	from := -1
	for i, ts := range ws.toolServers {
		if ts.ID == id {
			from = i
			break
		}
	}
	if from < 0 {
		ws.mu.Unlock()
		return
	}
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex >= len(ws.toolServers) {
		newIndex = len(ws.toolServers) - 1
	}
	moved := ws.toolServers[from]
	ws.toolServers = append(ws.toolServers[:from], ws.toolServers[from+1:]...)
	rest := append([]model.ToolServer{}, ws.toolServers[newIndex:]...)
	ws.toolServers = append(ws.toolServers[:newIndex], moved)
	ws.toolServers = append(ws.toolServers, rest...)
	ws.mu.Unlock()
	ws.persist(cache.SlotToolServers)
}

// SetToolServerEnabled flips a server's enabled flag.
func (ws *Workspace) SetToolServerEnabled(id string, enabled bool) {
	ws.mu.Lock()
	for i := range ws.toolServers {
		if ws.toolServers[i].ID == id {
			ws.toolServers[i].Enabled = enabled
			break
		}
	}
	ws.mu.Unlock()
	ws.persist(cache.SlotToolServers)
}

// ReplaceToolServers swaps in a backend-sourced collection wholesale.
func (ws *Workspace) ReplaceToolServers(list []model.ToolServer) {
	ws.mu.Lock()
	ws.toolServers = list
	ws.mu.Unlock()
	ws.persist(cache.SlotToolServers)
}
