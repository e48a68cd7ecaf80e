package store

import (
	"github.com/loomworks/loom/go/pkg/workspace/cache"
	"github.com/loomworks/loom/go/pkg/workspace/model"
)

// Agents returns a copy of the agent collection.
func (ws *Workspace) Agents() []model.Agent {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	out := make([]model.Agent, len(ws.agents))
	copy(out, ws.agents)
	return out
}

// ActiveAgent returns the selected agent.
func (ws *Workspace) ActiveAgent() (model.Agent, bool) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for _, a := range ws.agents {
		if a.ID == ws.activeAgentID {
			return a, true
		}
	}
	return model.Agent{}, false
}

// SetActiveAgent selects an agent by id.
func (ws *Workspace) SetActiveAgent(id string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for _, a := range ws.agents {
		if a.ID == id {
			ws.activeAgentID = id
			return
		}
	}
}

// MergeAgents reconciles a backend-sourced agent list. Remote-known
// agents win over local entries with the same id; every reserved system
// agent missing from the remote list is re-injected, so the backend can
// never make one disappear.
func (ws *Workspace) MergeAgents(remote []model.Agent) {
	ws.mu.Lock()
	merged := make([]model.Agent, 0, len(remote)+3)
	seen := map[string]bool{}
	for _, a := range remote {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		merged = append(merged, a)
	}
	for _, sys := range model.SystemAgents() {
		if !seen[sys.ID] {
			merged = append(merged, sys)
		}
	}
	ws.agents = merged

	valid := false
	for _, a := range merged {
		if a.ID == ws.activeAgentID {
			valid = true
			break
		}
	}
	if !valid {
		ws.activeAgentID = model.SystemAgentGeneral
	}
	ws.mu.Unlock()
	ws.persist(cache.SlotAgents)
}

// DeleteAgent removes a custom agent. System agents are irremovable.
func (ws *Workspace) DeleteAgent(id string) bool {
	if model.IsSystemAgent(id) {
		return false
	}
	ws.mu.Lock()
	removed := false
	kept := ws.agents[:0]
	for _, a := range ws.agents {
		if a.ID == id {
			removed = true
			continue
		}
		kept = append(kept, a)
	}
	ws.agents = kept
	if ws.activeAgentID == id {
		ws.activeAgentID = model.SystemAgentGeneral
	}
	ws.mu.Unlock()
	if removed {
		ws.persist(cache.SlotAgents)
	}
	return removed
}

// UpsertAgent adds or replaces an agent by id.
func (ws *Workspace) UpsertAgent(agent model.Agent) {
	ws.mu.Lock()
	replaced := false
	for i := range ws.agents {
		if ws.agents[i].ID == agent.ID {
			ws.agents[i] = agent
			replaced = true
			break
		}
	}
	if !replaced {
		ws.agents = append(ws.agents, agent)
	}
	ws.mu.Unlock()
	ws.persist(cache.SlotAgents)
}
