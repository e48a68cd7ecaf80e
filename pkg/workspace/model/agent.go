package model

// AgentType classifies what an agent does.
type AgentType string

const (
	AgentTypeCustom     AgentType = "custom"
	AgentTypeSupervisor AgentType = "supervisor"
	AgentTypeRAG        AgentType = "rag"
	AgentTypeWebSearch  AgentType = "web_search"
	AgentTypeT2SQL      AgentType = "t2sql"
	AgentTypeMCP        AgentType = "mcp"
	AgentTypeProcess    AgentType = "process"
)

// ToolSources are the per-source toggles of a tool preset.
type ToolSources struct {
	RAG       bool `json:"rag"`
	WebSearch bool `json:"web_search"`
	MCP       bool `json:"mcp"`
	SQL       bool `json:"sql"`
}

// ToolPreset is the current-shape default tool configuration of an agent.
// Older records stored the source flags flat without SmartMode; the wire
// package migrates those on ingest.
type ToolPreset struct {
	SmartMode bool        `json:"smart_mode"`
	Sources   ToolSources `json:"sources"`
}

// Agent is a configured assistant persona.
type Agent struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	Model         string     `json:"model"`
	SystemPrompt  string     `json:"system_prompt,omitempty"`
	Type          AgentType  `json:"agent_type"`
	Published     bool       `json:"published"`
	DefaultPreset ToolPreset `json:"default_tool_preset"`
}

// System agent ids. These are reserved: seeded at store initialization,
// never deletable, and re-injected into any backend-sourced agent list.
const (
	SystemAgentGeneral    = "general"
	SystemAgentResearcher = "researcher"
	SystemAgentSQLAnalyst = "sql-analyst"
)

// SystemAgents returns fresh copies of the reserved agent set.
func SystemAgents() []Agent {
	return []Agent{
		{
			ID:          SystemAgentGeneral,
			Name:        "General",
			Description: "General-purpose assistant",
			Type:        AgentTypeSupervisor,
			Published:   true,
			DefaultPreset: ToolPreset{
				SmartMode: true,
				Sources:   ToolSources{RAG: true},
			},
		},
		{
			ID:          SystemAgentResearcher,
			Name:        "Researcher",
			Description: "Web research assistant",
			Type:        AgentTypeWebSearch,
			Published:   true,
			DefaultPreset: ToolPreset{
				Sources: ToolSources{RAG: true, WebSearch: true},
			},
		},
		{
			ID:          SystemAgentSQLAnalyst,
			Name:        "SQL Analyst",
			Description: "Natural-language questions over tabular data",
			Type:        AgentTypeT2SQL,
			Published:   true,
			DefaultPreset: ToolPreset{
				Sources: ToolSources{SQL: true},
			},
		},
	}
}

// IsSystemAgent reports whether id belongs to the reserved set.
func IsSystemAgent(id string) bool {
	switch id {
	case SystemAgentGeneral, SystemAgentResearcher, SystemAgentSQLAnalyst:
		return true
	}
	return false
}
