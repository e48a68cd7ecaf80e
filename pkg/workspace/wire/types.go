// Package wire defines the record shapes used by the remote store and the
// streaming exchange endpoint, and the bidirectional mapping between those
// shapes and the internal model. Mapping is total: every known field is
// individually defaulted when absent on input, and unknown fields are
// dropped without error.
package wire

import (
	"encoding/json"
	"time"
)

// ConfigRecord is the wire shape of the workspace config. Fields are
// pointers so an absent field is distinguishable from a zero value and can
// be defaulted on ingest. Credentials never cross the wire.
type ConfigRecord struct {
	LLMModel       *string  `json:"llm_model,omitempty"`
	EmbeddingModel *string  `json:"embedding_model,omitempty"`
	SearchProvider *string  `json:"search_provider,omitempty"`
	Theme          *string  `json:"theme,omitempty"`
	StorageBackend *string  `json:"storage_backend,omitempty"`
	TopK           *int     `json:"top_k,omitempty"`
	RerankEnabled  *bool    `json:"rerank_enabled,omitempty"`
	HybridMode     *string  `json:"hybrid_mode,omitempty"`
	HybridWeight   *float64 `json:"hybrid_weight,omitempty"`
	Multimodal     *bool    `json:"multimodal,omitempty"`
}

// SessionRecord is the wire shape of a session. Message history is served
// by a separate endpoint and never inlined here.
type SessionRecord struct {
	ID        string     `json:"id"`
	Title     *string    `json:"title,omitempty"`
	AgentID   *string    `json:"agent_id,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// MessageRecord is the wire shape of one stored message.
type MessageRecord struct {
	ID        *string    `json:"id,omitempty"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// FileRecord is the wire shape of a knowledge base file.
type FileRecord struct {
	ID           string  `json:"id"`
	Filename     *string `json:"filename,omitempty"`
	Status       *string `json:"status,omitempty"`
	ChunkCount   *int    `json:"chunk_count,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

// KnowledgeBaseRecord is the wire shape of a knowledge base. File lists
// are fetched separately.
type KnowledgeBaseRecord struct {
	ID                string   `json:"id"`
	Name              *string  `json:"name,omitempty"`
	Description       *string  `json:"description,omitempty"`
	ChunkSize         *int     `json:"chunk_size,omitempty"`
	ChunkOverlap      *int     `json:"chunk_overlap,omitempty"`
	ChunkMethod       *string  `json:"chunk_method,omitempty"`
	SemanticThreshold *float64 `json:"semantic_threshold,omitempty"`
}

// AgentRecord is the wire shape of an agent. DefaultToolPreset is kept raw
// because two generations of the preset shape exist on the backend; see
// MigrateToolPreset.
type AgentRecord struct {
	ID                string          `json:"id"`
	Name              *string         `json:"name,omitempty"`
	Description       *string         `json:"description,omitempty"`
	Model             *string         `json:"model,omitempty"`
	SystemPrompt      *string         `json:"system_prompt,omitempty"`
	AgentType         *string         `json:"agent_type,omitempty"`
	Published         *bool           `json:"published,omitempty"`
	DefaultToolPreset json.RawMessage `json:"default_tool_preset,omitempty"`
}

// ToolServerRecord is the wire shape of a tool server. It carries no
// connection status; that is synthesized client-side.
type ToolServerRecord struct {
	ID            string  `json:"id"`
	Label         *string `json:"label,omitempty"`
	TransportType *string `json:"transport_type,omitempty"`
	URL           *string `json:"url,omitempty"`
	Enabled       *bool   `json:"enabled,omitempty"`
}

// FeedbackRecord is pushed to the remote store when a user rates an
// assistant message.
type FeedbackRecord struct {
	SessionID     string          `json:"session_id"`
	UserText      string          `json:"user_text"`
	AssistantText string          `json:"assistant_text"`
	IsPositive    bool            `json:"is_positive"`
	AgentID       string          `json:"agent_id,omitempty"`
	Model         string          `json:"model,omitempty"`
	KnowledgeBase []string        `json:"knowledge_base_ids,omitempty"`
	WebSearch     bool            `json:"web_search"`
	SQLMode       bool            `json:"sql_mode"`
	DeepReasoning bool            `json:"deep_reasoning"`
	ToolCalls     json.RawMessage `json:"tool_calls,omitempty"`
}

// HistoryTurn is one prior turn sent with a stream request.
type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamRequest is the payload of one streaming exchange.
type StreamRequest struct {
	Query            string        `json:"query"`
	Images           []InlineImage `json:"images,omitempty"`
	Model            string        `json:"model"`
	KnowledgeBaseIDs []string      `json:"knowledge_base_ids,omitempty"`
	WebSearch        bool          `json:"web_search"`
	DeepReasoning    bool          `json:"deep_reasoning"`
	SQLMode          bool          `json:"sql_mode"`
	DataSourceID     string        `json:"data_source_id,omitempty"`
	ToolServerIDs    []string      `json:"tool_server_ids,omitempty"`
	SystemPrompt     string        `json:"system_prompt,omitempty"`
	History          []HistoryTurn `json:"history,omitempty"`
	TopK             int           `json:"top_k"`
	RerankEnabled    bool          `json:"rerank_enabled"`
	HybridMode       string        `json:"hybrid_mode"`
	HybridWeight     float64       `json:"hybrid_weight"`
	Multimodal       bool          `json:"multimodal"`
	SearchProvider   string        `json:"search_provider"`
}

// InlineImage is an image carried inline with a stream request.
type InlineImage struct {
	Name      string `json:"name"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}
