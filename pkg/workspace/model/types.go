// Package model defines the internal shapes for every entity the workspace
// client core owns: sessions, messages, knowledge bases, agents, config,
// API keys and tool servers. These are the in-memory and cache-serialized
// forms; the wire-shaped counterparts live in the wire package.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// NewSessionID is the transient placeholder id a locally created session
// carries until its first use, when it is replaced by a generated id.
// A session with this id has no remote counterpart.
const NewSessionID = "new"

// DefaultSessionTitle is the title given to freshly created sessions.
const DefaultSessionTitle = "New conversation"

// NewID returns a generated identifier for any workspace entity.
func NewID() string {
	return uuid.NewString()
}

// Feedback is a user rating attached to a completed assistant message.
type Feedback struct {
	IsPositive bool `json:"is_positive"`
}

// TableResult holds a tabular query result streamed into a message.
type TableResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Total   int      `json:"total"`
}

// ToolCall records one tool invocation reported by the backend. It is
// retained for feedback capture, not rendered as conversational content.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Attachment is a file handed to Submit alongside a query.
type Attachment struct {
	Name      string `json:"name"`
	MediaType string `json:"media_type"`
	Data      []byte `json:"data"`
}

// InlineImage is an image attachment encoded for transport in a stream
// request, carried separately from the augmented query text.
type InlineImage struct {
	Name      string `json:"name"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"` // base64
}

// Message is one turn in a session. An assistant message always has a
// stable ID assigned at creation time; it is the correlation key for all
// incremental updates during a streaming exchange.
type Message struct {
	ID              string       `json:"id"`
	Role            Role         `json:"role"`
	Text            string       `json:"text"`
	Thinking        string       `json:"thinking,omitempty"`
	ThinkingSeconds float64      `json:"thinking_seconds,omitempty"`
	GeneratedQuery  string       `json:"generated_query,omitempty"`
	Table           *TableResult `json:"table,omitempty"`
	ToolCalls       []ToolCall   `json:"tool_calls,omitempty"`
	Attachments     []string     `json:"attachments,omitempty"`
	Feedback        *Feedback    `json:"feedback,omitempty"`
	Time            time.Time    `json:"time"`
}

// Session is a conversation thread.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	AgentID   string    `json:"agent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewSession returns a placeholder session with the transient id and an
// empty message list.
func NewSession() Session {
	return Session{
		ID:        NewSessionID,
		Title:     DefaultSessionTitle,
		Messages:  []Message{},
		CreatedAt: time.Now(),
	}
}

// FileStatus is the processing state of a knowledge base file.
type FileStatus string

const (
	FileStatusReady      FileStatus = "ready"
	FileStatusProcessing FileStatus = "processing"
	FileStatusError      FileStatus = "error"
)

// FileRecord is a file inside a knowledge base. Its identity is only
// unique within its owning knowledge base.
type FileRecord struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Status       FileStatus `json:"status"`
	ChunkCount   int        `json:"chunk_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// ChunkingConfig controls how a knowledge base splits its documents.
type ChunkingConfig struct {
	Size              int     `json:"size"`
	Overlap           int     `json:"overlap"`
	Method            string  `json:"method"`
	SemanticThreshold float64 `json:"semantic_threshold"`
}

// KnowledgeBase is a named document collection.
type KnowledgeBase struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Files       []FileRecord   `json:"files"`
	Chunking    ChunkingConfig `json:"chunking"`
}

// APIKey is a locally held provider credential. API keys never leave the
// device; they have a cache slot but no remote counterpart.
type APIKey struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Key      string `json:"key"`
}
