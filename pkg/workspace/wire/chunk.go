package wire

import (
	"encoding/json"

	"github.com/loomworks/loom/go/pkg/workspace/apperrors"
	"github.com/loomworks/loom/go/pkg/workspace/model"
)

// Chunk is one typed event within a streaming exchange. The variant set is
// closed: a new backend chunk type must be added here before the engine
// can react to it.
type Chunk interface {
	chunkType() string
}

// ThinkingChunk carries a reasoning-trace snapshot. Each snapshot is a
// fuller version of the previous one; the last one wins.
type ThinkingChunk struct {
	Text string
}

// ContentChunk carries a body-text fragment to append.
type ContentChunk struct {
	Text string
}

// SQLChunk carries the generated query.
type SQLChunk struct {
	Query string
}

// TableChunk carries a tabular result.
type TableChunk struct {
	Table model.TableResult
}

// ToolCallsChunk carries tool-invocation metadata.
type ToolCallsChunk struct {
	Calls []model.ToolCall
}

func (ThinkingChunk) chunkType() string  { return "thinking" }
func (ContentChunk) chunkType() string   { return "content" }
func (SQLChunk) chunkType() string       { return "sql" }
func (TableChunk) chunkType() string     { return "table" }
func (ToolCallsChunk) chunkType() string { return "tool_calls_meta" }

type rawChunk struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Query     string          `json:"query,omitempty"`
	Columns   []string        `json:"columns,omitempty"`
	Rows      [][]any         `json:"rows,omitempty"`
	Total     int             `json:"total,omitempty"`
	ToolCalls json.RawMessage `json:"tool_calls,omitempty"`
}

// DecodeChunk parses one delimited JSON object from the exchange stream.
// An unrecognized type decodes to (nil, nil) for forward compatibility;
// malformed JSON is an error.
func DecodeChunk(line []byte) (Chunk, error) {
	var raw rawChunk
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeStreamDecode, "malformed chunk", err)
	}

	switch raw.Type {
	case "thinking":
		return ThinkingChunk{Text: raw.Text}, nil
	case "content":
		return ContentChunk{Text: raw.Text}, nil
	case "sql":
		return SQLChunk{Query: raw.Query}, nil
	case "table":
		return TableChunk{Table: model.TableResult{
			Columns: raw.Columns,
			Rows:    raw.Rows,
			Total:   raw.Total,
		}}, nil
	case "tool_calls_meta":
		var calls []model.ToolCall
		if len(raw.ToolCalls) > 0 {
			if err := json.Unmarshal(raw.ToolCalls, &calls); err != nil {
				return nil, apperrors.New(apperrors.ErrCodeStreamDecode, "malformed tool calls", err)
			}
		}
		return ToolCallsChunk{Calls: calls}, nil
	default:
		return nil, nil
	}
}
