package wire

import (
	"encoding/json"
	"time"

	"github.com/loomworks/loom/go/pkg/workspace/model"
)

// ConfigToInternal maps a wire config record to the internal shape,
// filling defaults for every absent field.
func ConfigToInternal(rec *ConfigRecord) model.Config {
	cfg := model.DefaultConfig()
	if rec == nil {
		return cfg
	}
	if rec.LLMModel != nil {
		cfg.ChatModel = *rec.LLMModel
	}
	if rec.EmbeddingModel != nil {
		cfg.EmbeddingModel = *rec.EmbeddingModel
	}
	if rec.SearchProvider != nil {
		cfg.SearchProvider = *rec.SearchProvider
	}
	if rec.Theme != nil {
		cfg.Theme = *rec.Theme
	}
	if rec.StorageBackend != nil {
		cfg.StorageBackend = *rec.StorageBackend
	}
	if rec.TopK != nil {
		cfg.ResultCount = *rec.TopK
	}
	if rec.RerankEnabled != nil {
		cfg.Rerank = *rec.RerankEnabled
	}
	if rec.HybridMode != nil {
		cfg.BlendMode = *rec.HybridMode
	}
	if rec.HybridWeight != nil {
		cfg.BlendWeight = *rec.HybridWeight
	}
	if rec.Multimodal != nil {
		cfg.Multimodal = *rec.Multimodal
	}
	return cfg
}

// ConfigToWire maps an internal config to the wire shape. Credential
// fields are not part of the wire record and cannot leak through here.
func ConfigToWire(cfg model.Config) *ConfigRecord {
	return &ConfigRecord{
		LLMModel:       ptr(cfg.ChatModel),
		EmbeddingModel: ptr(cfg.EmbeddingModel),
		SearchProvider: ptr(cfg.SearchProvider),
		Theme:          ptr(cfg.Theme),
		StorageBackend: ptr(cfg.StorageBackend),
		TopK:           ptr(cfg.ResultCount),
		RerankEnabled:  ptr(cfg.Rerank),
		HybridMode:     ptr(cfg.BlendMode),
		HybridWeight:   ptr(cfg.BlendWeight),
		Multimodal:     ptr(cfg.Multimodal),
	}
}

// SessionToInternal maps a wire session to the internal shape with an
// empty message list; history is hydrated lazily per session.
func SessionToInternal(rec SessionRecord) model.Session {
	s := model.Session{
		ID:       rec.ID,
		Title:    model.DefaultSessionTitle,
		Messages: []model.Message{},
	}
	if rec.Title != nil {
		s.Title = *rec.Title
	}
	if rec.AgentID != nil {
		s.AgentID = *rec.AgentID
	}
	if rec.CreatedAt != nil {
		s.CreatedAt = *rec.CreatedAt
	} else {
		s.CreatedAt = time.Now()
	}
	return s
}

// SessionToWire maps an internal session to the wire shape.
func SessionToWire(s model.Session) SessionRecord {
	rec := SessionRecord{
		ID:    s.ID,
		Title: ptr(s.Title),
	}
	if s.AgentID != "" {
		rec.AgentID = ptr(s.AgentID)
	}
	if !s.CreatedAt.IsZero() {
		rec.CreatedAt = ptr(s.CreatedAt)
	}
	return rec
}

// MessageToInternal maps a wire message to the internal shape, assigning a
// generated id when the record lacks one.
func MessageToInternal(rec MessageRecord) model.Message {
	m := model.Message{
		ID:   model.NewID(),
		Role: model.Role(rec.Role),
		Text: rec.Content,
		Time: time.Now(),
	}
	if rec.ID != nil && *rec.ID != "" {
		m.ID = *rec.ID
	}
	if rec.Timestamp != nil {
		m.Time = *rec.Timestamp
	}
	return m
}

// MessageToWire maps an internal message to the wire shape.
func MessageToWire(m model.Message) MessageRecord {
	return MessageRecord{
		ID:        ptr(m.ID),
		Role:      string(m.Role),
		Content:   m.Text,
		Timestamp: ptr(m.Time),
	}
}

// FileToInternal maps a wire file record to the internal shape.
func FileToInternal(rec FileRecord) model.FileRecord {
	f := model.FileRecord{
		ID:     rec.ID,
		Status: model.FileStatusProcessing,
	}
	if rec.Filename != nil {
		f.Name = *rec.Filename
	}
	if rec.Status != nil {
		f.Status = model.FileStatus(*rec.Status)
	}
	if rec.ChunkCount != nil {
		f.ChunkCount = *rec.ChunkCount
	}
	if rec.ErrorMessage != nil {
		f.ErrorMessage = *rec.ErrorMessage
	}
	return f
}

// FileToWire maps an internal file record to the wire shape.
func FileToWire(f model.FileRecord) FileRecord {
	rec := FileRecord{
		ID:         f.ID,
		Filename:   ptr(f.Name),
		Status:     ptr(string(f.Status)),
		ChunkCount: ptr(f.ChunkCount),
	}
	if f.ErrorMessage != "" {
		rec.ErrorMessage = ptr(f.ErrorMessage)
	}
	return rec
}

// Knowledge base chunking defaults applied on ingest.
const (
	defaultChunkSize         = 1000
	defaultChunkOverlap      = 200
	defaultChunkMethod       = "recursive"
	defaultSemanticThreshold = 0.75
)

// KnowledgeBaseToInternal maps a wire knowledge base to the internal
// shape with the given file list (possibly empty on partial failure).
func KnowledgeBaseToInternal(rec KnowledgeBaseRecord, files []model.FileRecord) model.KnowledgeBase {
	kb := model.KnowledgeBase{
		ID:    rec.ID,
		Files: files,
		Chunking: model.ChunkingConfig{
			Size:              defaultChunkSize,
			Overlap:           defaultChunkOverlap,
			Method:            defaultChunkMethod,
			SemanticThreshold: defaultSemanticThreshold,
		},
	}
	if kb.Files == nil {
		kb.Files = []model.FileRecord{}
	}
	if rec.Name != nil {
		kb.Name = *rec.Name
	}
	if rec.Description != nil {
		kb.Description = *rec.Description
	}
	if rec.ChunkSize != nil {
		kb.Chunking.Size = *rec.ChunkSize
	}
	if rec.ChunkOverlap != nil {
		kb.Chunking.Overlap = *rec.ChunkOverlap
	}
	if rec.ChunkMethod != nil {
		kb.Chunking.Method = *rec.ChunkMethod
	}
	if rec.SemanticThreshold != nil {
		kb.Chunking.SemanticThreshold = *rec.SemanticThreshold
	}
	return kb
}

// KnowledgeBaseToWire maps an internal knowledge base to the wire shape.
func KnowledgeBaseToWire(kb model.KnowledgeBase) KnowledgeBaseRecord {
	return KnowledgeBaseRecord{
		ID:                kb.ID,
		Name:              ptr(kb.Name),
		Description:       ptr(kb.Description),
		ChunkSize:         ptr(kb.Chunking.Size),
		ChunkOverlap:      ptr(kb.Chunking.Overlap),
		ChunkMethod:       ptr(kb.Chunking.Method),
		SemanticThreshold: ptr(kb.Chunking.SemanticThreshold),
	}
}

// AgentToInternal maps a wire agent to the internal shape, migrating the
// tool preset when the record still carries the legacy flat form.
func AgentToInternal(rec AgentRecord) model.Agent {
	a := model.Agent{
		ID:            rec.ID,
		Type:          model.AgentTypeCustom,
		DefaultPreset: MigrateToolPreset(rec.DefaultToolPreset),
	}
	if rec.Name != nil {
		a.Name = *rec.Name
	}
	if rec.Description != nil {
		a.Description = *rec.Description
	}
	if rec.Model != nil {
		a.Model = *rec.Model
	}
	if rec.SystemPrompt != nil {
		a.SystemPrompt = *rec.SystemPrompt
	}
	if rec.AgentType != nil {
		a.Type = model.AgentType(*rec.AgentType)
	}
	if rec.Published != nil {
		a.Published = *rec.Published
	}
	return a
}

// AgentToWire maps an internal agent to the wire shape, always emitting
// the current preset form.
func AgentToWire(a model.Agent) AgentRecord {
	preset, _ := json.Marshal(a.DefaultPreset)
	return AgentRecord{
		ID:                a.ID,
		Name:              ptr(a.Name),
		Description:       ptr(a.Description),
		Model:             ptr(a.Model),
		SystemPrompt:      ptr(a.SystemPrompt),
		AgentType:         ptr(string(a.Type)),
		Published:         ptr(a.Published),
		DefaultToolPreset: preset,
	}
}

// MigrateToolPreset decodes a raw tool preset, detecting the legacy flat
// shape by the simultaneous absence of the smart_mode and sources keys.
// Anything undecodable yields the zero preset.
func MigrateToolPreset(raw json.RawMessage) model.ToolPreset {
	if len(raw) == 0 {
		return model.ToolPreset{}
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return model.ToolPreset{}
	}

	_, hasSmart := probe["smart_mode"]
	_, hasSources := probe["sources"]
	if !hasSmart && !hasSources {
		// Legacy shape: flat source booleans.
		var legacy model.ToolSources
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return model.ToolPreset{}
		}
		return model.ToolPreset{Sources: legacy}
	}

	var preset model.ToolPreset
	if err := json.Unmarshal(raw, &preset); err != nil {
		return model.ToolPreset{}
	}
	return preset
}

// ToolServerToInternal maps a wire tool server to the internal shape with
// the given synthetic status.
func ToolServerToInternal(rec ToolServerRecord, status model.ToolServerStatus) model.ToolServer {
	ts := model.ToolServer{
		ID:        rec.ID,
		Transport: model.TransportSSE,
		Enabled:   true,
		Status:    status,
	}
	if rec.Label != nil {
		ts.Name = *rec.Label
	}
	if rec.TransportType != nil {
		ts.Transport = model.TransportType(*rec.TransportType)
	}
	if rec.URL != nil {
		ts.Endpoint = *rec.URL
	}
	if rec.Enabled != nil {
		ts.Enabled = *rec.Enabled
	}
	return ts
}

// ToolServerToWire maps an internal tool server to the wire shape.
func ToolServerToWire(ts model.ToolServer) ToolServerRecord {
	return ToolServerRecord{
		ID:            ts.ID,
		Label:         ptr(ts.Name),
		TransportType: ptr(string(ts.Transport)),
		URL:           ptr(ts.Endpoint),
		Enabled:       ptr(ts.Enabled),
	}
}

func ptr[T any](v T) *T {
	return &v
}
