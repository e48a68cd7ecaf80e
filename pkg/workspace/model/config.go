package model

// Default values for workspace settings. The wire mapper fills these in
// for any field absent on a remote record, and the sync controller uses
// the marker fields to decide whether a remote config is distinguishable
// from a never-written baseline.
const (
	DefaultChatModel      = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultSearchProvider = "duckduckgo"
	DefaultTheme          = "system"
	DefaultStorageBackend = "local"
	DefaultResultCount    = 5
	DefaultBlendMode      = "hybrid"
	DefaultBlendWeight    = 0.7
)

// Config is the flat record of workspace-wide settings. The credential
// fields are local-only: they are stripped before any remote push and
// before any cache write.
type Config struct {
	ChatModel      string  `json:"chat_model"`
	EmbeddingModel string  `json:"embedding_model"`
	SearchProvider string  `json:"search_provider"`
	Theme          string  `json:"theme"`
	StorageBackend string  `json:"storage_backend"`
	ResultCount    int     `json:"result_count"`
	Rerank         bool    `json:"rerank"`
	BlendMode      string  `json:"blend_mode"`
	BlendWeight    float64 `json:"blend_weight"`
	Multimodal     bool    `json:"multimodal"`

	// Local-only secrets.
	ProviderAPIKey string `json:"provider_api_key,omitempty"`
	SQLPassword    string `json:"sql_password,omitempty"`
}

// DefaultConfig returns the baseline settings.
func DefaultConfig() Config {
	return Config{
		ChatModel:      DefaultChatModel,
		EmbeddingModel: DefaultEmbeddingModel,
		SearchProvider: DefaultSearchProvider,
		Theme:          DefaultTheme,
		StorageBackend: DefaultStorageBackend,
		ResultCount:    DefaultResultCount,
		BlendMode:      DefaultBlendMode,
		BlendWeight:    DefaultBlendWeight,
	}
}

// Sanitized returns a copy with the credential fields removed.
func (c Config) Sanitized() Config {
	c.ProviderAPIKey = ""
	c.SQLPassword = ""
	return c
}

// AtBaseline reports whether the three marker fields all still hold their
// defaults, which the sync controller treats as "remote was never written".
func (c Config) AtBaseline() bool {
	return c.ChatModel == DefaultChatModel &&
		c.EmbeddingModel == DefaultEmbeddingModel &&
		c.SearchProvider == DefaultSearchProvider
}
