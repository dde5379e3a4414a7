package config

const (
	EmbedderOpenAI  = "openai"
	EmbedderHashing = "hashing"

	GeneratorOpenAI     = "openai"
	GeneratorExtractive = "extractive"

	defaultBaseURL   = "https://api.openai.com/v1"
	defaultAPIKeyEnv = "OPENAI_API_KEY"
)

// Default returns the built-in configuration.
func Default() *AppConfig {
	return &AppConfig{
		Embedder: EmbedderConfig{
			Type:        EmbedderOpenAI,
			Model:       "text-embedding-3-small",
			Dimension:   256,
			TimeoutSecs: 30,
			Workers:     1,
			OpenAI:      &OpenAIConfig{BaseURL: defaultBaseURL, APIKeyEnv: defaultAPIKeyEnv},
		},
		Chunker:   ChunkerConfig{Encoding: "cl100k_base", ChunkSize: 500, Overlap: 80},
		Retrieval: RetrievalConfig{TopK: 4},
		Paths:     PathsConfig{KnowledgeBase: "knowledge_base", Data: "data"},
		Store:     StoreConfig{KeepGenerations: 2},
		Generator: GeneratorConfig{
			Type:         GeneratorOpenAI,
			Model:        "gpt-4.1-mini",
			TimeoutSecs:  60,
			MaxSentences: 5,
			OpenAI:       &OpenAIConfig{BaseURL: defaultBaseURL, APIKeyEnv: defaultAPIKeyEnv},
		},
		Log:    LogConfig{Level: "info", Format: "console"},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// applyConfigDefaults fills settings a partial file left empty. Invalid
// explicit values are left alone for Validate to report.
func applyConfigDefaults(cfg *AppConfig) {
	d := Default()
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = d.Embedder.Type
	}
	if cfg.Embedder.Model == "" {
		cfg.Embedder.Model = d.Embedder.Model
	}
	if cfg.Embedder.TimeoutSecs <= 0 {
		cfg.Embedder.TimeoutSecs = d.Embedder.TimeoutSecs
	}
	if cfg.Embedder.Workers <= 0 {
		cfg.Embedder.Workers = 1
	}
	cfg.Embedder.OpenAI = openAIDefaults(cfg.Embedder.OpenAI)

	if cfg.Chunker.Encoding == "" {
		cfg.Chunker.Encoding = d.Chunker.Encoding
	}
	if cfg.Paths.KnowledgeBase == "" {
		cfg.Paths.KnowledgeBase = d.Paths.KnowledgeBase
	}
	if cfg.Paths.Data == "" {
		cfg.Paths.Data = d.Paths.Data
	}
	if cfg.Store.KeepGenerations <= 0 {
		cfg.Store.KeepGenerations = d.Store.KeepGenerations
	}

	if cfg.Generator.Type == "" {
		cfg.Generator.Type = d.Generator.Type
	}
	if cfg.Generator.Model == "" {
		cfg.Generator.Model = d.Generator.Model
	}
	if cfg.Generator.TimeoutSecs <= 0 {
		cfg.Generator.TimeoutSecs = d.Generator.TimeoutSecs
	}
	if cfg.Generator.MaxSentences <= 0 {
		cfg.Generator.MaxSentences = d.Generator.MaxSentences
	}
	cfg.Generator.OpenAI = openAIDefaults(cfg.Generator.OpenAI)

	if cfg.Log.Level == "" {
		cfg.Log.Level = d.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = d.Log.Format
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = d.Server.Addr
	}
}

func openAIDefaults(c *OpenAIConfig) *OpenAIConfig {
	if c == nil {
		c = &OpenAIConfig{}
	}
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = defaultAPIKeyEnv
	}
	return c
}
