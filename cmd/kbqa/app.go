package main

import (
	"fmt"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"kbqa/internal/answer"
	"kbqa/internal/chunker"
	"kbqa/internal/config"
	"kbqa/internal/domain"
	"kbqa/internal/embedding"
	"kbqa/internal/embedding/hashing"
	"kbqa/internal/embedding/openai"
	"kbqa/internal/logging"
	"kbqa/internal/service"
	"kbqa/internal/tokenizer"
)

// options are the global flags; set values override the config file.
type options struct {
	configPath string
	logLevel   string
	topK       int
	dataDir    string
	kbDir      string
}

func (o *options) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configPath, "config", "c", "", "Path to YAML config file (default ./config.yaml, then ~/.config/kbqa/config.yaml)")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.IntVarP(&o.topK, "top-k", "k", 0, "Number of chunks to retrieve")
	fs.StringVar(&o.dataDir, "data", "", "Directory holding the persisted index")
	fs.StringVar(&o.kbDir, "kb", "", "Knowledge base directory to ingest")
}

type app struct {
	cfg     *config.AppConfig
	cfgPath string
	log     *zap.Logger
	svc     *service.RAGService
}

// newApp loads configuration and assembles components. The answer
// generator is only built when withGenerator is set, so ingest and query
// work without generation credentials.
func newApp(o *options, fs *pflag.FlagSet, withGenerator bool) (*app, error) {
	var (
		cfg  *config.AppConfig
		path string
		err  error
	)
	if o.configPath == "" {
		cfg, path, err = config.LoadDefault()
	} else {
		path = o.configPath
		cfg, err = config.Load(o.configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if fs.Changed("top-k") {
		cfg.Retrieval.TopK = o.topK
	}
	if fs.Changed("data") {
		cfg.Paths.Data = o.dataDir
	}
	if fs.Changed("kb") {
		cfg.Paths.KnowledgeBase = o.kbDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	log.Debug("config loaded", zap.String("path", path))

	// Assemble components
	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case config.EmbedderHashing:
		emb = hashing.NewEmbedder(cfg.Embedder.Dimension)
	case config.EmbedderOpenAI:
		client, err := openai.NewClient(openai.Config{
			BaseURL:    cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv:  cfg.Embedder.OpenAI.APIKeyEnv,
			Model:      cfg.Embedder.Model,
			MaxRetries: cfg.Embedder.OpenAI.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: openai embedder init failed: %v", domain.ErrConfig, err)
		}
		emb = client
	default:
		return nil, fmt.Errorf("%w: unknown embedder: %s", domain.ErrConfig, cfg.Embedder.Type)
	}
	emb = embedding.Guard(emb, cfg.Embedder.Timeout())

	tok, err := tokenizer.New(cfg.Chunker.Encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfig, err)
	}
	ch, err := chunker.New(tok, cfg.Chunker.ChunkSize, cfg.Chunker.Overlap)
	if err != nil {
		return nil, err
	}

	var gen domain.Generator
	if withGenerator {
		switch cfg.Generator.Type {
		case config.GeneratorExtractive:
			gen = answer.NewExtractive(cfg.Generator.MaxSentences)
		case config.GeneratorOpenAI:
			g, err := answer.NewOpenAI(answer.OpenAIConfig{
				BaseURL:   cfg.Generator.OpenAI.BaseURL,
				APIKeyEnv: cfg.Generator.OpenAI.APIKeyEnv,
				Model:     cfg.Generator.Model,
			})
			if err != nil {
				return nil, err
			}
			gen = g
		default:
			return nil, fmt.Errorf("%w: unknown generator: %s", domain.ErrConfig, cfg.Generator.Type)
		}
		gen = answer.Guard(gen, cfg.Generator.Timeout())
	}

	svc := service.NewRAGService(ch, emb, gen, service.Options{
		KnowledgeBase:   cfg.Paths.KnowledgeBase,
		DataDir:         cfg.Paths.Data,
		TopK:            cfg.Retrieval.TopK,
		Workers:         cfg.Embedder.Workers,
		KeepGenerations: cfg.Store.KeepGenerations,
		Log:             log,
	})
	return &app{cfg: cfg, cfgPath: path, log: log, svc: svc}, nil
}

func (a *app) close() { _ = a.log.Sync() }
