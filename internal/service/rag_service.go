package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"kbqa/internal/domain"
	"kbqa/internal/indexer"
	"kbqa/internal/loader"
	"kbqa/internal/logging"
	"kbqa/internal/retriever"
	"kbqa/internal/vectorstore"
)

// Chunker splits a document into ordered chunks.
type Chunker interface {
	Chunk(document domain.Document) []domain.Chunk
}

// Options locate the knowledge base and store and tune ingestion and retrieval.
type Options struct {
	KnowledgeBase   string
	DataDir         string
	TopK            int
	Workers         int
	KeepGenerations int
	Log             *zap.Logger
}

// SourceCount is the number of chunks indexed for one document.
type SourceCount struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
}

// IngestReport summarizes an ingestion run.
type IngestReport struct {
	indexer.BuildReport
	Documents int
	Sources   []SourceCount
}

// RAGService wires loading, chunking, indexing, retrieval and answering.
type RAGService struct {
	chunker   Chunker
	embedder  domain.Embedder
	generator domain.Generator
	builder   *indexer.Builder
	opts      Options
	log       *zap.Logger

	mu        sync.RWMutex
	retriever *retriever.Retriever
}

// NewRAGService creates a service. generator may be nil when only ingestion
// and retrieval are used.
func NewRAGService(chunker Chunker, embedder domain.Embedder, generator domain.Generator, opts Options) *RAGService {
	if opts.TopK <= 0 {
		opts.TopK = retriever.DefaultTopK
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &RAGService{
		chunker:   chunker,
		embedder:  embedder,
		generator: generator,
		builder: indexer.New(embedder, opts.DataDir, indexer.Options{
			Workers:         opts.Workers,
			KeepGenerations: opts.KeepGenerations,
			Log:             opts.Log,
		}),
		opts: opts,
		log:  opts.Log,
	}
}

// Ingest loads the knowledge base, chunks every document, drops blank chunks
// and publishes a new index generation.
func (s *RAGService) Ingest(ctx context.Context) (IngestReport, error) {
	docs, err := loader.Load(s.opts.KnowledgeBase)
	if err != nil {
		return IngestReport{}, err
	}
	s.log.Info("documents loaded", zap.String("path", s.opts.KnowledgeBase), zap.Int("count", len(docs)))

	var (
		records []domain.Record
		sources []SourceCount
	)
	for _, d := range docs {
		n := 0
		for _, ch := range s.chunker.Chunk(d) {
			if ch.Blank() {
				continue
			}
			records = append(records, domain.Record{Text: ch.Text, Source: ch.Source})
			n++
		}
		s.log.Debug("document chunked", zap.String("source", d.Source), zap.Int("chunks", n))
		sources = append(sources, SourceCount{Source: d.Source, Chunks: n})
	}
	if len(records) == 0 {
		return IngestReport{}, fmt.Errorf("%w: no chunks in %s", domain.ErrNothingToIndex, s.opts.KnowledgeBase)
	}

	build, err := s.builder.Build(ctx, records)
	if err != nil {
		return IngestReport{}, err
	}
	if err := s.Reload(); err != nil {
		return IngestReport{}, fmt.Errorf("load published generation: %w", err)
	}
	return IngestReport{BuildReport: build, Documents: len(docs), Sources: sources}, nil
}

// Query returns the configured number of chunks nearest to question.
func (s *RAGService) Query(ctx context.Context, question string) ([]domain.Result, error) {
	return s.QueryK(ctx, question, 0)
}

// QueryK is Query with an explicit result count; k <= 0 uses the default.
func (s *RAGService) QueryK(ctx context.Context, question string, k int) ([]domain.Result, error) {
	r, err := s.current()
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		k = r.TopK()
	}
	results, err := r.RetrieveK(ctx, question, k)
	if err != nil {
		s.log.Warn("query failed", logging.Err(err)...)
		return nil, err
	}
	return results, nil
}

// Ask retrieves context for question and generates an answer from it.
func (s *RAGService) Ask(ctx context.Context, question string) (domain.Answer, error) {
	if s.generator == nil {
		return domain.Answer{}, fmt.Errorf("%w: no answer generator configured", domain.ErrConfig)
	}
	results, err := s.Query(ctx, question)
	if err != nil {
		return domain.Answer{}, err
	}
	text, err := s.generator.Answer(ctx, question, results)
	if err != nil {
		s.log.Warn("answer failed", logging.Err(err)...)
		return domain.Answer{}, err
	}
	return domain.Answer{Question: question, Text: text, Sources: results}, nil
}

// Reload opens the current generation and swaps it in for new queries.
// Queries already running finish against the generation they started with.
func (s *RAGService) Reload() error {
	r, err := retriever.Open(s.opts.DataDir, s.embedder, s.opts.TopK)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.retriever = r
	s.mu.Unlock()
	s.log.Info("generation loaded", zap.String("generation", r.Generation()), zap.Int("count", r.Len()))
	return nil
}

// Generation returns the id of the loaded generation, or "" before the
// first query or reload.
func (s *RAGService) Generation() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.retriever == nil {
		return ""
	}
	return s.retriever.Generation()
}

// Watch reloads whenever a new generation is published to the data
// directory, until ctx is cancelled.
func (s *RAGService) Watch(ctx context.Context) error {
	return vectorstore.Watch(ctx, s.opts.DataDir, s.log, func(string) {
		if err := s.Reload(); err != nil {
			s.log.Error("reload generation", logging.Err(err)...)
		}
	})
}

func (s *RAGService) current() (*retriever.Retriever, error) {
	s.mu.RLock()
	r := s.retriever
	s.mu.RUnlock()
	if r != nil {
		return r, nil
	}
	if err := s.Reload(); err != nil {
		if !errors.Is(err, domain.ErrStoreNotFound) {
			s.log.Error("open store", logging.Err(err)...)
		}
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retriever, nil
}
