// Package retriever answers nearest-chunk queries against a published store.
package retriever

import (
	"context"
	"fmt"
	"strings"

	"kbqa/internal/domain"
	"kbqa/internal/vectorstore"
)

// DefaultTopK is the number of results returned when none is configured.
const DefaultTopK = 4

// Retriever is read-only once opened and safe for concurrent use.
type Retriever struct {
	store    *vectorstore.Store
	embedder domain.Embedder
	topK     int
}

// Open loads the current generation from dataDir. The store must have been
// built with the same embedding model as embedder.
func Open(dataDir string, embedder domain.Embedder, topK int) (*Retriever, error) {
	store, err := vectorstore.Open(dataDir)
	if err != nil {
		return nil, err
	}
	return New(store, embedder, topK)
}

// New wraps an already loaded store.
func New(store *vectorstore.Store, embedder domain.Embedder, topK int) (*Retriever, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrConfig, topK)
	}
	if store.Len() != store.Index.Len() {
		return nil, fmt.Errorf("%w: %d records for %d vectors", domain.ErrCorruptStore, store.Len(), store.Index.Len())
	}
	if m := store.Manifest.Model; m != embedder.Model() {
		return nil, fmt.Errorf("%w: store built with %q, query embedder is %q; re-run ingest",
			domain.ErrModelMismatch, m, embedder.Model())
	}
	return &Retriever{store: store, embedder: embedder, topK: topK}, nil
}

// Generation returns the id of the loaded store generation.
func (r *Retriever) Generation() string { return r.store.Manifest.Generation }

// Len returns the number of indexed chunks.
func (r *Retriever) Len() int { return r.store.Len() }

// TopK returns the configured result count.
func (r *Retriever) TopK() int { return r.topK }

// Retrieve embeds query and returns the configured number of nearest chunks.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.Result, error) {
	return r.RetrieveK(ctx, query, r.topK)
}

// RetrieveK is Retrieve with an explicit result count.
func (r *Retriever) RetrieveK(ctx context.Context, query string, k int) ([]domain.Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrConfig)
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.SearchVector(vec, k)
}

// SearchVector returns the k chunks nearest to a precomputed embedding, best
// first. If k exceeds the number of chunks every chunk is returned.
func (r *Retriever) SearchVector(vec []float32, k int) ([]domain.Result, error) {
	hits, err := r.store.Index.Search(vec, k)
	if err != nil {
		return nil, err
	}
	results := make([]domain.Result, len(hits))
	for rank, h := range hits {
		rec := r.store.Records[h.Position]
		results[rank] = domain.Result{
			Text:     rec.Text,
			Source:   rec.Source,
			Rank:     rank,
			Distance: h.Distance,
		}
	}
	return results, nil
}
