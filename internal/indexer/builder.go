// Package indexer embeds chunk records and publishes them as a new store
// generation.
package indexer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"kbqa/internal/domain"
	"kbqa/internal/vectorstore"
	"kbqa/internal/vectorstore/flat"
)

// Options tune a Builder. Zero values select the defaults.
type Options struct {
	// Workers bounds concurrent embedding calls. 1 or less embeds sequentially.
	Workers int
	// KeepGenerations is how many published generations survive pruning.
	KeepGenerations int
	Log             *zap.Logger
}

// BuildReport summarizes a published generation.
type BuildReport struct {
	Generation string
	Model      string
	Count      int
	Dimension  int
	Duration   time.Duration
}

// Builder turns records into a persisted exact index.
type Builder struct {
	embedder domain.Embedder
	dataDir  string
	workers  int
	keep     int
	log      *zap.Logger
}

// New creates a Builder publishing into dataDir.
func New(embedder domain.Embedder, dataDir string, opts Options) *Builder {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.KeepGenerations < 1 {
		opts.KeepGenerations = vectorstore.DefaultKeepGenerations
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Builder{
		embedder: embedder,
		dataDir:  dataDir,
		workers:  opts.Workers,
		keep:     opts.KeepGenerations,
		log:      opts.Log,
	}
}

// Build embeds every record in order, builds the index and publishes it.
// On any error nothing is published and the previous generation stays live.
func (b *Builder) Build(ctx context.Context, records []domain.Record) (BuildReport, error) {
	if len(records) == 0 {
		return BuildReport{}, domain.ErrNothingToIndex
	}
	started := time.Now()
	model := b.embedder.Model()

	vectors, err := b.embedAll(ctx, records)
	if err != nil {
		return BuildReport{}, err
	}
	dim := len(vectors[0])
	if dim == 0 {
		return BuildReport{}, fmt.Errorf("%w: %s returned an empty vector for record 0", domain.ErrCollaborator, model)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return BuildReport{}, fmt.Errorf("%w: record %d from %s has %d dimensions, expected %d",
				domain.ErrDimensionMismatch, i, records[i].Source, len(v), dim)
		}
	}

	index, err := flat.New(dim)
	if err != nil {
		return BuildReport{}, err
	}
	if err := index.Add(vectors...); err != nil {
		return BuildReport{}, err
	}
	store, err := vectorstore.New(model, index, records)
	if err != nil {
		return BuildReport{}, err
	}
	id, err := vectorstore.Publish(b.dataDir, store)
	if err != nil {
		return BuildReport{}, fmt.Errorf("publish store: %w", err)
	}
	if removed, err := vectorstore.Prune(b.dataDir, b.keep); err != nil {
		b.log.Warn("prune generations", zap.Error(err))
	} else if len(removed) > 0 {
		b.log.Debug("pruned generations", zap.Strings("generations", removed))
	}

	report := BuildReport{
		Generation: id,
		Model:      model,
		Count:      index.Len(),
		Dimension:  dim,
		Duration:   time.Since(started),
	}
	b.log.Info("index published",
		zap.String("generation", report.Generation),
		zap.String("model", report.Model),
		zap.Int("count", report.Count),
		zap.Int("dimension", report.Dimension),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (b *Builder) embedAll(ctx context.Context, records []domain.Record) ([][]float32, error) {
	vectors := make([][]float32, len(records))
	if b.workers == 1 || len(records) == 1 {
		for i := range records {
			v, err := b.embedder.Embed(ctx, records[i].Text)
			if err != nil {
				return nil, fmt.Errorf("embed record %d: %w", i, err)
			}
			vectors[i] = v
		}
		return vectors, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	pool, err := ants.NewPool(b.workers)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}
	defer pool.Release()

	for i := range records {
		if ctx.Err() != nil {
			break
		}
		i := i // per-iteration copy for pre-Go 1.22 loop semantics
		wg.Add(1)
		err := pool.Submit(func() {
			defer func() {
				if p := recover(); p != nil {
					fail(fmt.Errorf("%w: embedding record %d panicked: %v", domain.ErrCollaborator, i, p))
				}
				wg.Done()
			}()
			v, err := b.embedder.Embed(ctx, records[i].Text)
			if err != nil {
				fail(fmt.Errorf("embed record %d: %w", i, err))
				return
			}
			vectors[i] = v
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submit record %d: %w", i, err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return vectors, nil
}
