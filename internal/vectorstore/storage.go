// Package vectorstore persists an exact vector index together with its
// positionally aligned metadata as immutable generations under a data
// directory, and publishes a generation by atomically swapping a pointer file.
package vectorstore

import (
	"fmt"
	"time"

	"kbqa/internal/domain"
	"kbqa/internal/vectorstore/flat"
)

// SchemaVersion is the version of the metadata artifact.
const SchemaVersion = 1

// Manifest describes a generation. It is stored as the first line of the
// metadata artifact and checked against the index on load.
type Manifest struct {
	Version    int       `json:"version"`
	Model      string    `json:"model"`
	Dimension  int       `json:"dimension"`
	Count      int       `json:"count"`
	CreatedAt  time.Time `json:"created_at"`
	Generation string    `json:"generation,omitempty"`
}

// Store is one loaded or freshly built generation. Position i of Index
// corresponds to Records[i]. A Store is read-only once built.
type Store struct {
	Manifest Manifest
	Index    *flat.Index
	Records  []domain.Record
}

// New assembles a store for model from an index and its aligned records.
func New(model string, index *flat.Index, records []domain.Record) (*Store, error) {
	if index == nil || index.Len() == 0 {
		return nil, domain.ErrNothingToIndex
	}
	if index.Len() != len(records) {
		return nil, fmt.Errorf("%w: index has %d vectors but %d records",
			domain.ErrCorruptStore, index.Len(), len(records))
	}
	return &Store{
		Manifest: Manifest{
			Version:   SchemaVersion,
			Model:     model,
			Dimension: index.Dimension(),
			Count:     index.Len(),
			CreatedAt: time.Now().UTC(),
		},
		Index:   index,
		Records: records,
	}, nil
}

// Len returns the number of entries.
func (s *Store) Len() int { return len(s.Records) }

func (s *Store) validate() error {
	m := s.Manifest
	if m.Version != SchemaVersion {
		return fmt.Errorf("%w: unsupported metadata version %d", domain.ErrCorruptStore, m.Version)
	}
	if m.Dimension != s.Index.Dimension() {
		return fmt.Errorf("%w: manifest dimension %d, index dimension %d",
			domain.ErrCorruptStore, m.Dimension, s.Index.Dimension())
	}
	if m.Count != s.Index.Len() || len(s.Records) != s.Index.Len() {
		return fmt.Errorf("%w: manifest count %d, index has %d vectors, metadata has %d records",
			domain.ErrCorruptStore, m.Count, s.Index.Len(), len(s.Records))
	}
	return nil
}
