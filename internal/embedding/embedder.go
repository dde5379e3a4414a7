// Package embedding holds the call discipline shared by all embedding
// backends: a per-call timeout and collaborator error wrapping.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kbqa/internal/domain"
)

// DefaultTimeout bounds a single embedding call.
const DefaultTimeout = 30 * time.Second

type guarded struct {
	next    domain.Embedder
	timeout time.Duration
}

// Guard wraps e so that every call runs under timeout and any failure,
// including an empty vector, is reported as domain.ErrCollaborator.
func Guard(e domain.Embedder, timeout time.Duration) domain.Embedder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &guarded{next: e, timeout: timeout}
}

func (g *guarded) Model() string { return g.next.Model() }

func (g *guarded) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	vec, err := g.next.Embed(ctx, text)
	if err != nil {
		if errors.Is(err, domain.ErrCollaborator) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: embed with %s: %w", domain.ErrCollaborator, g.next.Model(), err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: %s returned an empty vector", domain.ErrCollaborator, g.next.Model())
	}
	return vec, nil
}
