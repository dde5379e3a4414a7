// Package answer turns retrieved chunks into an answer to a question.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kbqa/internal/domain"
)

// DefaultTimeout bounds a single generation call.
const DefaultTimeout = 60 * time.Second

// NotFound is the reply when the context does not contain the answer.
const NotFound = "I could not find the answer in the knowledge base."

// BuildContext renders results as "Source: <source>" blocks separated by a
// blank line, best result first.
func BuildContext(results []domain.Result) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Source: ")
		b.WriteString(r.Source)
		b.WriteByte('\n')
		b.WriteString(r.Text)
	}
	return b.String()
}

type guarded struct {
	next    domain.Generator
	timeout time.Duration
}

// Guard runs every Answer call of g under timeout and reports failures as
// domain.ErrCollaborator.
func Guard(g domain.Generator, timeout time.Duration) domain.Generator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &guarded{next: g, timeout: timeout}
}

func (g *guarded) Answer(ctx context.Context, question string, results []domain.Result) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, err := g.next.Answer(ctx, question, results)
	if err != nil {
		if errors.Is(err, domain.ErrCollaborator) {
			return "", err
		}
		return "", fmt.Errorf("%w: generate answer: %w", domain.ErrCollaborator, err)
	}
	return text, nil
}
