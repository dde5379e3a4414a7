package chunker

import (
	"fmt"

	"kbqa/internal/domain"
)

const (
	// DefaultChunkSize is the window length in tokens.
	DefaultChunkSize = 500
	// DefaultOverlap is how many tokens adjacent windows share.
	DefaultOverlap = 80
)

// Window is a half-open token range [Start, End).
type Window struct {
	Start int
	End   int
}

// TokenChunker splits text into fixed-size token windows that share overlap
// tokens with their neighbours.
type TokenChunker struct {
	tokenizer domain.Tokenizer
	chunkSize int
	overlap   int
}

// New validates the window parameters before any text is processed.
func New(tokenizer domain.Tokenizer, chunkSize, overlap int) (*TokenChunker, error) {
	if tokenizer == nil {
		return nil, fmt.Errorf("%w: tokenizer is required", domain.ErrConfig)
	}
	if err := Validate(chunkSize, overlap); err != nil {
		return nil, err
	}
	return &TokenChunker{tokenizer: tokenizer, chunkSize: chunkSize, overlap: overlap}, nil
}

// Validate checks that windows of chunkSize tokens advancing by
// chunkSize-overlap make forward progress.
func Validate(chunkSize, overlap int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", domain.ErrConfig, chunkSize)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", domain.ErrConfig, overlap)
	}
	if overlap >= chunkSize {
		return fmt.Errorf("%w: overlap (%d) must be less than chunk_size (%d)", domain.ErrConfig, overlap, chunkSize)
	}
	return nil
}

// Windows returns the token windows covering n tokens. The last window ends
// at n; no window is emitted once the range is covered.
func Windows(n, chunkSize, overlap int) []Window {
	if n <= 0 {
		return nil
	}
	step := chunkSize - overlap
	var out []Window
	start := 0
	for start < n {
		end := start + chunkSize
		if end > n {
			end = n
		}
		out = append(out, Window{Start: start, End: end})
		if end == n {
			break
		}
		start += step
	}
	return out
}

// Split tokenizes text and returns the decoded windows in order.
func (c *TokenChunker) Split(text string) []string {
	tokens := c.tokenizer.Encode(text)
	windows := Windows(len(tokens), c.chunkSize, c.overlap)
	out := make([]string, 0, len(windows))
	for _, w := range windows {
		out = append(out, c.tokenizer.Decode(tokens[w.Start:w.End]))
	}
	return out
}

// Chunk splits a document. Blank chunks are returned as-is; callers drop
// them before indexing.
func (c *TokenChunker) Chunk(document domain.Document) []domain.Chunk {
	texts := c.Split(document.Content)
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{Source: document.Source, Text: text, Sequence: i}
	}
	return chunks
}
