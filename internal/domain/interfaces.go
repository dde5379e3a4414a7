package domain

import (
	"context"
	"strings"
)

// Document represents a single file loaded from the knowledge base.
type Document struct {
	Source  string
	Content string
}

// Chunk is one token window of a document, decoded back to text.
type Chunk struct {
	Source   string
	Text     string
	Sequence int
}

// Blank reports whether the chunk has no non-whitespace content.
func (c Chunk) Blank() bool { return strings.TrimSpace(c.Text) == "" }

// Record is the metadata stored for one index position.
type Record struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Result is a retrieved record with its rank and squared L2 distance to the query.
type Result struct {
	Text     string  `json:"text"`
	Source   string  `json:"source"`
	Rank     int     `json:"rank"`
	Distance float32 `json:"distance"`
}

// Answer is a generated answer together with the context it was generated from.
type Answer struct {
	Question string   `json:"question"`
	Text     string   `json:"answer"`
	Sources  []Result `json:"sources"`
}

// Tokenizer is a deterministic text <-> token codec for a fixed vocabulary.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// Embedder converts free text into a fixed-dimension vector for one model.
type Embedder interface {
	Model() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces an answer to a question from ranked context chunks.
type Generator interface {
	Answer(ctx context.Context, question string, context []Result) (string, error)
}
