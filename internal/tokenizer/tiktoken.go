// Package tokenizer wraps a tiktoken BPE encoding as a domain.Tokenizer.
package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultEncoding is the BPE vocabulary used by the OpenAI embedding models.
const DefaultEncoding = "cl100k_base"

var loaderOnce sync.Once

// Codec encodes and decodes text with a fixed tiktoken vocabulary.
type Codec struct {
	name string
	enc  *tiktoken.Tiktoken
}

// New loads the named encoding. BPE ranks come from the embedded offline
// loader so no network access is needed.
func New(encoding string) (*Codec, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &Codec{name: encoding, enc: enc}, nil
}

// Name returns the encoding name.
func (c *Codec) Name() string { return c.name }

// Encode returns the token ids of text. Special tokens are treated as plain text.
func (c *Codec) Encode(text string) []int {
	return c.enc.EncodeOrdinary(text)
}

// Decode returns the text of tokens. A span that starts or ends inside a
// multi-byte character has the partial bytes replaced with U+FFFD, so the
// result is always valid UTF-8.
func (c *Codec) Decode(tokens []int) string {
	return strings.ToValidUTF8(c.enc.Decode(tokens), "\uFFFD")
}
