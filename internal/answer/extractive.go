package answer

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"kbqa/internal/domain"
)

// DefaultMaxSentences caps the length of an extractive answer.
const DefaultMaxSentences = 5

var (
	sentencePattern = regexp.MustCompile(`(?m)[^.!?\n]+(?:[.!?]+|$)`)
	wordPattern     = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)
)

// Extractive answers offline by picking the context sentences that best
// cover the question, weighted by how frequent their words are across the
// retrieved context.
type Extractive struct {
	maxSentences int
	stopwords    map[string]struct{}
}

// NewExtractive creates an extractive generator returning at most
// maxSentences sentences.
func NewExtractive(maxSentences int) *Extractive {
	if maxSentences <= 0 {
		maxSentences = DefaultMaxSentences
	}
	return &Extractive{maxSentences: maxSentences, stopwords: defaultStopwords()}
}

// Answer returns the selected sentences in context order, or NotFound when no
// sentence shares a content word with the question.
func (e *Extractive) Answer(ctx context.Context, question string, results []domain.Result) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var sentences []string
	for _, r := range results {
		for _, m := range sentencePattern.FindAllString(r.Text, -1) {
			if s := strings.TrimSpace(m); s != "" {
				sentences = append(sentences, s)
			}
		}
	}
	asked := map[string]struct{}{}
	for _, tok := range e.tokens(question) {
		asked[tok] = struct{}{}
	}
	if len(sentences) == 0 || len(asked) == 0 {
		return NotFound, nil
	}

	// Word frequencies across the whole context, normalized to [0,1].
	freq := map[string]float64{}
	for _, s := range sentences {
		for _, tok := range e.tokens(s) {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	for k, v := range freq {
		freq[k] = v / maxF
	}

	type scored struct {
		idx   int
		score float64
	}
	var candidates []scored
	for i, s := range sentences {
		toks := e.tokens(s)
		hits := 0
		score := 0.0
		for _, tok := range toks {
			w := freq[tok]
			if _, ok := asked[tok]; ok {
				hits++
				w++
			}
			score += w
		}
		if hits == 0 {
			continue
		}
		candidates = append(candidates, scored{i, score / math.Sqrt(float64(len(toks)))})
	}
	if len(candidates) == 0 {
		return NotFound, nil
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	n := min(e.maxSentences, len(candidates))

	selected := make([]int, n)
	for i := range selected {
		selected[i] = candidates[i].idx
	}
	sort.Ints(selected)
	out := make([]string, n)
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " "), nil
}

func (e *Extractive) tokens(text string) []string {
	all := wordPattern.FindAllString(strings.ToLower(text), -1)
	out := all[:0]
	for _, tok := range all {
		if _, ok := e.stopwords[tok]; !ok {
			out = append(out, tok)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "whom", "how", "when", "where", "why", "do", "does", "did", "i", "you", "we", "they", "my", "your", "our",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
