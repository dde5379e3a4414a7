package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbqa/internal/answer"
	"kbqa/internal/chunker"
	"kbqa/internal/domain"
	"kbqa/internal/embedding/hashing"
	"kbqa/internal/vectorstore"
)

// wordTokenizer assigns one token per whitespace separated word.
type wordTokenizer struct {
	ids   map[string]int
	words []string
}

func newWordTokenizer() *wordTokenizer { return &wordTokenizer{ids: map[string]int{}} }

func (w *wordTokenizer) Encode(text string) []int {
	fields := strings.Fields(text)
	out := make([]int, len(fields))
	for i, f := range fields {
		id, ok := w.ids[f]
		if !ok {
			id = len(w.words)
			w.ids[f] = id
			w.words = append(w.words, f)
		}
		out[i] = id
	}
	return out
}

func (w *wordTokenizer) Decode(tokens []int) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = w.words[t]
	}
	return strings.Join(parts, " ")
}

func words(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = prefix + strings.Repeat("x", i%7)
	}
	return strings.Join(parts, " ")
}

type fixture struct {
	kb, data string
	svc      *RAGService
}

func newFixture(t *testing.T, files map[string]string, size, overlap int) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{kb: filepath.Join(root, "kb"), data: filepath.Join(root, "data")}
	require.NoError(t, os.MkdirAll(f.kb, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(f.kb, name), []byte(content), 0o644))
	}
	ch, err := chunker.New(newWordTokenizer(), size, overlap)
	require.NoError(t, err)
	f.svc = NewRAGService(ch, hashing.NewEmbedder(128), answer.NewExtractive(3), Options{
		KnowledgeBase: f.kb,
		DataDir:       f.data,
		TopK:          4,
	})
	return f
}

func TestIngestTwoDocuments(t *testing.T) {
	docA := words("alpha", 300)
	docB := words("beta", 300)
	f := newFixture(t, map[string]string{"A.md": docA, "B.md": docB}, 500, 80)

	report, err := f.svc.Ingest(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Documents)
	assert.Equal(t, 2, report.Count)
	assert.Equal(t, []SourceCount{{"A.md", 1}, {"B.md", 1}}, report.Sources)
	assert.Equal(t, report.Generation, f.svc.Generation())

	store, err := vectorstore.Open(f.data)
	require.NoError(t, err)
	require.Len(t, store.Records, 2)
	assert.Equal(t, "A.md", store.Records[0].Source)
	assert.Equal(t, "B.md", store.Records[1].Source)

	results, err := f.svc.QueryK(testContext(t), docA, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "A.md", results[0].Source)
	assert.Equal(t, 0, results[0].Rank)
	assert.Zero(t, results[0].Distance)
}

func TestIngestSplitsLongDocuments(t *testing.T) {
	f := newFixture(t, map[string]string{"long.txt": words("gamma", 1000)}, 500, 80)

	report, err := f.svc.Ingest(testContext(t))
	require.NoError(t, err)
	// ceil((1000-80)/(500-80)) windows
	assert.Equal(t, 3, report.Count)
	assert.Equal(t, []SourceCount{{"long.txt", 3}}, report.Sources)
}

func TestIngestNothingToIndex(t *testing.T) {
	f := newFixture(t, map[string]string{"blank.md": "   \n", "image.png": "binary"}, 50, 5)

	_, err := f.svc.Ingest(testContext(t))
	assert.ErrorIs(t, err, domain.ErrNothingToIndex)

	_, err = os.Stat(filepath.Join(f.data, vectorstore.CurrentFile))
	assert.True(t, os.IsNotExist(err))
}

func TestQueryBeforeIngest(t *testing.T) {
	f := newFixture(t, nil, 50, 5)
	_, err := f.svc.Query(testContext(t), "anything")
	assert.ErrorIs(t, err, domain.ErrStoreNotFound)
	_, err = f.svc.Ask(testContext(t), "anything")
	assert.ErrorIs(t, err, domain.ErrStoreNotFound)
}

func TestAsk(t *testing.T) {
	f := newFixture(t, map[string]string{
		"refunds.md":  "Refunds are issued within fourteen days. Contact billing for exceptions.",
		"shipping.md": "Shipping to Europe takes five days.",
	}, 50, 5)
	_, err := f.svc.Ingest(testContext(t))
	require.NoError(t, err)

	got, err := f.svc.Ask(testContext(t), "How long until refunds are issued?")
	require.NoError(t, err)
	assert.Equal(t, "How long until refunds are issued?", got.Question)
	assert.Contains(t, got.Text, "fourteen days")
	require.NotEmpty(t, got.Sources)
	assert.Equal(t, "refunds.md", got.Sources[0].Source)
}

func TestAskWithoutGenerator(t *testing.T) {
	f := newFixture(t, map[string]string{"a.md": "some text"}, 50, 5)
	f.svc.generator = nil
	_, err := f.svc.Ask(testContext(t), "q")
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestWatchReloadsNewGeneration(t *testing.T) {
	f := newFixture(t, map[string]string{"a.md": "first version of the handbook"}, 50, 5)
	first, err := f.svc.Ingest(testContext(t))
	require.NoError(t, err)

	reader := NewRAGService(f.svc.chunker, f.svc.embedder, nil, f.svc.opts)
	_, err = reader.Query(testContext(t), "handbook")
	require.NoError(t, err)
	require.Equal(t, first.Generation, reader.Generation())

	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()
	require.NoError(t, reader.Watch(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(f.kb, "b.md"), []byte("second handbook section"), 0o644))
	second, err := f.svc.Ingest(testContext(t))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return reader.Generation() == second.Generation },
		5*time.Second, 10*time.Millisecond)
}
