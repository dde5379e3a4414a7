package vectorstore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbqa/internal/chunker"
	"kbqa/internal/domain"
	"kbqa/internal/tokenizer"
	"kbqa/internal/vectorstore/flat"
)

func testStore(t *testing.T, texts ...string) *Store {
	t.Helper()
	x, err := flat.New(2)
	require.NoError(t, err)
	records := make([]domain.Record, len(texts))
	for i, text := range texts {
		require.NoError(t, x.Add([]float32{float32(i), float32(-i)}))
		records[i] = domain.Record{Text: text, Source: "doc.md"}
	}
	s, err := New("test-model", x, records)
	require.NoError(t, err)
	return s
}

func TestNewRejectsMisalignedInput(t *testing.T) {
	x, err := flat.New(2)
	require.NoError(t, err)
	_, err = New("m", x, nil)
	assert.ErrorIs(t, err, domain.ErrNothingToIndex)

	require.NoError(t, x.Add([]float32{1, 2}))
	_, err = New("m", x, []domain.Record{{Text: "a"}, {Text: "b"}})
	assert.ErrorIs(t, err, domain.ErrCorruptStore)
}

func TestMetadataRoundTrip(t *testing.T) {
	s := testStore(t, "alpha <b>&", "line\nbreak", "")
	var buf bytes.Buffer
	require.NoError(t, writeMetadata(&buf, s.Manifest, s.Records))
	assert.Equal(t, 4, bytes.Count(buf.Bytes(), []byte("\n")), "manifest plus one line per record")

	m, records, err := readMetadata(&buf)
	require.NoError(t, err)
	assert.Equal(t, s.Records, records)
	assert.Equal(t, "test-model", m.Model)
	assert.Equal(t, 3, m.Count)
	assert.True(t, s.Manifest.CreatedAt.Equal(m.CreatedAt))
}

func TestPublishKeepsNonASCIIChunksExact(t *testing.T) {
	codec, err := tokenizer.New(tokenizer.DefaultEncoding)
	require.NoError(t, err)
	ch, err := chunker.New(codec, 5, 1)
	require.NoError(t, err)

	chunks := ch.Split("Olá, ação rápida 🚀🚀 知识库问答系统 😀 fim.")
	require.Greater(t, len(chunks), 1)
	s := testStore(t, chunks...)

	dir := t.TempDir()
	_, err = Publish(dir, s)
	require.NoError(t, err)
	loaded, err := Open(dir)
	require.NoError(t, err)
	for i, r := range loaded.Records {
		assert.Equal(t, chunks[i], r.Text, "record %d", i)
	}
}

func TestReadMetadataRejectsBadInput(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"bad manifest":   "not json\n",
		"wrong version":  `{"version":9,"count":0}` + "\n",
		"short":          `{"version":1,"count":2}` + "\n" + `{"text":"a","source":"s"}` + "\n",
		"long":           `{"version":1,"count":0}` + "\n" + `{"text":"a","source":"s"}` + "\n",
		"broken record":  `{"version":1,"count":1}` + "\n" + `{"text":` + "\n",
		"negative count": `{"version":1,"count":-1}` + "\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := readMetadata(bytes.NewBufferString(input))
			assert.ErrorIs(t, err, domain.ErrCorruptStore)
		})
	}
}

func TestPublishAndOpen(t *testing.T) {
	dir := t.TempDir()
	s := testStore(t, "one", "two")

	id, err := Publish(dir, s)
	require.NoError(t, err)

	current, err := Current(dir)
	require.NoError(t, err)
	assert.Equal(t, id, current)

	got, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, id, got.Manifest.Generation)
	assert.Equal(t, "test-model", got.Manifest.Model)
	assert.Equal(t, s.Records, got.Records)
	assert.Equal(t, 2, got.Index.Len())
	assert.Equal(t, s.Index.Vector(1), got.Index.Vector(1))

	_, err = os.Stat(filepath.Join(dir, CurrentFile+tmpSuffix))
	assert.True(t, os.IsNotExist(err))
}

func TestOpenMissingStore(t *testing.T) {
	_, err := Open(t.TempDir())
	assert.ErrorIs(t, err, domain.ErrStoreNotFound)
}

func TestOpenDetectsCorruption(t *testing.T) {
	tests := map[string]func(t *testing.T, dir, id string){
		"garbage pointer": func(t *testing.T, dir, _ string) {
			require.NoError(t, os.WriteFile(filepath.Join(dir, CurrentFile), []byte("../../etc"), 0o644))
		},
		"missing index": func(t *testing.T, dir, id string) {
			require.NoError(t, os.Remove(filepath.Join(dir, GenerationsDir, id, IndexFile)))
		},
		"missing metadata": func(t *testing.T, dir, id string) {
			require.NoError(t, os.Remove(filepath.Join(dir, GenerationsDir, id, MetadataFile)))
		},
		"metadata count disagrees with index": func(t *testing.T, dir, id string) {
			other := testStore(t, "only one")
			f, err := os.Create(filepath.Join(dir, GenerationsDir, id, MetadataFile))
			require.NoError(t, err)
			defer f.Close()
			require.NoError(t, writeMetadata(f, other.Manifest, other.Records))
		},
		"truncated index": func(t *testing.T, dir, id string) {
			path := filepath.Join(dir, GenerationsDir, id, IndexFile)
			b, err := os.ReadFile(path)
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(path, b[:len(b)-3], 0o644))
		},
	}
	for name, damage := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			id, err := Publish(dir, testStore(t, "one", "two"))
			require.NoError(t, err)
			damage(t, dir, id)

			_, err = Open(dir)
			assert.ErrorIs(t, err, domain.ErrCorruptStore)
		})
	}
}

func TestPublishKeepsPreviousGenerationUntilPruned(t *testing.T) {
	dir := t.TempDir()
	var ids []string
	for _, text := range []string{"first", "second", "third"} {
		id, err := Publish(dir, testStore(t, text))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, GenerationsDir, "leftover"+tmpSuffix), 0o755))

	all, err := Generations(dir)
	require.NoError(t, err)
	assert.Equal(t, ids, all)

	removed, err := Prune(dir, 2)
	require.NoError(t, err)
	assert.Equal(t, ids[:1], removed)

	all, err = Generations(dir)
	require.NoError(t, err)
	assert.Equal(t, ids[1:], all)
	_, err = os.Stat(filepath.Join(dir, GenerationsDir, "leftover"+tmpSuffix))
	assert.True(t, os.IsNotExist(err))

	got, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, "third", got.Records[0].Text)

	old, err := OpenGeneration(dir, ids[1])
	require.NoError(t, err)
	assert.Equal(t, "second", old.Records[0].Text)
}

func TestWatchReportsNewGeneration(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()

	changes := make(chan string, 4)
	require.NoError(t, Watch(ctx, dir, nil, func(id string) { changes <- id }))

	id, err := Publish(dir, testStore(t, "watched"))
	require.NoError(t, err)

	select {
	case got := <-changes:
		assert.Equal(t, id, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}
}
