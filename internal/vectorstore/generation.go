package vectorstore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"

	"kbqa/internal/domain"
	"kbqa/internal/vectorstore/flat"
)

// Layout of a data directory:
//
//	CURRENT                       id of the live generation
//	generations/<id>/index.bin    flat index
//	generations/<id>/metadata.jsonl
const (
	CurrentFile    = "CURRENT"
	GenerationsDir = "generations"
	IndexFile      = "index.bin"
	MetadataFile   = "metadata.jsonl"

	DefaultKeepGenerations = 2

	tmpSuffix = ".tmp"
)

// Publish writes s as a new generation under dataDir and makes it current.
// Readers observe either the previous generation or the new one, never a mix.
// It returns the new generation id. Old generations are not removed; see Prune.
func Publish(dataDir string, s *Store) (string, error) {
	if s == nil || s.Index == nil {
		return "", domain.ErrNothingToIndex
	}
	id := ulid.Make().String()
	s.Manifest.Generation = id
	if err := s.validate(); err != nil {
		return "", err
	}

	gens := filepath.Join(dataDir, GenerationsDir)
	if err := os.MkdirAll(gens, 0o755); err != nil {
		return "", fmt.Errorf("create generations dir: %w", err)
	}
	tmp := filepath.Join(gens, id+tmpSuffix)
	if err := os.Mkdir(tmp, 0o755); err != nil {
		return "", fmt.Errorf("create generation dir: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			_ = os.RemoveAll(tmp)
		}
	}()

	if err := writeFileSync(filepath.Join(tmp, IndexFile), func(w io.Writer) error {
		_, err := s.Index.WriteTo(w)
		return err
	}); err != nil {
		return "", fmt.Errorf("write index: %w", err)
	}
	if err := writeFileSync(filepath.Join(tmp, MetadataFile), func(w io.Writer) error {
		return writeMetadata(w, s.Manifest, s.Records)
	}); err != nil {
		return "", fmt.Errorf("write metadata: %w", err)
	}
	syncDir(tmp)

	final := filepath.Join(gens, id)
	if err := os.Rename(tmp, final); err != nil {
		return "", fmt.Errorf("publish generation: %w", err)
	}
	ok = true
	syncDir(gens)

	if err := swapCurrent(dataDir, id); err != nil {
		_ = os.RemoveAll(final)
		return "", err
	}
	return id, nil
}

func swapCurrent(dataDir, id string) error {
	tmp := filepath.Join(dataDir, CurrentFile+tmpSuffix)
	if err := writeFileSync(tmp, func(w io.Writer) error {
		_, err := io.WriteString(w, id+"\n")
		return err
	}); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write current pointer: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dataDir, CurrentFile)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("swap current pointer: %w", err)
	}
	syncDir(dataDir)
	return nil
}

// Current returns the id of the live generation.
func Current(dataDir string) (string, error) {
	b, err := os.ReadFile(filepath.Join(dataDir, CurrentFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: no index in %s, run ingest first", domain.ErrStoreNotFound, dataDir)
	}
	if err != nil {
		return "", fmt.Errorf("%w: read current pointer: %v", domain.ErrCorruptStore, err)
	}
	id := strings.TrimSpace(string(b))
	if _, err := ulid.ParseStrict(id); err != nil {
		return "", fmt.Errorf("%w: current pointer %q: %v", domain.ErrCorruptStore, id, err)
	}
	return id, nil
}

// Open loads the live generation from dataDir.
func Open(dataDir string) (*Store, error) {
	id, err := Current(dataDir)
	if err != nil {
		return nil, err
	}
	return OpenGeneration(dataDir, id)
}

// OpenGeneration loads a specific generation and checks that its index and
// metadata agree.
func OpenGeneration(dataDir, id string) (*Store, error) {
	dir := filepath.Join(dataDir, GenerationsDir, id)

	f, err := os.Open(filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, fmt.Errorf("%w: generation %s: %v", domain.ErrCorruptStore, id, err)
	}
	index, err := flat.Read(f)
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("generation %s: %w", id, err)
	}

	f, err = os.Open(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("%w: generation %s: %v", domain.ErrCorruptStore, id, err)
	}
	m, records, err := readMetadata(f)
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("generation %s: %w", id, err)
	}

	s := &Store{Manifest: m, Index: index, Records: records}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("generation %s: %w", id, err)
	}
	if m.Generation != "" && m.Generation != id {
		return nil, fmt.Errorf("%w: generation %s carries manifest of %s", domain.ErrCorruptStore, id, m.Generation)
	}
	s.Manifest.Generation = id
	return s, nil
}

// Generations lists published generation ids, oldest first.
func Generations(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(dataDir, GenerationsDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := ulid.ParseStrict(e.Name()); err == nil {
			ids = append(ids, e.Name())
		}
	}
	// ULIDs sort lexically by creation time.
	sort.Strings(ids)
	return ids, nil
}

// Prune removes all but the newest keep generations and any leftovers from
// interrupted publishes. The current generation is never removed. It returns
// the ids it deleted.
func Prune(dataDir string, keep int) ([]string, error) {
	if keep < 1 {
		keep = 1
	}
	current, err := Current(dataDir)
	if err != nil {
		return nil, err
	}
	gens := filepath.Join(dataDir, GenerationsDir)

	entries, err := os.ReadDir(gens)
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), tmpSuffix) {
			if err := os.RemoveAll(filepath.Join(gens, e.Name())); err != nil {
				errs = append(errs, err)
			}
		}
	}

	ids, err := Generations(dataDir)
	if err != nil {
		return nil, err
	}
	var removed []string
	if len(ids) > keep {
		for _, id := range ids[:len(ids)-keep] {
			if id == current {
				continue
			}
			if err := os.RemoveAll(filepath.Join(gens, id)); err != nil {
				errs = append(errs, err)
				continue
			}
			removed = append(removed, id)
		}
	}
	return removed, errors.Join(errs...)
}

func writeFileSync(path string, write func(io.Writer) error) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// syncDir flushes directory entries. Some platforms cannot fsync a
// directory, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
