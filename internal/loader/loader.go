// Package loader reads knowledge base documents from disk.
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"kbqa/internal/domain"
)

// Extensions lists the file types that are ingested, lower case.
var Extensions = []string{".md", ".markdown", ".txt", ".pdf"}

// Load walks basePath in lexical order and returns every supported document
// with non-blank content. PDFs contribute the text of their pages; scanned
// PDFs without a text layer are skipped. Sources are paths relative to basePath, using
// forward slashes. basePath may also be a single file.
func Load(basePath string) ([]domain.Document, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: knowledge base %s does not exist", domain.ErrConfig, basePath)
		}
		return nil, err
	}
	if !info.IsDir() {
		doc, ok, err := read(basePath, filepath.Base(basePath))
		if err != nil || !ok {
			return nil, err
		}
		return []domain.Document{doc}, nil
	}

	var docs []domain.Document
	err = filepath.WalkDir(basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != basePath && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(basePath, path)
		if err != nil {
			return err
		}
		doc, ok, err := read(path, filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		if ok {
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", basePath, err)
	}
	return docs, nil
}

// Supported reports whether path has an ingestible extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func read(path, source string) (domain.Document, bool, error) {
	if !Supported(path) {
		return domain.Document{}, false, nil
	}
	var content string
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		text, err := readPDF(path)
		if err != nil {
			return domain.Document{}, false, err
		}
		content = text
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return domain.Document{}, false, err
		}
		content = string(data)
	}
	if strings.TrimSpace(content) == "" {
		return domain.Document{}, false, nil
	}
	return domain.Document{Source: source, Content: content}, true, nil
}
