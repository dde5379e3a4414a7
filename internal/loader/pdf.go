package loader

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// readPDF extracts the plain text of every page, joined by newlines. Pages
// that fail to decode are skipped; a PDF with no text layer yields "".
func readPDF(path string) (text string, err error) {
	// The parser panics on some malformed objects instead of returning errors.
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("parse pdf %s: %v", path, p)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		s, err := page.GetPlainText(nil)
		if err != nil || strings.TrimSpace(s) == "" {
			continue
		}
		pages = append(pages, s)
	}
	return strings.Join(pages, "\n"), nil
}
