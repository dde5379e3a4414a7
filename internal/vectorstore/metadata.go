package vectorstore

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"kbqa/internal/domain"
)

// writeMetadata writes the manifest line followed by one JSON record per line.
func writeMetadata(w io.Writer, m Manifest, records []domain.Record) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return err
	}
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// readMetadata decodes the artifact written by writeMetadata and checks that
// the number of records matches the manifest.
func readMetadata(r io.Reader) (Manifest, []domain.Record, error) {
	dec := json.NewDecoder(bufio.NewReader(r))
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, nil, fmt.Errorf("%w: metadata manifest: %v", domain.ErrCorruptStore, err)
	}
	if m.Version != SchemaVersion {
		return Manifest{}, nil, fmt.Errorf("%w: unsupported metadata version %d", domain.ErrCorruptStore, m.Version)
	}
	if m.Count < 0 {
		return Manifest{}, nil, fmt.Errorf("%w: negative record count", domain.ErrCorruptStore)
	}
	records := make([]domain.Record, 0, min(m.Count, 1<<16))
	for {
		var rec domain.Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Manifest{}, nil, fmt.Errorf("%w: metadata record %d: %v", domain.ErrCorruptStore, len(records), err)
		}
		records = append(records, rec)
	}
	if len(records) != m.Count {
		return Manifest{}, nil, fmt.Errorf("%w: manifest declares %d records, found %d",
			domain.ErrCorruptStore, m.Count, len(records))
	}
	return m, records, nil
}
