package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

var csvHeader = []string{
	"document_id", "material_id", "property",
	"value", "unit", "doi", "conditions", "similarity",
}

// CSVStore is a file-backed RowStore. The whole file is rewritten on change
// so the on-disk state always matches the deduplicated row map.
type CSVStore struct {
	mu   sync.Mutex
	path string
	rows map[Key]Row
}

// OpenCSVStore opens or creates the store at path, loading existing rows.
func OpenCSVStore(path string) (*CSVStore, error) {
	s := &CSVStore{path: path, rows: make(map[Key]Row)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// AppendRow upserts one row and rewrites the file when the stored state
// changed. Identical replays touch nothing.
func (s *CSVStore) AppendRow(_ context.Context, key Key, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.rows[key]; ok && existing == row {
		return nil
	}
	s.rows[key] = row
	return s.flush()
}

// Rows returns a copy of the stored rows.
func (s *CSVStore) Rows(_ context.Context) (map[Key]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[Key]Row, len(s.rows))
	for k, v := range s.rows {
		out[k] = v
	}
	return out, nil
}

func (s *CSVStore) load() error {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening row store: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return fmt.Errorf("reading row store: %w", err)
	}

	for i, rec := range records {
		if i == 0 || len(rec) < len(csvHeader) {
			continue
		}
		value, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return fmt.Errorf("row store line %d: bad value %q: %w", i+1, rec[3], err)
		}
		similarity, _ := strconv.ParseFloat(rec[7], 64)

		key := Key{DocumentID: rec[0], MaterialID: rec[1], Property: rec[2]}
		s.rows[key] = Row{
			Value:      value,
			Unit:       rec[4],
			DOI:        rec[5],
			Conditions: rec[6],
			Similarity: similarity,
		}
	}
	return nil
}

// flush rewrites the file via a temp-file rename so readers never observe a
// partial write.
func (s *CSVStore) flush() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating store dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".rows-*.csv")
	if err != nil {
		return fmt.Errorf("creating temp store file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(csvHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("writing store header: %w", err)
	}
	for _, key := range sortedKeys(s.rows) {
		row := s.rows[key]
		record := []string{
			key.DocumentID, key.MaterialID, key.Property,
			strconv.FormatFloat(row.Value, 'g', -1, 64),
			row.Unit, row.DOI, row.Conditions,
			strconv.FormatFloat(row.Similarity, 'g', -1, 64),
		}
		if err := w.Write(record); err != nil {
			tmp.Close()
			return fmt.Errorf("writing store row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flushing store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp store file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing store file: %w", err)
	}
	return nil
}
