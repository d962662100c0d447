// Package store appends batch results to CSV tables in an output directory.
// Each table gets its header exactly once, when the first rows are written.
// Later batches append rows aligned to that header. A batch bringing new
// columns widens the header by rewriting the file; existing rows are padded
// with empty cells and otherwise kept as they were.
package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"slices"
	"sync"

	"github.com/banshee-data/cavesweep/internal/fsutil"
	"github.com/banshee-data/cavesweep/internal/monitoring"
)

// Table names within an output directory.
const (
	ResultsFile     = "settings_results.csv"
	CDADir          = "CDA_Results"
	MatchesFile     = "Matches.csv"
	AllOutputsFile  = "All_outputs.csv"
	ToleranceFile   = "Tolerance.csv"
	InputRangesFile = "Input_ranges.csv"
)

// PersistenceError reports a failed read or write of an output table. It
// aborts the batch.
type PersistenceError struct {
	Path string
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Table is a header and the rows to append under it.
type Table struct {
	Header []string
	Rows   [][]string
}

// TableReport describes one table write.
type TableReport struct {
	Path    string
	Created bool
	Rows    int
	// Added lists columns appended to an existing header by this write.
	Added []string
}

// Store writes tables through a FileSystem. Writes to the same directory are
// serialized.
type Store struct {
	fs    fsutil.FileSystem
	locks sync.Map // dir -> *sync.Mutex
}

// New returns a Store. A nil fsys uses the OS filesystem.
func New(fsys fsutil.FileSystem) *Store {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &Store{fs: fsys}
}

// lockDir locks dir and returns the unlock function.
func (s *Store) lockDir(dir string) func() {
	v, _ := s.locks.LoadOrStore(filepath.Clean(dir), &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// HasTable reports whether dir already holds the named table.
func (s *Store) HasTable(dir, name string) bool {
	return s.fs.Exists(filepath.Join(dir, name))
}

// appendTable writes t to dir/name. The caller holds the directory lock.
// A table with no rows never creates a file.
func (s *Store) appendTable(ctx context.Context, dir, name string, t Table) (TableReport, error) {
	path := filepath.Join(dir, name)
	rep := TableReport{Path: path, Rows: len(t.Rows)}
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	if len(t.Rows) == 0 {
		return rep, nil
	}

	existing, err := s.readHeader(path)
	if err != nil {
		return rep, &PersistenceError{Path: path, Op: "read header", Err: err}
	}

	if existing == nil {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return rep, &PersistenceError{Path: dir, Op: "create directory", Err: err}
		}
		data, err := encode(t.Header, t.Rows)
		if err != nil {
			return rep, &PersistenceError{Path: path, Op: "encode", Err: err}
		}
		if err := s.fs.WriteFileAtomic(path, data, 0o644); err != nil {
			return rep, &PersistenceError{Path: path, Op: "create", Err: err}
		}
		rep.Created = true
		monitoring.Logf("[store] Created %s with %d rows", path, len(t.Rows))
		return rep, nil
	}

	if added := missingColumns(existing, t.Header); len(added) > 0 {
		rep.Added = added
		return rep, s.widen(path, slices.Concat(existing, added), t)
	}

	data, err := encode(nil, align(existing, t.Header, t.Rows))
	if err != nil {
		return rep, &PersistenceError{Path: path, Op: "encode", Err: err}
	}
	if err := s.fs.Append(path, data); err != nil {
		return rep, &PersistenceError{Path: path, Op: "append", Err: err}
	}
	monitoring.Logf("[store] Appended %d rows to %s", len(t.Rows), path)
	return rep, nil
}

// widen rewrites the table at path under header, which extends the file's
// current header, and appends t's rows.
func (s *Store) widen(path string, header []string, t Table) error {
	raw, err := s.fs.ReadFile(path)
	if err != nil {
		return &PersistenceError{Path: path, Op: "read", Err: err}
	}
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	recs, err := r.ReadAll()
	if err != nil {
		return &PersistenceError{Path: path, Op: "read", Err: err}
	}

	rows := make([][]string, 0, len(recs)-1+len(t.Rows))
	for _, rec := range recs[1:] {
		padded := make([]string, len(header))
		copy(padded, rec)
		rows = append(rows, padded)
	}
	rows = append(rows, align(header, t.Header, t.Rows)...)

	data, err := encode(header, rows)
	if err != nil {
		return &PersistenceError{Path: path, Op: "encode", Err: err}
	}
	if err := s.fs.WriteFileAtomic(path, data, 0o644); err != nil {
		return &PersistenceError{Path: path, Op: "widen", Err: err}
	}
	monitoring.Logf("[store] Widened %s with columns %v and appended %d rows", path, header[len(recs[0]):], len(t.Rows))
	return nil
}

// readHeader returns the first record of the file at path, or nil if the
// file is missing or empty.
func (s *Store) readHeader(path string) ([]string, error) {
	f, err := s.fs.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return header, nil
}

// missingColumns returns the columns of header absent from existing, in
// header order.
func missingColumns(existing, header []string) []string {
	have := make(map[string]bool, len(existing))
	for _, h := range existing {
		have[h] = true
	}
	var out []string
	for _, h := range header {
		if !have[h] {
			out = append(out, h)
		}
	}
	return out
}

// align reorders rows written under header to match existing. Columns of
// existing missing from header are left empty. Every column of header must
// be present in existing.
func align(existing, header []string, rows [][]string) [][]string {
	if slices.Equal(existing, header) {
		return rows
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[h] = i
	}
	out := make([][]string, len(rows))
	for r, row := range rows {
		aligned := make([]string, len(existing))
		for i, h := range existing {
			if j, ok := pos[h]; ok && j < len(row) {
				aligned[i] = row[j]
			}
		}
		out[r] = aligned
	}
	return out
}

func encode(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if header != nil {
		if err := w.Write(header); err != nil {
			return nil, err
		}
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
