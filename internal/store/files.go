package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/apache/arrow/go/v17/arrow/csv"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nvandessel/timedilation/internal/event"
)

// CSVStore writes one CSV file per run with a header row.
type CSVStore struct {
	dir string
	mem memory.Allocator
}

// NewCSVStore writes into dir, which must exist.
func NewCSVStore(dir string) *CSVStore {
	return &CSVStore{dir: dir, mem: memory.DefaultAllocator}
}

// Path returns the file of run n.
func (s *CSVStore) Path(n int) string {
	return filepath.Join(s.dir, RunFileName(n, FormatCSV))
}

// WriteRun writes t atomically.
func (s *CSVStore) WriteRun(ctx context.Context, t *event.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeAtomic(s.Path(t.Run.Number), func(f *os.File) error {
		return WriteCSV(f, t, s.mem)
	})
}

// RemoveRun deletes the file of run n.
func (s *CSVStore) RemoveRun(_ context.Context, n int) error {
	return removeFile(s.Path(n))
}

// WriteCSV encodes t as CSV with a header row.
func WriteCSV(w io.Writer, t *event.Table, mem memory.Allocator) error {
	rec, err := t.Record(mem)
	if err != nil {
		return fmt.Errorf("run %d: %w", t.Run.Number, err)
	}
	defer rec.Release()

	cw := csv.NewWriter(w, event.Schema(), csv.WithHeader(true))
	if err := cw.Write(rec); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	return cw.Flush()
}

// Close is a no-op.
func (s *CSVStore) Close() error { return nil }

// ReadCSV reads an event table written by CSVStore. The run number is taken
// from the RunNumber column.
func ReadCSV(path string) (*event.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f, event.Schema(), csv.WithHeader(true), csv.WithChunk(4096))
	defer r.Release()

	t := event.NewTable(event.RunInfo{}, 0)
	for r.Next() {
		if err := t.AppendRecord(r.Record()); err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if t.Len() > 0 {
		t.Run.Number = int(t.RunNumber[0])
	}
	return t, nil
}

// ArrowStore writes one Arrow IPC file per run.
type ArrowStore struct {
	dir string
	mem memory.Allocator
}

// NewArrowStore writes into dir, which must exist.
func NewArrowStore(dir string) *ArrowStore {
	return &ArrowStore{dir: dir, mem: memory.DefaultAllocator}
}

// Path returns the file of run n.
func (s *ArrowStore) Path(n int) string {
	return filepath.Join(s.dir, RunFileName(n, FormatArrow))
}

// WriteRun writes t atomically.
func (s *ArrowStore) WriteRun(ctx context.Context, t *event.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, err := t.Record(s.mem)
	if err != nil {
		return fmt.Errorf("run %d: %w", t.Run.Number, err)
	}
	defer rec.Release()

	return writeAtomic(s.Path(t.Run.Number), func(f *os.File) error {
		fw, err := ipc.NewFileWriter(f, ipc.WithSchema(event.Schema()), ipc.WithAllocator(s.mem))
		if err != nil {
			return fmt.Errorf("creating arrow writer: %w", err)
		}
		if err := fw.Write(rec); err != nil {
			fw.Close()
			return fmt.Errorf("writing arrow record: %w", err)
		}
		return fw.Close()
	})
}

// RemoveRun deletes the file of run n.
func (s *ArrowStore) RemoveRun(_ context.Context, n int) error {
	return removeFile(s.Path(n))
}

// Close is a no-op.
func (s *ArrowStore) Close() error { return nil }

// ReadArrow reads an event table written by ArrowStore.
func ReadArrow(path string) (*event.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer r.Close()

	t := event.NewTable(event.RunInfo{}, 0)
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
		}
		if err := t.AppendRecord(rec); err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	if t.Len() > 0 {
		t.Run.Number = int(t.RunNumber[0])
	}
	return t, nil
}

var runFile = regexp.MustCompile(`^TimeDilation_Run\d+\.(csv|arrow)$`)

// ReadDir reads every run file of the given format in dir. Tables are
// ordered by the run number recorded in their rows.
func ReadDir(dir, format string) ([]*event.Table, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	read := ReadCSV
	if format == FormatArrow {
		read = ReadArrow
	}
	var tables []*event.Table
	for _, e := range entries {
		m := runFile.FindStringSubmatch(e.Name())
		if m == nil || m[1] != format {
			continue
		}
		t, err := read(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Run.Number < tables[j].Run.Number })
	return tables, nil
}
