// Package store persists event tables. Every store writes a run as a unit:
// a reader sees either all rows of a run or none of them.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvandessel/timedilation/internal/event"
	"github.com/nvandessel/timedilation/internal/physics"
)

// EventStore receives finished runs.
type EventStore interface {
	WriteRun(ctx context.Context, t *event.Table) error
	Close() error
}

// Output formats.
const (
	FormatCSV    = "csv"
	FormatArrow  = "arrow"
	FormatSQLite = "sqlite"
)

// KnownFormat reports whether f names an output format.
func KnownFormat(f string) bool {
	switch f {
	case FormatCSV, FormatArrow, FormatSQLite:
		return true
	}
	return false
}

// Open creates dir and returns a store writing every requested format.
func Open(dir string, formats []string) (EventStore, error) {
	if len(formats) == 0 {
		return nil, physics.NewConfigError("output.formats", formats, "at least one format is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var stores []EventStore
	closeAll := func() {
		for _, s := range stores {
			s.Close()
		}
	}
	for _, f := range formats {
		switch strings.ToLower(f) {
		case FormatCSV:
			stores = append(stores, NewCSVStore(dir))
		case FormatArrow:
			stores = append(stores, NewArrowStore(dir))
		case FormatSQLite:
			s, err := NewSQLiteStore(dir)
			if err != nil {
				closeAll()
				return nil, err
			}
			stores = append(stores, s)
		default:
			closeAll()
			return nil, physics.NewConfigError("output.formats", f, "unknown format")
		}
	}
	if len(stores) == 1 {
		return stores[0], nil
	}
	return NewMultiStore(stores...), nil
}

// RunFileName is the file of run n in the given extension.
func RunFileName(n int, ext string) string {
	return fmt.Sprintf("TimeDilation_Run%d.%s", n, ext)
}

// writeAtomic writes path through a temp file in the same directory that
// is synced and renamed into place. On any failure no file is left behind.
func writeAtomic(path string, write func(*os.File) error) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if err := write(f); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", filepath.Base(path), err)
	}
	if err := os.Chmod(tmp, 0644); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s: %w", filepath.Base(path), err)
	}
	return nil
}

// MultiStore fans each run out to several stores.
type MultiStore struct {
	stores []EventStore
}

// NewMultiStore wraps stores; they are written in order.
func NewMultiStore(stores ...EventStore) *MultiStore {
	return &MultiStore{stores: stores}
}

// RunRemover is implemented by stores that can drop a written run.
type RunRemover interface {
	RemoveRun(ctx context.Context, n int) error
}

// WriteRun writes t to every store, stopping at the first failure. The run
// is then removed from the stores that already hold it.
func (m *MultiStore) WriteRun(ctx context.Context, t *event.Table) error {
	for i, s := range m.stores {
		if err := s.WriteRun(ctx, t); err != nil {
			errs := []error{err}
			for _, done := range m.stores[:i] {
				r, ok := done.(RunRemover)
				if !ok {
					continue
				}
				if rerr := r.RemoveRun(context.WithoutCancel(ctx), t.Run.Number); rerr != nil {
					errs = append(errs, fmt.Errorf("removing partial run %d: %w", t.Run.Number, rerr))
				}
			}
			return errors.Join(errs...)
		}
	}
	return nil
}

// removeFile deletes path; a missing file is not an error.
func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close closes every store and reports all failures.
func (m *MultiStore) Close() error {
	var errs []error
	for _, s := range m.stores {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
