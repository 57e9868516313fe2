// Package recordstest provides an in-memory records.Repository for tests.
package recordstest

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/snd-ksa/docmigrate/internal/records"
)

type rowKey struct {
	table records.Table
	id    int64
}

// Repository is a concurrency-safe in-memory records.Repository.
type Repository struct {
	mu         sync.Mutex
	rows       map[rowKey]records.Document
	updates    int
	failUpdate map[rowKey]error
	pingErr    error
	listErr    error
	beforeUpd  func(table records.Table, id int64)
}

var _ records.Repository = (*Repository)(nil)

// New returns a repository holding docs.
func New(docs ...records.Document) *Repository {
	r := &Repository{
		rows:       make(map[rowKey]records.Document),
		failUpdate: make(map[rowKey]error),
	}
	for _, d := range docs {
		r.Put(d)
	}
	return r
}

// Put inserts or replaces a row.
func (r *Repository) Put(d records.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[rowKey{d.Table, d.ID}] = d
}

// Get returns the stored row.
func (r *Repository) Get(table records.Table, id int64) (records.Document, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.rows[rowKey{table, id}]
	return d, ok
}

// Path returns the stored file_path of a row.
func (r *Repository) Path(table records.Table, id int64) string {
	d, _ := r.Get(table, id)
	return d.FilePath
}

// SetPath changes a row's file_path, simulating a concurrent user write.
func (r *Repository) SetPath(table records.Table, id int64, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := rowKey{table, id}
	d := r.rows[k]
	d.FilePath = path
	r.rows[k] = d
}

// Updates returns the number of successful UpdateFilePath calls.
func (r *Repository) Updates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates
}

// FailUpdate makes UpdateFilePath for the row return err.
func (r *Repository) FailUpdate(table records.Table, id int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failUpdate[rowKey{table, id}] = err
}

// FailPing makes Ping return err.
func (r *Repository) FailPing(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pingErr = err
}

// FailList makes the list methods return err.
func (r *Repository) FailList(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listErr = err
}

// BeforeUpdate registers a hook run before UpdateFilePath compares paths.
func (r *Repository) BeforeUpdate(fn func(table records.Table, id int64)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeUpd = fn
}

// ListAll implements records.Repository.
func (r *Repository) ListAll(ctx context.Context, table records.Table) ([]records.Document, error) {
	return r.list(ctx, table, func(records.Document) bool { return true })
}

// ListCandidates implements records.Repository.
func (r *Repository) ListCandidates(ctx context.Context, table records.Table, patterns []records.Pattern) ([]records.Document, error) {
	return r.list(ctx, table, func(d records.Document) bool {
		return records.MatchesAny(patterns, d.FilePath)
	})
}

// ListByFilePath implements records.Repository.
func (r *Repository) ListByFilePath(ctx context.Context, table records.Table, path string) ([]records.Document, error) {
	if path == "" {
		return nil, nil
	}
	return r.list(ctx, table, func(d records.Document) bool { return d.FilePath == path })
}

func (r *Repository) list(ctx context.Context, table records.Table, keep func(records.Document) bool) ([]records.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}

	var out []records.Document
	for k, d := range r.rows {
		if k.table == table && keep(d) {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b records.Document) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

// UpdateFilePath implements records.Repository with the same optimistic
// semantics as the gorm store.
func (r *Repository) UpdateFilePath(ctx context.Context, table records.Table, id int64, oldPath, newPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	hook := r.beforeUpd
	r.mu.Unlock()
	if hook != nil {
		hook(table, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := rowKey{table, id}
	if err := r.failUpdate[k]; err != nil {
		return err
	}
	d, ok := r.rows[k]
	if !ok || d.FilePath != oldPath {
		return fmt.Errorf("update %s#%d: %w", table, id, records.ErrPointerChanged)
	}
	d.FilePath = newPath
	r.rows[k] = d
	r.updates++
	return nil
}

// Ping implements records.Repository.
func (r *Repository) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pingErr
}
