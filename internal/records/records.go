// Package records is the relational side of the migration engine: it reads
// document rows with their owner business keys and rewrites file_path
// pointers with optimistic concurrency.
package records

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/snd-ksa/docmigrate/internal/errors"
)

// Table names a document-bearing table.
type Table string

const (
	EmployeeDocuments  Table = "employee_documents"
	EquipmentDocuments Table = "equipment_documents"
	Media              Table = "media"
)

// AllTables returns every document-bearing table in name order.
func AllTables() []Table {
	return []Table{EmployeeDocuments, EquipmentDocuments, Media}
}

// Valid reports whether t is a known table.
func (t Table) Valid() bool {
	return slices.Contains(AllTables(), t)
}

// ParseTable validates a table name given on the command line.
func ParseTable(name string) (Table, error) {
	t := Table(strings.TrimSpace(strings.ToLower(name)))
	if !t.Valid() {
		return "", errors.Newf("unknown table %q (expected one of %s)", name, strings.Join(tableNames(), ", ")).
			Component("records").
			Category(errors.CategoryValidation).
			Build()
	}
	return t, nil
}

// SelectTables returns the single table filter or every table when filter is empty.
func SelectTables(filter string) ([]Table, error) {
	if strings.TrimSpace(filter) == "" {
		return AllTables(), nil
	}
	t, err := ParseTable(filter)
	if err != nil {
		return nil, err
	}
	return []Table{t}, nil
}

func tableNames() []string {
	names := make([]string, 0, len(AllTables()))
	for _, t := range AllTables() {
		names = append(names, string(t))
	}
	return names
}

// Owner kinds for the fixed owner tables.
const (
	OwnerEmployee  = "employee"
	OwnerEquipment = "equipment"
)

// Document is one row of a document-bearing table joined with its owner.
type Document struct {
	Table            Table
	ID               int64
	FileName         string
	FilePath         string
	OwnerID          int64
	OwnerKind        string
	OwnerBusinessKey string
}

// Ref is a printable "table#id" reference.
func (d Document) Ref() string {
	return fmt.Sprintf("%s#%d", d.Table, d.ID)
}

// Pattern selects rows by file_path. Prefix matches the start of the path,
// Contains matches anywhere; a pattern with both requires both.
type Pattern struct {
	Prefix   string
	Contains string
}

// Matches reports whether path satisfies the pattern.
func (p Pattern) Matches(path string) bool {
	if p.Prefix == "" && p.Contains == "" {
		return false
	}
	return strings.HasPrefix(path, p.Prefix) && strings.Contains(path, p.Contains)
}

func (p Pattern) String() string {
	switch {
	case p.Prefix != "" && p.Contains != "":
		return fmt.Sprintf("prefix %q and contains %q", p.Prefix, p.Contains)
	case p.Prefix != "":
		return fmt.Sprintf("prefix %q", p.Prefix)
	default:
		return fmt.Sprintf("contains %q", p.Contains)
	}
}

// ErrPointerChanged is returned by UpdateFilePath when the row no longer
// holds the expected old path.
var ErrPointerChanged = errors.NewStd("file_path changed concurrently")

// Repository is the narrow relational contract the engine depends on.
// Implementations must be safe for concurrent use.
type Repository interface {
	// ListCandidates returns rows whose file_path matches any pattern,
	// ordered by id.
	ListCandidates(ctx context.Context, table Table, patterns []Pattern) ([]Document, error)

	// ListAll returns every row of table ordered by id.
	ListAll(ctx context.Context, table Table) ([]Document, error)

	// ListByFilePath returns rows whose file_path equals path exactly,
	// ordered by id.
	ListByFilePath(ctx context.Context, table Table, path string) ([]Document, error)

	// UpdateFilePath sets file_path to newPath only if it still equals
	// oldPath. Zero affected rows yield ErrPointerChanged.
	UpdateFilePath(ctx context.Context, table Table, id int64, oldPath, newPath string) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error
}

// MatchesAny reports whether path satisfies at least one pattern.
func MatchesAny(patterns []Pattern, path string) bool {
	for _, p := range patterns {
		if p.Matches(path) {
			return true
		}
	}
	return false
}
