package migration

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/snd-ksa/docmigrate/internal/errors"
	"github.com/snd-ksa/docmigrate/internal/logger"
	"github.com/snd-ksa/docmigrate/internal/records"
)

// Scanner discovers migration candidates. It never writes.
type Scanner struct {
	repo       records.Repository
	classifier *Classifier
	tables     []records.Table
	log        logger.Logger
}

// NewScanner creates a scanner over cfg's tables.
func NewScanner(cfg Config, repo records.Repository) *Scanner {
	return &Scanner{
		repo:       repo,
		classifier: NewClassifier(cfg),
		tables:     sortedTables(cfg),
		log:        GetLogger().Module("scanner"),
	}
}

// DefaultPatterns returns the patterns selecting legacy paths.
func (s *Scanner) DefaultPatterns() []records.Pattern {
	return s.classifier.Patterns()
}

// Scan streams candidates matching patterns in stable order: table name,
// then record id. Nil patterns use DefaultPatterns. The error channel
// carries at most one repository error; both channels are closed when the
// scan ends.
func (s *Scanner) Scan(ctx context.Context, patterns []records.Pattern) (<-chan Candidate, <-chan error) {
	if patterns == nil {
		patterns = s.DefaultPatterns()
	}

	out := make(chan Candidate)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		for _, table := range s.tables {
			docs, err := s.repo.ListCandidates(ctx, table, patterns)
			if err != nil {
				errc <- errors.New(fmt.Errorf("scan %s: %w", table, err)).
					Component("migration").
					Category(errors.CategoryDatabase).
					Context("table", string(table)).
					Build()
				return
			}

			s.log.Debug("table scanned",
				logger.String("table", string(table)),
				logger.Int("candidates", len(docs)))

			for _, d := range docs {
				select {
				case out <- d:
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			}
		}
	}()

	return out, errc
}

// Collect drains Scan into a slice.
func (s *Scanner) Collect(ctx context.Context, patterns []records.Pattern) ([]Candidate, error) {
	out, errc := s.Scan(ctx, patterns)

	var candidates []Candidate
	for c := range out {
		candidates = append(candidates, c)
	}
	if err := <-errc; err != nil {
		return nil, err
	}
	return candidates, nil
}

// InventoryItem is one scanned candidate with its classification.
type InventoryItem struct {
	Table     records.Table `json:"table" yaml:"table"`
	ID        int64         `json:"id" yaml:"id"`
	FileName  string        `json:"file_name" yaml:"file_name"`
	Path      string        `json:"path" yaml:"path"`
	Class     PathClass     `json:"class" yaml:"class"`
	Canonical string        `json:"canonical,omitempty" yaml:"canonical,omitempty"`
	Problem   string        `json:"problem,omitempty" yaml:"problem,omitempty"`
}

// Inventory is the result of the scan command.
type Inventory struct {
	RunID  string                `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Total  int                   `json:"total" yaml:"total"`
	Counts map[records.Table]int `json:"counts" yaml:"counts"`
	Items  []InventoryItem       `json:"items" yaml:"items"`
}

// Inventory collects candidates and annotates each with its class and
// canonical destination.
func (s *Scanner) Inventory(ctx context.Context, resolver *Resolver) (*Inventory, error) {
	candidates, err := s.Collect(ctx, nil)
	if err != nil {
		return nil, err
	}

	inv := &Inventory{Counts: make(map[records.Table]int)}
	for _, t := range s.tables {
		inv.Counts[t] = 0
	}
	for _, c := range candidates {
		item := InventoryItem{
			Table:    c.Table,
			ID:       c.ID,
			FileName: c.FileName,
			Path:     c.FilePath,
			Class:    s.classifier.Classify(c.FilePath),
		}
		if _, canonical, err := resolver.CanonicalURL(c); err != nil {
			item.Problem = err.Error()
		} else {
			item.Canonical = canonical
		}
		inv.Items = append(inv.Items, item)
		inv.Counts[c.Table]++
	}
	inv.Total = len(inv.Items)

	s.log.Info("inventory complete", logger.Int("candidates", inv.Total))
	return inv, nil
}

// Write renders the inventory.
func (inv *Inventory) Write(w io.Writer, format Format) error {
	if format != FormatText {
		return encode(w, format, inv)
	}

	fmt.Fprintf(w, "Found %d candidates\n", inv.Total)
	tables := make([]records.Table, 0, len(inv.Counts))
	for t := range inv.Counts {
		tables = append(tables, t)
	}
	slices.Sort(tables)
	for _, t := range tables {
		fmt.Fprintf(w, "  %s: %d\n", t, inv.Counts[t])
	}
	if len(inv.Items) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tID\tCLASS\tFILE\tDESTINATION")
	for _, item := range inv.Items {
		dest := item.Canonical
		if item.Problem != "" {
			dest = "! " + firstLine(item.Problem)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", item.Table, item.ID, item.Class, item.FileName, dest)
	}
	return tw.Flush()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
