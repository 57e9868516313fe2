package migration

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/snd-ksa/docmigrate/internal/errors"
	"github.com/snd-ksa/docmigrate/internal/logger"
	"github.com/snd-ksa/docmigrate/internal/records"
)

// ClassCounts counts rows per path class.
type ClassCounts map[PathClass]int

// TableStatus is the classification of one table.
type TableStatus struct {
	Table    records.Table `json:"table" yaml:"table"`
	Total    int           `json:"total" yaml:"total"`
	Counts   ClassCounts   `json:"counts" yaml:"counts"`
	Percent  float64       `json:"percent_canonical" yaml:"percent_canonical"`
	Required int           `json:"requiring_action" yaml:"requiring_action"`
}

// RemainingItem is a row whose file still lives in legacy storage or whose
// path cannot be classified.
type RemainingItem struct {
	Table    records.Table `json:"table" yaml:"table"`
	ID       int64         `json:"id" yaml:"id"`
	FileName string        `json:"file_name" yaml:"file_name"`
	Path     string        `json:"path" yaml:"path"`
	Class    PathClass     `json:"class" yaml:"class"`
}

// Snapshot is a point-in-time classification of every document row.
type Snapshot struct {
	TakenAt   time.Time       `json:"taken_at" yaml:"taken_at"`
	Tables    []TableStatus   `json:"tables" yaml:"tables"`
	Totals    ClassCounts     `json:"totals" yaml:"totals"`
	Total     int             `json:"total" yaml:"total"`
	Percent   float64         `json:"percent_canonical" yaml:"percent_canonical"`
	Remaining []RemainingItem `json:"remaining" yaml:"remaining"`
}

// StatusReporter classifies every document row.
type StatusReporter struct {
	repo       records.Repository
	classifier *Classifier
	tables     []records.Table
	log        logger.Logger
}

// NewStatusReporter creates a reporter over cfg's tables.
func NewStatusReporter(cfg Config, repo records.Repository) *StatusReporter {
	return &StatusReporter{
		repo:       repo,
		classifier: NewClassifier(cfg),
		tables:     sortedTables(cfg),
		log:        GetLogger().Module("status"),
	}
}

// Snapshot reads and classifies every row. Results are never cached.
func (s *StatusReporter) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		TakenAt: time.Now(),
		Totals:  newClassCounts(),
	}

	for _, table := range s.tables {
		docs, err := s.repo.ListAll(ctx, table)
		if err != nil {
			return nil, errors.New(fmt.Errorf("status %s: %w", table, err)).
				Component("migration").
				Category(errors.CategoryDatabase).
				Context("table", string(table)).
				Build()
		}

		ts := TableStatus{Table: table, Counts: newClassCounts(), Total: len(docs)}
		for _, d := range docs {
			class := s.classifier.Classify(d.FilePath)
			ts.Counts[class]++
			snap.Totals[class]++

			if requiresAction(class) {
				ts.Required++
				snap.Remaining = append(snap.Remaining, RemainingItem{
					Table:    table,
					ID:       d.ID,
					FileName: d.FileName,
					Path:     d.FilePath,
					Class:    class,
				})
			}
		}
		ts.Percent = percent(ts.Counts[ClassCanonical], ts.Total)

		snap.Tables = append(snap.Tables, ts)
		snap.Total += ts.Total
	}
	snap.Percent = percent(snap.Totals[ClassCanonical], snap.Total)

	s.log.Info("status snapshot",
		logger.Int("total", snap.Total),
		logger.Int("canonical", snap.Totals[ClassCanonical]),
		logger.Int("remaining", len(snap.Remaining)),
		logger.Float64("percent_canonical", snap.Percent))
	return snap, nil
}

// requiresAction reports whether rows of class still need migration or
// manual attention. Empty rows have no file to move.
func requiresAction(class PathClass) bool {
	switch class {
	case ClassLegacyStore, ClassLegacyHTTP, ClassOther:
		return true
	default:
		return false
	}
}

func newClassCounts() ClassCounts {
	counts := make(ClassCounts, len(AllClasses()))
	for _, c := range AllClasses() {
		counts[c] = 0
	}
	return counts
}

// percent returns part/total*100, or 0 for an empty total
func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// Complete reports whether no row requires action.
func (s *Snapshot) Complete() bool {
	return len(s.Remaining) == 0
}

// Write renders the snapshot.
func (s *Snapshot) Write(w io.Writer, format Format) error {
	if format != FormatText {
		return encode(w, format, s)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "TABLE\t")
	for _, c := range AllClasses() {
		fmt.Fprintf(tw, "%s\t", c)
	}
	fmt.Fprint(tw, "TOTAL\tCANONICAL %\t\n")

	row := func(name string, counts ClassCounts, total int, pct float64) {
		fmt.Fprintf(tw, "%s\t", name)
		for _, c := range AllClasses() {
			fmt.Fprintf(tw, "%d\t", counts[c])
		}
		fmt.Fprintf(tw, "%d\t%.1f\t\n", total, pct)
	}
	for _, ts := range s.Tables {
		row(string(ts.Table), ts.Counts, ts.Total, ts.Percent)
	}
	row("all", s.Totals, s.Total, s.Percent)
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(s.Remaining) == 0 {
		fmt.Fprintln(w, "\nAll documents are in canonical storage.")
		return nil
	}

	fmt.Fprintf(w, "\nRequiring action (%d):\n", len(s.Remaining))
	lw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(lw, "TABLE\tID\tCLASS\tFILE\tPATH")
	for _, item := range s.Remaining {
		fmt.Fprintf(lw, "%s\t%d\t%s\t%s\t%s\n", item.Table, item.ID, item.Class, item.FileName, item.Path)
	}
	return lw.Flush()
}
