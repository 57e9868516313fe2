package migration

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/snd-ksa/docmigrate/internal/errors"
	"github.com/snd-ksa/docmigrate/internal/logger"
)

// Format selects the report encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates an --output value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", errors.Newf("unknown output format %q (expected text, json or yaml)", s).
			Component("migration").
			Category(errors.CategoryValidation).
			Build()
	}
}

// encode writes v as JSON or YAML
func encode(w io.Writer, format Format, v any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("encode: unsupported format %q", format)
	}
}

// Report summarises one run. It is written to stdout and logged; nothing
// else is persisted.
type Report struct {
	RunID      string         `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Command    string         `json:"command" yaml:"command"`
	DryRun     bool           `json:"dry_run" yaml:"dry_run"`
	StartedAt  time.Time      `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time      `json:"finished_at" yaml:"finished_at"`
	Total      int            `json:"total" yaml:"total"`
	Counts     map[Status]int `json:"counts" yaml:"counts"`
	Failures   []Outcome      `json:"failures,omitempty" yaml:"failures,omitempty"`
	Review     []Outcome      `json:"needs_review,omitempty" yaml:"needs_review,omitempty"`
	Warnings   []Outcome      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Outcomes   []Outcome      `json:"outcomes,omitempty" yaml:"outcomes,omitempty"`
}

// NewReport starts a report for command.
func NewReport(command string, cfg Config) *Report {
	return &Report{
		RunID:     cfg.RunID,
		Command:   command,
		DryRun:    cfg.DryRun,
		StartedAt: time.Now(),
		Counts:    make(map[Status]int),
	}
}

// Add records one outcome. Needs-review outcomes are counted separately
// from the total of processed candidates.
func (r *Report) Add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	r.Counts[o.Status]++

	switch o.Status {
	case StatusNeedsReview:
		r.Review = append(r.Review, o)
		return
	case StatusFailed:
		r.Failures = append(r.Failures, o)
	}
	if o.Warning != "" {
		r.Warnings = append(r.Warnings, o)
	}
	r.Total++
}

// AddAll records outcomes in order.
func (r *Report) AddAll(outcomes []Outcome) {
	for _, o := range outcomes {
		r.Add(o)
	}
}

// Finish stamps the end time.
func (r *Report) Finish() {
	r.FinishedAt = time.Now()
}

// Count returns the number of outcomes with status s.
func (r *Report) Count(s Status) int {
	return r.Counts[s]
}

// HasFailures reports whether any candidate failed.
func (r *Report) HasFailures() bool {
	return len(r.Failures) > 0
}

// LogFields renders the summary counts as log fields.
func (r *Report) LogFields() []logger.Field {
	fields := []logger.Field{
		logger.Int("total", r.Total),
		logger.Duration("elapsed", r.FinishedAt.Sub(r.StartedAt)),
	}
	for _, s := range reportStatuses {
		if n := r.Counts[s]; n > 0 {
			fields = append(fields, logger.Int(string(s), n))
		}
	}
	return fields
}

// reportStatuses fixes the order of the summary lines
var reportStatuses = []Status{
	StatusMigrated,
	StatusRemoved,
	StatusAlreadyCanonical,
	StatusPlanned,
	StatusSkippedMissing,
	StatusFailed,
	StatusNeedsReview,
}

// Write renders the report. The text format omits the per-candidate list
// except for failures, review items and warnings.
func (r *Report) Write(w io.Writer, format Format) error {
	if format != FormatText {
		return encode(w, format, r)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	title := r.Command
	if r.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintf(tw, "%s summary\n", title)
	if r.RunID != "" {
		fmt.Fprintf(tw, "  run id:\t%s\n", r.RunID)
	}
	fmt.Fprintf(tw, "  total candidates:\t%d\n", r.Total)
	for _, s := range reportStatuses {
		if n, ok := r.Counts[s]; ok || s == StatusFailed {
			fmt.Fprintf(tw, "  %s:\t%d\n", s, n)
		}
	}
	if !r.FinishedAt.IsZero() {
		fmt.Fprintf(tw, "  elapsed:\t%s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	writeOutcomeList(w, "Failures", r.Failures, func(o Outcome) string { return o.Error })
	writeOutcomeList(w, "Needs manual review", r.Review, func(o Outcome) string { return o.Error })
	writeOutcomeList(w, "Warnings", r.Warnings, func(o Outcome) string { return o.Warning })
	return nil
}

func writeOutcomeList(w io.Writer, heading string, list []Outcome, detail func(Outcome) string) {
	if len(list) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s (%d):\n", heading, len(list))
	for i, o := range list {
		fmt.Fprintf(w, "%d. [%s] id=%d file=%q\n", i+1, o.Table, o.RecordID, o.FileName)
		if o.From != "" {
			fmt.Fprintf(w, "   path: %s\n", o.From)
		}
		if d := detail(o); d != "" {
			fmt.Fprintf(w, "   %s\n", d)
		}
	}
}
