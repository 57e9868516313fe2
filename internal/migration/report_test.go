package migration

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/snd-ksa/docmigrate/internal/errors"
	"github.com/snd-ksa/docmigrate/internal/records"
)

func sampleReport() *Report {
	cfg := testConfig()
	cfg.RunID = "run-1"
	r := NewReport("migrate", cfg)

	doc := employeeDoc(1, "photo.jpg", legacyURL("employee-documents", "42/photo.jpg"))
	r.Add(newOutcome(doc).with(StatusMigrated, nil))

	failed := newOutcome(employeeDoc(2, "cv.pdf", "uploads/cv.pdf")).with(StatusFailed, errors.NewStd("boom"))
	r.Add(failed)

	review := newOutcome(employeeDoc(3, "id.png", "http://old.example.com/id.png")).with(StatusNeedsReview, ErrUnresolvableOwner)
	r.Add(review)

	warned := newOutcome(employeeDoc(4, "x.pdf", "http://old.example.com/x.pdf"))
	warned.Warning = "source delete failed: denied"
	r.Add(warned.with(StatusMigrated, nil))

	r.Finish()
	return r
}

func TestReport_Counts(t *testing.T) {
	t.Parallel()

	r := sampleReport()

	assert.Equal(t, 3, r.Total)
	assert.Equal(t, 2, r.Count(StatusMigrated))
	assert.Equal(t, 1, r.Count(StatusFailed))
	assert.Equal(t, 1, r.Count(StatusNeedsReview))
	assert.True(t, r.HasFailures())
	assert.Len(t, r.Failures, 1)
	assert.Len(t, r.Review, 1)
	assert.Len(t, r.Warnings, 1)
	assert.Len(t, r.Outcomes, 4)
	assert.NotEmpty(t, r.LogFields())
}

func TestReport_WriteText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, sampleReport().Write(&buf, FormatText))
	out := buf.String()

	assert.Contains(t, out, "migrate summary")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "Failures (1):")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "Needs manual review (1):")
	assert.Contains(t, out, "Warnings (1):")
	assert.Contains(t, out, "source delete failed: denied")
}

func TestReport_WriteTextAlwaysShowsFailedCount(t *testing.T) {
	t.Parallel()

	r := NewReport("migrate", testConfig())
	r.Add(Outcome{Table: records.Media, RecordID: 1, Status: StatusAlreadyCanonical})
	r.Finish()

	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf, FormatText))
	assert.Contains(t, buf.String(), "failed:")
	assert.False(t, r.HasFailures())
}

func TestReport_WriteJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, sampleReport().Write(&buf, FormatJSON))

	var decoded struct {
		RunID    string         `json:"run_id"`
		Command  string         `json:"command"`
		Total    int            `json:"total"`
		Counts   map[string]int `json:"counts"`
		Failures []Outcome      `json:"failures"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Equal(t, "migrate", decoded.Command)
	assert.Equal(t, 3, decoded.Total)
	assert.Equal(t, 2, decoded.Counts["migrated"])
	require.Len(t, decoded.Failures, 1)
	assert.Equal(t, "boom", decoded.Failures[0].Error)
}

func TestReport_WriteYAML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, sampleReport().Write(&buf, FormatYAML))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "migrate", decoded["command"])
	assert.True(t, strings.HasPrefix(buf.String(), "run_id: run-1"))
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Format{"": FormatText, "TEXT": FormatText, "json": FormatJSON, " yaml ": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseFormat("xml")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}
