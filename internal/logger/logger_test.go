package logger_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snd-ksa/docmigrate/internal/logger"
)

func TestSlogLoggerLevels(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC).Module("migration")

	log.Debug("hidden")
	log.Trace("hidden too")
	log.Info("visible", logger.Int("migrated", 3))
	log.Log(logger.LogLevelWarn, "explicit warn")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=visible")
	assert.Contains(t, out, "module=migration")
	assert.Contains(t, out, "migrated=3")
	assert.Contains(t, out, "explicit warn")
	assert.NotContains(t, out, "time=", "console output omits timestamps")
}

func TestModuleNestingAndFields(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	base := logger.NewSlogLogger(buf, logger.LogLevelDebug, time.UTC)
	child := base.Module("objectstore").Module("s3").With(logger.String("bucket", "general"))

	child.Debug("stat", logger.Duration("elapsed", 1500*time.Millisecond))

	out := buf.String()
	assert.Contains(t, out, "module=objectstore.s3")
	assert.Contains(t, out, "bucket=general")
	assert.Contains(t, out, "elapsed=1.5s")
}

func TestWithContextAddsTraceID(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)

	ctx := logger.WithTraceID(context.Background(), "run-123")
	log.WithContext(ctx).Info("started")
	log.WithContext(context.Background()).Info("no trace")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), "trace_id=run-123")
	assert.NotContains(t, string(lines[1]), "trace_id")
}

func TestSensitiveValuesAreRedacted(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)

	log.Info("fetch",
		logger.String("service_role_key", "eyJhbGciOiJIUzI1NiJ9.payload.sig"),
		logger.String("path", "https://legacy.example/storage/v1/object/sign/general/a.pdf?token=abcdef123456"))

	out := buf.String()
	assert.NotContains(t, out, "abcdef123456")
	assert.NotContains(t, out, "payload.sig")
	assert.Contains(t, out, "[REDACTED]")
}

func TestRedactSensitiveData(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", logger.RedactSensitiveData(""))
	assert.NotContains(t, logger.RedactSensitiveData("Authorization: Bearer abc.def"), "abc.def")
	assert.Equal(t, "plain text", logger.RedactSensitiveData("plain text"))
}

func TestCentralLoggerFileOutput(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "logs", "run.log")
	cl, err := logger.NewCentralLogger(&logger.LoggingConfig{
		DefaultLevel: "info",
		Timezone:     "UTC",
		Console:      &logger.ConsoleOutput{Enabled: false},
		FileOutput:   &logger.FileOutput{Enabled: true, Path: logPath, Level: "debug"},
		ModuleLevels: map[string]string{"records": "debug"},
	})
	require.NoError(t, err)

	cl.Module("records").Module("sqlite").Debug("inherits parent level", logger.Int64("id", 42))
	cl.Module("migration").Debug("filtered by default level")
	cl.Module("migration").Info("kept")
	require.NoError(t, cl.Close())

	f, err := os.Open(logPath)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var entries []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, entries, 2)
	assert.Equal(t, "records.sqlite", entries[0]["module"])
	assert.InDelta(t, 42, entries[0]["id"], 0)
	assert.Equal(t, "kept", entries[1]["msg"])
}

func TestCentralLoggerRejectsBadTimezone(t *testing.T) {
	t.Parallel()

	_, err := logger.NewCentralLogger(&logger.LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)

	_, err = logger.NewCentralLogger(nil)
	require.Error(t, err)
}

func TestGormLoggerAdapter(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	adapter := logger.NewGormLoggerAdapter(logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC), 10*time.Millisecond)

	query := func() (string, int64) { return "UPDATE employee_documents SET file_path = ?", 0 }

	adapter.Trace(context.Background(), time.Now(), query, nil)
	assert.Empty(t, buf.String(), "normal queries log at trace")

	adapter.Trace(context.Background(), time.Now().Add(-time.Second), query, nil)
	assert.Contains(t, buf.String(), "slow query")

	buf.Reset()
	adapter.Trace(context.Background(), time.Now(), query, fmt.Errorf("database is locked"))
	assert.Contains(t, buf.String(), "query error")
	assert.Contains(t, buf.String(), "database is locked")
}
