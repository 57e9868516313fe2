package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/snd-ksa/docmigrate/internal/records"
	"github.com/snd-ksa/docmigrate/internal/runner"
)

// envNames are every variable the configuration loader reads directly.
var envNames = []string{
	"DATABASE_URL", "S3_ENDPOINT", "AWS_REGION", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY",
	"SUPABASE_URL", "SUPABASE_SERVICE_ROLE_KEY", "SENTRY_DSN",
	"DOCMIGRATE_DATABASE_URL", "DOCMIGRATE_TARGET_ENDPOINT", "DOCMIGRATE_TARGET_PUBLIC_BASE_URL",
	"DOCMIGRATE_LEGACY_BASE_URL", "DOCMIGRATE_LEGACY_SERVICE_KEY", "DOCMIGRATE_SENTRY_DSN",
}

func ptr[T any](v T) *T { return &v }

// workspace is a seeded sqlite database plus a config file pointing at it.
type workspace struct {
	config string
	db     string
	lock   string
}

// writeWorkspace seeds employee EMP-0042 (id 1) with docs and writes a
// config whose target section is target.
func writeWorkspace(t *testing.T, docs []records.EmployeeDocument, target string) workspace {
	t.Helper()
	for _, name := range envNames {
		t.Setenv(name, "")
	}

	dir := t.TempDir()
	ws := workspace{
		config: filepath.Join(dir, "config.yaml"),
		db:     filepath.Join(dir, "hr.db"),
		lock:   filepath.Join(dir, "docmigrate.lock"),
	}

	store, err := records.Open(t.Context(), records.Config{URL: ws.db})
	require.NoError(t, err)
	db := store.DB()
	require.NoError(t, db.AutoMigrate(records.Models()...))
	require.NoError(t, db.Create(&records.Employee{ID: 1, FileNumber: ptr("EMP-0042")}).Error)
	require.NoError(t, db.Create(&docs).Error)
	require.NoError(t, store.Close())

	body := fmt.Sprintf(`database:
  url: %s
target:
%s
legacy:
  base_url: https://supabasekong.example.com
migration:
  retry_attempts: 1
  retry_backoff: 1ms
lock:
  path: %s
logging:
  default_level: error
  console:
    enabled: true
    level: error
`, ws.db, target, ws.lock)
	require.NoError(t, os.WriteFile(ws.config, []byte(body), 0o600))
	return ws
}

// newWorkspace creates a workspace with one canonical and two legacy
// records and returns the config path. Nothing in it is reachable.
func newWorkspace(t *testing.T) string {
	t.Helper()
	return writeWorkspace(t, []records.EmployeeDocument{
		{ID: 1, EmployeeID: 1, FileName: "cv.pdf", FilePath: ptr("https://minio.example.com/employee-documents/employee-42/cv.pdf")},
		{ID: 2, EmployeeID: 1, FileName: "photo.jpg", FilePath: ptr("https://supabasekong.example.com/storage/v1/object/public/employee-documents/1/photo.jpg")},
		{ID: 3, EmployeeID: 1, FileName: "id.png", FilePath: ptr("http://old.example.com/id.png")},
	}, "  endpoint: https://minio.example.com").config
}

func execute(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = Execute(t.Context(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestStatus_JSON(t *testing.T) {
	cfg := newWorkspace(t)

	code, out, stderr := execute(t, "status", "--config", cfg, "--output", "json")
	require.Equal(t, runner.ExitOK, code, stderr)

	var snapshot struct {
		Total     int            `json:"total"`
		Totals    map[string]int `json:"totals"`
		Remaining []struct {
			ID int64 `json:"id"`
		} `json:"remaining"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &snapshot))
	assert.Equal(t, 3, snapshot.Total)
	assert.Equal(t, 1, snapshot.Totals["canonical"])
	require.Len(t, snapshot.Remaining, 2)
	assert.Equal(t, int64(2), snapshot.Remaining[0].ID)
}

func TestScan_YAML(t *testing.T) {
	cfg := newWorkspace(t)

	code, out, stderr := execute(t, "scan", "-c", cfg, "-o", "yaml", "--table", "employee_documents")
	require.Equal(t, runner.ExitOK, code, stderr)

	var inv struct {
		Total int `yaml:"total"`
		Items []struct {
			ID        int64  `yaml:"id"`
			Canonical string `yaml:"canonical"`
		} `yaml:"items"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &inv))
	assert.Equal(t, 2, inv.Total)
	require.Len(t, inv.Items, 2)
	assert.Equal(t, "https://minio.example.com/employee-documents/employee-42/photo.jpg", inv.Items[0].Canonical)
}

func TestStatus_WritesMetricsTextfile(t *testing.T) {
	cfg := newWorkspace(t)
	metricsPath := filepath.Join(t.TempDir(), "docmigrate.prom")

	code, _, stderr := execute(t, "status", "--config", cfg, "--metrics-file", metricsPath)
	require.Equal(t, runner.ExitOK, code, stderr)

	body, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(body), "docmigrate_db_operations_total")
}

func TestExecute_FatalErrors(t *testing.T) {
	cfg := newWorkspace(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown table", []string{"status", "--config", cfg, "--table", "invoices"}, "invoices"},
		{"unknown output", []string{"status", "--config", cfg, "--output", "xml"}, "output"},
		{"zero workers", []string{"scan", "--config", cfg, "--workers", "0"}, "migration.workers"},
		{"missing config file", []string{"status", "--config", filepath.Join(t.TempDir(), "none.yaml")}, "config"},
		{"unknown command", []string{"purge"}, "unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := execute(t, tt.args...)
			assert.Equal(t, runner.ExitFatal, code)
			assert.Contains(t, stderr, tt.want)
		})
	}
}

func TestExecute_UnreachableDatabaseIsFatal(t *testing.T) {
	cfg := newWorkspace(t)
	t.Setenv("DATABASE_URL", "sqlite://"+filepath.Join(t.TempDir(), "missing", "dir", "x.db"))

	code, _, _ := execute(t, "status", "--config", cfg)
	assert.Equal(t, runner.ExitFatal, code)
}

func TestExecute_Version(t *testing.T) {
	code, out, _ := execute(t, "--version")
	assert.Equal(t, runner.ExitOK, code)
	assert.Contains(t, out, "docmigrate version")
}
