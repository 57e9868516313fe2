package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	return &Settings{
		Output:    "text",
		Database:  DatabaseSettings{URL: "sqlite://docs.db"},
		Target:    TargetSettings{Endpoint: "https://minio.example.com"},
		Legacy:    LegacySettings{RateLimit: 10, Burst: 2},
		Migration: MigrationSettings{Workers: 4, RetryAttempts: 3, RetryBackoff: time.Second},
	}
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Settings)
		want   string
	}{
		{"valid", func(*Settings) {}, ""},
		{"public base replaces endpoint", func(s *Settings) {
			s.Target.Endpoint = ""
			s.Target.PublicBaseURL = "https://files.example.com"
		}, ""},
		{"no database", func(s *Settings) { s.Database.URL = "" }, "database.url"},
		{"no canonical base", func(s *Settings) { s.Target.Endpoint = "" }, "target.endpoint"},
		{"bad canonical scheme", func(s *Settings) { s.Target.Endpoint = "minio:9000" }, "canonical base URL"},
		{"half credentials", func(s *Settings) { s.Target.AccessKeyID = "key" }, "must be set together"},
		{"bad legacy url", func(s *Settings) { s.Legacy.BaseURL = "kong" }, "legacy.base_url"},
		{"negative rate", func(s *Settings) { s.Legacy.RateLimit = -1 }, "legacy.rate_limit"},
		{"rate without burst", func(s *Settings) { s.Legacy.Burst = 0 }, "legacy.burst"},
		{"no workers", func(s *Settings) { s.Migration.Workers = 0 }, "migration.workers"},
		{"no attempts", func(s *Settings) { s.Migration.RetryAttempts = 0 }, "migration.retry_attempts"},
		{"negative backoff", func(s *Settings) { s.Migration.RetryBackoff = -time.Second }, "migration.retry_backoff"},
		{"unknown output", func(s *Settings) { s.Output = "xml" }, "output must be"},
		{"bad sentry dsn", func(s *Settings) { s.Sentry.DSN = "not-a-dsn" }, "sentry.dsn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tt.mutate(s)

			err := ValidateSettings(s)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateSettings_ReportsEveryProblem(t *testing.T) {
	t.Parallel()

	s := validSettings()
	s.Database.URL = ""
	s.Output = "csv"
	s.Migration.Workers = 0

	err := ValidateSettings(s)
	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 3)
}
