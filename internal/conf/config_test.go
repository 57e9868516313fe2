package conf

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snd-ksa/docmigrate/internal/errors"
)

const sampleConfig = `
database:
  url: postgres://app:secret@db:5432/hr
target:
  endpoint: https://minio.example.com/
  access_key_id: minio
  secret_access_key: minio-secret
legacy:
  base_url: https://supabasekong.example.com
  service_key: service-role
migration:
  workers: 8
  retry_backoff: 250ms
  delete_source: false
output: JSON
`

// clearEnv blanks every variable the loader reads so that the host
// environment cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, b := range getEnvBindings() {
		for _, name := range b.EnvVars {
			t.Setenv(name, "")
		}
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FromFile(t *testing.T) {
	clearEnv(t)

	s, err := Load(viper.New(), writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "https://minio.example.com", s.Target.Endpoint, "trailing slash trimmed")
	assert.Equal(t, "https://minio.example.com", s.CanonicalBaseURL())
	assert.Equal(t, 8, s.Migration.Workers)
	assert.Equal(t, 250*time.Millisecond, s.Migration.RetryBackoff)
	assert.False(t, s.Migration.DeleteSource)
	assert.Equal(t, "json", s.Output)

	// defaults fill what the file omits
	assert.Equal(t, 3, s.Migration.RetryAttempts)
	assert.Equal(t, "us-east-1", s.Target.Region)
	assert.Equal(t, "supabasekong.", s.Legacy.HostMarker)
	assert.Equal(t, "info", s.Logging.DefaultLevel)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "sqlite://override.db")
	t.Setenv("S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("DOCMIGRATE_MIGRATION_WORKERS", "2")
	t.Setenv("DOCMIGRATE_LEGACY_HOST_MARKER", "kong.internal")

	s, err := Load(viper.New(), writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "sqlite://override.db", s.Database.URL)
	assert.Equal(t, "http://localhost:9000", s.Target.Endpoint)
	assert.Equal(t, 2, s.Migration.Workers)
	assert.Equal(t, "kong.internal", s.Legacy.HostMarker)
}

func TestLoad_PrefixedNameWinsOverAlias(t *testing.T) {
	clearEnv(t)
	t.Setenv("DOCMIGRATE_DATABASE_URL", "sqlite://primary.db")
	t.Setenv("DATABASE_URL", "sqlite://alias.db")

	s, err := Load(viper.New(), writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "sqlite://primary.db", s.Database.URL)
}

func TestLoad_EnvironmentOnly(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DATABASE_URL", "sqlite://docs.db")
	t.Setenv("DOCMIGRATE_TARGET_PUBLIC_BASE_URL", "https://files.example.com")

	s, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com", s.CanonicalBaseURL())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestLoad_SecretFilesAndExpansion(t *testing.T) {
	clearEnv(t)

	keyFile := filepath.Join(t.TempDir(), "service_key")
	require.NoError(t, os.WriteFile(keyFile, []byte("key-from-file\n"), 0o600))
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY_FILE", keyFile)
	t.Setenv("DM_TEST_DB_PASSWORD", "s3cret")

	body := strings.Replace(sampleConfig, "app:secret@", "app:${DM_TEST_DB_PASSWORD}@", 1)
	s, err := Load(viper.New(), writeConfig(t, body))
	require.NoError(t, err)

	assert.Equal(t, "key-from-file", s.Legacy.ServiceKey, "file wins over inline key")
	assert.Equal(t, "postgres://app:s3cret@db:5432/hr", s.Database.URL)
	assert.Equal(t, "minio-secret", s.Target.SecretAccessKey, "literal left alone")
}

func TestLoad_MissingSecretFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("DOCMIGRATE_LEGACY_SERVICE_KEY_FILE", filepath.Join(t.TempDir(), "absent"))

	_, err := Load(viper.New(), writeConfig(t, sampleConfig))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.Contains(t, err.Error(), "legacy.service_key")
}

func TestLoad_InvalidEnvironmentValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("DOCMIGRATE_MIGRATION_DELETE_SOURCE", "maybe")

	_, err := Load(viper.New(), writeConfig(t, sampleConfig))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DOCMIGRATE_MIGRATION_DELETE_SOURCE")
}

func TestLoad_ValidationFailure(t *testing.T) {
	clearEnv(t)

	_, err := Load(viper.New(), writeConfig(t, "target:\n  endpoint: ftp://files\n"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Errors, 2, "database url and canonical base")
}

func TestSettings_Derived(t *testing.T) {
	clearEnv(t)

	s, err := Load(viper.New(), writeConfig(t, sampleConfig))
	require.NoError(t, err)

	mc := s.MigrationConfig()
	assert.Equal(t, "https://minio.example.com", mc.CanonicalBaseURL)
	assert.Equal(t, "https://supabasekong.example.com", mc.LegacyStoreBaseURL)
	assert.Equal(t, 8, mc.Workers)
	assert.False(t, mc.DeleteSource)
	require.NoError(t, mc.Validate())

	assert.Equal(t, "minio", s.S3Config().AccessKeyID)
	assert.Equal(t, "service-role", s.LegacyStoreConfig().ServiceKey)
	assert.Equal(t, 60*time.Second, s.HTTPClientConfig().DefaultTimeout)

	for _, f := range s.LogFields() {
		if v, ok := f.Value.(string); ok {
			assert.NotContains(t, v, "secret", f.Key)
			assert.NotContains(t, v, "service-role", f.Key)
		}
	}
}
