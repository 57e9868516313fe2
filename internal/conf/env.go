// env.go - Environment variable configuration and validation for docmigrate
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envPrefix prefixes every setting when read from the environment,
// e.g. DOCMIGRATE_MIGRATION_WORKERS for migration.workers.
const envPrefix = "DOCMIGRATE"

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVars   []string           // Environment variable names, first set wins
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the bindings for the conventional variable names
// used by the deployment alongside the prefixed ones.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"database.url", []string{"DOCMIGRATE_DATABASE_URL", "DATABASE_URL"}, nil},
		{"database.url_file", []string{"DOCMIGRATE_DATABASE_URL_FILE", "DATABASE_URL_FILE"}, nil},

		{"target.endpoint", []string{"DOCMIGRATE_TARGET_ENDPOINT", "S3_ENDPOINT"}, validateEnvURL},
		{"target.region", []string{"DOCMIGRATE_TARGET_REGION", "AWS_REGION"}, nil},
		{"target.access_key_id", []string{"DOCMIGRATE_TARGET_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, nil},
		{"target.secret_access_key", []string{"DOCMIGRATE_TARGET_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, nil},
		{"target.secret_access_key_file", []string{"DOCMIGRATE_TARGET_SECRET_ACCESS_KEY_FILE", "AWS_SECRET_ACCESS_KEY_FILE"}, nil},
		{"target.use_path_style", []string{"DOCMIGRATE_TARGET_USE_PATH_STYLE"}, validateEnvBool},
		{"target.public_base_url", []string{"DOCMIGRATE_TARGET_PUBLIC_BASE_URL"}, validateEnvURL},

		{"legacy.base_url", []string{"DOCMIGRATE_LEGACY_BASE_URL", "SUPABASE_URL"}, validateEnvURL},
		{"legacy.service_key", []string{"DOCMIGRATE_LEGACY_SERVICE_KEY", "SUPABASE_SERVICE_ROLE_KEY"}, nil},
		{"legacy.service_key_file", []string{"DOCMIGRATE_LEGACY_SERVICE_KEY_FILE", "SUPABASE_SERVICE_ROLE_KEY_FILE"}, nil},

		{"migration.workers", []string{"DOCMIGRATE_MIGRATION_WORKERS"}, validateEnvPositiveInt},
		{"migration.retry_attempts", []string{"DOCMIGRATE_MIGRATION_RETRY_ATTEMPTS"}, validateEnvPositiveInt},
		{"migration.retry_backoff", []string{"DOCMIGRATE_MIGRATION_RETRY_BACKOFF"}, validateEnvDuration},
		{"migration.delete_source", []string{"DOCMIGRATE_MIGRATION_DELETE_SOURCE"}, validateEnvBool},

		{"debug", []string{"DOCMIGRATE_DEBUG"}, validateEnvBool},
		{"sentry.dsn", []string{"DOCMIGRATE_SENTRY_DSN", "SENTRY_DSN"}, nil},
	}
}

// configureEnvironmentVariables maps nested keys onto environment names
// and binds the explicit aliases.
func configureEnvironmentVariables(v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return bindEnvVars(v)
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		args := append([]string{binding.ConfigKey}, binding.EnvVars...)
		if err := v.BindEnv(args...); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.ConfigKey, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		for _, name := range binding.EnvVars {
			value := os.Getenv(name)
			if value == "" {
				continue
			}
			if err := binding.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", name, value, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

// Environment variable validation functions

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f, TRUE/FALSE, T/F", value)
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got '%s'", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1, got %d", n)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("must not be negative, got %s", d)
	}
	return nil
}
