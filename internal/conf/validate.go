// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/getsentry/sentry-go"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, check := range []func(*Settings) error{
		validateDatabaseSettings,
		validateTargetSettings,
		validateLegacySettings,
		validateMigrationSettings,
		validateOutputSettings,
		validateSentrySettings,
	} {
		if err := check(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateDatabaseSettings(s *Settings) error {
	if s.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if s.Database.MaxOpenConns < 0 {
		return fmt.Errorf("database.max_open_conns must not be negative")
	}
	return nil
}

func validateTargetSettings(s *Settings) error {
	base := s.CanonicalBaseURL()
	if base == "" {
		return fmt.Errorf("target.endpoint or target.public_base_url is required")
	}
	if err := validateHTTPURL(base); err != nil {
		return fmt.Errorf("canonical base URL %q: %w", base, err)
	}
	if (s.Target.AccessKeyID == "") != (s.Target.SecretAccessKey == "") {
		return fmt.Errorf("target.access_key_id and target.secret_access_key must be set together")
	}
	return nil
}

func validateLegacySettings(s *Settings) error {
	if s.Legacy.BaseURL != "" {
		if err := validateHTTPURL(s.Legacy.BaseURL); err != nil {
			return fmt.Errorf("legacy.base_url %q: %w", s.Legacy.BaseURL, err)
		}
	}
	if s.Legacy.RateLimit < 0 {
		return fmt.Errorf("legacy.rate_limit must not be negative")
	}
	if s.Legacy.RateLimit > 0 && s.Legacy.Burst < 1 {
		return fmt.Errorf("legacy.burst must be at least 1 when rate limiting is enabled")
	}
	if s.Legacy.Timeout < 0 {
		return fmt.Errorf("legacy.timeout must not be negative")
	}
	return nil
}

func validateMigrationSettings(s *Settings) error {
	var errs []string
	if s.Migration.Workers < 1 {
		errs = append(errs, "migration.workers must be at least 1")
	}
	if s.Migration.RetryAttempts < 1 {
		errs = append(errs, "migration.retry_attempts must be at least 1")
	}
	if s.Migration.RetryBackoff < 0 {
		errs = append(errs, "migration.retry_backoff must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateOutputSettings(s *Settings) error {
	switch s.Output {
	case "text", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("output must be text, json or yaml, got %q", s.Output)
	}
}

func validateSentrySettings(s *Settings) error {
	if s.Sentry.DSN == "" {
		return nil
	}
	if _, err := sentry.NewDsn(s.Sentry.DSN); err != nil {
		return fmt.Errorf("sentry.dsn: %w", err)
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
