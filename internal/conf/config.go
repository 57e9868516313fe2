// config.go: settings model and loading for docmigrate
package conf

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/snd-ksa/docmigrate/internal/errors"
	"github.com/snd-ksa/docmigrate/internal/httpclient"
	"github.com/snd-ksa/docmigrate/internal/logger"
	"github.com/snd-ksa/docmigrate/internal/migration"
	"github.com/snd-ksa/docmigrate/internal/objectstore"
	"github.com/snd-ksa/docmigrate/internal/records"
	"github.com/snd-ksa/docmigrate/internal/secrets"
)

// DatabaseSettings contains the relational store settings
type DatabaseSettings struct {
	URL                string        `mapstructure:"url" yaml:"url"`                                   // postgres://, mysql://, sqlite:// or a .db path
	URLFile            string        `mapstructure:"url_file" yaml:"url_file"`                         // secret file holding the URL, wins over url
	MaxOpenConns       int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`             // connection pool size
	SlowQueryThreshold time.Duration `mapstructure:"slow_query_threshold" yaml:"slow_query_threshold"` // queries slower than this are logged
	OwnerCacheTTL      time.Duration `mapstructure:"owner_cache_ttl" yaml:"owner_cache_ttl"`           // owner business key cache lifetime
}

// TargetSettings contains the S3-compatible target store settings
type TargetSettings struct {
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"` // e.g. https://minio.example.com
	Region          string `mapstructure:"region" yaml:"region"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	SecretKeyFile   string `mapstructure:"secret_access_key_file" yaml:"secret_access_key_file"`
	UsePathStyle    bool   `mapstructure:"use_path_style" yaml:"use_path_style"`
	PublicBaseURL   string `mapstructure:"public_base_url" yaml:"public_base_url"` // canonical file_path prefix, defaults to Endpoint
}

// LegacySettings contains the legacy object store settings
type LegacySettings struct {
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url"`
	ServiceKey string        `mapstructure:"service_key" yaml:"service_key"`
	KeyFile    string        `mapstructure:"service_key_file" yaml:"service_key_file"`
	HostMarker string        `mapstructure:"host_marker" yaml:"host_marker"`
	RateLimit  float64       `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second, 0 disables limiting
	Burst      int           `mapstructure:"burst" yaml:"burst"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"` // per request when the caller sets no deadline
}

// MigrationSettings contains the engine tuning values
type MigrationSettings struct {
	Workers       int           `mapstructure:"workers" yaml:"workers"`
	RetryAttempts int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	DeleteSource  bool          `mapstructure:"delete_source" yaml:"delete_source"` // remove legacy objects after repointing
}

// MetricsSettings contains the Prometheus textfile settings
type MetricsSettings struct {
	TextfilePath string `mapstructure:"textfile_path" yaml:"textfile_path"` // written after each run when set
}

// SentrySettings contains the error telemetry settings
type SentrySettings struct {
	DSN         string `mapstructure:"dsn" yaml:"dsn"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// LockSettings contains the run lock settings
type LockSettings struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// Settings contains all configuration options for docmigrate.
type Settings struct {
	Debug     bool                 `mapstructure:"debug" yaml:"debug"`
	Output    string               `mapstructure:"output" yaml:"output"` // text, json or yaml
	Database  DatabaseSettings     `mapstructure:"database" yaml:"database"`
	Target    TargetSettings       `mapstructure:"target" yaml:"target"`
	Legacy    LegacySettings       `mapstructure:"legacy" yaml:"legacy"`
	Migration MigrationSettings    `mapstructure:"migration" yaml:"migration"`
	Logging   logger.LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics   MetricsSettings      `mapstructure:"metrics" yaml:"metrics"`
	Sentry    SentrySettings       `mapstructure:"sentry" yaml:"sentry"`
	Lock      LockSettings         `mapstructure:"lock" yaml:"lock"`
}

// loadMutex serialises Load; viper instances are not safe for concurrent use
var loadMutex sync.Mutex

// Load reads defaults, the configuration file and environment variables
// into a validated Settings. An empty configFile searches the default
// paths; a missing file there is not an error because every setting can
// come from the environment.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	loadMutex.Lock()
	defer loadMutex.Unlock()

	if v == nil {
		v = viper.New()
	}

	if err := initViper(v, configFile); err != nil {
		return nil, configError(fmt.Errorf("error initializing config: %w", err))
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, configError(fmt.Errorf("error unmarshaling config into struct: %w", err))
	}
	if err := settings.resolveSecrets(); err != nil {
		return nil, configError(fmt.Errorf("error resolving secrets: %w", err))
	}
	settings.normalize()

	if err := ValidateSettings(settings); err != nil {
		return nil, configError(fmt.Errorf("error validating settings: %w", err))
	}

	if used := v.ConfigFileUsed(); used != "" {
		GetLogger().Debug("configuration loaded", logger.String("file", used))
	}
	return settings, nil
}

// initViper applies defaults and environment bindings and reads the
// configuration file.
func initViper(v *viper.Viper, configFile string) error {
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		for _, path := range GetDefaultConfigPaths() {
			v.AddConfigPath(path)
		}
	}

	setDefaultConfig(v)

	if err := configureEnvironmentVariables(v); err != nil {
		return err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

// resolveSecrets replaces credentials with the contents of their secret
// files and expands ${VAR} references in the inline values.
func (s *Settings) resolveSecrets() error {
	fields := []struct {
		name  string
		file  string
		value *string
	}{
		{"database.url", s.Database.URLFile, &s.Database.URL},
		{"target.secret_access_key", s.Target.SecretKeyFile, &s.Target.SecretAccessKey},
		{"legacy.service_key", s.Legacy.KeyFile, &s.Legacy.ServiceKey},
	}

	var errs []error
	for _, f := range fields {
		resolved, err := secrets.Resolve(strings.TrimSpace(f.file), *f.value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
			continue
		}
		*f.value = resolved
	}
	return errors.Join(errs...)
}

func configError(err error) error {
	return errors.New(err).
		Component("conf").
		Category(errors.CategoryConfiguration).
		Build()
}

// normalize trims whitespace and trailing slashes from URLs
func (s *Settings) normalize() {
	s.Target.Endpoint = trimURL(s.Target.Endpoint)
	s.Target.PublicBaseURL = trimURL(s.Target.PublicBaseURL)
	s.Legacy.BaseURL = trimURL(s.Legacy.BaseURL)
	s.Legacy.ServiceKey = strings.TrimSpace(s.Legacy.ServiceKey)
	s.Database.URL = strings.TrimSpace(s.Database.URL)
	s.Output = strings.ToLower(strings.TrimSpace(s.Output))
}

func trimURL(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}

// CanonicalBaseURL is the prefix of every canonical file_path.
func (s *Settings) CanonicalBaseURL() string {
	if s.Target.PublicBaseURL != "" {
		return s.Target.PublicBaseURL
	}
	return s.Target.Endpoint
}

// MigrationConfig builds the engine configuration. Run-specific values
// (dry run, table filter, run id) are set by the caller.
func (s *Settings) MigrationConfig() migration.Config {
	cfg := migration.DefaultConfig()
	cfg.CanonicalBaseURL = s.CanonicalBaseURL()
	cfg.LegacyStoreBaseURL = s.Legacy.BaseURL
	cfg.LegacyHostMarker = s.Legacy.HostMarker
	cfg.Workers = s.Migration.Workers
	cfg.RetryAttempts = s.Migration.RetryAttempts
	cfg.RetryBackoff = s.Migration.RetryBackoff
	cfg.DeleteSource = s.Migration.DeleteSource
	return cfg
}

// RecordsConfig builds the repository configuration.
func (s *Settings) RecordsConfig() records.Config {
	return records.Config{
		URL:                s.Database.URL,
		MaxOpenConns:       s.Database.MaxOpenConns,
		SlowQueryThreshold: s.Database.SlowQueryThreshold,
		OwnerCacheTTL:      s.Database.OwnerCacheTTL,
	}
}

// S3Config builds the target store configuration.
func (s *Settings) S3Config() objectstore.S3Config {
	return objectstore.S3Config{
		Endpoint:        s.Target.Endpoint,
		Region:          s.Target.Region,
		AccessKeyID:     s.Target.AccessKeyID,
		SecretAccessKey: s.Target.SecretAccessKey,
		UsePathStyle:    s.Target.UsePathStyle,
	}
}

// LegacyStoreConfig builds the legacy store configuration.
func (s *Settings) LegacyStoreConfig() objectstore.LegacyStoreConfig {
	return objectstore.LegacyStoreConfig{
		BaseURL:    s.Legacy.BaseURL,
		ServiceKey: s.Legacy.ServiceKey,
	}
}

// HTTPClientConfig builds the shared HTTP client configuration for the
// legacy store and legacy links.
func (s *Settings) HTTPClientConfig() httpclient.Config {
	cfg := httpclient.DefaultConfig()
	if s.Legacy.Timeout > 0 {
		cfg.DefaultTimeout = s.Legacy.Timeout
	}
	return cfg
}

// LogFields summarises the settings without secrets.
func (s *Settings) LogFields() []logger.Field {
	return []logger.Field{
		logger.String("canonical_base", s.CanonicalBaseURL()),
		logger.String("target_endpoint", s.Target.Endpoint),
		logger.String("legacy_base", s.Legacy.BaseURL),
		logger.Bool("legacy_key_set", s.Legacy.ServiceKey != ""),
		logger.String("database", records.RedactURL(s.Database.URL)),
		logger.Int("workers", s.Migration.Workers),
		logger.Int("retry_attempts", s.Migration.RetryAttempts),
		logger.Duration("retry_backoff", s.Migration.RetryBackoff),
		logger.Bool("delete_source", s.Migration.DeleteSource),
	}
}
