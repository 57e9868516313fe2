// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/snd-ksa/docmigrate/internal/migration"
)

// Sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("output", "text")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.slow_query_threshold", 500*time.Millisecond)
	v.SetDefault("database.owner_cache_ttl", 10*time.Minute)

	v.SetDefault("target.region", "us-east-1")
	v.SetDefault("target.use_path_style", true)

	v.SetDefault("legacy.host_marker", migration.DefaultLegacyHostMarker)
	v.SetDefault("legacy.rate_limit", 20.0)
	v.SetDefault("legacy.burst", 5)
	v.SetDefault("legacy.timeout", 60*time.Second)

	v.SetDefault("migration.workers", migration.DefaultWorkers)
	v.SetDefault("migration.retry_attempts", migration.DefaultRetryAttempts)
	v.SetDefault("migration.retry_backoff", migration.DefaultRetryBackoff)
	v.SetDefault("migration.delete_source", true)

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/docmigrate.log")
	v.SetDefault("logging.file_output.level", "debug")

	v.SetDefault("metrics.textfile_path", "")

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")

	v.SetDefault("lock.path", "docmigrate.lock")
}
