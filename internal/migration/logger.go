package migration

import "github.com/snd-ksa/docmigrate/internal/logger"

// GetLogger returns the migration module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("migration")
}
