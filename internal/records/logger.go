package records

import "github.com/snd-ksa/docmigrate/internal/logger"

// GetLogger returns the records module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("records")
}
