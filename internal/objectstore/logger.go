package objectstore

import "github.com/snd-ksa/docmigrate/internal/logger"

// GetLogger returns the objectstore module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("objectstore")
}
