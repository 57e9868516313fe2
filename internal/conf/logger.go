// Package conf provides configuration management for docmigrate.
package conf

import "github.com/snd-ksa/docmigrate/internal/logger"

// GetLogger returns the config package logger scoped to the config module.
// The logger is fetched from the global logger each time so that it picks
// up the logger configured after package init.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
