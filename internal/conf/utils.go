// conf/utils.go various util functions for configuration package
package conf

import (
	"os"
	"path/filepath"
)

// GetDefaultConfigPaths returns the directories searched for config.yaml
// when no file is given: the working directory, the user configuration
// directory and the system-wide directory.
func GetDefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "docmigrate"))
	}
	return append(paths, "/etc/docmigrate")
}
