// Package secrets resolves credentials that may be given literally, as
// ${VAR} references or through mounted secret files (/run/secrets/*).
//
// Secret values are never logged.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/snd-ksa/docmigrate/internal/errors"
	"github.com/snd-ksa/docmigrate/internal/logger"
)

const (
	// secrets are tokens and connection strings, not documents
	maxSecretFileSize = 64 * 1024

	// group/other bits that trigger a permissions warning
	permissiveBits = 0o077
)

func getLogger() logger.Logger {
	return logger.Global().Module("secrets")
}

// Expand replaces ${VAR} and ${VAR:-fallback} references with values from
// the environment. A reference without a fallback to an unset variable is
// an error that names every missing variable.
func Expand(s string) (string, error) {
	if s == "" || !strings.Contains(s, "$") {
		return s, nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", secretError(
			fmt.Errorf("missing environment variable(s): %s", strings.Join(missing, ", ")),
			errors.CategoryConfiguration,
		)
	}
	return expanded, nil
}

// ReadFile returns the contents of a secret file without trailing newlines.
// Files readable by group or other are accepted with a warning.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", secretError(errors.NewStd("secret file path is empty"), errors.CategoryValidation)
	}
	clean := filepath.Clean(path)

	info, err := os.Stat(clean)
	switch {
	case os.IsNotExist(err):
		return "", secretError(fmt.Errorf("secret file not found: %s", clean), errors.CategoryNotFound)
	case err != nil:
		return "", secretError(fmt.Errorf("stat secret file %s: %w", clean, err), errors.CategoryFileIO)
	case !info.Mode().IsRegular():
		return "", secretError(fmt.Errorf("secret path is not a regular file: %s", clean), errors.CategoryValidation)
	case info.Size() > maxSecretFileSize:
		return "", secretError(fmt.Errorf("secret file larger than %d bytes: %s", maxSecretFileSize, clean), errors.CategoryValidation)
	}

	if perm := info.Mode().Perm(); perm&permissiveBits != 0 {
		getLogger().Warn("secret file is readable by group or other",
			logger.String("path", clean),
			logger.String("mode", fmt.Sprintf("%04o", perm)))
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return "", secretError(fmt.Errorf("read secret file %s: %w", clean, err), errors.CategoryFileIO)
	}

	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", secretError(fmt.Errorf("secret file is empty: %s", clean), errors.CategoryValidation)
	}
	return secret, nil
}

// Resolve picks the secret for one setting. A file path wins over the
// inline value; the inline value is expanded. Both empty yields "".
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		return ReadFile(filePath)
	}
	return Expand(value)
}

func secretError(err error, category errors.ErrorCategory) error {
	return errors.New(err).
		Component("secrets").
		Category(category).
		Build()
}
