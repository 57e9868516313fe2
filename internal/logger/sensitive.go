package logger

import (
	"regexp"
	"strings"
)

// SensitiveDataPatterns match credentials that can appear inside otherwise
// harmless values, such as signed legacy-store URLs or auth headers.
var SensitiveDataPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9-._~+/]+=*)`),
	regexp.MustCompile(`(?i)(eyJ[a-zA-Z0-9_-]{5,}\.eyJ[a-zA-Z0-9_-]{5,})\.[a-zA-Z0-9_-]{5,}`),
	regexp.MustCompile(`(?i)([?&](token|x-amz-signature|x-amz-credential|signature)=)([^&\s]+)`),
	regexp.MustCompile(`(?i)((api|access|auth|secret|passw(or)?d)[0-9a-z\-_\.]*[\s:=]+)([^;,\s]{5,})`),
}

// SensitiveKeywords are field keys whose values are always redacted
var SensitiveKeywords = []string{
	"password", "passwd", "secret", "credential", "token", "api_key",
	"apikey", "access_key", "secret_key", "authorization", "service_role",
}

// RedactSensitiveData replaces sensitive information with "[REDACTED]"
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}

	for _, pattern := range SensitiveDataPatterns {
		input = pattern.ReplaceAllString(input, "$1[REDACTED]")
	}

	return input
}

// isSensitiveKey reports whether a field key names a credential
func isSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, sensitiveKey := range SensitiveKeywords {
		if strings.Contains(keyLower, sensitiveKey) {
			return true
		}
	}
	return false
}

// redactField redacts a string field value based on its key and content
func redactField(key, value string) string {
	if value == "" {
		return value
	}
	if isSensitiveKey(key) {
		return "[REDACTED]"
	}
	return RedactSensitiveData(value)
}
