package objectstore

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/snd-ksa/docmigrate/internal/errors"
)

// StatusError is returned by the HTTP-based backends for unexpected responses.
type StatusError struct {
	Op         string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s: HTTP %d: %s", e.Op, e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s: HTTP %d", e.Op, e.URL, e.StatusCode)
}

// ErrorCategory implements errors.CategorizedError.
func (e *StatusError) ErrorCategory() errors.ErrorCategory {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return errors.CategoryNotFound
	case e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests:
		return errors.CategoryNetwork
	default:
		return errors.CategoryHTTP
	}
}

// transientErrorPatterns contains substrings that indicate a retriable error
var transientErrorPatterns = []string{
	"connection reset",
	"connection refused",
	"connection closed",
	"timeout",
	"temporary",
	"broken pipe",
	"no route to host",
	"unexpected eof",
	"tls handshake",
	"resource temporarily unavailable",
}

// transientS3Codes are S3 error codes that are worth retrying
var transientS3Codes = map[string]bool{
	"InternalError":      true,
	"ServiceUnavailable": true,
	"SlowDown":           true,
	"RequestTimeout":     true,
}

// IsTransient reports whether err is a network or server-side failure that
// may succeed on retry. Not-found and caller cancellation are never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return isTransientStatus(statusErr.StatusCode)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if transientS3Codes[apiErr.ErrorCode()] {
			return true
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return isTransientStatus(respErr.HTTPStatusCode())
	}

	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range transientErrorPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

func isTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusRequestTimeout ||
		code >= http.StatusInternalServerError
}

// IsNotFound reports whether err means the object does not exist.
func IsNotFound(err error) bool {
	return err != nil && (errors.Is(err, ErrNotFound) || isS3NotFound(err))
}

// isS3NotFound recognizes the several shapes a missing key takes in the SDK
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return true
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	return false
}

// notFound wraps ErrNotFound with the object location
func notFound(bucket, key string) error {
	return errors.New(fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)).
		Component("objectstore").
		Category(errors.CategoryNotFound).
		ObjectContext(bucket, key).
		Build()
}

// storageError wraps a backend error with operation and location context
func storageError(err error, op, bucket, key string) error {
	return errors.New(fmt.Errorf("%s %s/%s: %w", op, bucket, key, err)).
		Component("objectstore").
		Category(errors.CategoryStorage).
		ObjectContext(bucket, key).
		Context("operation", op).
		Build()
}
