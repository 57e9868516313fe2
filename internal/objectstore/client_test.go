package objectstore

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		reported string
		want     string
	}{
		{"reported wins", "a.pdf", "application/x-custom", "application/x-custom"},
		{"pdf", "employee-42/a.pdf", "", "application/pdf"},
		{"upper case jpg", "a.JPG", "", "image/jpeg"},
		{"jpeg", "a.jpeg", "", "image/jpeg"},
		{"png", "a.png", DefaultContentType, "image/png"},
		{"doc", "a.doc", "", "application/msword"},
		{"docx", "a.docx", " ", documentTypes[".docx"]},
		{"unknown", "a.zzz", "", DefaultContentType},
		{"no extension", "README", "", DefaultContentType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContentTypeFor(tt.key, tt.reported))
		})
	}
}

func TestSameContent(t *testing.T) {
	tests := []struct {
		name string
		a, b ObjectInfo
		want bool
	}{
		{"same size and etag", ObjectInfo{Size: 3, ETag: `"abc"`}, ObjectInfo{Size: 3, ETag: "ABC"}, true},
		{"size differs", ObjectInfo{Size: 3, ETag: "abc"}, ObjectInfo{Size: 4, ETag: "abc"}, false},
		{"etag differs", ObjectInfo{Size: 3, ETag: "abc"}, ObjectInfo{Size: 3, ETag: "abd"}, false},
		{"multipart etag", ObjectInfo{Size: 3, ETag: "abc-2"}, ObjectInfo{Size: 3, ETag: "abd"}, true},
		{"missing etag", ObjectInfo{Size: 3}, ObjectInfo{Size: 3, ETag: "abd"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SameContent(tt.a, tt.b))
		})
	}
}

func TestObjectSize(t *testing.T) {
	var nilObj *Object
	assert.Zero(t, nilObj.Size())
	assert.Equal(t, int64(4), (&Object{Data: []byte("data")}).Size())
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not found", fmt.Errorf("wrap: %w", ErrNotFound), false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"503", &StatusError{StatusCode: http.StatusServiceUnavailable}, true},
		{"429", &StatusError{StatusCode: http.StatusTooManyRequests}, true},
		{"403", &StatusError{StatusCode: http.StatusForbidden}, false},
		{"slow down", &smithy.GenericAPIError{Code: "SlowDown"}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"connection reset", fmt.Errorf("read tcp: connection reset by peer"), true},
		{"plain", fmt.Errorf("invalid argument"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(notFound("general", "a.pdf")))
	assert.True(t, IsNotFound(&smithy.GenericAPIError{Code: "NoSuchKey"}))
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsNotFound(storageError(fmt.Errorf("boom"), "put", "general", "a.pdf")))
}

func TestStorageErrorCarriesContext(t *testing.T) {
	err := storageError(fmt.Errorf("boom"), "put", "general", "a.pdf")
	assert.Contains(t, err.Error(), "put general/a.pdf")
	assert.Contains(t, err.Error(), "boom")
}
