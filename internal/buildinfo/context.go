// Package buildinfo contains build-time metadata injected with -ldflags.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

// UnknownValue is reported for metadata the build did not provide.
const UnknownValue = "unknown"

// Set at build time:
//
//	go build -ldflags "-X github.com/snd-ksa/docmigrate/internal/buildinfo.version=v1.2.0"
var (
	version   string
	buildDate string
	commit    string
)

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	version   string
	buildDate string
	commit    string
}

// NewContext creates a Context from explicit values.
func NewContext(version, buildDate, commit string) *Context {
	return &Context{version: version, buildDate: buildDate, commit: commit}
}

// Current returns the metadata linked into this binary. A missing commit
// falls back to the VCS revision recorded by the Go toolchain.
func Current() *Context {
	c := NewContext(version, buildDate, commit)
	if c.commit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					c.commit = s.Value
				}
			}
		}
	}
	return c
}

// Version returns the release version.
func (c *Context) Version() string {
	if c == nil || c.version == "" {
		return UnknownValue
	}
	return c.version
}

// BuildDate returns the build timestamp.
func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}

// Commit returns the source revision, shortened to 12 characters.
func (c *Context) Commit() string {
	if c == nil || c.commit == "" {
		return UnknownValue
	}
	if len(c.commit) > 12 {
		return c.commit[:12]
	}
	return c.commit
}

// String formats the metadata for --version output.
func (c *Context) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", c.Version(), c.Commit(), c.BuildDate())
}
