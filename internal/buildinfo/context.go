// Package buildinfo carries build-time metadata separate from user configuration.
package buildinfo

// UnknownValue is reported for metadata that was not injected at build time.
const UnknownValue = "unknown"

// BuildInfo provides access to build-time metadata.
type BuildInfo interface {
	Version() string
	BuildDate() string
}

// Context holds metadata injected at startup through -ldflags.
type Context struct {
	version   string
	buildDate string
}

// NewContext returns a Context for the given version and build date.
func NewContext(version, buildDate string) *Context {
	return &Context{version: version, buildDate: buildDate}
}

// Version returns the release tag, or UnknownValue.
func (c *Context) Version() string {
	if c == nil || c.version == "" {
		return UnknownValue
	}
	return c.version
}

// BuildDate returns the build timestamp, or UnknownValue.
func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}
