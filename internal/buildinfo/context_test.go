package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		ctx       *Context
		version   string
		buildDate string
	}{
		{"nil context", nil, UnknownValue, UnknownValue},
		{"empty values", NewContext("", ""), UnknownValue, UnknownValue},
		{"release", NewContext("1.0.0", "2025-06-01T12:00:00Z"), "1.0.0", "2025-06-01T12:00:00Z"},
		{"pre-release", NewContext("1.0.0-beta.1", ""), "1.0.0-beta.1", UnknownValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.version, tt.ctx.Version())
			assert.Equal(t, tt.buildDate, tt.ctx.BuildDate())
		})
	}
}

func TestContextImplementsBuildInfo(t *testing.T) {
	t.Parallel()
	var bi BuildInfo = NewContext("1.2.3", "")
	assert.Equal(t, "1.2.3", bi.Version())
}
