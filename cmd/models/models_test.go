package models

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/lensnet-go/internal/inference"
)

type assetSet map[inference.ModelType]bool

func (a assetSet) AssetsPresent(t inference.ModelType) bool { return a[t] }

func TestList(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, List(&buf, assetSet{inference.MobileNetV2: true}, "mobilenet_v2"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1+len(inference.SupportedModels()))
	assert.Contains(t, lines[0], "ASSETS")

	for _, line := range lines[1:] {
		switch {
		case strings.HasPrefix(line, "mobilenet_v2"):
			assert.Contains(t, line, "present")
			assert.True(t, strings.HasSuffix(strings.TrimSpace(line), "*"))
		default:
			assert.Contains(t, line, "missing")
		}
	}
}
