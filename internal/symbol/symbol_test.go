package symbol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	n := Normalize("BRK.B")
	assert.Equal(t, "BRK-B", n.Wire)
	assert.Equal(t, "BRK_B", n.File)
	assert.False(t, n.IsIndex)

	idx := Normalize("^GSPC")
	assert.Equal(t, "^GSPC", idx.Wire)
	assert.Equal(t, "IGSPC", idx.File)
	assert.True(t, idx.IsIndex)
}

func TestRoundTripProperty(t *testing.T) {
	symbols := []string{"AAPL", "BRK.B", "^GSPC", "BF.B", "^DJI"}
	for _, s := range symbols {
		wire := WireForm(s)
		assert.False(t, strings.Contains(wire, "."), "wire form must contain no '.': %q", wire)
		file := FileForm(s)
		assert.False(t, strings.ContainsAny(file, `.^/\:*?"<>|`), "file form must be a legal filename: %q", file)
	}
}
