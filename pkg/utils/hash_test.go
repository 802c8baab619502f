package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashString(t *testing.T) {
	assert.Equal(t, HashString("ch1|missing_section|x"), HashString("ch1|missing_section|x"))
	assert.NotEqual(t, HashString("a"), HashString("b"))
	assert.Len(t, HashString("anything"), 32)
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "cerebralaneurysms", NormalizeTitle("Cerebral Aneurysms!"))
	assert.Equal(t, NormalizeTitle("What about X?"), NormalizeTitle("what about x"))
	assert.Empty(t, NormalizeTitle("?!---"))
}
