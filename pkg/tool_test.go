package pkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContains(t *testing.T) {
	assert.True(t, Contains([]string{"FR", "US"}, "US"))
	assert.False(t, Contains([]string{"FR", "US"}, "us"))
	assert.False(t, Contains(nil, "US"))
}

func TestHasAnyPrefix(t *testing.T) {
	prefixes := []string{"video/"}
	assert.True(t, HasAnyPrefix("video/mp4", prefixes))
	assert.True(t, HasAnyPrefix(" Video/QuickTime", prefixes))
	assert.False(t, HasAnyPrefix("application/pdf", prefixes))
	assert.False(t, HasAnyPrefix("video/mp4", []string{""}))
	assert.False(t, HasAnyPrefix("", prefixes))
}
