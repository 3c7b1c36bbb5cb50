package service

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	base := key("fedora", 1, "ListFiles", "bash")
	assert.Equal(t, base, key("fedora", 1, "ListFiles", "bash"))
	assert.NotEqual(t, base, key("fedora", 2, "ListFiles", "bash"))
	assert.NotEqual(t, base, key("mageia", 1, "ListFiles", "bash"))
	assert.NotEqual(t, base, key("fedora", 1, "SearchPackages", "bash"))
	assert.NotEqual(t, key("fedora", 1, "QueryRepo", "ab", "c"), key("fedora", 1, "QueryRepo", "a", "bc"))
}

func TestResultCache(t *testing.T) {
	var disabled *resultCache
	assert.Nil(t, newResultCache(0, 10))
	disabled.set(1, "x")
	_, ok := disabled.get(1)
	assert.False(t, ok)
	disabled.stop()

	c := newResultCache(time.Minute, 2)
	defer c.stop()
	c.set(1, []string{"a"})
	c.set(2, []string{"b"})
	c.set(3, []string{"c"})
	assert.Equal(t, 2, c.len())

	v, ok := c.get(3)
	assert.True(t, ok)
	assert.Equal(t, []string{"c"}, v)
	_, ok = c.get(1)
	assert.False(t, ok)
}

func TestSize(t *testing.T) {
	assert.Equal(t, int32(-1), size(0))
	assert.Equal(t, int32(-1), size(-5))
	assert.Equal(t, int32(1024), size(1024))
	assert.Equal(t, int32(math.MaxInt32), size(math.MaxInt64))
}

func TestQueryArgs(t *testing.T) {
	assert.Equal(t, []string{"file", "/usr/bin/*", "whatprovides", "sh"},
		queryArgs(map[string]string{"whatprovides": "sh", "file": "/usr/bin/*"}))
	assert.Empty(t, queryArgs(nil))
}
