package reqx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptor_Freeze(t *testing.T) {
	d := mustNormalize(t, Options{URL: "https://api.example.com/x"})
	assert.False(t, d.Frozen())
	d.Freeze()
	assert.True(t, d.Frozen())
	d.Freeze() // idempotent
	assert.True(t, d.Frozen())
}

func TestDescriptor_Clone(t *testing.T) {
	d := mustNormalize(t, Options{
		URL:  "https://api.example.com/x",
		Body: "payload",
	})
	d.Header.Set("X-Original", "1")
	d.Freeze()

	c := d.clone()
	require.NotSame(t, d, c)
	assert.False(t, c.Frozen(), "clones start unfrozen")

	c.URL.Path = "/changed"
	c.Header.Set("X-Original", "2")
	c.Body[0] = 'z'

	assert.Equal(t, "/x", d.URL.Path)
	assert.Equal(t, "1", d.Header.Get("X-Original"))
	assert.Equal(t, byte('p'), d.Body[0])
}

func TestCloneHeader(t *testing.T) {
	src := make(map[string][]string)
	src["X-A"] = []string{"1", "2"}

	out := cloneHeader(src)
	out["X-A"][0] = "mutated"
	out["X-B"] = []string{"new"}

	assert.Equal(t, "1", src["X-A"][0])
	assert.NotContains(t, src, "X-B")
}
