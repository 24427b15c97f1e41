package shard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyFor_DomainShard(t *testing.T) {
	k := KeyFor("https://example.com/en/?utm_source=x")
	assert.Equal(t, "annotations_example_com", k.DomainShard)
	assert.Empty(t, k.SubShard)
	assert.Equal(t, []string{"annotations_example_com"}, k.Nodes())
	assert.Equal(t, "annotations_example_com", k.WriteNode())
}

func TestKeyFor_HighTrafficGetsSubShard(t *testing.T) {
	k := KeyFor("https://en.wikipedia.org/wiki/Go_(programming_language)")
	require.Equal(t, "annotations_en_wikipedia_org", k.DomainShard)
	require.NotEmpty(t, k.SubShard)
	assert.Regexp(t, `^annotations_en_wikipedia_org_shard_\d$`, k.SubShard)
	assert.Equal(t, []string{k.SubShard, k.DomainShard}, k.Nodes())
	assert.Equal(t, k.SubShard, k.WriteNode())
}

func TestKeyFor_Deterministic(t *testing.T) {
	urls := []string{
		"https://example.com/a/b?q=1",
		"https://en.wikipedia.org/wiki/CRDT",
		"https://github.com/golang/go/issues/1",
	}
	for _, u := range urls {
		first := KeyFor(u)
		for i := 0; i < 5; i++ {
			require.Equal(t, first, KeyFor(u), "url %q", u)
		}
	}
}

func TestKeyFor_EquivalentURLsSameShard(t *testing.T) {
	a := KeyFor("https://en.wikipedia.org/en/wiki/CRDT?utm_source=x")
	b := KeyFor("https://en.wikipedia.org/wiki/CRDT")
	assert.Equal(t, a, b)
}

func TestStringHash_KnownValues(t *testing.T) {
	// Pinned: a changed hash silently reshards every high-traffic domain.
	assert.Equal(t, uint32(0), stringHash(""))
	assert.Equal(t, uint32('a'), stringHash("a"))
	assert.Equal(t, uint32('a')*31+uint32('b'), stringHash("ab"))
}

func TestHostOf(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://example.com/a/b", "example.com"},
		{"https://Example.COM", "example.com"},
		{"https://example.com:8080/x", "example.com"},
		{"https://example.com?q=1", "example.com"},
		{"no scheme here", "no scheme here"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, hostOf(tc.in), tc.in)
	}
}
