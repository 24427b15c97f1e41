// Package shard maps normalized page URLs onto the replicated store's
// annotation keyspace. Every reader and writer routes through the same pure
// function, so all clients converge on identical locations.
package shard

import (
	"strconv"
	"strings"

	"github.com/annotify/annotify/internal/urlx"
)

// SubShardCount is the number of sub-shards a high-traffic domain is spread
// across.
const SubShardCount = 10

// highTrafficHosts lists domains busy enough that a single shard node would
// become a fan-out hotspot. Membership must be identical across clients.
var highTrafficHosts = map[string]struct{}{
	"www.google.com":    {},
	"www.youtube.com":   {},
	"www.wikipedia.org": {},
	"en.wikipedia.org":  {},
	"www.reddit.com":    {},
	"twitter.com":       {},
	"x.com":             {},
	"www.amazon.com":    {},
	"github.com":        {},
	"news.ycombinator.com": {},
}

// Key identifies where a URL's annotations live in the store.
type Key struct {
	// DomainShard is the per-domain top-level node, e.g. "annotations_example_com".
	DomainShard string
	// SubShard is "" for ordinary domains; for high-traffic domains it is
	// DomainShard plus a stable "_shard_N" suffix derived from the full URL.
	SubShard string
}

// Nodes returns the store nodes to read, most specific first.
func (k Key) Nodes() []string {
	if k.SubShard != "" {
		return []string{k.SubShard, k.DomainShard}
	}
	return []string{k.DomainShard}
}

// WriteNode returns the single node writes go to.
func (k Key) WriteNode() string {
	if k.SubShard != "" {
		return k.SubShard
	}
	return k.DomainShard
}

// KeyFor routes a URL to its shard. The URL is normalized first, so callers
// may pass raw page URLs. Pure and deterministic across processes.
func KeyFor(rawURL string) Key {
	normalized := urlx.Normalize(rawURL)
	host := hostOf(normalized)

	k := Key{DomainShard: "annotations_" + strings.ReplaceAll(host, ".", "_")}
	if _, hot := highTrafficHosts[host]; hot {
		n := stringHash(normalized) % SubShardCount
		k.SubShard = k.DomainShard + "_shard_" + strconv.Itoa(int(n))
	}
	return k
}

// hostOf extracts the hostname from a normalized URL without reparsing
// through net/url, which would not round-trip invalid inputs.
func hostOf(normalized string) string {
	s := normalized
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	for _, sep := range []byte{'/', '?', '#'} {
		if i := strings.IndexByte(s, sep); i >= 0 {
			s = s[:i]
		}
	}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}

// stringHash is the 32-bit polynomial rolling hash (h*31 + c) shared by all
// clients. It must never change: shard assignment depends on it.
func stringHash(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h
}
