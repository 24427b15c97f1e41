package models

import "time"

// KnownPeer is an entry in the shared peer registry. Entries are ephemeral:
// anything older than the registry TTL is stale and eligible for cooperative
// deletion by whichever client notices it.
type KnownPeer struct {
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp"`
}

func (p KnownPeer) Fields() map[string]any {
	return map[string]any{
		"url":       p.URL,
		"timestamp": p.Timestamp,
	}
}

// ParseKnownPeer validates a raw registry record.
func ParseKnownPeer(fields map[string]any) (KnownPeer, string) {
	if fields == nil {
		return KnownPeer{}, "nil record"
	}
	p := KnownPeer{
		URL:       str(fields["url"]),
		Timestamp: i64(fields["timestamp"]),
	}
	if p.URL == "" {
		return KnownPeer{}, "missing url"
	}
	if p.Timestamp <= 0 {
		return KnownPeer{}, "missing timestamp"
	}
	return p, ""
}

// Fresh reports whether the entry was registered within ttl of now.
func (p KnownPeer) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(time.UnixMilli(p.Timestamp)) < ttl
}

// PeerStatus is the best currently-known state of one replication peer.
// It reflects bookkeeping, not a live per-peer ping.
type PeerStatus struct {
	URL       string    `json:"url"`
	Connected bool      `json:"connected"`
	LastSeen  time.Time `json:"lastSeen"`
}
