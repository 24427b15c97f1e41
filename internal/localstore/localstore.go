// Package localstore is the persisted local key/value capability the data
// layer gets from its host (in the extension, chrome.storage.local; here, a
// SQLite database). It caches the current DID, per-DID profiles, and the
// stable peer-registration client id across store outages.
package localstore

import "context"

// KV is an async key/value store. Get returns (nil, nil) for absent keys;
// callers treat absence as a normal case.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetMulti(ctx context.Context, keys []string) (map[string][]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetMulti(ctx context.Context, entries map[string][]byte) error
	Remove(ctx context.Context, keys ...string) error
}

// Well-known keys.
const (
	KeyCurrentDID   = "current_did"
	KeyPeerClientID = "peer_client_id"
	KeyKeyring      = "keyring"

	// ProfileKeyPrefix namespaces cached profiles by DID.
	ProfileKeyPrefix = "profile_"
)
