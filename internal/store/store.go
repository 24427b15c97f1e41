// Package store defines the contract the data layer has with the underlying
// replicated graph store, plus an in-memory implementation used by tests and
// local mode.
//
// The store is path-addressed and eventually consistent: writes merge per
// field with last-write-wins, reads return whatever has replicated so far,
// and nothing provides read-your-writes. The wire protocol of the production
// backend is out of scope here; everything above this package depends only
// on the Store interface.
package store

import "context"

// Fields is one node's record. A nil Fields for an existing key means the
// node was tombstoned (nulled) at the store level.
type Fields = map[string]any

// ChangeFunc receives live child updates under a subscribed node. key is the
// child's name, fields the child's merged record (nil for a tombstone).
type ChangeFunc func(key string, fields Fields)

// Store is the path-addressed read/write surface of the replicated graph.
//
// All writes are whole-field merges ("put"), never partial patches, and
// resolve once the store acknowledges them; an acknowledgment carrying an
// error surfaces as the returned error.
type Store interface {
	// Put merges fields into the node at path and waits for the ack.
	Put(ctx context.Context, path []string, fields Fields) error

	// PutNull tombstones the node at path. This is the final state of a
	// deleted record; the node's key remains visible with nil fields.
	PutNull(ctx context.Context, path []string) error

	// Once reads the node at path. ok is false when the node has never
	// existed; a tombstoned node returns (nil, true, nil).
	Once(ctx context.Context, path []string) (Fields, bool, error)

	// Children reads the direct children of the node at path, keyed by
	// child name. Tombstoned children appear with nil Fields.
	Children(ctx context.Context, path []string) (map[string]Fields, error)

	// Subscribe registers fn for live updates to direct children of path.
	// Delivery is at-least-once: callers must deduplicate. The returned
	// cancel detaches the subscription.
	Subscribe(path []string, fn ChangeFunc) (cancel func())

	// Connected reports the best-known state of the replication link.
	Connected() bool

	// SetPeers replaces the set of peer addresses the store replicates with.
	SetPeers(urls []string)

	// Peers returns the current replication peer addresses.
	Peers() []string
}
