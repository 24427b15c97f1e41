// Package common defines shared constants and sentinel errors used across
// the annotation data layer. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Precondition errors: raised before any I/O, never retried.
	ErrPrecondition   = errors.New("precondition failed")
	ErrInvalidKeyPair = errors.New("invalid key pair")

	// Signing / authorization errors.
	ErrSigning      = errors.New("signing failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadSignature = errors.New("bad signature")

	// Store-level errors.
	ErrStoreAck = errors.New("store rejected write")

	// Peer-layer errors.
	ErrCircuitOpen = errors.New("circuit open")
)
