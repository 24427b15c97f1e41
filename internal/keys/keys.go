// Package keys wraps the signing capability the data layer depends on:
// Ed25519 key pairs carried as opaque strings, DID derivation from the
// public key, and signatures over canonical JSON payloads.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/annotify/annotify/internal/common"
)

// DIDMethodPrefix is prepended to the encoded public key to form the author
// identity.
const DIDMethodPrefix = "did:key:z"

var enc = base64.RawURLEncoding

// KeyPair carries encoded Ed25519 key material. The strings are opaque to
// every other package.
type KeyPair struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

// Generate creates a fresh Ed25519 key pair.
func Generate() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generating key pair: %w", err)
	}
	return KeyPair{
		PublicKey:  enc.EncodeToString(pub),
		PrivateKey: enc.EncodeToString(priv),
	}, nil
}

// Validate checks the key material shape. It is the precondition gate every
// mutating operation runs before doing any I/O.
func (kp KeyPair) Validate() error {
	if kp.PublicKey == "" || kp.PrivateKey == "" {
		return fmt.Errorf("%w: empty key material", common.ErrInvalidKeyPair)
	}
	pub, err := enc.DecodeString(kp.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: malformed public key", common.ErrInvalidKeyPair)
	}
	priv, err := enc.DecodeString(kp.PrivateKey)
	if err != nil || len(priv) != ed25519.PrivateKeySize {
		return fmt.Errorf("%w: malformed private key", common.ErrInvalidKeyPair)
	}
	return nil
}

// DID derives the author identity for this key pair.
func (kp KeyPair) DID() string {
	return DIDMethodPrefix + kp.PublicKey
}

// PublicKeyForDID extracts the encoded public key from a DID produced by
// KeyPair.DID. Returns "" for foreign DID methods.
func PublicKeyForDID(did string) string {
	if !strings.HasPrefix(did, DIDMethodPrefix) {
		return ""
	}
	return strings.TrimPrefix(did, DIDMethodPrefix)
}

// Canonical serializes a payload struct for signing. Struct field order is
// fixed at compile time, so both signer and verifier produce identical bytes.
func Canonical(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing payload: %w", err)
	}
	return b, nil
}

// Sign produces a signature over the canonical form of payload.
func Sign(payload any, kp KeyPair) (string, error) {
	if err := kp.Validate(); err != nil {
		return "", err
	}
	msg, err := Canonical(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrSigning, err)
	}
	priv, err := enc.DecodeString(kp.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrSigning, err)
	}
	sig := ed25519.Sign(ed25519.PrivateKey(priv), msg)
	return enc.EncodeToString(sig), nil
}

// Verify checks signature against the canonical form of payload using the
// public key embedded in the author DID.
func Verify(payload any, signature, authorDID string) bool {
	pubEncoded := PublicKeyForDID(authorDID)
	if pubEncoded == "" {
		return false
	}
	pub, err := enc.DecodeString(pubEncoded)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := enc.DecodeString(signature)
	if err != nil {
		return false
	}
	msg, err := Canonical(payload)
	if err != nil {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}
