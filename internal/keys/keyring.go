package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/json"
	"fmt"

	"github.com/annotify/annotify/internal/common"
	"golang.org/x/crypto/argon2"
)

const saltSize = 16

// deriveKey stretches a passphrase into a 32-byte AES key.
func deriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
}

// SealKeyPair encrypts a key pair under a passphrase for storage at rest.
// The output blob is salt || nonce || ciphertext.
func SealKeyPair(kp KeyPair, passphrase []byte) ([]byte, error) {
	if err := kp.Validate(); err != nil {
		return nil, err
	}
	plaintext, err := json.Marshal(kp)
	if err != nil {
		return nil, err
	}

	salt := common.GenerateRandByteArray(saltSize)
	key := deriveKey(passphrase, salt)
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := common.GenerateRandByteArray(aesgcm.NonceSize())

	blob := append(salt, nonce...)
	return aesgcm.Seal(blob, nonce, plaintext, nil), nil
}

// OpenKeyPair decrypts a blob produced by SealKeyPair.
func OpenKeyPair(blob, passphrase []byte) (KeyPair, error) {
	if len(blob) < saltSize {
		return KeyPair{}, fmt.Errorf("keyring blob too short")
	}
	salt := blob[:saltSize]
	key := deriveKey(passphrase, salt)
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return KeyPair{}, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return KeyPair{}, err
	}
	if len(blob) < saltSize+aesgcm.NonceSize() {
		return KeyPair{}, fmt.Errorf("keyring blob too short")
	}
	nonce := blob[saltSize : saltSize+aesgcm.NonceSize()]
	ciphertext := blob[saltSize+aesgcm.NonceSize():]

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: wrong passphrase or corrupt keyring", common.ErrUnauthorized)
	}

	var kp KeyPair
	if err := json.Unmarshal(plaintext, &kp); err != nil {
		return KeyPair{}, err
	}
	return kp, kp.Validate()
}
