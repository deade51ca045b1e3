// Package secure implements the ephemeral RSA channel used to transmit a
// currency code confidentially. Private keys live in a session-keyed keyring:
// each caller session holds exactly one key, replaced on every generation and
// readable by any number of decrypt calls until then.
package secure

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
)

// DefaultKeyBits is the keypair size used when a caller does not choose one.
const DefaultKeyBits = 2048

var (
	// ErrNoSessionKey indicates decrypt was called before any key was
	// generated for the session.
	ErrNoSessionKey = errors.New("secure: no keypair generated for session")
	// ErrDecryptionFailed indicates the ciphertext was not produced for the
	// session's current key, or is not valid base64/OAEP data.
	ErrDecryptionFailed = errors.New("secure: decryption failed")
	// ErrInvalidPublicKey indicates an unusable public key encoding.
	ErrInvalidPublicKey = errors.New("secure: invalid public key")
)

// Keyring holds per-session private keys behind a mutex.
type Keyring struct {
	mu   sync.RWMutex
	keys map[string]*rsa.PrivateKey
}

// NewKeyring constructs an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{keys: make(map[string]*rsa.PrivateKey)}
}

// GenerateKeyPair creates a fresh keypair for the session, replacing whatever
// key the session held before, and returns the public key as a base64-encoded
// PKIX blob.
func (k *Keyring) GenerateKeyPair(session string, bits int) (string, error) {
	if bits <= 0 {
		bits = DefaultKeyBits
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return "", fmt.Errorf("generate keypair: %w", err)
	}

	public, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", fmt.Errorf("encode public key: %w", err)
	}

	k.mu.Lock()
	k.keys[session] = key
	k.mu.Unlock()

	return base64.StdEncoding.EncodeToString(public), nil
}

// Encrypt encrypts plaintext with a base64 PKIX public key using RSA-OAEP
// (SHA-256) and returns the ciphertext base64-encoded. Side-effect free.
func Encrypt(plaintext, publicKeyBase64 string) (string, error) {
	der, err := base64.StdEncoding.DecodeString(publicKeyBase64)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	publicKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return "", fmt.Errorf("%w: not an RSA key", ErrInvalidPublicKey)
	}

	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, publicKey, []byte(plaintext), nil)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts a base64 ciphertext with the session's current private
// key. The key is not consumed: repeated decrypts succeed until the next
// GenerateKeyPair replaces it.
func (k *Keyring) Decrypt(session, ciphertextBase64 string) (string, error) {
	k.mu.RLock()
	key := k.keys[session]
	k.mu.RUnlock()

	if key == nil {
		return "", ErrNoSessionKey
	}

	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextBase64)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, key, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}
