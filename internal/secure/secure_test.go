package secure

import (
	"errors"
	"testing"
)

const testKeyBits = 1024

func TestEncryptDecryptRoundTrip(t *testing.T) {
	keyring := NewKeyring()

	publicKey, err := keyring.GenerateKeyPair("session-1", testKeyBits)
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	for _, plaintext := range []string{"EUR", "VND", "越南盾 ₫ đồng"} {
		cipher, err := Encrypt(plaintext, publicKey)
		if err != nil {
			t.Fatalf("Encrypt(%q) failed: %v", plaintext, err)
		}

		got, err := keyring.Decrypt("session-1", cipher)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if got != plaintext {
			t.Fatalf("round trip mismatch: got %q, want %q", got, plaintext)
		}
	}
}

func TestDecryptRepeatable(t *testing.T) {
	keyring := NewKeyring()
	publicKey, err := keyring.GenerateKeyPair("s", testKeyBits)
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	cipher, err := Encrypt("EUR", publicKey)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	// the key is not consumed by decryption
	for i := 0; i < 3; i++ {
		if _, err := keyring.Decrypt("s", cipher); err != nil {
			t.Fatalf("decrypt #%d failed: %v", i+1, err)
		}
	}
}

func TestDecryptWithoutKeyFails(t *testing.T) {
	keyring := NewKeyring()
	if _, err := keyring.Decrypt("unknown", "Zm9v"); !errors.Is(err, ErrNoSessionKey) {
		t.Fatalf("expected ErrNoSessionKey, got %v", err)
	}
}

func TestDecryptWithReplacedKeyFails(t *testing.T) {
	keyring := NewKeyring()

	publicKey, err := keyring.GenerateKeyPair("s", testKeyBits)
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	cipher, err := Encrypt("EUR", publicKey)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	// a new generation replaces the session's key; the old ciphertext is lost
	if _, err := keyring.GenerateKeyPair("s", testKeyBits); err != nil {
		t.Fatalf("second GenerateKeyPair failed: %v", err)
	}
	if _, err := keyring.Decrypt("s", cipher); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	keyring := NewKeyring()

	alicePublic, err := keyring.GenerateKeyPair("alice", testKeyBits)
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	if _, err := keyring.GenerateKeyPair("bob", testKeyBits); err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	cipher, err := Encrypt("EUR", alicePublic)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if _, err := keyring.Decrypt("bob", cipher); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("foreign session decrypt should fail, got %v", err)
	}
	if got, err := keyring.Decrypt("alice", cipher); err != nil || got != "EUR" {
		t.Fatalf("owning session decrypt: %q, %v", got, err)
	}
}

func TestEncryptRejectsBadPublicKey(t *testing.T) {
	if _, err := Encrypt("EUR", "not base64!!"); !errors.Is(err, ErrInvalidPublicKey) {
		t.Fatalf("expected ErrInvalidPublicKey, got %v", err)
	}
	if _, err := Encrypt("EUR", "Zm9vYmFy"); !errors.Is(err, ErrInvalidPublicKey) {
		t.Fatalf("expected ErrInvalidPublicKey for non-PKIX bytes, got %v", err)
	}
}
