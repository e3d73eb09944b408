package crypto

import (
	"bytes"
	"testing"
)

func TestEncryptDecrypt(t *testing.T) {
	key, err := GenerateRandomKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	plaintext := []byte("vault token hvs.abc123")

	ciphertext, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	if bytes.Contains(ciphertext, plaintext) {
		t.Error("Ciphertext contains plaintext")
	}

	decrypted, err := Decrypt(ciphertext, key)
	if err != nil {
		t.Fatalf("Failed to decrypt: %v", err)
	}

	if !bytes.Equal(plaintext, decrypted) {
		t.Errorf("Decrypted text doesn't match original. Got %s, want %s", decrypted, plaintext)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	key1, _ := GenerateRandomKey()
	key2, _ := GenerateRandomKey()

	ciphertext, err := Encrypt([]byte("secret"), key1)
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	if _, err := Decrypt(ciphertext, key2); err == nil {
		t.Error("Expected decryption with wrong key to fail")
	}
}

func TestDecryptTruncated(t *testing.T) {
	key, _ := GenerateRandomKey()
	if _, err := Decrypt([]byte("short"), key); err == nil {
		t.Error("Expected error for truncated ciphertext")
	}
}

func TestParseKeyRoundTrip(t *testing.T) {
	key, err := GenerateRandomKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	parsed, err := ParseKey(key.Hex())
	if err != nil {
		t.Fatalf("Failed to parse hex key: %v", err)
	}

	if !bytes.Equal(key[:], parsed[:]) {
		t.Error("Parsed key doesn't match original")
	}
}

func TestParseKeyInvalid(t *testing.T) {
	if _, err := ParseKey("not hex"); err == nil {
		t.Error("Expected error for non-hex key")
	}
	if _, err := ParseKey("abcd"); err == nil {
		t.Error("Expected error for wrong-length key")
	}
}

func TestNewKeyInvalidSize(t *testing.T) {
	if _, err := NewKey([]byte("too short")); err == nil {
		t.Error("Expected error for invalid key size")
	}
}
