package crypto

import (
	"bytes"
	"testing"
)

func TestKeyManagerRotation(t *testing.T) {
	initial, err := GenerateRandomKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	km := NewKeyManager(initial)

	plaintext := []byte("credential sealed before rotation")
	ciphertext, oldKeyID, err := km.EncryptWithVersion(plaintext)
	if err != nil {
		t.Fatalf("EncryptWithVersion failed: %v", err)
	}

	rotated, err := km.Rotate()
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if rotated.ID == oldKeyID {
		t.Error("Rotation reused the old key ID")
	}
	if km.ActiveKey().ID != rotated.ID {
		t.Error("Rotated key is not active")
	}

	// Old ciphertext must stay decryptable after rotation.
	decrypted, err := km.DecryptWithVersion(ciphertext, oldKeyID)
	if err != nil {
		t.Fatalf("DecryptWithVersion with retired key failed: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Error("Decrypted text doesn't match original")
	}

	newCiphertext, newKeyID, err := km.Reseal(ciphertext, oldKeyID)
	if err != nil {
		t.Fatalf("Reseal failed: %v", err)
	}
	if newKeyID != rotated.ID {
		t.Errorf("Reseal used key %s, want active key %s", newKeyID, rotated.ID)
	}

	decrypted, err = km.DecryptWithVersion(newCiphertext, newKeyID)
	if err != nil {
		t.Fatalf("Decrypt of resealed data failed: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Error("Resealed plaintext doesn't match original")
	}
}

func TestKeyManagerUnknownVersion(t *testing.T) {
	key, _ := GenerateRandomKey()
	km := NewKeyManager(key)

	if _, err := km.DecryptWithVersion([]byte("x"), "missing"); err == nil {
		t.Error("Expected error for unknown key version")
	}
}
