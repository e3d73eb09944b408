package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	KeySize   = 32
	NonceSize = 24
)

type Key [KeySize]byte

func NewKey(keyBytes []byte) (*Key, error) {
	if len(keyBytes) != KeySize {
		return nil, fmt.Errorf("key must be exactly %d bytes, got %d", KeySize, len(keyBytes))
	}

	var key Key
	copy(key[:], keyBytes)
	return &key, nil
}

// ParseKey decodes a hex-encoded key, the format produced by `hbr key generate`.
func ParseKey(hexKey string) (*Key, error) {
	keyBytes, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("key is not valid hex: %w", err)
	}
	return NewKey(keyBytes)
}

func GenerateRandomKey() (*Key, error) {
	var key Key
	if _, err := rand.Read(key[:]); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	return &key, nil
}

// Hex returns the hex encoding of the key for export.
func (k *Key) Hex() string {
	return hex.EncodeToString(k[:])
}

// Encrypt seals data with a random nonce prepended to the ciphertext.
func Encrypt(data []byte, key *Key) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return secretbox.Seal(nonce[:], data, &nonce, (*[KeySize]byte)(key)), nil
}

func Decrypt(ciphertext []byte, key *Key) ([]byte, error) {
	if len(ciphertext) < NonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	var nonce [NonceSize]byte
	copy(nonce[:], ciphertext[:NonceSize])

	decrypted, ok := secretbox.Open(nil, ciphertext[NonceSize:], &nonce, (*[KeySize]byte)(key))
	if !ok {
		return nil, fmt.Errorf("decryption failed")
	}

	return decrypted, nil
}
