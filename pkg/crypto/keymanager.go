package crypto

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// KeyVersion is one encryption key together with its rotation metadata.
type KeyVersion struct {
	ID        string    `json:"id"`
	Key       *Key      `json:"key"`
	CreatedAt time.Time `json:"created_at"`
	IsActive  bool      `json:"is_active"`
}

// KeyManager tracks key versions so that material encrypted under a retired
// key stays decryptable after rotation. New material is always sealed with
// the active key.
type KeyManager struct {
	keys      map[string]*KeyVersion
	activeKey *KeyVersion
}

func NewKeyManager(initialKey *Key) *KeyManager {
	version := &KeyVersion{
		ID:        uuid.New().String(),
		Key:       initialKey,
		CreatedAt: time.Now(),
		IsActive:  true,
	}

	return &KeyManager{
		keys:      map[string]*KeyVersion{version.ID: version},
		activeKey: version,
	}
}

// Rotate installs a fresh random key as active. Old versions stay available
// for decryption.
func (km *KeyManager) Rotate() (*KeyVersion, error) {
	newKey, err := GenerateRandomKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate rotation key: %w", err)
	}

	if km.activeKey != nil {
		km.activeKey.IsActive = false
	}

	version := &KeyVersion{
		ID:        uuid.New().String(),
		Key:       newKey,
		CreatedAt: time.Now(),
		IsActive:  true,
	}
	km.keys[version.ID] = version
	km.activeKey = version

	return version, nil
}

func (km *KeyManager) ActiveKey() *KeyVersion {
	return km.activeKey
}

func (km *KeyManager) GetKeyByID(keyID string) (*KeyVersion, error) {
	version, ok := km.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("unknown key version %s", keyID)
	}
	return version, nil
}

// EncryptWithVersion seals data with the active key and reports which key
// version was used.
func (km *KeyManager) EncryptWithVersion(data []byte) (ciphertext []byte, keyID string, err error) {
	if km.activeKey == nil {
		return nil, "", fmt.Errorf("no active key available")
	}

	ciphertext, err = Encrypt(data, km.activeKey.Key)
	if err != nil {
		return nil, "", err
	}
	return ciphertext, km.activeKey.ID, nil
}

func (km *KeyManager) DecryptWithVersion(ciphertext []byte, keyID string) ([]byte, error) {
	version, err := km.GetKeyByID(keyID)
	if err != nil {
		return nil, err
	}
	return Decrypt(ciphertext, version.Key)
}

// Reseal re-encrypts material sealed under an old key with the active key.
func (km *KeyManager) Reseal(oldCiphertext []byte, oldKeyID string) (newCiphertext []byte, newKeyID string, err error) {
	plaintext, err := km.DecryptWithVersion(oldCiphertext, oldKeyID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decrypt with old key: %w", err)
	}

	return km.EncryptWithVersion(plaintext)
}
