package secrets

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harbor/pkg/crypto"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	key, err := crypto.GenerateRandomKey()
	require.NoError(t, err)
	store, err := New(key)
	require.NoError(t, err)
	return store
}

func TestStoreEncryptDecryptRoundTrip(t *testing.T) {
	store := newTestStore(t)

	plaintext := []byte(`{"api_key":"sk-verysecretvalue12345"}`)
	sealed, err := store.Encrypt(plaintext)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(sealed, []byte("verysecret")))

	opened, err := store.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestStoreGeneratesEphemeralKeyWhenAbsent(t *testing.T) {
	store, err := New(nil)
	require.NoError(t, err)

	require.NoError(t, store.StoreCredential("k", "ephemeral-value"))
	value, err := store.GetCredential("k")
	require.NoError(t, err)
	assert.Equal(t, "ephemeral-value", value)
}

func TestCredentialLifecycle(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.StoreCredential("weather/API_KEY", "wk-123456789"))
	require.NoError(t, store.StoreCredential("weather/TOKEN", "wt-987654321"))
	require.NoError(t, store.StoreCredential("planning/API_KEY", "pk-aaaabbbb"))

	value, err := store.GetCredential("weather/API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "wk-123456789", value)

	assert.Equal(t, []string{"planning/API_KEY", "weather/API_KEY", "weather/TOKEN"}, store.CredentialNames())

	// Clearing one client's scope leaves the other untouched.
	assert.Equal(t, 2, store.ClearScope("weather/"))
	_, err = store.GetCredential("weather/API_KEY")
	assert.Error(t, err)
	_, err = store.GetCredential("planning/API_KEY")
	assert.NoError(t, err)

	store.ClearCredential("planning/API_KEY")
	assert.Empty(t, store.CredentialNames())

	// Clearing again is a no-op.
	store.ClearCredential("planning/API_KEY")
	assert.Equal(t, 0, store.ClearScope("weather/"))
}

func TestGetCredentialUnknown(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetCredential("missing")
	assert.Error(t, err)
}

func TestMaskSensitiveCoversStoredCredentials(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.StoreCredential("weather/API_KEY", "wk-123456789"))

	masked := store.MaskSensitive("spawning with WK-123456789 in env")
	assert.NotContains(t, masked, "123456789")
	assert.Contains(t, masked, redacted)
}
