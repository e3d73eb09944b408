package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harbor/pkg/crypto"
)

// fakeProvider records call concurrency and fails for configured paths.
type fakeProvider struct {
	name     string
	failFor  map[string]bool
	inFlight int32
	peak     int32
	mu       sync.Mutex
}

func (p *fakeProvider) Name() string                            { return p.name }
func (p *fakeProvider) Validate(ctx context.Context) error      { return nil }
func (p *fakeProvider) GetSecret(ctx context.Context, path, key string) (string, error) {
	current := atomic.AddInt32(&p.inFlight, 1)
	defer atomic.AddInt32(&p.inFlight, -1)

	p.mu.Lock()
	if current > p.peak {
		p.peak = current
	}
	p.mu.Unlock()

	if p.failFor[path] {
		return "", errors.New("backend unavailable")
	}
	return "value-of-" + path, nil
}

func TestResolveExternalSecrets(t *testing.T) {
	store := newTestStore(t)
	store.RegisterProvider(&fakeProvider{name: "fake"})

	resolved := store.ResolveExternalSecrets(context.Background(), map[string]string{
		"API_KEY": "fake:alpha",
		"TOKEN":   "fake:beta#field",
	})

	assert.Equal(t, map[string]string{
		"API_KEY": "value-of-alpha",
		"TOKEN":   "value-of-beta",
	}, resolved)

	// Resolved values are registered for masking.
	assert.NotContains(t, store.MaskSensitive("got value-of-alpha"), "value-of-alpha")
}

func TestResolveOmitsFailuresWithoutAbortingBatch(t *testing.T) {
	store := newTestStore(t)
	store.RegisterProvider(&fakeProvider{name: "fake", failFor: map[string]bool{"broken": true}})

	resolved := store.ResolveExternalSecrets(context.Background(), map[string]string{
		"GOOD":   "fake:alpha",
		"BAD":    "fake:broken",
		"WEIRD":  "malformed-no-scheme",
		"ORPHAN": "ghost:path",
	})

	assert.Equal(t, map[string]string{"GOOD": "value-of-alpha"}, resolved)
}

func TestResolveBoundsWorkerPool(t *testing.T) {
	key, err := crypto.GenerateRandomKey()
	require.NoError(t, err)
	store, err := New(key, WithWorkers(2))
	require.NoError(t, err)

	provider := &fakeProvider{name: "fake"}
	store.RegisterProvider(provider)

	refs := make(map[string]string, 20)
	for i := 0; i < 20; i++ {
		refs[string(rune('A'+i))] = "fake:path"
	}

	resolved := store.ResolveExternalSecrets(context.Background(), refs)
	assert.Len(t, resolved, 20)
	assert.LessOrEqual(t, provider.peak, int32(2), "worker pool exceeded its bound")
}

func TestResolveEmptyBatch(t *testing.T) {
	store := newTestStore(t)
	assert.Empty(t, store.ResolveExternalSecrets(context.Background(), nil))
}

func TestEnvProvider(t *testing.T) {
	t.Setenv("HARBOR_TEST_SECRET", "from-env")
	store := newTestStore(t)

	resolved := store.ResolveExternalSecrets(context.Background(), map[string]string{
		"SET":   "env:HARBOR_TEST_SECRET",
		"UNSET": "env:HARBOR_TEST_SECRET_MISSING",
	})
	assert.Equal(t, map[string]string{"SET": "from-env"}, resolved)
}

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()

	plain := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(plain, []byte("  file-secret\n"), 0o600))

	structured := filepath.Join(dir, "creds.json")
	require.NoError(t, os.WriteFile(structured, []byte(`{"api_key":"json-secret","other":7}`), 0o600))

	provider := NewFileProvider()

	value, err := provider.GetSecret(context.Background(), plain, "")
	require.NoError(t, err)
	assert.Equal(t, "file-secret", value)

	value, err = provider.GetSecret(context.Background(), structured, "api_key")
	require.NoError(t, err)
	assert.Equal(t, "json-secret", value)

	_, err = provider.GetSecret(context.Background(), structured, "missing")
	assert.Error(t, err)

	_, err = provider.GetSecret(context.Background(), filepath.Join(dir, "nope"), "")
	assert.Error(t, err)
}

func TestSplitRef(t *testing.T) {
	scheme, path, key, err := splitRef("vault:secret/data/weather#api_key")
	require.NoError(t, err)
	assert.Equal(t, "vault", scheme)
	assert.Equal(t, "secret/data/weather", path)
	assert.Equal(t, "api_key", key)

	_, _, _, err = splitRef("no-scheme")
	assert.Error(t, err)
	_, _, _, err = splitRef(":empty")
	assert.Error(t, err)
}
