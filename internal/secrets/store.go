// Package secrets holds credentials for tool server processes: an encrypted
// in-memory credential map, resolution of external secret references, and
// best-effort masking of secret material in log output.
package secrets

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"harbor/internal/logging"
	"harbor/pkg/crypto"
)

// Store keeps credentials encrypted in memory for the lifetime of the
// process. It is explicitly non-durable and unsuitable as production secret
// storage; its job is to keep plaintext secrets out of heap dumps and logs
// between spawn-time resolution and process injection.
type Store struct {
	key     *crypto.Key
	masker  *Masker
	workers int

	mu    sync.RWMutex
	creds map[string][]byte // credential name -> sealed value

	providersMu sync.RWMutex
	providers   map[string]Provider // scheme -> provider
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithWorkers overrides the size of the worker pool used for external
// secret resolution. Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.workers = n
		}
	}
}

// New creates a store sealed with the supplied key. A nil key generates a
// process-lifetime random key, which is unsafe whenever independent
// processes need to share sealed material, so it is logged loudly.
func New(key *crypto.Key, opts ...Option) (*Store, error) {
	if key == nil {
		generated, err := crypto.GenerateRandomKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate ephemeral encryption key: %w", err)
		}
		key = generated
		logging.Warn("no encryption key configured; using an ephemeral random key (sealed material will not survive this process, set HARBOR_ENCRYPTION_KEY to share a key)")
	}

	s := &Store{
		key:       key,
		masker:    NewMasker(),
		workers:   defaultResolveWorkers(),
		creds:     make(map[string][]byte),
		providers: make(map[string]Provider),
	}
	for _, p := range builtinProviders() {
		s.providers[p.Name()] = p
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Encrypt seals arbitrary data with the store's key.
func (s *Store) Encrypt(data []byte) ([]byte, error) {
	return crypto.Encrypt(data, s.key)
}

// Decrypt opens data sealed by Encrypt.
func (s *Store) Decrypt(ciphertext []byte) ([]byte, error) {
	return crypto.Decrypt(ciphertext, s.key)
}

// StoreCredential seals a credential value under a name. The value is also
// registered with the masker so it never appears verbatim in logs.
func (s *Store) StoreCredential(name, value string) error {
	sealed, err := crypto.Encrypt([]byte(value), s.key)
	if err != nil {
		return fmt.Errorf("failed to seal credential %s: %w", name, err)
	}

	s.mu.Lock()
	s.creds[name] = sealed
	s.mu.Unlock()

	s.masker.AddSecret(value)
	return nil
}

// GetCredential opens and returns a stored credential.
func (s *Store) GetCredential(name string) (string, error) {
	s.mu.RLock()
	sealed, ok := s.creds[name]
	s.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("credential %s not found", name)
	}

	value, err := crypto.Decrypt(sealed, s.key)
	if err != nil {
		return "", fmt.Errorf("failed to open credential %s: %w", name, err)
	}
	return string(value), nil
}

// ClearCredential removes one credential. Unknown names are a no-op.
func (s *Store) ClearCredential(name string) {
	s.mu.Lock()
	delete(s.creds, name)
	s.mu.Unlock()
}

// ClearScope removes every credential whose name starts with prefix.
// Client-scoped credentials are stored as "<clientID>/<env name>" so an
// unregistering client can drop all of its material in one call.
func (s *Store) ClearScope(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := 0
	for name := range s.creds {
		if strings.HasPrefix(name, prefix) {
			delete(s.creds, name)
			cleared++
		}
	}
	return cleared
}

// CredentialNames lists the stored credential names, sorted. Values are
// never listed.
func (s *Store) CredentialNames() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.creds))
	for name := range s.creds {
		names = append(names, name)
	}
	s.mu.RUnlock()

	sort.Strings(names)
	return names
}

// MaskSensitive redacts known secret values and secret-shaped substrings
// from text before it reaches a log line. Best effort only; this is log
// hygiene, not a security boundary.
func (s *Store) MaskSensitive(text string) string {
	return s.masker.Mask(text)
}

// RegisterProvider installs or replaces the resolver for a reference scheme.
func (s *Store) RegisterProvider(p Provider) {
	s.providersMu.Lock()
	defer s.providersMu.Unlock()
	s.providers[p.Name()] = p
}

func (s *Store) providerFor(scheme string) (Provider, bool) {
	s.providersMu.RLock()
	defer s.providersMu.RUnlock()
	p, ok := s.providers[scheme]
	return p, ok
}
