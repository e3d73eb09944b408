// Package roots tracks the resource-root URIs each registered client is
// permitted to operate within.
package roots

import (
	"fmt"
	"strings"
	"sync"
)

// Registry is a mutex-guarded map of client ID to normalized root URIs.
// Reads return copies.
type Registry struct {
	mu    sync.RWMutex
	roots map[string][]string
}

func New() *Registry {
	return &Registry{roots: make(map[string][]string)}
}

// SetRoots records the permitted roots for a client, replacing any previous
// set. URIs are normalized (trailing slash stripped) and deduplicated.
func (r *Registry) SetRoots(clientID string, uris []string) {
	normalized := make([]string, 0, len(uris))
	seen := make(map[string]bool, len(uris))
	for _, uri := range uris {
		uri = normalize(uri)
		if uri == "" || seen[uri] {
			continue
		}
		seen[uri] = true
		normalized = append(normalized, uri)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.roots[clientID] = normalized
}

// RootsOf returns a copy of the client's permitted roots. Unknown clients
// return an error so callers can distinguish "no roots" from "no client".
func (r *Registry) RootsOf(clientID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	uris, ok := r.roots[clientID]
	if !ok {
		return nil, fmt.Errorf("client %s is not known to the root registry", clientID)
	}
	out := make([]string, len(uris))
	copy(out, uris)
	return out, nil
}

// IsClientKnown reports whether the client has a root entry.
func (r *Registry) IsClientKnown(clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.roots[clientID]
	return ok
}

// IsURIWithinRoots reports whether the URI falls under one of the client's
// permitted roots. A client with an empty root set is unrestricted.
func (r *Registry) IsURIWithinRoots(clientID, uri string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	uris, ok := r.roots[clientID]
	if !ok {
		return false
	}
	if len(uris) == 0 {
		return true
	}

	uri = normalize(uri)
	for _, root := range uris {
		if uri == root || strings.HasPrefix(uri, root+"/") {
			return true
		}
	}
	return false
}

// RemoveClient drops the client's entry. Unknown IDs are a no-op.
func (r *Registry) RemoveClient(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.roots, clientID)
}

func normalize(uri string) string {
	uri = strings.TrimSpace(uri)
	for strings.HasSuffix(uri, "/") && !strings.HasSuffix(uri, "://") {
		uri = strings.TrimSuffix(uri, "/")
	}
	return uri
}
