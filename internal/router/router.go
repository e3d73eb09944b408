// Package router maintains the bidirectional index between component names
// and the clients that serve them. The router never picks a winner among
// multiple candidates: ClientsFor returns the full candidate set in a
// deterministic order and leaves selection policy to the caller.
package router

import (
	"sort"
	"sync"

	"harbor/pkg/models"
)

type componentKey struct {
	kind models.ComponentKind
	name string
}

type clientInfo struct {
	flags  models.CapabilityFlags
	weight int
}

// CapabilityRouter is the single serialized-access owner of the routing
// table. The forward (component -> clients) and reverse (client ->
// components) indices are mutated together under one mutex so no reader
// ever observes them out of sync. All accessors return copies.
type CapabilityRouter struct {
	mu sync.RWMutex
	// forward maps component -> serving client IDs; reverse maps client ID
	// -> components. Both are always mutated together.
	forward    map[componentKey]map[string]bool
	reverse    map[string]map[componentKey]bool
	clients    map[string]clientInfo
	components map[componentKey]models.Component
}

func New() *CapabilityRouter {
	return &CapabilityRouter{
		forward:    make(map[componentKey]map[string]bool),
		reverse:    make(map[string]map[componentKey]bool),
		clients:    make(map[string]clientInfo),
		components: make(map[componentKey]models.Component),
	}
}

// RegisterClient records a client's declared capability flags and routing
// weight. Components are added separately via RegisterComponent.
func (r *CapabilityRouter) RegisterClient(clientID string, flags models.CapabilityFlags, weight int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[clientID] = clientInfo{flags: flags, weight: weight}
	if r.reverse[clientID] == nil {
		r.reverse[clientID] = make(map[componentKey]bool)
	}
}

// RegisterComponent adds one (kind, name, clientID) routing entry.
// Registering the same triple twice is a no-op.
func (r *CapabilityRouter) RegisterComponent(component models.Component, clientID string) {
	key := componentKey{kind: component.Kind, name: component.Name}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.forward[key] == nil {
		r.forward[key] = make(map[string]bool)
	}
	r.forward[key][clientID] = true

	if r.reverse[clientID] == nil {
		r.reverse[clientID] = make(map[componentKey]bool)
	}
	r.reverse[clientID][key] = true

	// First registration wins for metadata; re-registration keeps it.
	if _, exists := r.components[key]; !exists {
		r.components[key] = component
	}
}

// UnregisterClient removes every trace of the client from both indices as a
// single atomic operation. Unknown IDs are a no-op.
func (r *CapabilityRouter) UnregisterClient(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.reverse[clientID] {
		owners := r.forward[key]
		delete(owners, clientID)
		if len(owners) == 0 {
			delete(r.forward, key)
			delete(r.components, key)
		}
	}
	delete(r.reverse, clientID)
	delete(r.clients, clientID)
}

// ClientsFor returns the IDs of every client serving the component, sorted
// by descending weight and then ascending client ID. The slice is a
// defensive copy.
func (r *CapabilityRouter) ClientsFor(kind models.ComponentKind, name string) []string {
	key := componentKey{kind: kind, name: name}

	r.mu.RLock()
	ids := make([]string, 0, len(r.forward[key]))
	weights := make(map[string]int, len(r.forward[key]))
	for id := range r.forward[key] {
		ids = append(ids, id)
		weights[id] = r.clients[id].weight
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool {
		if weights[ids[i]] != weights[ids[j]] {
			return weights[ids[i]] > weights[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}

// WeightOf returns the registered routing weight for a client.
func (r *CapabilityRouter) WeightOf(clientID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[clientID].weight
}

// CapabilitiesOf returns the declared capability flags for a client.
func (r *CapabilityRouter) CapabilitiesOf(clientID string) models.CapabilityFlags {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[clientID].flags
}

// IsClientRegistered reports whether the client has a live routing entry.
func (r *CapabilityRouter) IsClientRegistered(clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[clientID]
	return ok
}

// ComponentsOf returns copies of every component the client serves.
func (r *CapabilityRouter) ComponentsOf(clientID string) []models.Component {
	r.mu.RLock()
	defer r.mu.RUnlock()

	components := make([]models.Component, 0, len(r.reverse[clientID]))
	for key := range r.reverse[clientID] {
		components = append(components, r.components[key])
	}
	sortComponents(components)
	return components
}

// Catalog returns copies of every registered component of the given kind.
func (r *CapabilityRouter) Catalog(kind models.ComponentKind) []models.Component {
	r.mu.RLock()
	components := make([]models.Component, 0)
	for key, component := range r.components {
		if key.kind == kind {
			components = append(components, component)
		}
	}
	r.mu.RUnlock()

	sortComponents(components)
	return components
}

func sortComponents(components []models.Component) {
	sort.Slice(components, func(i, j int) bool {
		if components[i].Kind != components[j].Kind {
			return components[i].Kind < components[j].Kind
		}
		return components[i].Name < components[j].Name
	})
}
