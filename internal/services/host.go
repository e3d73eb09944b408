package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"harbor/internal/logging"
	"harbor/internal/policy"
	"harbor/internal/roots"
	"harbor/internal/router"
	"harbor/internal/secrets"
	"harbor/pkg/models"
)

// shutdownConcurrency bounds how many clients are stopped in parallel
// during Shutdown.
const shutdownConcurrency = 4

// Connection is what the host needs from a live tool server link.
// ProcessManager's ClientConnection is the production implementation.
type Connection interface {
	Components() []models.Component
	CallTool(ctx context.Context, name string, arguments map[string]interface{}) (interface{}, error)
	GetPrompt(ctx context.Context, name string, arguments map[string]string) (*models.PromptResult, error)
	ReadResource(ctx context.Context, uri string) ([]models.ResourceContent, error)
	Close(ctx context.Context) error
}

type clientStarter interface {
	StartClient(ctx context.Context, descriptor models.ClientDescriptor) (Connection, error)
}

// managerStarter adapts ProcessManager's concrete return type to the
// Connection interface.
type managerStarter struct {
	pm *ProcessManager
}

func (s managerStarter) StartClient(ctx context.Context, descriptor models.ClientDescriptor) (Connection, error) {
	conn, err := s.pm.StartClient(ctx, descriptor)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type clientEntry struct {
	descriptor models.ClientDescriptor
	state      models.ClientState
	conn       Connection
}

// Host composes the process manager, capability router, access filter,
// root registry, and secret store into the public orchestration surface.
// All operations are safe under concurrent invocation; per-client entries
// are reserved under the host mutex but processes are spawned outside it,
// so registrations of distinct clients proceed independently.
type Host struct {
	starter     clientStarter
	router      *router.CapabilityRouter
	rootsOf     *roots.Registry
	secretStore *secrets.Store

	mu sync.RWMutex
	// clients holds reserved, starting, and active entries; static holds
	// descriptors known for JIT activation but not running.
	clients map[string]*clientEntry
	static  map[string]models.ClientDescriptor

	activation singleflight.Group
}

// Option configures a Host at construction time.
type Option func(*ProcessManager)

// WithHandshakeTimeout overrides the default handshake timeout applied to
// descriptors without a TimeoutSeconds of their own.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(pm *ProcessManager) {
		if d > 0 {
			pm.handshakeTimeout = d
		}
	}
}

func NewHost(secretStore *secrets.Store, opts ...Option) *Host {
	pm := NewProcessManager(secretStore)
	for _, opt := range opts {
		opt(pm)
	}
	return &Host{
		starter:     managerStarter{pm: pm},
		router:      router.New(),
		rootsOf:     roots.New(),
		secretStore: secretStore,
		clients:     make(map[string]*clientEntry),
		static:      make(map[string]models.ClientDescriptor),
	}
}

func validateDescriptor(descriptor models.ClientDescriptor) error {
	if descriptor.ID == "" {
		return fmt.Errorf("%w: empty client ID", ErrInvalidDescriptor)
	}
	if (descriptor.Command == "") == (descriptor.URL == "") {
		return fmt.Errorf("%w: client %s must set exactly one of command or url", ErrInvalidDescriptor, descriptor.ID)
	}
	return nil
}

// AddStaticClient records a descriptor for later activation without
// starting its process. The first request needing one of its declared
// components spawns it transparently.
func (h *Host) AddStaticClient(descriptor models.ClientDescriptor) error {
	if err := validateDescriptor(descriptor); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.static[descriptor.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateClient, descriptor.ID)
	}
	if _, exists := h.clients[descriptor.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateClient, descriptor.ID)
	}
	h.static[descriptor.ID] = descriptor
	return nil
}

// RegisterClient spawns and hand-shakes a tool server, then registers every
// discovered component that survives the client's own exclude list.
// All-or-nothing: a failure at any step leaves no routing entries, no
// roots, no retained credentials, and no client entry behind.
func (h *Host) RegisterClient(ctx context.Context, descriptor models.ClientDescriptor) error {
	tracer := otel.Tracer("harbor-host")
	ctx, span := tracer.Start(ctx, "host.register_client",
		trace.WithAttributes(attribute.String("client.id", descriptor.ID)),
	)
	defer span.End()

	if err := validateDescriptor(descriptor); err != nil {
		span.RecordError(err)
		return err
	}

	// Reserve the ID before spawning so a concurrent registration of the
	// same client fails fast instead of racing the handshake.
	h.mu.Lock()
	if _, exists := h.clients[descriptor.ID]; exists {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateClient, descriptor.ID)
	}
	h.clients[descriptor.ID] = &clientEntry{descriptor: descriptor, state: models.StateStarting}
	h.mu.Unlock()

	conn, err := h.starter.StartClient(ctx, descriptor)
	if err != nil {
		// Release the reservation and drop any credentials the startup
		// sequence retained before it failed.
		h.mu.Lock()
		delete(h.clients, descriptor.ID)
		h.mu.Unlock()
		h.secretStore.ClearScope(descriptor.ID + "/")
		span.RecordError(err)
		return err
	}

	flags := descriptor.Capabilities
	registered := 0
	excluded := 0
	components := conn.Components()
	for _, component := range components {
		if !policy.IsRegistrationAllowed(component.Name, descriptor.ExcludeComponents) {
			excluded++
			logging.Debug("client %s: component %s excluded at registration", descriptor.ID, component.Name)
			continue
		}
		switch component.Kind {
		case models.KindTool:
			flags.Tools = true
		case models.KindPrompt:
			flags.Prompts = true
		case models.KindResource:
			flags.Resources = true
		}
		h.router.RegisterComponent(component, descriptor.ID)
		registered++
	}
	h.router.RegisterClient(descriptor.ID, flags, descriptor.Weight)
	h.rootsOf.SetRoots(descriptor.ID, descriptor.Roots)

	h.mu.Lock()
	entry := h.clients[descriptor.ID]
	entry.state = models.StateActive
	entry.conn = conn
	h.mu.Unlock()

	span.SetAttributes(
		attribute.Int("client.components_registered", registered),
		attribute.Int("client.components_excluded", excluded),
	)
	logging.Info("registered client %s: %d components (%d excluded)", descriptor.ID, registered, excluded)
	return nil
}

// UnregisterClient stops a client and removes every trace of it: routing
// entries, roots, and client-scoped credentials. Unregistering an unknown
// or already-unregistered ID is a safe no-op.
func (h *Host) UnregisterClient(ctx context.Context, clientID string) error {
	h.mu.Lock()
	entry, exists := h.clients[clientID]
	if !exists {
		h.mu.Unlock()
		return nil
	}
	if entry.state == models.StateStopping {
		// A concurrent unregister is already tearing this client down.
		h.mu.Unlock()
		return nil
	}
	if entry.state != models.StateActive {
		h.mu.Unlock()
		return fmt.Errorf("client %s is %s, cannot unregister", clientID, entry.state)
	}
	entry.state = models.StateStopping
	conn := entry.conn
	h.mu.Unlock()

	h.router.UnregisterClient(clientID)
	h.rootsOf.RemoveClient(clientID)
	h.secretStore.ClearScope(clientID + "/")

	if err := conn.Close(ctx); err != nil {
		logging.Error("failed to stop client %s cleanly: %v", clientID, err)
	}

	h.mu.Lock()
	delete(h.clients, clientID)
	h.mu.Unlock()

	logging.Info("unregistered client %s", clientID)
	return nil
}

// Shutdown stops every active client with bounded parallelism. It is
// best-effort per client: failures are logged and the rest of the fleet
// still comes down.
func (h *Host) Shutdown(ctx context.Context) error {
	h.mu.RLock()
	ids := make([]string, 0, len(h.clients))
	for id, entry := range h.clients {
		if entry.state == models.StateActive {
			ids = append(ids, id)
		}
	}
	h.mu.RUnlock()

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(shutdownConcurrency)
	for _, id := range ids {
		group.Go(func() error {
			if err := h.UnregisterClient(ctx, id); err != nil {
				logging.Error("shutdown: failed to stop client %s: %v", id, err)
			}
			return nil
		})
	}
	group.Wait()

	logging.Info("host shutdown complete (%d clients stopped)", len(ids))
	return nil
}

// EnsureClientActive transparently registers a statically-known client that
// has not started yet. Concurrent calls for the same ID collapse into a
// single spawn; every caller shares its outcome.
func (h *Host) EnsureClientActive(ctx context.Context, clientID string) error {
	if h.ClientState(clientID) == models.StateActive {
		return nil
	}

	_, err, _ := h.activation.Do(clientID, func() (interface{}, error) {
		if h.ClientState(clientID) == models.StateActive {
			return nil, nil
		}

		h.mu.RLock()
		descriptor, known := h.static[clientID]
		h.mu.RUnlock()
		if !known {
			return nil, fmt.Errorf("%w: %s", ErrUnknownClient, clientID)
		}

		if err := h.RegisterClient(ctx, descriptor); err != nil {
			// A racing direct registration already made it active.
			if errors.Is(err, ErrDuplicateClient) && h.ClientState(clientID) == models.StateActive {
				return nil, nil
			}
			return nil, err
		}
		return nil, nil
	})
	return err
}

// IsClientRegistered reports whether the client is active.
func (h *Host) IsClientRegistered(clientID string) bool {
	return h.ClientState(clientID) == models.StateActive
}

// ClientState returns the lifecycle state of a client ID. IDs the host has
// never seen are simply unregistered.
func (h *Host) ClientState(clientID string) models.ClientState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if entry, exists := h.clients[clientID]; exists {
		return entry.state
	}
	return models.StateUnregistered
}
