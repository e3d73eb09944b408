package services

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"harbor/internal/logging"
	"harbor/internal/policy"
	"harbor/pkg/models"
)

// ExecuteTool routes one tool call: resolve candidates (JIT-activating
// declared owners if none is live), narrow by the caller's policy, dispatch
// to the first eligible client in the router's deterministic order, and wrap
// any downstream failure.
func (h *Host) ExecuteTool(ctx context.Context, callerPolicy *models.CallerPolicy, name string, arguments map[string]interface{}) (*models.ToolResult, error) {
	tracer := otel.Tracer("harbor-host")
	ctx, span := tracer.Start(ctx, "host.execute_tool",
		trace.WithAttributes(attribute.String("tool.name", name)),
	)
	defer span.End()

	clientID, conn, err := h.route(ctx, models.KindTool, name, callerPolicy, ErrNoSuchTool)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("client.id", clientID))

	invocationID := ulid.Make().String()
	started := time.Now()
	result, err := conn.CallTool(ctx, name, arguments)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: tool %s on client %s: %v", ErrExecutionFailed, name, clientID, err)
	}

	return &models.ToolResult{
		InvocationID: invocationID,
		ClientID:     clientID,
		ToolName:     name,
		Duration:     time.Since(started),
		Result:       result,
	}, nil
}

// GetPrompt routes one prompt fetch with the same candidate/policy shape as
// ExecuteTool.
func (h *Host) GetPrompt(ctx context.Context, callerPolicy *models.CallerPolicy, name string, arguments map[string]string) (*models.PromptResult, error) {
	clientID, conn, err := h.route(ctx, models.KindPrompt, name, callerPolicy, ErrNoSuchPrompt)
	if err != nil {
		return nil, err
	}

	result, err := conn.GetPrompt(ctx, name, arguments)
	if err != nil {
		return nil, fmt.Errorf("%w: prompt %s on client %s: %v", ErrExecutionFailed, name, clientID, err)
	}
	result.InvocationID = ulid.Make().String()
	result.ClientID = clientID
	return result, nil
}

// ReadResource routes one resource read. Resources are routed by URI.
func (h *Host) ReadResource(ctx context.Context, callerPolicy *models.CallerPolicy, uri string) (*models.ResourceResult, error) {
	clientID, conn, err := h.route(ctx, models.KindResource, uri, callerPolicy, ErrNoSuchResource)
	if err != nil {
		return nil, err
	}
	if !h.rootsOf.IsURIWithinRoots(clientID, uri) {
		return nil, fmt.Errorf("%w: resource %s is outside the permitted roots of client %s", ErrNoEligibleClient, uri, clientID)
	}

	contents, err := conn.ReadResource(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("%w: resource %s on client %s: %v", ErrExecutionFailed, uri, clientID, err)
	}

	return &models.ResourceResult{
		InvocationID: ulid.Make().String(),
		ClientID:     clientID,
		URI:          uri,
		Contents:     contents,
	}, nil
}

// route picks the serving connection for one request. Caller exclusion is
// applied strictly at request time, independent of activation order: a
// client started for one caller is reused unfiltered by later callers, and
// each request is judged only against its own policy.
func (h *Host) route(ctx context.Context, kind models.ComponentKind, name string, callerPolicy *models.CallerPolicy, notFound error) (string, Connection, error) {
	if callerPolicy == nil {
		callerPolicy = &models.CallerPolicy{}
	}

	candidates := h.router.ClientsFor(kind, name)
	if len(candidates) == 0 {
		h.activateDeclaredOwners(ctx, kind, name)
		candidates = h.router.ClientsFor(kind, name)
	}
	if len(candidates) == 0 {
		return "", nil, fmt.Errorf("%w: %s", notFound, name)
	}

	eligible := policy.FilterClients(candidates, callerPolicy.AllowClients)
	if len(eligible) == 0 {
		return "", nil, fmt.Errorf("%w: %s %s", ErrNoEligibleClient, kind, name)
	}

	if !policy.IsComponentAllowedForAgent(name, callerPolicy.ExcludeComponents) {
		return "", nil, fmt.Errorf("%w: %s %s", ErrComponentExcluded, kind, name)
	}

	for _, clientID := range eligible {
		h.mu.RLock()
		entry, exists := h.clients[clientID]
		var conn Connection
		if exists && entry.state == models.StateActive {
			conn = entry.conn
		}
		h.mu.RUnlock()

		if conn != nil {
			return clientID, conn, nil
		}
	}
	return "", nil, fmt.Errorf("%w: %s %s", ErrNoEligibleClient, kind, name)
}

// activateDeclaredOwners JIT-activates every statically-known client that
// declares the component and is still unregistered. Activation failures are
// logged; the request then fails on the empty candidate set.
func (h *Host) activateDeclaredOwners(ctx context.Context, kind models.ComponentKind, name string) {
	h.mu.RLock()
	var owners []string
	for id, descriptor := range h.static {
		if declaresComponent(descriptor, kind, name) {
			owners = append(owners, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range owners {
		if h.ClientState(id) != models.StateUnregistered {
			continue
		}
		if err := h.EnsureClientActive(ctx, id); err != nil {
			logging.Error("JIT activation of client %s for %s %s failed: %v", id, kind, name, err)
		}
	}
}

func declaresComponent(descriptor models.ClientDescriptor, kind models.ComponentKind, name string) bool {
	var declared []string
	switch kind {
	case models.KindTool:
		declared = descriptor.DeclaredTools
	case models.KindPrompt:
		declared = descriptor.DeclaredPrompts
	case models.KindResource:
		declared = descriptor.DeclaredResources
	}
	for _, candidate := range declared {
		if candidate == name {
			return true
		}
	}
	return false
}

// ListComponents returns the catalog visible to a caller: everything
// registered by live clients plus the declared components of
// statically-known clients that have not started yet, filtered through the
// caller's policy.
func (h *Host) ListComponents(callerPolicy *models.CallerPolicy) []models.Component {
	catalog := h.router.Catalog(models.KindTool)
	catalog = append(catalog, h.router.Catalog(models.KindPrompt)...)
	catalog = append(catalog, h.router.Catalog(models.KindResource)...)

	seen := make(map[string]bool, len(catalog))
	for _, component := range catalog {
		seen[component.Kind.String()+"\x00"+component.Name] = true
	}

	h.mu.RLock()
	for id, descriptor := range h.static {
		if _, live := h.clients[id]; live {
			continue
		}
		for _, component := range declaredComponents(descriptor) {
			key := component.Kind.String() + "\x00" + component.Name
			if !seen[key] {
				seen[key] = true
				catalog = append(catalog, component)
			}
		}
	}
	h.mu.RUnlock()

	return policy.FilterComponentList(catalog, callerPolicy, h.ownersOf)
}

// ownersOf reports every client that serves or declares a component, live
// owners first in router order.
func (h *Host) ownersOf(kind models.ComponentKind, name string) []string {
	owners := h.router.ClientsFor(kind, name)
	known := make(map[string]bool, len(owners))
	for _, id := range owners {
		known[id] = true
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, descriptor := range h.static {
		if _, live := h.clients[id]; live {
			continue
		}
		if !known[id] && declaresComponent(descriptor, kind, name) {
			owners = append(owners, id)
		}
	}
	return owners
}

func declaredComponents(descriptor models.ClientDescriptor) []models.Component {
	components := make([]models.Component, 0,
		len(descriptor.DeclaredTools)+len(descriptor.DeclaredPrompts)+len(descriptor.DeclaredResources))
	for _, name := range descriptor.DeclaredTools {
		components = append(components, models.Component{Kind: models.KindTool, Name: name})
	}
	for _, name := range descriptor.DeclaredPrompts {
		components = append(components, models.Component{Kind: models.KindPrompt, Name: name})
	}
	for _, name := range descriptor.DeclaredResources {
		components = append(components, models.Component{Kind: models.KindResource, Name: name, URI: name})
	}
	return components
}
