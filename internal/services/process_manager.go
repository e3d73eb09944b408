package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"harbor/internal/logging"
	"harbor/internal/secrets"
	"harbor/pkg/models"
)

const (
	defaultHandshakeTimeout = 30 * time.Second
	hostClientName          = "Harbor Tool Server Host"
	hostClientVersion       = "1.0.0"
)

// ProcessManager spawns tool server processes and runs the MCP handshake
// and discovery sequence. Each successful StartClient hands back a
// ClientConnection that exclusively owns the subprocess and its pipes; on
// any failure the subprocess is terminated before the error returns, so a
// partial connection is never observable.
type ProcessManager struct {
	secrets *secrets.Store
	// handshakeTimeout bounds the Start/Initialize/discovery sequence for
	// descriptors that carry no TimeoutSeconds of their own.
	handshakeTimeout time.Duration
}

func NewProcessManager(secretStore *secrets.Store) *ProcessManager {
	return &ProcessManager{
		secrets:          secretStore,
		handshakeTimeout: defaultHandshakeTimeout,
	}
}

// StartClient runs the strictly-ordered startup sequence: resolve
// secret-backed environment values, spawn the subprocess, initialize
// handshake under a timeout, then discover the server's tool, prompt, and
// resource lists.
func (pm *ProcessManager) StartClient(ctx context.Context, descriptor models.ClientDescriptor) (*ClientConnection, error) {
	tracer := otel.Tracer("harbor-procman")
	ctx, span := tracer.Start(ctx, "client.start",
		trace.WithAttributes(
			attribute.String("client.id", descriptor.ID),
		),
	)
	defer span.End()

	env, err := pm.buildEnvironment(ctx, descriptor)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	mcpTransport, err := pm.createTransport(descriptor, env)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrProcessSpawnFailure, err)
	}

	timeout := pm.handshakeTimeout
	if descriptor.TimeoutSeconds != nil && *descriptor.TimeoutSeconds > 0 {
		timeout = time.Duration(*descriptor.TimeoutSeconds) * time.Second
	}
	handshakeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	mcpClient := client.NewClient(mcpTransport)

	if err := mcpClient.Start(handshakeCtx); err != nil {
		mcpClient.Close()
		span.RecordError(err)
		return nil, pm.classifyStartupError(handshakeCtx, err, ErrProcessSpawnFailure, descriptor.ID)
	}

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    hostClientName,
		Version: hostClientVersion,
	}
	initRequest.Params.Capabilities = mcp.ClientCapabilities{}

	// mcp-go sends the initialized acknowledgement itself once the server
	// responds.
	initResult, err := mcpClient.Initialize(handshakeCtx, initRequest)
	if err != nil {
		mcpClient.Close()
		span.RecordError(err)
		return nil, pm.classifyStartupError(handshakeCtx, err, ErrProtocolMismatch, descriptor.ID)
	}
	if initResult.ProtocolVersion == "" {
		mcpClient.Close()
		return nil, fmt.Errorf("%w: server %s reported no protocol version", ErrProtocolMismatch, descriptor.ID)
	}

	components, err := pm.discoverComponents(handshakeCtx, mcpClient, initResult)
	if err != nil {
		mcpClient.Close()
		span.RecordError(err)
		return nil, pm.classifyStartupError(handshakeCtx, err, ErrProcessSpawnFailure, descriptor.ID)
	}

	span.SetAttributes(
		attribute.Int("client.components", len(components)),
		attribute.String("client.protocol_version", initResult.ProtocolVersion),
	)
	logging.Info("client %s connected: server %s %s, protocol %s, %d components",
		descriptor.ID, initResult.ServerInfo.Name, initResult.ServerInfo.Version,
		initResult.ProtocolVersion, len(components))

	return &ClientConnection{
		clientID:        descriptor.ID,
		client:          mcpClient,
		protocolVersion: initResult.ProtocolVersion,
		serverName:      initResult.ServerInfo.Name,
		serverVersion:   initResult.ServerInfo.Version,
		components:      components,
	}, nil
}

// buildEnvironment merges static env values with resolved secret references.
// Resolved values are recorded as client-scoped credentials so the host can
// clear them at unregister, and registered with the masker before anything
// is logged.
func (pm *ProcessManager) buildEnvironment(ctx context.Context, descriptor models.ClientDescriptor) ([]string, error) {
	env := make([]string, 0, len(descriptor.Env)+len(descriptor.SecretRefs))
	for key, value := range descriptor.Env {
		env = append(env, key+"="+value)
	}

	if len(descriptor.SecretRefs) == 0 {
		return env, nil
	}

	resolved := pm.secrets.ResolveExternalSecrets(ctx, descriptor.SecretRefs)
	for key, value := range resolved {
		if err := pm.secrets.StoreCredential(descriptor.ID+"/"+key, value); err != nil {
			return nil, fmt.Errorf("failed to retain credential %s for client %s: %w", key, descriptor.ID, err)
		}
		env = append(env, key+"="+value)
	}
	return env, nil
}

func (pm *ProcessManager) createTransport(descriptor models.ClientDescriptor, env []string) (transport.Interface, error) {
	if descriptor.Command != "" {
		return transport.NewStdio(descriptor.Command, env, descriptor.Args...), nil
	}
	if descriptor.URL != "" {
		if _, err := url.Parse(descriptor.URL); err != nil {
			return nil, fmt.Errorf("invalid URL for client %s: %v", descriptor.ID, err)
		}
		return transport.NewSSE(descriptor.URL)
	}
	return nil, fmt.Errorf("client %s has neither command nor URL", descriptor.ID)
}

// discoverComponents queries the server for each component class its
// capability response advertises.
func (pm *ProcessManager) discoverComponents(ctx context.Context, mcpClient *client.Client, initResult *mcp.InitializeResult) ([]models.Component, error) {
	var components []models.Component

	if initResult.Capabilities.Tools != nil {
		toolsResult, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			return nil, fmt.Errorf("failed to list tools: %v", err)
		}
		for _, tool := range toolsResult.Tools {
			schema, _ := json.Marshal(tool.InputSchema)
			components = append(components, models.Component{
				Kind:        models.KindTool,
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: schema,
			})
		}
	}

	if initResult.Capabilities.Prompts != nil {
		promptsResult, err := mcpClient.ListPrompts(ctx, mcp.ListPromptsRequest{})
		if err != nil {
			return nil, fmt.Errorf("failed to list prompts: %v", err)
		}
		for _, prompt := range promptsResult.Prompts {
			components = append(components, models.Component{
				Kind:        models.KindPrompt,
				Name:        prompt.Name,
				Description: prompt.Description,
			})
		}
	}

	if initResult.Capabilities.Resources != nil {
		resourcesResult, err := mcpClient.ListResources(ctx, mcp.ListResourcesRequest{})
		if err != nil {
			return nil, fmt.Errorf("failed to list resources: %v", err)
		}
		for _, resource := range resourcesResult.Resources {
			components = append(components, models.Component{
				Kind:        models.KindResource,
				Name:        resource.URI,
				Description: resource.Description,
				URI:         resource.URI,
				MIMEType:    resource.MIMEType,
			})
		}
	}

	return components, nil
}

// classifyStartupError maps a startup failure to its typed error. A blown
// handshake deadline always wins over the step-specific fallback.
func (pm *ProcessManager) classifyStartupError(ctx context.Context, err error, fallback error, clientID string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: client %s: %v", ErrHandshakeTimeout, clientID, err)
	}
	return fmt.Errorf("%w: client %s: %v", fallback, clientID, err)
}
