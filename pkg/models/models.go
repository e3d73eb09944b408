package models

import (
	"encoding/json"
	"time"
)

// ComponentKind tags the three classes of component a tool server can offer.
type ComponentKind int

const (
	KindTool ComponentKind = iota
	KindPrompt
	KindResource
)

func (k ComponentKind) String() string {
	switch k {
	case KindTool:
		return "tool"
	case KindPrompt:
		return "prompt"
	case KindResource:
		return "resource"
	default:
		return "unknown"
	}
}

// CapabilityFlags declares which component classes a client claims to serve.
type CapabilityFlags struct {
	Tools     bool `json:"tools"`
	Prompts   bool `json:"prompts"`
	Resources bool `json:"resources"`
}

// ClientDescriptor is the immutable registration input for one tool server.
// It is produced by the config loader and owned by the host from
// RegisterClient until UnregisterClient.
type ClientDescriptor struct {
	ID      string            `json:"id"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	URL     string            `json:"url,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// SecretRefs maps environment variable names to external secret
	// references (env:NAME, file:/path#KEY, vault:path#KEY). Resolved
	// values are injected into the spawn environment, never logged.
	SecretRefs map[string]string `json:"secret_refs,omitempty"`

	ExcludeComponents []string        `json:"exclude_components,omitempty"`
	Roots             []string        `json:"roots,omitempty"`
	Weight            int             `json:"weight,omitempty"`
	Capabilities      CapabilityFlags `json:"capabilities,omitempty"`
	TimeoutSeconds    *int64          `json:"timeout_seconds,omitempty"`

	// Lazy clients are not started at load time; the host spawns them on
	// the first request that needs one of their declared components.
	Lazy bool `json:"lazy,omitempty"`

	// DeclaredTools lists tool names a lazy client is known to serve
	// before it has ever been started.
	DeclaredTools     []string `json:"declared_tools,omitempty"`
	DeclaredPrompts   []string `json:"declared_prompts,omitempty"`
	DeclaredResources []string `json:"declared_resources,omitempty"`
}

// Component is one named tool, prompt, or resource discovered from (or
// declared by) a client. Kind-specific fields are populated per kind.
type Component struct {
	Kind        ComponentKind   `json:"kind"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"` // tools
	URI         string          `json:"uri,omitempty"`          // resources
	MIMEType    string          `json:"mime_type,omitempty"`    // resources
}

// CallerPolicy scopes one request. A nil AllowClients means every client is
// eligible; ExcludeComponents hides individual components from the caller.
// Policies are supplied per call and never persisted.
type CallerPolicy struct {
	AllowClients      []string `json:"allow_clients,omitempty"`
	ExcludeComponents []string `json:"exclude_components,omitempty"`
}

// ClientState is the host's per-client lifecycle state.
type ClientState int

const (
	StateUnregistered ClientState = iota
	StateStarting
	StateActive
	StateStopping
)

func (s ClientState) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// ToolResult is the outcome of one routed tool call.
type ToolResult struct {
	InvocationID string        `json:"invocation_id"`
	ClientID     string        `json:"client_id"`
	ToolName     string        `json:"tool_name"`
	Duration     time.Duration `json:"duration"`
	Result       interface{}   `json:"result,omitempty"`
}

// PromptMessage is one rendered message of a prompt result.
type PromptMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// PromptResult is the outcome of one routed prompt fetch.
type PromptResult struct {
	InvocationID string          `json:"invocation_id"`
	ClientID     string          `json:"client_id"`
	PromptName   string          `json:"prompt_name"`
	Description  string          `json:"description,omitempty"`
	Messages     []PromptMessage `json:"messages"`
}

// ResourceContent is one returned blob of a resource read.
type ResourceContent struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mime_type,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     []byte `json:"blob,omitempty"`
}

// ResourceResult is the outcome of one routed resource read.
type ResourceResult struct {
	InvocationID string            `json:"invocation_id"`
	ClientID     string            `json:"client_id"`
	URI          string            `json:"uri"`
	Contents     []ResourceContent `json:"contents"`
}
