package services

import "errors"

// Typed errors for the host's public surface. Callers match with errors.Is;
// wrapped causes carry the downstream detail.
var (
	// Configuration errors, rejected synchronously before any spawn.
	ErrInvalidDescriptor = errors.New("invalid client descriptor")
	ErrDuplicateClient   = errors.New("client already registered")
	ErrUnknownClient     = errors.New("unknown client")

	// Transport errors, always followed by full subprocess cleanup.
	ErrProcessSpawnFailure = errors.New("failed to spawn tool server process")
	ErrHandshakeTimeout    = errors.New("tool server handshake timed out")
	ErrProtocolMismatch    = errors.New("tool server protocol mismatch")

	// Policy errors, deterministic given current policy, never retried.
	ErrNoSuchTool        = errors.New("no such tool")
	ErrNoSuchPrompt      = errors.New("no such prompt")
	ErrNoSuchResource    = errors.New("no such resource")
	ErrNoEligibleClient  = errors.New("no eligible client for request")
	ErrComponentExcluded = errors.New("component excluded by caller policy")

	// Downstream execution errors, wrapped without automatic retry.
	ErrExecutionFailed = errors.New("execution failed")
)
