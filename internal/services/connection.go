package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"harbor/internal/logging"
	"harbor/pkg/models"
)

const defaultRequestTimeout = 60 * time.Second

// ClientConnection is the live link to one running tool server. It
// exclusively owns the subprocess handle and pipes; nothing outside this
// type touches them. Concurrent calls are multiplexed by JSON-RPC request
// ID inside mcp-go, so requests to the same server are served in submission
// order and one caller's cancellation never corrupts the connection for
// the others.
type ClientConnection struct {
	clientID        string
	client          *client.Client
	protocolVersion string
	serverName      string
	serverVersion   string
	components      []models.Component

	closeOnce sync.Once
}

func (c *ClientConnection) ClientID() string { return c.clientID }

func (c *ClientConnection) ProtocolVersion() string { return c.protocolVersion }

func (c *ClientConnection) ServerInfo() (name, version string) {
	return c.serverName, c.serverVersion
}

// Components returns a copy of the component list discovered at startup.
func (c *ClientConnection) Components() []models.Component {
	out := make([]models.Component, len(c.components))
	copy(out, c.components)
	return out
}

// CallTool dispatches one tool call and decodes the response. Tool-level
// failures (IsError results) come back as errors with the server's text.
func (c *ClientConnection) CallTool(ctx context.Context, name string, arguments map[string]interface{}) (interface{}, error) {
	ctx, cancel := ensureDeadline(ctx)
	defer cancel()

	callRequest := mcp.CallToolRequest{}
	callRequest.Params.Name = name
	callRequest.Params.Arguments = arguments

	result, err := c.client.CallTool(ctx, callRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to call tool %s: %w", name, err)
	}

	if result.IsError {
		if len(result.Content) > 0 {
			if textContent, ok := mcp.AsTextContent(result.Content[0]); ok {
				return nil, fmt.Errorf("tool %s reported an error: %s", name, textContent.Text)
			}
		}
		return nil, fmt.Errorf("tool %s reported an error", name)
	}

	if len(result.Content) == 0 {
		return nil, nil
	}

	if textContent, ok := mcp.AsTextContent(result.Content[0]); ok {
		// JSON payloads are decoded; anything else stays a string.
		var parsed interface{}
		if err := json.Unmarshal([]byte(textContent.Text), &parsed); err != nil {
			return textContent.Text, nil
		}
		return parsed, nil
	}

	// Image, audio, or other non-text content is handed back raw.
	return result.Content[0], nil
}

// GetPrompt fetches and flattens one prompt.
func (c *ClientConnection) GetPrompt(ctx context.Context, name string, arguments map[string]string) (*models.PromptResult, error) {
	ctx, cancel := ensureDeadline(ctx)
	defer cancel()

	promptRequest := mcp.GetPromptRequest{}
	promptRequest.Params.Name = name
	promptRequest.Params.Arguments = arguments

	result, err := c.client.GetPrompt(ctx, promptRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to get prompt %s: %w", name, err)
	}

	messages := make([]models.PromptMessage, 0, len(result.Messages))
	for _, message := range result.Messages {
		text := ""
		if textContent, ok := mcp.AsTextContent(message.Content); ok {
			text = textContent.Text
		}
		messages = append(messages, models.PromptMessage{
			Role: string(message.Role),
			Text: text,
		})
	}

	return &models.PromptResult{
		ClientID:    c.clientID,
		PromptName:  name,
		Description: result.Description,
		Messages:    messages,
	}, nil
}

// ReadResource reads one resource URI.
func (c *ClientConnection) ReadResource(ctx context.Context, uri string) ([]models.ResourceContent, error) {
	ctx, cancel := ensureDeadline(ctx)
	defer cancel()

	readRequest := mcp.ReadResourceRequest{}
	readRequest.Params.URI = uri

	result, err := c.client.ReadResource(ctx, readRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to read resource %s: %w", uri, err)
	}

	contents := make([]models.ResourceContent, 0, len(result.Contents))
	for _, raw := range result.Contents {
		switch content := raw.(type) {
		case mcp.TextResourceContents:
			contents = append(contents, models.ResourceContent{
				URI:      content.URI,
				MIMEType: content.MIMEType,
				Text:     content.Text,
			})
		case mcp.BlobResourceContents:
			blob, decodeErr := base64.StdEncoding.DecodeString(content.Blob)
			if decodeErr != nil {
				blob = []byte(content.Blob)
			}
			contents = append(contents, models.ResourceContent{
				URI:      content.URI,
				MIMEType: content.MIMEType,
				Blob:     blob,
			})
		default:
			logging.Debug("resource %s returned unrecognized content type %T", uri, raw)
		}
	}
	return contents, nil
}

// Close terminates the subprocess and releases its pipes. Closing twice or
// closing an already-dead process is safe.
func (c *ClientConnection) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		// mcp-go closes stdin, waits for exit, then kills. A process that
		// already died makes Close return an error we only need to log.
		if err := c.client.Close(); err != nil {
			logging.Debug("closing connection to %s: %v", c.clientID, err)
		}
	})
	return nil
}

// ensureDeadline applies the default request timeout when the caller did
// not bring a deadline of its own.
func ensureDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultRequestTimeout)
}
