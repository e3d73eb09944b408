package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Provider resolves one class of external secret reference. References take
// the form "<scheme>:<path>", optionally with "#<key>" selecting one field
// of a multi-value secret.
type Provider interface {
	Name() string
	Validate(ctx context.Context) error
	GetSecret(ctx context.Context, path, key string) (string, error)
}

func builtinProviders() []Provider {
	return []Provider{
		NewEnvProvider(),
		NewFileProvider(),
		NewVaultProvider(),
	}
}

// splitRef parses "scheme:path#key". The key part is optional.
func splitRef(ref string) (scheme, path, key string, err error) {
	scheme, rest, ok := strings.Cut(ref, ":")
	if !ok || scheme == "" || rest == "" {
		return "", "", "", fmt.Errorf("malformed secret reference %q (want scheme:path[#key])", ref)
	}
	path, key, _ = strings.Cut(rest, "#")
	return scheme, path, key, nil
}

// EnvProvider reads secrets from the host's own environment ("env:NAME").
type EnvProvider struct{}

func NewEnvProvider() *EnvProvider { return &EnvProvider{} }

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) Validate(ctx context.Context) error { return nil }

func (p *EnvProvider) GetSecret(ctx context.Context, path, key string) (string, error) {
	value, ok := os.LookupEnv(path)
	if !ok {
		return "", fmt.Errorf("environment variable %s is not set", path)
	}
	return value, nil
}

// FileProvider reads secrets from local files ("file:/path" for the whole
// file, "file:/path#KEY" for one key of a JSON object file).
type FileProvider struct{}

func NewFileProvider() *FileProvider { return &FileProvider{} }

func (p *FileProvider) Name() string { return "file" }

func (p *FileProvider) Validate(ctx context.Context) error { return nil }

func (p *FileProvider) GetSecret(ctx context.Context, path, key string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", path, err)
	}

	if key == "" {
		return strings.TrimSpace(string(content)), nil
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(content, &fields); err != nil {
		return "", fmt.Errorf("secret file %s is not a JSON object: %w", path, err)
	}
	value, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("secret file %s has no key %s", path, key)
	}
	return fmt.Sprintf("%v", value), nil
}

// VaultProvider shells out to the vault CLI ("vault:secret/data/x#KEY").
type VaultProvider struct {
	addr  string
	token string
}

func NewVaultProvider() *VaultProvider {
	return &VaultProvider{
		addr:  os.Getenv("VAULT_ADDR"),
		token: os.Getenv("VAULT_TOKEN"),
	}
}

func (p *VaultProvider) WithAddr(addr string) *VaultProvider {
	p.addr = addr
	return p
}

func (p *VaultProvider) WithToken(token string) *VaultProvider {
	p.token = token
	return p
}

func (p *VaultProvider) Name() string { return "vault" }

func (p *VaultProvider) Validate(ctx context.Context) error {
	if _, err := exec.LookPath("vault"); err != nil {
		return fmt.Errorf("vault CLI not found: install from https://developer.hashicorp.com/vault/install")
	}
	if p.addr == "" {
		return fmt.Errorf("VAULT_ADDR not set: export VAULT_ADDR=https://vault.example.com")
	}

	cmd := exec.CommandContext(ctx, "vault", "token", "lookup")
	cmd.Env = p.cmdEnv()
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("vault authentication failed: run 'vault login' or set VAULT_TOKEN")
	}
	return nil
}

func (p *VaultProvider) GetSecret(ctx context.Context, path, key string) (string, error) {
	args := []string{"kv", "get", "-format=json", path}

	cmd := exec.CommandContext(ctx, "vault", args...)
	cmd.Env = p.cmdEnv()

	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get secret '%s': %w", path, err)
	}

	var response struct {
		Data struct {
			Data map[string]interface{} `json:"data"`
		} `json:"data"`
	}
	if err := json.Unmarshal(output, &response); err != nil {
		return "", fmt.Errorf("failed to parse vault response: %w", err)
	}

	if key == "" {
		key = "value"
	}
	value, ok := response.Data.Data[key]
	if !ok {
		return "", fmt.Errorf("secret '%s' has no field %s", path, key)
	}
	return fmt.Sprintf("%v", value), nil
}

func (p *VaultProvider) cmdEnv() []string {
	env := append(os.Environ(), "VAULT_ADDR="+p.addr)
	if p.token != "" {
		env = append(env, "VAULT_TOKEN="+p.token)
	}
	return env
}
