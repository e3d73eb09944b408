package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"harbor/pkg/models"
)

// Manifest is the on-disk description of a fleet of tool servers, in the
// conventional mcpServers layout. JSON and YAML are both accepted.
type Manifest struct {
	Name        string                  `json:"name,omitempty" yaml:"name,omitempty"`
	Description string                  `json:"description,omitempty" yaml:"description,omitempty"`
	Servers     map[string]ServerConfig `json:"mcpServers" yaml:"mcpServers"`
}

type ServerConfig struct {
	Command           string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args              []string          `json:"args,omitempty" yaml:"args,omitempty"`
	URL               string            `json:"url,omitempty" yaml:"url,omitempty"`
	Env               map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	SecretRefs        map[string]string `json:"secretRefs,omitempty" yaml:"secretRefs,omitempty"`
	ExcludeComponents []string          `json:"excludeComponents,omitempty" yaml:"excludeComponents,omitempty"`
	Roots             []string          `json:"roots,omitempty" yaml:"roots,omitempty"`
	Weight            int               `json:"weight,omitempty" yaml:"weight,omitempty"`
	TimeoutSeconds    *int64            `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
	Lazy              bool              `json:"lazy,omitempty" yaml:"lazy,omitempty"`
	DeclaredTools     []string          `json:"declaredTools,omitempty" yaml:"declaredTools,omitempty"`
	DeclaredPrompts   []string          `json:"declaredPrompts,omitempty" yaml:"declaredPrompts,omitempty"`
	DeclaredResources []string          `json:"declaredResources,omitempty" yaml:"declaredResources,omitempty"`
}

// LoadManifest reads and parses a manifest file. The format is chosen by
// extension: .yaml/.yml parse as YAML, everything else as JSON.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var manifest Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
		}
	}

	if len(manifest.Servers) == 0 {
		return nil, fmt.Errorf("manifest %s declares no servers", path)
	}
	return &manifest, nil
}

// Descriptors converts the manifest into client descriptors, sorted by ID
// so startup order is stable across runs.
func (m *Manifest) Descriptors() []models.ClientDescriptor {
	descriptors := make([]models.ClientDescriptor, 0, len(m.Servers))
	for id, server := range m.Servers {
		descriptors = append(descriptors, models.ClientDescriptor{
			ID:                id,
			Command:           server.Command,
			Args:              server.Args,
			URL:               server.URL,
			Env:               server.Env,
			SecretRefs:        server.SecretRefs,
			ExcludeComponents: server.ExcludeComponents,
			Roots:             server.Roots,
			Weight:            server.Weight,
			TimeoutSeconds:    server.TimeoutSeconds,
			Lazy:              server.Lazy,
			DeclaredTools:     server.DeclaredTools,
			DeclaredPrompts:   server.DeclaredPrompts,
			DeclaredResources: server.DeclaredResources,
		})
	}
	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].ID < descriptors[j].ID
	})
	return descriptors
}
