// Package toolprovider manages named external tool providers reachable over
// HTTP or a subprocess speaking newline-delimited JSON-RPC on stdio.
package toolprovider

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ToolInfo describes one callable tool exposed by a provider.
type ToolInfo struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty" yaml:"-"`
}

// ProviderConfig declares one external tool provider.
type ProviderConfig struct {
	Name      string     `yaml:"name"`
	Transport string     `yaml:"transport"`
	Endpoint  string     `yaml:"endpoint"`
	Command   string     `yaml:"command"`
	Args      []string   `yaml:"args"`
	Workdir   string     `yaml:"workdir"`
	Tools     []ToolInfo `yaml:"tools"`
	Enabled   *bool      `yaml:"enabled"`
}

const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

func (c ProviderConfig) enabled() bool {
	return c.Enabled == nil || *c.Enabled
}

func (c ProviderConfig) validate() error {
	if c.Name == "" {
		return fmt.Errorf("provider is missing a name")
	}
	switch c.Transport {
	case TransportHTTP:
		if c.Endpoint == "" {
			return fmt.Errorf("http provider %q is missing an endpoint", c.Name)
		}
	case TransportStdio:
		if c.Command == "" {
			return fmt.Errorf("stdio provider %q is missing a command", c.Name)
		}
	default:
		return fmt.Errorf("provider %q has unknown transport %q", c.Name, c.Transport)
	}
	return nil
}

type configFile struct {
	Servers []ProviderConfig `yaml:"servers"`
}

// LoadConfig reads the provider configuration file. A missing file yields
// no providers rather than an error so the agent can run without tools.
func LoadConfig(path string) ([]ProviderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read provider config %s: %w", path, err)
	}
	var f configFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse provider config %s: %w", path, err)
	}
	for _, p := range f.Servers {
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("provider config %s: %w", path, err)
		}
	}
	return f.Servers, nil
}
