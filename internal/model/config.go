package model

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type rawSpec struct {
	Model          string   `yaml:"model"`
	Temperature    *float64 `yaml:"temperature"`
	APIKeyEnv      string   `yaml:"api_key_env"`
	BaseURL        string   `yaml:"base_url"`
	MaxRetries     *int     `yaml:"max_retries"`
	RequestTimeout *float64 `yaml:"request_timeout"`
}

type rawProvider struct {
	rawSpec `yaml:",inline"`
	Models  map[string]rawSpec `yaml:"models"`
}

type rawConfig struct {
	Providers map[string]rawProvider `yaml:"providers"`
}

// Config holds the layered role configuration for one active provider:
// the provider block supplies defaults, per-role entries override them.
type Config struct {
	Defaults Spec
	Roles    map[string]Spec
}

// LoadConfig reads the model configuration file and materializes the spec
// layering for the given provider.
func LoadConfig(path, provider string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model config %s: %w", path, err)
	}
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse model config %s: %w", path, err)
	}

	pc := raw.Providers[provider]
	defaults := Spec{
		Provider:       provider,
		Model:          "glm-4-flash",
		Temperature:    0.3,
		MaxRetries:     3,
		RequestTimeout: 60 * time.Second,
	}
	applyRaw(&defaults, pc.rawSpec)

	roles := make(map[string]Spec, len(pc.Models))
	for name, rs := range pc.Models {
		spec := defaults
		applyRaw(&spec, rs)
		roles[name] = spec
	}
	return &Config{Defaults: defaults, Roles: roles}, nil
}

func applyRaw(spec *Spec, rs rawSpec) {
	if rs.Model != "" {
		spec.Model = rs.Model
	}
	if rs.Temperature != nil {
		spec.Temperature = *rs.Temperature
	}
	if rs.APIKeyEnv != "" {
		spec.APIKeyEnv = rs.APIKeyEnv
	}
	if rs.BaseURL != "" {
		spec.BaseURL = rs.BaseURL
	}
	if rs.MaxRetries != nil {
		spec.MaxRetries = *rs.MaxRetries
	}
	if rs.RequestTimeout != nil {
		spec.RequestTimeout = time.Duration(*rs.RequestTimeout * float64(time.Second))
	}
}
