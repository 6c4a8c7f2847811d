package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Provider kinds understood by the adapter factory.
const (
	KindOpenAI    = "openai"
	KindAnthropic = "anthropic"
	KindGoogle    = "google"
	KindOllama    = "ollama"
)

// ProviderConfig describes one text-generation backend.
type ProviderConfig struct {
	Name              string `yaml:"name" json:"name"`
	Kind              string `yaml:"kind" json:"kind"`
	Model             string `yaml:"model" json:"model"`
	BaseURL           string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	APIKey            string `yaml:"api_key,omitempty" json:"-"`
	APIKeyEnv         string `yaml:"api_key_env,omitempty" json:"api_key_env,omitempty"`
	RequestsPerMinute int    `yaml:"requests_per_minute,omitempty" json:"requests_per_minute,omitempty"`
	TokensPerMinute   int    `yaml:"tokens_per_minute,omitempty" json:"tokens_per_minute,omitempty"`
}

// ProvidersFile is the on-disk shape of EZRA_PROVIDERS_FILE.
type ProvidersFile struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// LoadProviders reads provider definitions from a YAML file. Keys may be
// given inline or by environment variable name via api_key_env.
func LoadProviders(path string) ([]ProviderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}
	var f ProvidersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse providers file %s: %w", path, err)
	}
	seen := make(map[string]bool, len(f.Providers))
	for i := range f.Providers {
		p := &f.Providers[i]
		if p.Kind == "" {
			return nil, fmt.Errorf("provider %d: kind is required", i)
		}
		if !knownKind(p.Kind) {
			return nil, fmt.Errorf("provider %d: unknown kind %q", i, p.Kind)
		}
		if p.Name == "" {
			p.Name = p.Kind
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("provider %q defined twice", p.Name)
		}
		seen[p.Name] = true
		if p.APIKey == "" && p.APIKeyEnv != "" {
			p.APIKey = os.Getenv(p.APIKeyEnv)
		}
	}
	return f.Providers, nil
}

// ProvidersFromEnv builds the default provider set, in routing order, from
// the conventional vendor environment variables. Providers without
// credentials are still listed so they show up as unavailable.
func ProvidersFromEnv() []ProviderConfig {
	return []ProviderConfig{
		{Name: KindOpenAI, Kind: KindOpenAI, Model: getenv("OPENAI_MODEL", "gpt-4o"), BaseURL: os.Getenv("OPENAI_BASE_URL"), APIKey: os.Getenv("OPENAI_API_KEY")},
		{Name: KindAnthropic, Kind: KindAnthropic, Model: getenv("ANTHROPIC_MODEL", "claude-3-5-sonnet-latest"), BaseURL: os.Getenv("ANTHROPIC_BASE_URL"), APIKey: os.Getenv("ANTHROPIC_API_KEY")},
		{Name: KindGoogle, Kind: KindGoogle, Model: getenv("GOOGLE_MODEL", "gemini-1.5-pro"), BaseURL: os.Getenv("GOOGLE_BASE_URL"), APIKey: os.Getenv("GOOGLE_API_KEY")},
		{Name: KindOllama, Kind: KindOllama, Model: getenv("OLLAMA_MODEL", "llama3.1"), BaseURL: os.Getenv("OLLAMA_BASE_URL")},
	}
}

func knownKind(kind string) bool {
	switch kind {
	case KindOpenAI, KindAnthropic, KindGoogle, KindOllama:
		return true
	}
	return false
}
