package gateway

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config lists the tool providers to launch, keyed by provider name. The
// file layout follows the common mcpServers convention, so JSON files load
// as well.
type Config struct {
	MCPServers map[string]ProviderConfig `yaml:"mcpServers" json:"mcpServers"`
}

type ProviderConfig struct {
	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read gateway config: %w", err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse gateway config: %w", err)
	}
	return cfg, nil
}
