package cmd

import (
	"os"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"github.com/openbi/kbic/pkg/convert"
)

// CLIConfig represents configuration for CLI commands. Every field can be
// overridden by the matching command flag.
type CLIConfig struct {
	// Logging level
	Logging string `yaml:"logging" default:"info" validate:"oneof=panic fatal warn info debug trace"`

	// Convert holds the default conversion settings
	Convert convert.Config `yaml:"convert"`

	// MetricsAddr exposes Prometheus metrics when set (host:port)
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// LoadCLIConfig loads CLI configuration from a YAML file. A missing file is
// not an error; defaults apply.
func LoadCLIConfig(path string) (*CLIConfig, error) {
	if path == "" {
		path = "kbic.yaml"
	}

	config := &CLIConfig{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	yamlFile, err := os.ReadFile(path) //nolint:gosec // User-provided config file path
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(yamlFile, config); err != nil {
		return nil, err
	}

	return config, nil
}
