package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/oriys/novacore/fault"
)

// Load reads a YAML config file over the defaults, expands ${VAR} and
// ${VAR:-default} references, then applies environment overrides on
// top. Environment always wins over the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fault.New(fault.ErrMalformedInput, "config.load", path,
				fmt.Errorf("config file not found"))
		}
		return nil, fault.New(fault.ErrMalformedInput, "config.load", path, err)
	}

	expanded := ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fault.New(fault.ErrMalformedInput, "config.load", path,
			fmt.Errorf("invalid YAML: %w", err))
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}
