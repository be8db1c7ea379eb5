package shell

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the static configuration of the shell
type Config struct {
	LaunchURL string `yaml:"launch_url"`
	AppName   string `yaml:"app_name"`
}

// LoadConfig reads config from yaml file
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read shell config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse shell config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes config to yaml file, makes parent directory if missing
func SaveConfig(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal shell config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("make shell config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write shell config %s: %w", path, err)
	}
	return nil
}
