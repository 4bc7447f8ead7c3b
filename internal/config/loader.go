package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"chatd/pkg/types"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr   string `json:"addr" yaml:"addr" toml:"addr"`
	DBPath string `json:"db_path" yaml:"db_path" toml:"db_path"`
	// ModelsDir is scanned for *.gguf files by the management API.
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	// Mode selects the deployment profile: "standalone" exposes the model
	// management endpoints, "production" preloads Model and hides them.
	Mode string `json:"mode" yaml:"mode" toml:"mode"`

	GateMaxWaitSeconds     int `json:"gate_max_wait_seconds" yaml:"gate_max_wait_seconds" toml:"gate_max_wait_seconds"`
	GenerateTimeoutSeconds int `json:"generate_timeout_seconds" yaml:"generate_timeout_seconds" toml:"generate_timeout_seconds"`
	Threads                int `json:"threads" yaml:"threads" toml:"threads"`
	MaxBodyBytes           int `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`

	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`

	CORSEnabled bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	CORSMethods []string `json:"cors_methods" yaml:"cors_methods" toml:"cors_methods"`
	CORSHeaders []string `json:"cors_headers" yaml:"cors_headers" toml:"cors_headers"`

	// Model, when set, is loaded at startup. Required in production mode.
	Model *types.ModelConfig `json:"model" yaml:"model" toml:"model"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
