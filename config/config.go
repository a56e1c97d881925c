package config

import (
	"fmt"
	"os"

	"kuanb/gosm-linematch/matching"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort   = 8080
	DefaultKernel = "serial"
)

// DatabaseConfig locates the SQLite database holding samples and line paths.
type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// ServerConfig contains serve mode configuration
type ServerConfig struct {
	Port               int `yaml:"port" validate:"gt=0,lte=65535"`
	MetricsIntervalSec int `yaml:"metricsIntervalSec" validate:"gte=0"` // 0 disables periodic metrics logging
}

// FiltersConfig points at identifier list files. Each is optional.
type FiltersConfig struct {
	BusWhitelist  string `yaml:"busWhitelist" validate:"omitempty,file"`
	BusBlacklist  string `yaml:"busBlacklist" validate:"omitempty,file"`
	LineWhitelist string `yaml:"lineWhitelist" validate:"omitempty,file"`
	LineBlacklist string `yaml:"lineBlacklist" validate:"omitempty,file"`
}

// Any reports whether at least one list is configured.
func (f FiltersConfig) Any() bool {
	return f.BusWhitelist != "" || f.BusBlacklist != "" || f.LineWhitelist != "" || f.LineBlacklist != ""
}

// AppConfig is the root configuration structure
type AppConfig struct {
	Detection  matching.DetectionConfig  `yaml:"detection"`
	Correction matching.CorrectionConfig `yaml:"correction"`
	Database   DatabaseConfig            `yaml:"database"`
	Server     ServerConfig              `yaml:"server"`
	Filters    FiltersConfig             `yaml:"filters"`
	Kernel     string                    `yaml:"kernel" validate:"oneof=serial parallel"`
}

// Load reads and validates the configuration at path. Keys that are absent
// keep their defaults only for the server, the kernel and the prefilter
// switch; matching parameters must be given explicitly.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*AppConfig, error) {
	cfg := &AppConfig{
		Server:    ServerConfig{Port: DefaultPort},
		Kernel:    DefaultKernel,
		Detection: matching.DetectionConfig{Prefilter: true},
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", matching.ErrInvalidConfig, err)
	}

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", matching.ErrInvalidConfig, err)
	}
	return cfg, nil
}
