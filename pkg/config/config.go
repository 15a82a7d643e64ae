// Package config loads socmon settings from YAML or JSONC files and builds
// the counter and capability sources they select.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/ja7ad/socmon/pkg/consumption"
)

// EnvPath names the environment variable consulted when no path is given.
const EnvPath = "SOCMON_CONFIG"

// Source names.
const (
	SourceAuto         = "auto"
	SourceSysfs        = "sysfs"
	SourcePowermetrics = "powermetrics"
)

// Duration is a time.Duration written as "500ms" in config files.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full socmon configuration. Zero values mean "use the
// default".
type Config struct {
	Source string   `yaml:"source" json:"source"`
	Window Duration `yaml:"window" json:"window"`
	Steps  int      `yaml:"steps" json:"steps"`

	ProcRoot string `yaml:"proc_root" json:"proc_root"`
	SysRoot  string `yaml:"sys_root" json:"sys_root"`

	Powermetrics PowermetricsConfig `yaml:"powermetrics" json:"powermetrics"`
	Memory       MemoryConfig       `yaml:"memory" json:"memory"`
	PowerModel   PowerModelConfig   `yaml:"power_model" json:"power_model"`
	Log          LogConfig          `yaml:"log" json:"log"`
}

type PowermetricsConfig struct {
	Path     string   `yaml:"path" json:"path"`
	Interval Duration `yaml:"interval" json:"interval"`
}

type MemoryConfig struct {
	// CgroupAware narrows RAM total to the enclosing cgroup's limit.
	CgroupAware bool `yaml:"cgroup_aware" json:"cgroup_aware"`
}

// PowerModelConfig enables the utilization based CPU power estimate on
// hosts without a metered CPU rail.
type PowerModelConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	consumption.Config `yaml:",inline"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug|info|warn|error
	Format string `yaml:"format" json:"format"` // text|json
}

// _defaultConfig returns a Config pre-filled with defaults.
func _defaultConfig() *Config {
	return &Config{
		Source:   SourceAuto,
		Window:   Duration(500 * time.Millisecond),
		Steps:    4,
		ProcRoot: "/proc",
		SysRoot:  "/sys",
		Powermetrics: PowermetricsConfig{
			Path:     "/usr/bin/powermetrics",
			Interval: Duration(100 * time.Millisecond),
		},
		PowerModel: PowerModelConfig{Config: consumption.DefaultConfig()},
		Log:        LogConfig{Level: "warn", Format: "text"},
	}
}

// Default returns the default configuration.
func Default() *Config { return _defaultConfig() }

// Load reads path, or the file named by SOCMON_CONFIG when path is empty.
// With neither set the defaults are returned. Files ending in .json or
// .jsonc are read as JSONC, anything else as YAML.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data in the format selected by ext and fills unset fields
// from the defaults.
func Parse(data []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParse, err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParse, err)
		}
	}
	cfg.merge(_defaultConfig())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// merge copies defaults into unset fields. Only positive numbers and
// non-empty strings count as set.
func (c *Config) merge(def *Config) {
	if c.Source == "" {
		c.Source = def.Source
	}
	if c.Window <= 0 {
		c.Window = def.Window
	}
	if c.Steps <= 0 {
		c.Steps = def.Steps
	}
	if c.ProcRoot == "" {
		c.ProcRoot = def.ProcRoot
	}
	if c.SysRoot == "" {
		c.SysRoot = def.SysRoot
	}
	if c.Powermetrics.Path == "" {
		c.Powermetrics.Path = def.Powermetrics.Path
	}
	if c.Powermetrics.Interval <= 0 {
		c.Powermetrics.Interval = def.Powermetrics.Interval
	}
	if c.PowerModel.PIdle <= 0 {
		c.PowerModel.PIdle = def.PowerModel.PIdle
	}
	if c.PowerModel.PMax <= 0 {
		c.PowerModel.PMax = def.PowerModel.PMax
	}
	if c.PowerModel.Gamma <= 0 {
		c.PowerModel.Gamma = def.PowerModel.Gamma
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch c.Source {
	case SourceAuto, SourceSysfs, SourcePowermetrics:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSource, c.Source)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}
