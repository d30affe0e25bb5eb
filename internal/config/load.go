package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"
)

// EnvConfigFile names the config file when Load is given an empty path.
const EnvConfigFile = "DRONE_CONFIG"

// Load resolves the configuration: baseline, then the file at path (or
// $DRONE_CONFIG when path is empty), then DRONE_* overrides. The result is
// validated.
func Load(path string) (*Config, error) {
	cfg := Baseline()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes path over cfg. Keys absent from the file keep their
// current value; unknown keys are an error.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("failed to parse %s: unknown keys %v", path, undecoded)
		}
	default:
		return fmt.Errorf("unsupported config format %q (want .yaml, .yml or .toml)", filepath.Ext(path))
	}
	return nil
}

type envBinding struct {
	name  string
	apply func(cfg *Config, value string) error
}

var envBindings = []envBinding{
	{"DRONE_VEHICLE_ADDRESS", func(c *Config, v string) error { c.Vehicle.Address = v; return nil }},
	{"DRONE_VEHICLE_COMMAND_PORT", intVar(func(c *Config) *int { return &c.Vehicle.CommandPort })},
	{"DRONE_VEHICLE_NAVDATA_PORT", intVar(func(c *Config) *int { return &c.Vehicle.NavdataPort })},
	{"DRONE_LOCAL_COMMAND_ADDR", func(c *Config, v string) error { c.Local.CommandAddr = v; return nil }},
	{"DRONE_LOCAL_NAVDATA_ADDR", func(c *Config, v string) error { c.Local.NavdataAddr = v; return nil }},
	{"DRONE_TIMING_COMMAND_INTERVAL", durationVar(func(c *Config) *Duration { return &c.Timing.CommandInterval })},
	{"DRONE_TIMING_PAYLOAD_LIMIT", intVar(func(c *Config) *int { return &c.Timing.PayloadLimit })},
	{"DRONE_CONTROL_MOVE_SPEED", func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.Control.MoveSpeed = f
		return nil
	}},
	{"DRONE_CONTROL_ONE_SHOT", boolVar(func(c *Config) *bool { return &c.Control.OneShot })},
	{"DRONE_LOG_LEVEL", func(c *Config, v string) error { c.Log.Level = v; return nil }},
	{"DRONE_LOG_FORMAT", func(c *Config, v string) error { c.Log.Format = v; return nil }},
	{"DRONE_LOG_FILE", func(c *Config, v string) error { c.Log.File = v; return nil }},
	{"DRONE_AUDIT_ENABLED", boolVar(func(c *Config) *bool { return &c.Audit.Enabled })},
	{"DRONE_AUDIT_DIR", func(c *Config, v string) error { c.Audit.Dir = v; return nil }},
	{"DRONE_API_ENABLED", boolVar(func(c *Config) *bool { return &c.API.Enabled })},
	{"DRONE_API_ADDR", func(c *Config, v string) error { c.API.Addr = v; return nil }},
	{"DRONE_API_AUTH_ALGORITHM", func(c *Config, v string) error { c.API.Auth.Algorithm = v; return nil }},
	{"DRONE_API_AUTH_SECRET", func(c *Config, v string) error { c.API.Auth.Secret = v; return nil }},
	{"DRONE_API_AUTH_PUBLIC_KEY_FILE", func(c *Config, v string) error { c.API.Auth.PublicKeyFile = v; return nil }},
	{"DRONE_TELEMETRY_BUFFER_SIZE", intVar(func(c *Config) *int { return &c.Telemetry.BufferSize })},
	{"DRONE_TELEMETRY_HEARTBEAT_INTERVAL", durationVar(func(c *Config) *Duration { return &c.Telemetry.HeartbeatInterval })},
}

// applyEnvOverrides applies every set DRONE_* variable. A value that does
// not parse is an error rather than silently ignored.
func applyEnvOverrides(cfg *Config) error {
	for _, b := range envBindings {
		v, ok := os.LookupEnv(b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(cfg, v); err != nil {
			return fmt.Errorf("%s=%q: %w", b.name, v, err)
		}
	}
	return nil
}

func intVar(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func boolVar(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func durationVar(field func(*Config) *Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		field(c).Duration = d
		return nil
	}
}
