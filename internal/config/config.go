package config

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config is the complete engine configuration.
type Config struct {
	Vehicle   VehicleConfig   `yaml:"vehicle" toml:"vehicle"`
	Local     LocalConfig     `yaml:"local" toml:"local"`
	Timing    TimingConfig    `yaml:"timing" toml:"timing"`
	Control   ControlConfig   `yaml:"control" toml:"control"`
	Log       LogConfig       `yaml:"log" toml:"log"`
	Audit     AuditConfig     `yaml:"audit" toml:"audit"`
	API       APIConfig       `yaml:"api" toml:"api"`
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
}

// VehicleConfig locates the vehicle.
type VehicleConfig struct {
	Address     string `yaml:"address" toml:"address"`
	CommandPort int    `yaml:"commandPort" toml:"commandPort"`
	NavdataPort int    `yaml:"navdataPort" toml:"navdataPort"`
}

// CommandAddr is the vehicle's AT command endpoint.
func (v VehicleConfig) CommandAddr() string {
	return net.JoinHostPort(v.Address, strconv.Itoa(v.CommandPort))
}

// NavdataAddr is the vehicle's NAVDATA endpoint.
func (v VehicleConfig) NavdataAddr() string {
	return net.JoinHostPort(v.Address, strconv.Itoa(v.NavdataPort))
}

// LocalConfig holds the local bind addresses of both channels.
type LocalConfig struct {
	CommandAddr string `yaml:"commandAddr" toml:"commandAddr"`
	NavdataAddr string `yaml:"navdataAddr" toml:"navdataAddr"`
}

// TimingConfig tunes the command cycle and the navdata reader.
type TimingConfig struct {
	CommandInterval Duration `yaml:"commandInterval" toml:"commandInterval"`
	PayloadLimit    int      `yaml:"payloadLimit" toml:"payloadLimit"`
	ReadBufferSize  int      `yaml:"readBufferSize" toml:"readBufferSize"`
}

// ControlConfig tunes the flight API.
type ControlConfig struct {
	MoveSpeed float64 `yaml:"moveSpeed" toml:"moveSpeed"`
	OneShot   bool    `yaml:"oneShot" toml:"oneShot"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level      string `yaml:"level" toml:"level"`
	Format     string `yaml:"format" toml:"format"`
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB" toml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups" toml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays" toml:"maxAgeDays"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled"`
	Dir        string `yaml:"dir" toml:"dir"`
	MaxSizeMB  int    `yaml:"maxSizeMB" toml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups" toml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays" toml:"maxAgeDays"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

// APIConfig configures the operator HTTP API.
type APIConfig struct {
	Enabled        bool       `yaml:"enabled" toml:"enabled"`
	Addr           string     `yaml:"addr" toml:"addr"`
	ReadTimeout    Duration   `yaml:"readTimeout" toml:"readTimeout"`
	WriteTimeout   Duration   `yaml:"writeTimeout" toml:"writeTimeout"`
	IdleTimeout    Duration   `yaml:"idleTimeout" toml:"idleTimeout"`
	CommandTimeout Duration   `yaml:"commandTimeout" toml:"commandTimeout"`
	Auth           AuthConfig `yaml:"auth" toml:"auth"`
}

// AuthConfig selects how bearer tokens are verified. An empty Algorithm
// disables authentication.
type AuthConfig struct {
	Algorithm     string `yaml:"algorithm" toml:"algorithm"`
	Secret        string `yaml:"secret" toml:"secret"`
	PublicKeyPEM  string `yaml:"publicKeyPEM" toml:"publicKeyPEM"`
	PublicKeyFile string `yaml:"publicKeyFile" toml:"publicKeyFile"`
}

// TelemetryConfig configures the event hub.
type TelemetryConfig struct {
	BufferSize        int      `yaml:"bufferSize" toml:"bufferSize"`
	HeartbeatInterval Duration `yaml:"heartbeatInterval" toml:"heartbeatInterval"`
	NavdataInterval   Duration `yaml:"navdataInterval" toml:"navdataInterval"`
}

// Duration is a time.Duration read from a duration string.
type Duration struct {
	time.Duration
}

// UnmarshalText parses s with time.ParseDuration. TOML decoding uses it.
func (d *Duration) UnmarshalText(s []byte) error {
	v, err := time.ParseDuration(string(s))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalYAML accepts a duration string.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// Baseline returns the built-in defaults.
func Baseline() *Config {
	return &Config{
		Vehicle: VehicleConfig{
			Address:     "192.168.1.1",
			CommandPort: 5556,
			NavdataPort: 5554,
		},
		Local: LocalConfig{
			CommandAddr: ":5556",
			NavdataAddr: ":0",
		},
		Timing: TimingConfig{
			CommandInterval: Duration{30 * time.Millisecond},
			PayloadLimit:    1024,
			ReadBufferSize:  4096,
		},
		Control: ControlConfig{
			MoveSpeed: 0.5,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Audit: AuditConfig{
			Enabled:    true,
			Dir:        "logs",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		API: APIConfig{
			Addr:           ":8000",
			ReadTimeout:    Duration{30 * time.Second},
			IdleTimeout:    Duration{120 * time.Second},
			CommandTimeout: Duration{10 * time.Second},
		},
		Telemetry: TelemetryConfig{
			BufferSize:        50,
			HeartbeatInterval: Duration{15 * time.Second},
			NavdataInterval:   Duration{100 * time.Millisecond},
		},
	}
}
