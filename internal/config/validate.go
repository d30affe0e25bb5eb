package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// MaxUDPPayload is the largest payload a single UDP datagram can carry.
const MaxUDPPayload = 65507

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(c.Vehicle.Address) == "" {
		add("vehicle.address must not be empty")
	}
	if !validPort(c.Vehicle.CommandPort) {
		add("vehicle.commandPort %d out of range 1..65535", c.Vehicle.CommandPort)
	}
	if !validPort(c.Vehicle.NavdataPort) {
		add("vehicle.navdataPort %d out of range 1..65535", c.Vehicle.NavdataPort)
	}

	if c.Timing.CommandInterval.Duration <= 0 {
		add("timing.commandInterval must be positive, got %v", c.Timing.CommandInterval)
	}
	if c.Timing.PayloadLimit < 1 || c.Timing.PayloadLimit > MaxUDPPayload {
		add("timing.payloadLimit %d out of range 1..%d", c.Timing.PayloadLimit, MaxUDPPayload)
	}
	if c.Timing.ReadBufferSize < 1 || c.Timing.ReadBufferSize > MaxUDPPayload {
		add("timing.readBufferSize %d out of range 1..%d", c.Timing.ReadBufferSize, MaxUDPPayload)
	}

	if c.Control.MoveSpeed <= 0 || c.Control.MoveSpeed > 1 {
		add("control.moveSpeed %v out of range (0,1]", c.Control.MoveSpeed)
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		add("log.format %q must be text or json", c.Log.Format)
	}

	if c.Audit.Enabled && strings.TrimSpace(c.Audit.Dir) == "" {
		add("audit.dir must not be empty when audit is enabled")
	}

	if c.API.Enabled && c.API.Addr == "" {
		add("api.addr must not be empty when the api is enabled")
	}
	switch c.API.Auth.Algorithm {
	case "":
	case "HS256":
		if c.API.Auth.Secret == "" {
			add("api.auth.secret is required for HS256")
		}
	case "RS256":
		if c.API.Auth.PublicKeyPEM == "" && c.API.Auth.PublicKeyFile == "" {
			add("api.auth.publicKeyPEM or publicKeyFile is required for RS256")
		}
	default:
		add("api.auth.algorithm %q must be HS256, RS256 or empty", c.API.Auth.Algorithm)
	}

	if c.Telemetry.BufferSize < 1 {
		add("telemetry.bufferSize must be positive, got %d", c.Telemetry.BufferSize)
	}
	if c.Telemetry.HeartbeatInterval.Duration <= 0 {
		add("telemetry.heartbeatInterval must be positive, got %v", c.Telemetry.HeartbeatInterval)
	}
	if c.Telemetry.NavdataInterval.Duration < 0 {
		add("telemetry.navdataInterval must not be negative, got %v", c.Telemetry.NavdataInterval)
	}

	return errors.Join(errs...)
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}
