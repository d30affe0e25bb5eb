// Package config loads the engine configuration.
//
// Values are resolved in order: the built-in baseline, an optional YAML or
// TOML file (chosen by extension), DRONE_* environment overrides, and
// finally validation. Durations are written as Go duration strings
// ("30ms", "15s").
package config
