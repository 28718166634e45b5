// Package config provides configuration loading and validation for the audio assistant.
// It handles YAML-based configuration with environment expansion, built-in defaults
// and per-section validation.
package config
