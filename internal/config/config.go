package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete assistant configuration
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Audio         AudioConfig         `yaml:"audio"`
	Capture       CaptureConfig       `yaml:"capture"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	History       HistoryConfig       `yaml:"history"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// AudioConfig contains mixing and metering parameters
type AudioConfig struct {
	SampleRate     int     `yaml:"sample_rate"`
	Channels       int     `yaml:"channels"`
	MeterWindow    int     `yaml:"meter_window"` // samples
	MeterRate      float64 `yaml:"meter_rate"`   // Hz
	MicrophoneGain float64 `yaml:"microphone_gain"`
	SecondaryGain  float64 `yaml:"secondary_gain"`
	DefaultMode    string  `yaml:"default_mode"`
}

// CaptureConfig selects and configures the platform capture driver
type CaptureConfig struct {
	Driver          string  `yaml:"driver"` // synthetic or wavfile
	Codec           string  `yaml:"codec"`
	FrameDurationMs int     `yaml:"frame_duration_ms"`
	MicrophoneFile  string  `yaml:"microphone_file"`
	SecondaryFile   string  `yaml:"secondary_file"`
	Loop            bool    `yaml:"loop"`
	MicrophoneTone  float64 `yaml:"microphone_tone"` // Hz
	SecondaryTone   float64 `yaml:"secondary_tone"`  // Hz
	Amplitude       float64 `yaml:"amplitude"`
}

// TranscriptionConfig contains transcription API configuration
type TranscriptionConfig struct {
	Endpoint         string `yaml:"endpoint"`
	Path             string `yaml:"path"`
	APIKey           string `yaml:"api_key"`
	Timeout          int    `yaml:"timeout"` // seconds
	MaxRetries       int    `yaml:"max_retries"`
	RetryBaseDelayMs int    `yaml:"retry_base_delay_ms"`
	MaxConcurrent    int    `yaml:"max_concurrent"`
	DefaultLanguage  string `yaml:"default_language"`
	DefaultProvider  string `yaml:"default_provider"`
}

// HistoryConfig contains transcript history storage configuration
type HistoryConfig struct {
	Backend  string      `yaml:"backend"` // memory or redis
	Capacity int         `yaml:"capacity"`
	Redis    RedisConfig `yaml:"redis"`
}

// RedisConfig contains the session store connection
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTL      int    `yaml:"ttl"` // seconds
	Prefix   string `yaml:"prefix"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

var (
	validModes     = map[string]bool{"mic-only": true, "tab-only": true, "mic+tab": true}
	validDrivers   = map[string]bool{"synthetic": true, "wavfile": true}
	validCodecs    = map[string]bool{"wav": true, "pcm16": true, "ulaw": true}
	validProviders = map[string]bool{
		"groq": true, "whisper_cpp": true, "openai": true, "claude": true, "custom": true,
	}
	validBackends = map[string]bool{"memory": true, "redis": true}
)

// Default returns a configuration with every field set to its default.
// Load unmarshals the file over it.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Audio: AudioConfig{
			SampleRate:     48000,
			Channels:       1,
			MeterWindow:    256,
			MeterRate:      60,
			MicrophoneGain: 0.5,
			SecondaryGain:  0.5,
			DefaultMode:    "mic-only",
		},
		Capture: CaptureConfig{
			Driver:          "synthetic",
			Codec:           "wav",
			FrameDurationMs: 20,
			Loop:            true,
			MicrophoneTone:  440,
			SecondaryTone:   660,
			Amplitude:       0.5,
		},
		Transcription: TranscriptionConfig{
			Endpoint:         "http://localhost:3000",
			Path:             "/api/transcribe",
			Timeout:          60,
			MaxRetries:       3,
			RetryBaseDelayMs: 1000,
			MaxConcurrent:    4,
			DefaultLanguage:  "en-US",
			DefaultProvider:  "groq",
		},
		History: HistoryConfig{
			Backend:  "memory",
			Capacity: 50,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				TTL:    86400,
				Prefix: "assistant",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file. ${VAR} references are
// expanded from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse parses configuration data. name is used in error messages.
func Parse(data []byte, name string) (*Config, error) {
	config := Default()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", name, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.History.Validate(); err != nil {
		return fmt.Errorf("history config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", a.SampleRate)
	}

	if a.Channels < 1 || a.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", a.Channels)
	}

	if a.MeterWindow < 1 {
		return fmt.Errorf("meter_window must be at least 1 sample, got %d", a.MeterWindow)
	}

	if a.MeterRate <= 0 || a.MeterRate > 1000 {
		return fmt.Errorf("meter_rate must be in (0, 1000] Hz, got %f", a.MeterRate)
	}

	if a.MicrophoneGain < 0 || a.MicrophoneGain > 1 {
		return fmt.Errorf("microphone_gain must be between 0 and 1, got %f", a.MicrophoneGain)
	}

	if a.SecondaryGain < 0 || a.SecondaryGain > 1 {
		return fmt.Errorf("secondary_gain must be between 0 and 1, got %f", a.SecondaryGain)
	}

	if !validModes[a.DefaultMode] {
		return fmt.Errorf("default_mode must be one of [mic-only, tab-only, mic+tab], got '%s'", a.DefaultMode)
	}

	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	if !validDrivers[c.Driver] {
		return fmt.Errorf("driver must be 'synthetic' or 'wavfile', got '%s'", c.Driver)
	}

	if !validCodecs[c.Codec] {
		return fmt.Errorf("codec must be one of [wav, pcm16, ulaw], got '%s'", c.Codec)
	}

	if c.FrameDurationMs < 1 || c.FrameDurationMs > 1000 {
		return fmt.Errorf("frame_duration_ms must be between 1 and 1000, got %d", c.FrameDurationMs)
	}

	if c.Driver == "wavfile" && c.MicrophoneFile == "" && c.SecondaryFile == "" {
		return fmt.Errorf("wavfile driver needs microphone_file or secondary_file")
	}

	if c.Amplitude < 0 || c.Amplitude > 1 {
		return fmt.Errorf("amplitude must be between 0 and 1, got %f", c.Amplitude)
	}

	if c.MicrophoneTone < 0 || c.SecondaryTone < 0 {
		return fmt.Errorf("tone frequencies cannot be negative")
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if !strings.HasPrefix(t.Endpoint, "http://") && !strings.HasPrefix(t.Endpoint, "https://") {
		return fmt.Errorf("endpoint must be an http(s) URL, got '%s'", t.Endpoint)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.RetryBaseDelayMs < 0 {
		return fmt.Errorf("retry_base_delay_ms cannot be negative, got %d", t.RetryBaseDelayMs)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	if strings.TrimSpace(t.DefaultLanguage) == "" {
		return fmt.Errorf("default_language cannot be empty")
	}

	if !validProviders[t.DefaultProvider] {
		return fmt.Errorf("default_provider must be one of [groq, whisper_cpp, openai, claude, custom], got '%s'",
			t.DefaultProvider)
	}

	return nil
}

// Validate validates history configuration
func (h *HistoryConfig) Validate() error {
	if !validBackends[h.Backend] {
		return fmt.Errorf("backend must be 'memory' or 'redis', got '%s'", h.Backend)
	}

	if h.Capacity < 1 {
		return fmt.Errorf("capacity must be at least 1, got %d", h.Capacity)
	}

	if h.Backend == "redis" {
		if h.Redis.Addr == "" {
			return fmt.Errorf("redis addr cannot be empty when backend is redis")
		}
		if h.Redis.DB < 0 {
			return fmt.Errorf("redis db cannot be negative, got %d", h.Redis.DB)
		}
		if h.Redis.TTL < 1 {
			return fmt.Errorf("redis ttl must be at least 1 second, got %d", h.Redis.TTL)
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// anything other than stdout or stderr is a file path
	return nil
}

// GetFrameDuration returns the encoder frame duration as a time.Duration
func (c *CaptureConfig) GetFrameDuration() time.Duration {
	return time.Duration(c.FrameDurationMs) * time.Millisecond
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetRetryBaseDelay returns the linear backoff step as a time.Duration
func (t *TranscriptionConfig) GetRetryBaseDelay() time.Duration {
	return time.Duration(t.RetryBaseDelayMs) * time.Millisecond
}

// GetTTLDuration returns the session key lifetime as a time.Duration
func (r *RedisConfig) GetTTLDuration() time.Duration {
	return time.Duration(r.TTL) * time.Second
}

// ListenAddr returns the HTTP listen address.
func (h *HTTPConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", h.Address, h.Port)
}
