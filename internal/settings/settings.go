package settings

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/jayesh4work/audio-assistant-extension/internal/apperr"
	"github.com/jayesh4work/audio-assistant-extension/internal/audio"
	"github.com/jayesh4work/audio-assistant-extension/internal/history"
	"github.com/jayesh4work/audio-assistant-extension/internal/transcription"
)

// StorageKey is the key settings are stored under.
const StorageKey = "user_settings"

// UserSettings are the user's recording and transcription preferences.
type UserSettings struct {
	AudioMode   audio.Mode             `json:"audioMode"`
	Language    string                 `json:"language"`
	STTProvider transcription.Provider `json:"sttProvider"`
	AutoSave    bool                   `json:"autoSave"`
}

// Defaults returns mic-only, en-US, groq with auto-save on.
func Defaults() UserSettings {
	return UserSettings{
		AudioMode:   audio.ModeMicOnly,
		Language:    "en-US",
		STTProvider: transcription.ProviderGroq,
		AutoSave:    true,
	}
}

// Validate checks every field.
func (s UserSettings) Validate() error {
	if _, err := audio.ParseMode(string(s.AudioMode)); err != nil {
		return apperr.Wrap(apperr.InvalidInput, err.Error(), err)
	}
	if strings.TrimSpace(s.Language) == "" {
		return apperr.New(apperr.InvalidInput, "language cannot be empty")
	}
	if _, err := transcription.ParseProvider(string(s.STTProvider)); err != nil {
		return err
	}
	return nil
}

// Service loads and saves settings.
type Service struct {
	kv       history.KV
	defaults UserSettings
	logger   *slog.Logger

	mu sync.Mutex
}

// NewService creates a settings service. Invalid defaults fall back to
// Defaults().
func NewService(kv history.KV, defaults UserSettings, logger *slog.Logger) *Service {
	if err := defaults.Validate(); err != nil {
		logger.Warn("Invalid default settings, using built-in defaults", slog.String("error", err.Error()))
		defaults = Defaults()
	}
	return &Service{kv: kv, defaults: defaults, logger: logger}
}

// Load returns stored settings merged over the defaults. Read failures are
// logged and yield the defaults.
func (s *Service) Load(ctx context.Context) UserSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Service) load(ctx context.Context) UserSettings {
	out := s.defaults

	raw, ok, err := s.kv.Get(ctx, StorageKey)
	if err != nil {
		s.logger.Error("Failed to load settings", slog.String("error", err.Error()))
		return s.defaults
	}
	if !ok {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		s.logger.Error("Stored settings are corrupt", slog.String("error", err.Error()))
		return s.defaults
	}
	if err := out.Validate(); err != nil {
		s.logger.Warn("Stored settings are invalid, using defaults", slog.String("error", err.Error()))
		return s.defaults
	}
	return out
}

// Save validates and stores settings.
func (s *Service) Save(ctx context.Context, settings UserSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, settings)
}

func (s *Service) save(ctx context.Context, settings UserSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return apperr.Wrap(apperr.StorageError, "Failed to encode settings", err)
	}
	if err := s.kv.Set(ctx, StorageKey, raw); err != nil {
		s.logger.Error("Failed to save settings", slog.String("error", err.Error()))
		return apperr.Wrap(apperr.StorageError, "Failed to save settings", err)
	}
	return nil
}

// Update applies fn to the current settings and saves the result.
func (s *Service) Update(ctx context.Context, fn func(*UserSettings) error) (UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.load(ctx)
	if err := fn(&current); err != nil {
		return UserSettings{}, err
	}
	if err := s.save(ctx, current); err != nil {
		return UserSettings{}, err
	}
	return current, nil
}

// Merge overlays a partial JSON document onto current.
func Merge(current UserSettings, patch []byte) (UserSettings, error) {
	if err := json.Unmarshal(patch, &current); err != nil {
		return UserSettings{}, apperr.Wrap(apperr.InvalidInput, "invalid settings document", err)
	}
	return current, nil
}
