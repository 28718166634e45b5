package capture

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	goaudio "github.com/go-audio/audio"

	"github.com/jayesh4work/audio-assistant-extension/internal/apperr"
	"github.com/jayesh4work/audio-assistant-extension/internal/audio"
)

// SyntheticConfig configures the tone generator capability.
type SyntheticConfig struct {
	Format goaudio.Format

	MicrophoneFrequency float64
	SecondaryFrequency  float64
	Amplitude           float64

	Encoder EncoderConfig
}

// Synthetic is a capability whose sources are sine generators. Failures can
// be injected per source kind.
type Synthetic struct {
	config SyntheticConfig
	logger *slog.Logger

	failures map[audio.Kind]error
	opens    map[audio.Kind]int
	open     atomic.Int64
	mu       sync.Mutex
}

// NewSynthetic creates a synthetic capability. Zero values default to
// audio.DefaultFormat and 440/660 Hz tones at half scale.
func NewSynthetic(config SyntheticConfig, logger *slog.Logger) *Synthetic {
	if config.Format.SampleRate <= 0 || config.Format.NumChannels <= 0 {
		config.Format = audio.DefaultFormat
	}
	if config.MicrophoneFrequency <= 0 {
		config.MicrophoneFrequency = 440
	}
	if config.SecondaryFrequency <= 0 {
		config.SecondaryFrequency = 660
	}
	if config.Amplitude <= 0 {
		config.Amplitude = 0.5
	}
	config.Encoder = config.Encoder.withDefaults()

	return &Synthetic{
		config:   config,
		logger:   logger,
		failures: make(map[audio.Kind]error),
		opens:    make(map[audio.Kind]int),
	}
}

// Fail makes every following request for kind return err. A nil err clears
// the failure.
func (s *Synthetic) Fail(kind audio.Kind, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, kind)
		return
	}
	s.failures[kind] = err
}

// Opens returns how many sources of kind were handed out.
func (s *Synthetic) Opens(kind audio.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens[kind]
}

// OpenSources returns the number of sources handed out and not yet closed.
func (s *Synthetic) OpenSources() int {
	return int(s.open.Load())
}

func (s *Synthetic) RequestMicrophone(ctx context.Context) (audio.Source, error) {
	return s.request(ctx, audio.Microphone, s.config.MicrophoneFrequency)
}

func (s *Synthetic) RequestSecondary(ctx context.Context) (audio.Source, error) {
	return s.request(ctx, audio.Secondary, s.config.SecondaryFrequency)
}

func (s *Synthetic) request(ctx context.Context, kind audio.Kind, frequency float64) (audio.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	failure := s.failures[kind]
	if failure == nil {
		s.opens[kind]++
	}
	s.mu.Unlock()

	if failure != nil {
		return nil, failure
	}

	src := NewToneSource(s.config.Format, frequency, s.config.Amplitude)
	src.onClose = func() { s.open.Add(-1) }
	s.open.Add(1)

	s.logger.Debug("Synthetic source opened",
		slog.String("source", string(kind)),
		slog.Float64("frequency", frequency),
	)
	return src, nil
}

func (s *Synthetic) NewEncoder(r audio.SampleReader, format goaudio.Format) (audio.Encoder, error) {
	enc, err := NewStreamEncoder(r, format, s.config.Encoder, s.logger)
	if err != nil {
		return nil, apperr.Wrap(apperr.DeviceUnavailable, "failed to create encoder", err)
	}
	return enc, nil
}
