package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync/atomic"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/jayesh4work/audio-assistant-extension/internal/apperr"
	"github.com/jayesh4work/audio-assistant-extension/internal/audio"
)

// WAVFileConfig configures the file-backed capability.
type WAVFileConfig struct {
	MicrophonePath string
	SecondaryPath  string
	// Format every file must match.
	Format goaudio.Format
	Loop   bool

	Encoder EncoderConfig
}

// WAVFile is a capability whose sources play back PCM WAV files. A missing
// path for a kind makes that kind unavailable.
type WAVFile struct {
	config WAVFileConfig
	logger *slog.Logger
	open   atomic.Int64
}

// NewWAVFile creates a file-backed capability.
func NewWAVFile(config WAVFileConfig, logger *slog.Logger) *WAVFile {
	if config.Format.SampleRate <= 0 || config.Format.NumChannels <= 0 {
		config.Format = audio.DefaultFormat
	}
	config.Encoder = config.Encoder.withDefaults()
	return &WAVFile{config: config, logger: logger}
}

// OpenSources returns the number of sources handed out and not yet closed.
func (w *WAVFile) OpenSources() int {
	return int(w.open.Load())
}

func (w *WAVFile) RequestMicrophone(ctx context.Context) (audio.Source, error) {
	return w.request(ctx, audio.Microphone, w.config.MicrophonePath, apperr.DeviceUnavailable)
}

func (w *WAVFile) RequestSecondary(ctx context.Context) (audio.Source, error) {
	return w.request(ctx, audio.Secondary, w.config.SecondaryPath, apperr.Unavailable)
}

func (w *WAVFile) request(ctx context.Context, kind audio.Kind, path string, unavailable apperr.Kind) (audio.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, apperr.Newf(unavailable, "no %s file configured", kind)
	}

	data, format, err := LoadWAV(path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, apperr.Wrap(apperr.PermissionDenied, fmt.Sprintf("cannot read %s file", kind), err)
		}
		return nil, apperr.Wrap(unavailable, fmt.Sprintf("cannot load %s file", kind), err)
	}
	if format != w.config.Format {
		return nil, apperr.Newf(unavailable, "%s file is %dch/%dHz, expected %dch/%dHz",
			kind, format.NumChannels, format.SampleRate, w.config.Format.NumChannels, w.config.Format.SampleRate)
	}

	src := NewBufferSource(format, data, w.config.Loop)
	src.onClose = func() { w.open.Add(-1) }
	w.open.Add(1)

	w.logger.Debug("WAV source opened",
		slog.String("source", string(kind)),
		slog.String("path", path),
		slog.Int("samples", len(data)),
	)
	return src, nil
}

func (w *WAVFile) NewEncoder(r audio.SampleReader, format goaudio.Format) (audio.Encoder, error) {
	enc, err := NewStreamEncoder(r, format, w.config.Encoder, w.logger)
	if err != nil {
		return nil, apperr.Wrap(apperr.DeviceUnavailable, "failed to create encoder", err)
	}
	return enc, nil
}

// LoadWAV decodes a PCM WAV file into interleaved float samples in [-1, 1].
func LoadWAV(path string) ([]float64, goaudio.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, goaudio.Format{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, goaudio.Format{}, fmt.Errorf("%s is not a valid WAV file", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, goaudio.Format{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, goaudio.Format{}, fmt.Errorf("unsupported bit depth %d in %s", bitDepth, path)
	}
	scale := float64(int64(1) << (bitDepth - 1))

	samples := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float64(v) / scale
	}
	format := goaudio.Format{NumChannels: int(dec.NumChans), SampleRate: int(dec.SampleRate)}
	return samples, format, nil
}
