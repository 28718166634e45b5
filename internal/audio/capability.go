package audio

import (
	"context"

	goaudio "github.com/go-audio/audio"
)

// SampleReader yields interleaved float samples in [-1, 1]. io.EOF signals
// that no more samples will ever be produced.
type SampleReader interface {
	ReadSamples(dst []float64) (int, error)
}

// Source is a raw platform capture stream.
type Source interface {
	SampleReader
	Format() goaudio.Format
	Close() error
}

// Encoder turns a sample stream into encoded fragments. An encoder is
// single-use: once stopped it cannot be started again.
type Encoder interface {
	Start() error
	// Fragments is closed after Stop has flushed the final fragment.
	Fragments() <-chan []byte
	Stop() error
	MIMEType() string
}

// Capability is the platform audio contract. Implementations return
// *apperr.Error values classified as PermissionDenied, DeviceUnavailable or
// Unavailable when a source cannot be opened.
type Capability interface {
	RequestMicrophone(ctx context.Context) (Source, error)
	RequestSecondary(ctx context.Context) (Source, error)
	NewEncoder(r SampleReader, format goaudio.Format) (Encoder, error)
}

// DefaultFormat is 48 kHz mono.
var DefaultFormat = goaudio.Format{NumChannels: 1, SampleRate: 48000}
