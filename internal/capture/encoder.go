package capture

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/zaf/g711"

	"github.com/jayesh4work/audio-assistant-extension/internal/audio"
)

// Codec selects the fragment encoding of a StreamEncoder.
type Codec string

const (
	// CodecWAV emits a streaming WAV header followed by PCM-16 frames, so the
	// concatenated fragments form a playable file.
	CodecWAV Codec = "wav"
	// CodecPCM16 emits raw little-endian PCM-16.
	CodecPCM16 Codec = "pcm16"
	// CodecULaw emits G.711 mu-law bytes.
	CodecULaw Codec = "ulaw"
)

// DefaultFrameDuration is the encoder pacing interval.
const DefaultFrameDuration = 20 * time.Millisecond

const fragmentQueueSize = 64

// ParseCodec validates a codec name. Empty selects CodecWAV.
func ParseCodec(s string) (Codec, error) {
	switch c := Codec(s); c {
	case "":
		return CodecWAV, nil
	case CodecWAV, CodecPCM16, CodecULaw:
		return c, nil
	}
	return "", fmt.Errorf("unknown codec %q", s)
}

// MIMEType returns the media type of the encoded stream.
func (c Codec) MIMEType() string {
	switch c {
	case CodecPCM16:
		return "audio/L16"
	case CodecULaw:
		return "audio/basic"
	}
	return "audio/wav"
}

// EncoderConfig configures the encoders a capability creates.
type EncoderConfig struct {
	Codec         Codec
	FrameDuration time.Duration
}

func (c EncoderConfig) withDefaults() EncoderConfig {
	if c.Codec == "" {
		c.Codec = CodecWAV
	}
	if c.FrameDuration <= 0 {
		c.FrameDuration = DefaultFrameDuration
	}
	return c
}

// StreamEncoder pulls one frame from its reader per tick and publishes it as
// an encoded fragment. It is single-use.
type StreamEncoder struct {
	reader audio.SampleReader
	format goaudio.Format
	config EncoderConfig
	logger *slog.Logger

	fragments chan []byte
	stop      chan struct{}
	done      chan struct{}

	frame []float64
	pcm   []byte

	started bool
	stopped bool
	mu      sync.Mutex
}

// NewStreamEncoder creates an encoder over r.
func NewStreamEncoder(r audio.SampleReader, format goaudio.Format, config EncoderConfig, logger *slog.Logger) (*StreamEncoder, error) {
	if r == nil {
		return nil, errors.New("encoder needs a sample reader")
	}
	if format.SampleRate <= 0 || format.NumChannels <= 0 {
		return nil, fmt.Errorf("invalid encoder format: %d channels at %d Hz", format.NumChannels, format.SampleRate)
	}
	config = config.withDefaults()
	if _, err := ParseCodec(string(config.Codec)); err != nil {
		return nil, err
	}

	frameSamples := int(int64(format.SampleRate) * int64(config.FrameDuration) / int64(time.Second))
	if frameSamples < 1 {
		frameSamples = 1
	}
	frameSamples *= format.NumChannels

	return &StreamEncoder{
		reader:    r,
		format:    format,
		config:    config,
		logger:    logger,
		fragments: make(chan []byte, fragmentQueueSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		frame:     make([]float64, frameSamples),
		pcm:       make([]byte, 0, frameSamples*2),
	}, nil
}

// MIMEType returns the media type of the fragments.
func (e *StreamEncoder) MIMEType() string {
	return e.config.Codec.MIMEType()
}

// Fragments returns the fragment channel. It is closed once Stop has flushed
// the final fragment.
func (e *StreamEncoder) Fragments() <-chan []byte {
	return e.fragments
}

// Start begins encoding.
func (e *StreamEncoder) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return errors.New("encoder already started")
	}
	e.started = true

	if e.config.Codec == CodecWAV {
		header, err := audio.StreamingWAVHeader(e.format)
		if err != nil {
			close(e.done)
			close(e.fragments)
			return fmt.Errorf("failed to build WAV header: %w", err)
		}
		e.fragments <- header
	}

	go e.run()

	e.logger.Debug("Encoder started",
		slog.String("codec", string(e.config.Codec)),
		slog.Duration("frame_duration", e.config.FrameDuration),
		slog.Int("frame_samples", len(e.frame)),
	)
	return nil
}

// Stop flushes the final frame and closes the fragment channel. The caller
// must keep draining Fragments until it is closed. Stopping twice is a no-op.
func (e *StreamEncoder) Stop() error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return errors.New("encoder not started")
	}
	if e.stopped {
		e.mu.Unlock()
		<-e.done
		return nil
	}
	e.stopped = true
	close(e.stop)
	e.mu.Unlock()

	<-e.done
	return nil
}

func (e *StreamEncoder) run() {
	defer close(e.done)
	defer close(e.fragments)

	ticker := time.NewTicker(e.config.FrameDuration)
	defer ticker.Stop()

	ended := false
	for {
		select {
		case <-e.stop:
			if !ended {
				e.encodeFrame()
			}
			return
		case <-ticker.C:
			if ended {
				continue
			}
			ended = e.encodeFrame()
		}
	}
}

// encodeFrame reads and publishes one frame; it reports whether the reader
// has ended.
func (e *StreamEncoder) encodeFrame() bool {
	n, err := e.reader.ReadSamples(e.frame)
	if n > 0 {
		e.fragments <- e.encode(e.frame[:n])
	}
	if err != nil {
		if err != io.EOF {
			e.logger.Warn("Encoder input failed, no more fragments will be produced",
				slog.String("error", err.Error()),
			)
		}
		return true
	}
	return false
}

func (e *StreamEncoder) encode(samples []float64) []byte {
	e.pcm = audio.AppendPCM16(e.pcm[:0], samples)

	if e.config.Codec == CodecULaw {
		return g711.EncodeUlaw(e.pcm)
	}
	out := make([]byte, len(e.pcm))
	copy(out, e.pcm)
	return out
}
