package capture

import (
	"io"
	"math"
	"sync"
	"sync/atomic"

	goaudio "github.com/go-audio/audio"
)

// ToneSource generates a continuous sine wave on every channel.
type ToneSource struct {
	format    goaudio.Format
	frequency float64
	amplitude float64

	phase   float64
	closed  atomic.Bool
	once    sync.Once
	onClose func()
	mu      sync.Mutex
}

// NewToneSource creates a tone generator. amplitude is clamped to [0,1].
func NewToneSource(format goaudio.Format, frequency, amplitude float64) *ToneSource {
	return &ToneSource{
		format:    format,
		frequency: frequency,
		amplitude: math.Max(0, math.Min(1, amplitude)),
	}
}

// ReadSamples fills dst with interleaved sine samples. After Close it returns
// io.EOF.
func (s *ToneSource) ReadSamples(dst []float64) (int, error) {
	if s.closed.Load() {
		return 0, io.EOF
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	channels := s.format.NumChannels
	step := 2 * math.Pi * s.frequency / float64(s.format.SampleRate)
	frames := len(dst) / channels
	for f := 0; f < frames; f++ {
		v := s.amplitude * math.Sin(s.phase)
		for c := 0; c < channels; c++ {
			dst[f*channels+c] = v
		}
		s.phase += step
		if s.phase >= 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
	}
	return frames * channels, nil
}

func (s *ToneSource) Format() goaudio.Format { return s.format }

// Close stops the generator.
func (s *ToneSource) Close() error {
	s.once.Do(func() {
		s.closed.Store(true)
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}

// BufferSource plays back decoded samples, optionally looping.
type BufferSource struct {
	format goaudio.Format
	data   []float64
	loop   bool

	pos     int
	closed  atomic.Bool
	once    sync.Once
	onClose func()
	mu      sync.Mutex
}

// NewBufferSource creates a source over interleaved samples.
func NewBufferSource(format goaudio.Format, data []float64, loop bool) *BufferSource {
	return &BufferSource{format: format, data: data, loop: loop}
}

// ReadSamples copies the next samples into dst. Without looping it returns
// io.EOF once the buffer is exhausted.
func (s *BufferSource) ReadSamples(dst []float64) (int, error) {
	if s.closed.Load() {
		return 0, io.EOF
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.data) == 0 {
		return 0, io.EOF
	}

	n := 0
	for n < len(dst) {
		if s.pos >= len(s.data) {
			if !s.loop {
				return n, io.EOF
			}
			s.pos = 0
		}
		c := copy(dst[n:], s.data[s.pos:])
		n += c
		s.pos += c
	}
	return n, nil
}

func (s *BufferSource) Format() goaudio.Format { return s.format }

// Close ends playback.
func (s *BufferSource) Close() error {
	s.once.Do(func() {
		s.closed.Store(true)
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}
