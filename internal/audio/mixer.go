package audio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"

	"github.com/jayesh4work/audio-assistant-extension/internal/apperr"
)

// DefaultGain is the per-source gain of a fresh mixer (50/50 mix).
const DefaultGain = 0.5

type gainChannel struct {
	stream *Stream
	role   Kind
}

// Mixer sums up to one stream per role through a gain channel into a single
// output. Meter taps observe each source and the mix without altering them.
type Mixer struct {
	format goaudio.Format
	logger *slog.Logger

	channels map[Kind]*gainChannel
	gains    map[Kind]float64
	meters   map[Tap]*Meter
	output   *MixedOutput

	// per-source read buffer reused across reads
	scratch []float64

	torn bool
	mu   sync.Mutex
	// readMu serializes output reads; it is never held together with mu
	// while a source read blocks.
	readMu sync.Mutex
}

// MixedOutput is the mixer's output stream.
type MixedOutput struct {
	mixer *Mixer
}

// NewMixer creates a mixer for the given format. meterWindow <= 0 uses
// DefaultMeterWindow.
func NewMixer(format goaudio.Format, meterWindow int, logger *slog.Logger) (*Mixer, error) {
	if format.NumChannels <= 0 || format.SampleRate <= 0 {
		return nil, apperr.Newf(apperr.InvalidInput, "invalid mixer format: %d channels at %d Hz",
			format.NumChannels, format.SampleRate)
	}
	if meterWindow <= 0 {
		meterWindow = DefaultMeterWindow
	}

	m := &Mixer{
		format:   format,
		logger:   logger,
		channels: make(map[Kind]*gainChannel),
		gains: map[Kind]float64{
			Microphone: DefaultGain,
			Secondary:  DefaultGain,
		},
		meters: make(map[Tap]*Meter, len(Taps)),
	}
	for _, tap := range Taps {
		meter, err := NewMeter(meterWindow)
		if err != nil {
			return nil, err
		}
		m.meters[tap] = meter
	}
	m.output = &MixedOutput{mixer: m}
	return m, nil
}

// Format returns the output format.
func (m *Mixer) Format() goaudio.Format {
	return m.format
}

// Attach connects stream into the gain channel for role, replacing any
// channel already attached for that role.
func (m *Mixer) Attach(stream *Stream, role Kind) error {
	if stream == nil {
		return apperr.New(apperr.InvalidInput, "cannot attach a nil stream")
	}
	if role != Microphone && role != Secondary {
		return apperr.Newf(apperr.InvalidInput, "unknown mixer role %q", role)
	}
	sf := stream.Format()
	if sf.NumChannels != m.format.NumChannels || sf.SampleRate != m.format.SampleRate {
		return apperr.Newf(apperr.InvalidInput,
			"%s stream format %dch/%dHz does not match mixer format %dch/%dHz",
			role, sf.NumChannels, sf.SampleRate, m.format.NumChannels, m.format.SampleRate)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.torn {
		return apperr.New(apperr.MixerUninitialized, "mixer has been torn down")
	}
	if prev, ok := m.channels[role]; ok && prev.stream != stream {
		m.logger.Debug("Replacing mixer channel",
			slog.String("role", string(role)),
			slog.String("previous_stream", prev.stream.ID()),
			slog.String("stream", stream.ID()),
		)
	}
	m.channels[role] = &gainChannel{stream: stream, role: role}
	return nil
}

// Detach removes the channel for role. Its contribution disappears from the
// next frame.
func (m *Mixer) Detach(role Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.channels, role)
	if meter, ok := m.meters[tapFor(role)]; ok {
		meter.Reset()
	}
}

// Attached reports whether a channel is attached for role.
func (m *Mixer) Attached(role Kind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.channels[role]
	return ok
}

// SetGain clamps value into [0,1], stores it and returns the stored value.
// It applies from the next processed frame.
func (m *Mixer) SetGain(role Kind, value float64) (float64, error) {
	if role != Microphone && role != Secondary {
		return 0, apperr.Newf(apperr.InvalidInput, "unknown mixer role %q", role)
	}
	g := clampGain(value)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.torn {
		return 0, apperr.New(apperr.MixerUninitialized, "mixer has been torn down")
	}
	m.gains[role] = g
	return g, nil
}

// Gain returns the stored gain for role.
func (m *Mixer) Gain(role Kind) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gains[role]
}

// Output returns the mixed output stream.
func (m *Mixer) Output() *MixedOutput {
	return m.output
}

// Meter returns the level of a tap in [0,100].
func (m *Mixer) Meter(tap Tap) (int, error) {
	meter, ok := m.meters[tap]
	if !ok {
		return 0, apperr.Newf(apperr.InvalidInput, "unknown meter tap %q", tap)
	}
	return meter.Level(), nil
}

// Levels returns all tap levels at once.
func (m *Mixer) Levels() Levels {
	return Levels{
		Microphone: m.meters[TapMicrophone].Level(),
		Secondary:  m.meters[TapSecondary].Level(),
		Mixed:      m.meters[TapMixed].Level(),
	}
}

// RunMeter calls fn with a Levels snapshot at the given rate until ctx is
// done. It runs independently of the mixing path.
func (m *Mixer) RunMeter(ctx context.Context, rate float64, fn func(Levels)) {
	if rate <= 0 {
		rate = 60
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(m.Levels())
		}
	}
}

// Teardown disconnects every channel and resets the meters. Calling it again
// is a no-op. Streams are not released; they belong to the SourceManager.
func (m *Mixer) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.torn {
		return
	}
	m.torn = true
	m.channels = make(map[Kind]*gainChannel)
	for _, meter := range m.meters {
		meter.Reset()
	}
	m.logger.Debug("Mixer torn down")
}

// TornDown reports whether Teardown has been called.
func (m *Mixer) TornDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.torn
}

// ReadSamples fills dst with the weighted sum of every attached, live
// channel. With nothing attached the output is silence. After teardown it
// returns io.EOF.
func (o *MixedOutput) ReadSamples(dst []float64) (int, error) {
	return o.mixer.mix(dst)
}

// Format returns the output format.
func (o *MixedOutput) Format() goaudio.Format {
	return o.mixer.format
}

func (m *Mixer) mix(dst []float64) (int, error) {
	m.readMu.Lock()
	defer m.readMu.Unlock()

	// Snapshot channels and gains: a gain change applies from the next frame.
	m.mu.Lock()
	if m.torn {
		m.mu.Unlock()
		return 0, io.EOF
	}
	active := make([]*gainChannel, 0, len(m.channels))
	gains := make(map[Kind]float64, len(m.gains))
	for _, role := range Kinds {
		if ch, ok := m.channels[role]; ok {
			active = append(active, ch)
		}
		gains[role] = m.gains[role]
	}
	m.mu.Unlock()

	for i := range dst {
		dst[i] = 0
	}
	if cap(m.scratch) < len(dst) {
		m.scratch = make([]float64, len(dst))
	}
	buf := m.scratch[:len(dst)]

	for _, ch := range active {
		for i := range buf {
			buf[i] = 0
		}
		if ch.stream.Live() {
			n, err := ch.stream.ReadSamples(buf)
			if err != nil && err != io.EOF {
				m.logger.Warn("Source read failed, treating as ended",
					slog.String("role", string(ch.role)),
					slog.String("stream_id", ch.stream.ID()),
					slog.String("error", err.Error()),
				)
			}
			for i := n; i < len(buf); i++ {
				buf[i] = 0
			}
		}

		g := gains[ch.role]
		for i, s := range buf {
			dst[i] += g * s
		}
		m.meters[tapFor(ch.role)].Write(buf)
	}

	m.meters[TapMixed].Write(dst)
	return len(dst), nil
}

func clampGain(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
