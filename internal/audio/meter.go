package audio

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// DefaultMeterWindow is the analysis window in samples.
const DefaultMeterWindow = 256

// Tap names a metering point.
type Tap string

const (
	TapMicrophone Tap = "microphone"
	TapSecondary  Tap = "secondary"
	TapMixed      Tap = "mixed"
)

// Taps lists every metering point.
var Taps = []Tap{TapMicrophone, TapSecondary, TapMixed}

// ParseTap validates a tap name.
func ParseTap(s string) (Tap, error) {
	switch t := Tap(s); t {
	case TapMicrophone, TapSecondary, TapMixed:
		return t, nil
	}
	return "", fmt.Errorf("unknown meter tap %q", s)
}

func tapFor(k Kind) Tap {
	if k == Secondary {
		return TapSecondary
	}
	return TapMicrophone
}

// Levels is one metering snapshot, each value in [0,100].
type Levels struct {
	Microphone int `json:"microphone"`
	Secondary  int `json:"secondary"`
	Mixed      int `json:"mixed"`
}

// Meter keeps the magnitudes of the most recent window of samples and turns
// them into a percentage of full scale.
type Meter struct {
	window []float64
	pos    int

	// Statistics
	samplesSeen uint64
	peak        float64
	lastWrite   time.Time

	mu sync.RWMutex
}

// MeterStats reports meter statistics.
type MeterStats struct {
	Window      int       `json:"window"`
	SamplesSeen uint64    `json:"samples_seen"`
	Level       int       `json:"level"`
	Peak        float64   `json:"peak"`
	LastWrite   time.Time `json:"last_write"`
}

// NewMeter creates a meter with the given window size.
func NewMeter(window int) (*Meter, error) {
	if window <= 0 {
		return nil, fmt.Errorf("meter window must be positive, got %d", window)
	}
	return &Meter{window: make([]float64, window)}, nil
}

// Write records samples. The slice is only read.
func (m *Meter) Write(samples []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range samples {
		mag := math.Abs(s)
		if math.IsNaN(mag) {
			mag = 0
		}
		m.window[m.pos] = mag
		m.pos = (m.pos + 1) % len(m.window)
		if mag > m.peak {
			m.peak = mag
		}
	}
	m.samplesSeen += uint64(len(samples))
	m.lastWrite = time.Now()
}

// Level returns the windowed mean magnitude as an integer percentage of full
// scale, always within [0,100].
func (m *Meter) Level() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.levelLocked()
}

func (m *Meter) levelLocked() int {
	var sum float64
	for _, v := range m.window {
		sum += v
	}

	level := math.Round(sum / float64(len(m.window)) * 100)
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return int(level)
}

// Reset returns the meter to silence.
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.window {
		m.window[i] = 0
	}
	m.pos = 0
	m.peak = 0
	m.samplesSeen = 0
	m.lastWrite = time.Time{}
}

// GetStats returns current meter statistics.
func (m *Meter) GetStats() MeterStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MeterStats{
		Window:      len(m.window),
		SamplesSeen: m.samplesSeen,
		Level:       m.levelLocked(),
		Peak:        m.peak,
		LastWrite:   m.lastWrite,
	}
}
