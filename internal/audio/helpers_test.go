package audio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	goaudio "github.com/go-audio/audio"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// constSource produces a constant sample value until limit samples were read
// (limit <= 0 means unlimited).
type constSource struct {
	value    float64
	format   goaudio.Format
	limit    int
	read     int
	readErr  error
	closeErr error
	closed   atomic.Int32
	mu       sync.Mutex
}

func newConstSource(value float64) *constSource {
	return &constSource{value: value, format: DefaultFormat}
}

func (s *constSource) ReadSamples(dst []float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readErr != nil {
		return 0, s.readErr
	}
	n := len(dst)
	if s.limit > 0 {
		if left := s.limit - s.read; left < n {
			n = left
		}
	}
	for i := 0; i < n; i++ {
		dst[i] = s.value
	}
	s.read += n
	if s.limit > 0 && s.read >= s.limit {
		return n, io.EOF
	}
	return n, nil
}

func (s *constSource) Format() goaudio.Format { return s.format }

func (s *constSource) Close() error {
	s.closed.Add(1)
	return s.closeErr
}

// stubCapability hands out pre-built sources or errors.
type stubCapability struct {
	mic    Source
	micErr error
	sec    Source
	secErr error
}

func (c *stubCapability) RequestMicrophone(ctx context.Context) (Source, error) {
	if c.micErr != nil {
		return nil, c.micErr
	}
	return c.mic, nil
}

func (c *stubCapability) RequestSecondary(ctx context.Context) (Source, error) {
	if c.secErr != nil {
		return nil, c.secErr
	}
	return c.sec, nil
}

func (c *stubCapability) NewEncoder(r SampleReader, format goaudio.Format) (Encoder, error) {
	return nil, errors.New("encoding not supported by stub")
}
