package audio

import (
	"io"
	"sync"
	"sync/atomic"

	goaudio "github.com/go-audio/audio"
	"github.com/google/uuid"
)

// Stream is a handle to an acquired source. The SourceManager owns it; the
// mixer only holds a shared reference. The underlying source is closed
// exactly once.
type Stream struct {
	id     string
	kind   Kind
	source Source

	live atomic.Bool
	once sync.Once
	err  error
}

func newStream(kind Kind, source Source) *Stream {
	s := &Stream{
		id:     uuid.NewString(),
		kind:   kind,
		source: source,
	}
	s.live.Store(true)
	return s
}

func (s *Stream) ID() string             { return s.id }
func (s *Stream) Kind() Kind             { return s.kind }
func (s *Stream) Format() goaudio.Format { return s.source.Format() }

// Live reports whether the stream still produces samples.
func (s *Stream) Live() bool {
	return s.live.Load()
}

// ReadSamples reads from the source. A stream that ended or was released
// returns io.EOF.
func (s *Stream) ReadSamples(dst []float64) (int, error) {
	if !s.live.Load() {
		return 0, io.EOF
	}
	n, err := s.source.ReadSamples(dst)
	if err != nil {
		s.live.Store(false)
	}
	return n, err
}

func (s *Stream) release() (bool, error) {
	first := false
	s.once.Do(func() {
		first = true
		s.live.Store(false)
		s.err = s.source.Close()
	})
	return first, s.err
}
