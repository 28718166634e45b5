package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jayesh4work/audio-assistant-extension/internal/apperr"
)

// SourceManager acquires and releases capture streams and tracks per-source
// availability.
type SourceManager struct {
	capability Capability
	logger     *slog.Logger

	active map[string]*Stream
	status map[Kind]Status

	mu sync.Mutex
}

// NewSourceManager creates a manager over a platform capability.
func NewSourceManager(capability Capability, logger *slog.Logger) *SourceManager {
	return &SourceManager{
		capability: capability,
		logger:     logger,
		active:     make(map[string]*Stream),
		status: map[Kind]Status{
			Microphone: StatusReady,
			Secondary:  StatusReady,
		},
	}
}

// AcquireMicrophone opens the microphone. Fails with PermissionDenied or
// DeviceUnavailable.
func (m *SourceManager) AcquireMicrophone(ctx context.Context) (*Stream, error) {
	return m.acquire(ctx, Microphone, m.capability.RequestMicrophone, apperr.DeviceUnavailable)
}

// AcquireSecondary opens the secondary (tab/system) capture. Fails with
// PermissionDenied, DeviceUnavailable or Unavailable.
func (m *SourceManager) AcquireSecondary(ctx context.Context) (*Stream, error) {
	return m.acquire(ctx, Secondary, m.capability.RequestSecondary, apperr.Unavailable)
}

// Acquire dispatches on kind.
func (m *SourceManager) Acquire(ctx context.Context, kind Kind) (*Stream, error) {
	switch kind {
	case Microphone:
		return m.AcquireMicrophone(ctx)
	case Secondary:
		return m.AcquireSecondary(ctx)
	}
	return nil, apperr.Newf(apperr.InvalidInput, "unknown source kind %q", kind)
}

func (m *SourceManager) acquire(ctx context.Context, kind Kind,
	request func(context.Context) (Source, error), fallback apperr.Kind) (*Stream, error) {

	source, err := request(ctx)
	if err == nil && source == nil {
		err = errors.New("capability returned no source")
	}
	if err != nil {
		classified := classifyAcquireError(kind, err, fallback)
		m.setStatus(kind, statusFor(apperr.KindOf(classified)))
		m.logger.Warn("Source acquisition failed",
			slog.String("source", string(kind)),
			slog.String("kind", string(apperr.KindOf(classified))),
			slog.String("error", err.Error()),
		)
		return nil, classified
	}

	stream := newStream(kind, source)

	m.mu.Lock()
	m.active[stream.ID()] = stream
	m.status[kind] = StatusRecording
	m.mu.Unlock()

	m.logger.Debug("Source acquired",
		slog.String("source", string(kind)),
		slog.String("stream_id", stream.ID()),
		slog.Int("sample_rate", source.Format().SampleRate),
		slog.Int("channels", source.Format().NumChannels),
	)
	return stream, nil
}

// Release stops the stream's source. Releasing an already released (or nil)
// stream is a no-op.
func (m *SourceManager) Release(stream *Stream) error {
	if stream == nil {
		return nil
	}

	first, err := stream.release()
	if !first {
		return nil
	}

	m.mu.Lock()
	delete(m.active, stream.ID())
	if !m.hasActiveLocked(stream.Kind()) {
		m.status[stream.Kind()] = StatusReady
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("Source close failed",
			slog.String("source", string(stream.Kind())),
			slog.String("stream_id", stream.ID()),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("release %s stream: %w", stream.Kind(), err)
	}

	m.logger.Debug("Source released",
		slog.String("source", string(stream.Kind())),
		slog.String("stream_id", stream.ID()),
	)
	return nil
}

// ReleaseAll releases every stream this manager handed out.
func (m *SourceManager) ReleaseAll() {
	m.mu.Lock()
	streams := make([]*Stream, 0, len(m.active))
	for _, s := range m.active {
		streams = append(streams, s)
	}
	m.mu.Unlock()

	for _, s := range streams {
		_ = m.Release(s)
	}
}

// Availability returns a snapshot of per-source status.
func (m *SourceManager) Availability() map[Kind]Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[Kind]Status, len(m.status))
	for k, v := range m.status {
		out[k] = v
	}
	return out
}

// ActiveCount returns the number of unreleased streams.
func (m *SourceManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *SourceManager) setStatus(kind Kind, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[kind] = status
}

func (m *SourceManager) hasActiveLocked(kind Kind) bool {
	for _, s := range m.active {
		if s.Kind() == kind {
			return true
		}
	}
	return false
}

func classifyAcquireError(kind Kind, err error, fallback apperr.Kind) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		switch ae.Kind {
		case apperr.PermissionDenied, apperr.DeviceUnavailable, apperr.Unavailable:
			return err
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(fallback, fmt.Sprintf("%s request did not complete", kind), err)
	}
	return apperr.Wrap(fallback, fmt.Sprintf("%s is not available", kind), err)
}

func statusFor(kind apperr.Kind) Status {
	switch kind {
	case apperr.PermissionDenied:
		return StatusDenied
	case apperr.DeviceUnavailable, apperr.Unavailable:
		return StatusUnavailable
	}
	return StatusError
}
