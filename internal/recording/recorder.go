package recording

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jayesh4work/audio-assistant-extension/internal/apperr"
	"github.com/jayesh4work/audio-assistant-extension/internal/audio"
	"github.com/jayesh4work/audio-assistant-extension/internal/metrics"
)

// State is a recorder state.
type State string

const (
	StateIdle       State = "idle"
	StateAcquiring  State = "acquiring"
	StateRecording  State = "recording"
	StateFinalizing State = "finalizing"
)

var allStates = []string{string(StateIdle), string(StateAcquiring), string(StateRecording), string(StateFinalizing)}

// Config contains recorder parameters.
type Config struct {
	Format         goaudio.Format
	MeterWindow    int
	MeterRate      float64
	MicrophoneGain float64
	SecondaryGain  float64
}

// DefaultConfig returns 48 kHz mono with a 50/50 mix metered at 60 Hz.
func DefaultConfig() Config {
	return Config{
		Format:         audio.DefaultFormat,
		MeterWindow:    audio.DefaultMeterWindow,
		MeterRate:      60,
		MicrophoneGain: audio.DefaultGain,
		SecondaryGain:  audio.DefaultGain,
	}
}

// Warning is a non-fatal acquisition failure.
type Warning struct {
	Source  audio.Kind  `json:"source"`
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Source, w.Message)
}

// StartReport describes a started recording.
type StartReport struct {
	SessionID string       `json:"session_id"`
	Mode      audio.Mode   `json:"mode"`
	Sources   []audio.Kind `json:"sources"`
	Warnings  []Warning    `json:"warnings,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// Artifact is a finalized recording.
type Artifact struct {
	SessionID string        `json:"session_id"`
	Mode      audio.Mode    `json:"mode"`
	Data      []byte        `json:"-"`
	MIMEType  string        `json:"mime_type"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Fragments int           `json:"fragments"`
	Warnings  []Warning     `json:"warnings,omitempty"`
}

// Observer is notified of every state transition.
type Observer func(from, to State)

// session is the owned handle of one recording: its streams, mixer,
// encoder and fragments.
type session struct {
	id        string
	mode      audio.Mode
	streams   []*audio.Stream
	mixer     *audio.Mixer
	encoder   audio.Encoder
	fragments *FragmentBuffer
	warnings  []Warning
	startedAt time.Time

	collectDone chan struct{}
	meterCancel context.CancelFunc
	meterDone   chan struct{}
}

// Recorder owns at most one recording session at a time.
type Recorder struct {
	sources    *audio.SourceManager
	capability audio.Capability
	config     Config
	metrics    *metrics.Metrics
	logger     *slog.Logger

	state          State
	session        *session
	observers      []Observer
	levelObservers []func(audio.Levels)

	mu sync.Mutex
}

// NewRecorder creates an idle recorder. The capability creates encoders; the
// source manager acquires streams.
func NewRecorder(sources *audio.SourceManager, capability audio.Capability, config Config,
	m *metrics.Metrics, logger *slog.Logger) *Recorder {

	if config.Format.SampleRate <= 0 || config.Format.NumChannels <= 0 {
		config.Format = audio.DefaultFormat
	}
	if config.MeterWindow <= 0 {
		config.MeterWindow = audio.DefaultMeterWindow
	}
	if config.MeterRate <= 0 {
		config.MeterRate = 60
	}

	r := &Recorder{
		sources:    sources,
		capability: capability,
		config:     config,
		metrics:    m,
		logger:     logger,
		state:      StateIdle,
	}
	m.SetRecorderState(allStates, string(StateIdle))
	return r
}

// OnStateChange registers an observer.
func (r *Recorder) OnStateChange(fn Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// OnLevels registers a callback for every meter tick while recording.
func (r *Recorder) OnLevels(fn func(audio.Levels)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levelObservers = append(r.levelObservers, fn)
}

// State returns the current state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start begins a recording in mode. It is valid only from Idle; otherwise it
// fails with SessionActive and leaves the current session untouched.
func (r *Recorder) Start(ctx context.Context, mode audio.Mode) (*StartReport, error) {
	if _, err := audio.ParseMode(string(mode)); err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, err.Error(), err)
	}

	r.mu.Lock()
	if r.state != StateIdle {
		state := r.state
		r.mu.Unlock()
		return nil, apperr.Newf(apperr.SessionActive, "a recording is already %s", state)
	}
	stale := r.session
	r.session = nil
	r.state = StateAcquiring
	r.mu.Unlock()
	r.emit(StateIdle, StateAcquiring)

	if stale != nil {
		r.logger.Warn("Tearing down stale recording session", slog.String("session_id", stale.id))
		r.teardown(stale)
	}

	sess, err := r.open(ctx, mode)
	if err != nil {
		r.setState(StateIdle)
		r.metrics.RecordRecordingFailed(string(apperr.KindOf(err)))
		r.logger.Error("Recording failed to start",
			slog.String("mode", string(mode)),
			slog.String("kind", string(apperr.KindOf(err))),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	r.mu.Lock()
	r.session = sess
	r.state = StateRecording
	sess.startedAt = time.Now()
	r.mu.Unlock()
	r.emit(StateAcquiring, StateRecording)

	report := &StartReport{
		SessionID: sess.id,
		Mode:      mode,
		Warnings:  sess.warnings,
		StartedAt: sess.startedAt,
	}
	for _, s := range sess.streams {
		report.Sources = append(report.Sources, s.Kind())
	}

	r.metrics.RecordRecordingStarted(len(sess.warnings) > 0)
	r.metrics.SetActiveSources(r.sources.ActiveCount())
	r.logger.Info("Recording started",
		slog.String("session_id", sess.id),
		slog.String("mode", string(mode)),
		slog.Int("sources", len(sess.streams)),
		slog.Int("warnings", len(sess.warnings)),
	)
	return report, nil
}

// open acquires the sources of mode and wires them through a fresh mixer
// into a started encoder.
func (r *Recorder) open(ctx context.Context, mode audio.Mode) (*session, error) {
	acquired := make([]*audio.Stream, len(audio.Kinds))
	failures := make([]error, len(audio.Kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range audio.Kinds {
		if !mode.Uses(kind) {
			continue
		}
		i, kind := i, kind
		g.Go(func() error {
			stream, err := r.sources.Acquire(gctx, kind)
			if err != nil {
				failures[i] = err
				r.metrics.RecordSourceFailure(string(kind), string(apperr.KindOf(err)))
				if mode.Requires(kind) {
					return err
				}
				return nil
			}
			acquired[i] = stream
			return nil
		})
	}

	// acquired is only safe to read once every acquisition has returned
	waitErr := g.Wait()

	sess := &session{
		id:          uuid.NewString(),
		mode:        mode,
		fragments:   NewFragmentBuffer(),
		collectDone: make(chan struct{}),
		meterDone:   make(chan struct{}),
	}
	for _, s := range acquired {
		if s != nil {
			sess.streams = append(sess.streams, s)
		}
	}

	if waitErr != nil {
		r.releaseStreams(sess.streams)
		return nil, waitErr
	}

	for i, err := range failures {
		if err == nil {
			continue
		}
		w := Warning{Source: audio.Kinds[i], Kind: apperr.KindOf(err), Message: apperr.Message(err)}
		sess.warnings = append(sess.warnings, w)
		r.logger.Warn("Recording degraded, continuing without source",
			slog.String("source", string(w.Source)),
			slog.String("kind", string(w.Kind)),
			slog.String("error", err.Error()),
		)
	}

	mixer, err := audio.NewMixer(r.config.Format, r.config.MeterWindow, r.logger)
	if err != nil {
		r.releaseStreams(sess.streams)
		return nil, err
	}
	sess.mixer = mixer

	if _, err := mixer.SetGain(audio.Microphone, r.config.MicrophoneGain); err != nil {
		r.teardown(sess)
		return nil, err
	}
	if _, err := mixer.SetGain(audio.Secondary, r.config.SecondaryGain); err != nil {
		r.teardown(sess)
		return nil, err
	}
	for _, s := range sess.streams {
		if err := mixer.Attach(s, s.Kind()); err != nil {
			r.teardown(sess)
			return nil, err
		}
	}

	enc, err := r.capability.NewEncoder(mixer.Output(), r.config.Format)
	if err != nil {
		r.teardown(sess)
		return nil, err
	}
	if err := enc.Start(); err != nil {
		r.teardown(sess)
		return nil, apperr.Wrap(apperr.DeviceUnavailable, "failed to start encoder", err)
	}
	sess.encoder = enc

	go func() {
		defer close(sess.collectDone)
		for frag := range enc.Fragments() {
			sess.fragments.Add(frag)
		}
	}()

	meterCtx, cancel := context.WithCancel(context.Background())
	sess.meterCancel = cancel
	go func() {
		defer close(sess.meterDone)
		mixer.RunMeter(meterCtx, r.config.MeterRate, r.publishLevels)
	}()

	return sess, nil
}

func (r *Recorder) publishLevels(l audio.Levels) {
	r.metrics.SetMeterLevel(string(audio.TapMicrophone), l.Microphone)
	r.metrics.SetMeterLevel(string(audio.TapSecondary), l.Secondary)
	r.metrics.SetMeterLevel(string(audio.TapMixed), l.Mixed)

	r.mu.Lock()
	fns := append([]func(audio.Levels){}, r.levelObservers...)
	r.mu.Unlock()
	for _, fn := range fns {
		fn(l)
	}
}

// Stop finalizes the current recording and returns its artifact. When not
// recording it returns a NotRecording error and no artifact.
func (r *Recorder) Stop() (*Artifact, error) {
	r.mu.Lock()
	if r.state != StateRecording || r.session == nil {
		state := r.state
		r.mu.Unlock()
		return nil, apperr.Newf(apperr.NotRecording, "no recording in progress (state %s)", state)
	}
	sess := r.session
	r.state = StateFinalizing
	r.mu.Unlock()
	r.emit(StateRecording, StateFinalizing)

	duration := time.Since(sess.startedAt)

	// metering halts first, then the encoder flushes its final fragment
	sess.meterCancel()
	<-sess.meterDone
	stopErr := sess.encoder.Stop()
	<-sess.collectDone

	artifact := &Artifact{
		SessionID: sess.id,
		Mode:      sess.mode,
		Data:      sess.fragments.Bytes(),
		MIMEType:  sess.encoder.MIMEType(),
		StartedAt: sess.startedAt,
		Duration:  duration,
		Fragments: sess.fragments.Len(),
		Warnings:  sess.warnings,
	}

	r.teardown(sess)

	r.mu.Lock()
	r.session = nil
	r.mu.Unlock()
	r.setState(StateIdle)

	if stopErr != nil {
		r.metrics.RecordRecordingFailed(string(apperr.UnknownError))
		return nil, apperr.Wrap(apperr.UnknownError, "failed to finalize recording", stopErr)
	}

	r.metrics.RecordRecordingCompleted(duration.Seconds(), len(artifact.Data))
	r.logger.Info("Recording stopped",
		slog.String("session_id", sess.id),
		slog.Duration("duration", duration),
		slog.Int("fragments", artifact.Fragments),
		slog.Int("bytes", len(artifact.Data)),
	)
	return artifact, nil
}

// Sources reports the availability of every source kind.
func (r *Recorder) Sources() map[audio.Kind]audio.Status {
	return r.sources.Availability()
}

// Levels returns the current meter levels of the active recording.
func (r *Recorder) Levels() (audio.Levels, error) {
	mixer, err := r.activeMixer()
	if err != nil {
		return audio.Levels{}, err
	}
	return mixer.Levels(), nil
}

// SetGain changes a source gain of the active recording and returns the
// clamped value.
func (r *Recorder) SetGain(role audio.Kind, value float64) (float64, error) {
	mixer, err := r.activeMixer()
	if err != nil {
		return 0, err
	}
	return mixer.SetGain(role, value)
}

// Gains returns the gains of the active recording.
func (r *Recorder) Gains() (map[audio.Kind]float64, error) {
	mixer, err := r.activeMixer()
	if err != nil {
		return nil, err
	}
	return map[audio.Kind]float64{
		audio.Microphone: mixer.Gain(audio.Microphone),
		audio.Secondary:  mixer.Gain(audio.Secondary),
	}, nil
}

// Close stops an active recording, discarding its artifact.
func (r *Recorder) Close() error {
	if r.State() != StateRecording {
		return nil
	}
	_, err := r.Stop()
	if apperr.IsKind(err, apperr.NotRecording) {
		return nil
	}
	return err
}

func (r *Recorder) activeMixer() (*audio.Mixer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRecording || r.session == nil {
		return nil, apperr.New(apperr.NotRecording, "no recording in progress")
	}
	return r.session.mixer, nil
}

// teardown releases everything a session holds. It tolerates partially
// built sessions.
func (r *Recorder) teardown(sess *session) {
	if sess.meterCancel != nil {
		sess.meterCancel()
	}
	if sess.mixer != nil {
		sess.mixer.Teardown()
	}
	r.releaseStreams(sess.streams)
}

func (r *Recorder) releaseStreams(streams []*audio.Stream) {
	for _, s := range streams {
		if err := r.sources.Release(s); err != nil {
			r.logger.Warn("Failed to release source",
				slog.String("stream_id", s.ID()),
				slog.String("error", err.Error()),
			)
		}
	}
	r.metrics.SetActiveSources(r.sources.ActiveCount())
}

func (r *Recorder) setState(to State) {
	r.mu.Lock()
	from := r.state
	r.state = to
	r.mu.Unlock()
	r.emit(from, to)
}

func (r *Recorder) emit(from, to State) {
	r.metrics.SetRecorderState(allStates, string(to))
	r.logger.Debug("Recorder state changed",
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)

	r.mu.Lock()
	observers := append([]Observer{}, r.observers...)
	r.mu.Unlock()
	for _, fn := range observers {
		fn(from, to)
	}
}
