package assistant

import (
	"context"
	"log/slog"
	"math"

	"github.com/jayesh4work/audio-assistant-extension/internal/apperr"
	"github.com/jayesh4work/audio-assistant-extension/internal/audio"
	"github.com/jayesh4work/audio-assistant-extension/internal/history"
	"github.com/jayesh4work/audio-assistant-extension/internal/recording"
	"github.com/jayesh4work/audio-assistant-extension/internal/settings"
	"github.com/jayesh4work/audio-assistant-extension/internal/transcription"
)

// Transcriber submits audio for transcription.
type Transcriber interface {
	Submit(ctx context.Context, sub transcription.Submission) (*transcription.Result, error)
}

// Outcome is the result of a completed recording and transcription.
type Outcome struct {
	Artifact *recording.Artifact   `json:"artifact,omitempty"`
	Result   *transcription.Result `json:"result"`
	// Entry is set when the transcript was saved to history.
	Entry *history.Transcript `json:"entry,omitempty"`
	// HistoryErr is set when saving failed. The transcription is still valid.
	HistoryErr error `json:"-"`
}

// Assistant coordinates recording, transcription and history.
type Assistant struct {
	recorder    *recording.Recorder
	transcriber Transcriber
	history     *history.Store
	settings    *settings.Service
	logger      *slog.Logger
}

// New creates an assistant.
func New(recorder *recording.Recorder, transcriber Transcriber, store *history.Store,
	prefs *settings.Service, logger *slog.Logger) *Assistant {
	return &Assistant{
		recorder:    recorder,
		transcriber: transcriber,
		history:     store,
		settings:    prefs,
		logger:      logger,
	}
}

// Recorder returns the underlying recorder.
func (a *Assistant) Recorder() *recording.Recorder {
	return a.recorder
}

// History returns the transcript store.
func (a *Assistant) History() *history.Store {
	return a.history
}

// Settings returns the settings service.
func (a *Assistant) Settings() *settings.Service {
	return a.settings
}

// StartRecording starts a session. An empty mode uses the saved audio mode.
func (a *Assistant) StartRecording(ctx context.Context, mode audio.Mode) (*recording.StartReport, error) {
	if mode == "" {
		mode = a.settings.Load(ctx).AudioMode
	}
	report, err := a.recorder.Start(ctx, mode)
	if err != nil {
		return nil, err
	}
	for _, w := range report.Warnings {
		a.logger.Warn("Recording degraded", slog.String("warning", w.String()))
	}
	return report, nil
}

// StopAndTranscribe stops the current session and transcribes the artifact.
// Empty language or provider use the saved settings. If the transcription
// fails the artifact is still returned alongside the error.
func (a *Assistant) StopAndTranscribe(ctx context.Context, language string, provider transcription.Provider) (*Outcome, error) {
	artifact, err := a.recorder.Stop()
	if err != nil {
		return nil, err
	}

	// The recording is consumed by Stop; submission and history outlive the caller.
	ctx = context.WithoutCancel(ctx)
	outcome, err := a.transcribe(ctx, artifact.Data, artifact.MIMEType, language, provider, artifact.Duration.Seconds())
	if err != nil {
		return &Outcome{Artifact: artifact}, err
	}
	outcome.Artifact = artifact
	return outcome, nil
}

// Transcribe submits pre-recorded audio. durationSeconds is stored with the
// history entry.
func (a *Assistant) Transcribe(ctx context.Context, data []byte, mimeType, language string,
	provider transcription.Provider, durationSeconds float64) (*Outcome, error) {
	return a.transcribe(ctx, data, mimeType, language, provider, durationSeconds)
}

func (a *Assistant) transcribe(ctx context.Context, data []byte, mimeType, language string,
	provider transcription.Provider, durationSeconds float64) (*Outcome, error) {
	if len(data) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "no audio to transcribe")
	}
	if durationSeconds < 0 || math.IsNaN(durationSeconds) {
		return nil, apperr.New(apperr.InvalidInput, "duration must be a non-negative number")
	}

	prefs := a.settings.Load(ctx)
	if language == "" {
		language = prefs.Language
	}
	if provider == "" {
		provider = prefs.STTProvider
	}

	result, err := a.transcriber.Submit(ctx, transcription.Submission{
		Audio:    data,
		MIMEType: mimeType,
		Language: language,
		Provider: provider,
	})
	if err != nil {
		a.logger.Error("Transcription failed",
			slog.String("kind", string(apperr.KindOf(err))),
			slog.String("error", err.Error()))
		return nil, err
	}

	outcome := &Outcome{Result: result}
	if !prefs.AutoSave {
		return outcome, nil
	}

	entry, err := a.history.AddEntry(ctx, result, durationSeconds)
	if err != nil {
		a.logger.Error("Failed to save transcript to history", slog.String("error", err.Error()))
		outcome.HistoryErr = err
		return outcome, nil
	}
	outcome.Entry = &entry
	return outcome, nil
}

// Close stops any active session without transcribing it.
func (a *Assistant) Close() error {
	return a.recorder.Close()
}
