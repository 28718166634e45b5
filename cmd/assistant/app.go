package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jayesh4work/audio-assistant-extension/internal/assistant"
	"github.com/jayesh4work/audio-assistant-extension/internal/audio"
	"github.com/jayesh4work/audio-assistant-extension/internal/capture"
	"github.com/jayesh4work/audio-assistant-extension/internal/config"
	"github.com/jayesh4work/audio-assistant-extension/internal/history"
	"github.com/jayesh4work/audio-assistant-extension/internal/metrics"
	"github.com/jayesh4work/audio-assistant-extension/internal/recording"
	"github.com/jayesh4work/audio-assistant-extension/internal/settings"
	"github.com/jayesh4work/audio-assistant-extension/internal/transcription"
)

// app holds the wired components of one process.
type app struct {
	sessionID string
	metrics   *metrics.Metrics
	sources   *audio.SourceManager
	client    *transcription.Client
	kv        history.KV
	rdb       *redis.Client
	assistant *assistant.Assistant
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	sessionID := uuid.NewString()
	m := metrics.NewMetrics(nil)

	format := goaudio.Format{NumChannels: cfg.Audio.Channels, SampleRate: cfg.Audio.SampleRate}
	capability, err := newCapability(cfg, format, logger)
	if err != nil {
		return nil, err
	}
	sources := audio.NewSourceManager(capability, logger)

	recorder := recording.NewRecorder(sources, capability, recording.Config{
		Format:         format,
		MeterWindow:    cfg.Audio.MeterWindow,
		MeterRate:      cfg.Audio.MeterRate,
		MicrophoneGain: cfg.Audio.MicrophoneGain,
		SecondaryGain:  cfg.Audio.SecondaryGain,
	}, m, logger)

	client, err := transcription.NewClient(transcription.Config{
		Endpoint:       cfg.Transcription.Endpoint,
		Path:           cfg.Transcription.Path,
		APIKey:         cfg.Transcription.APIKey,
		Timeout:        cfg.Transcription.GetTimeoutDuration(),
		MaxRetries:     cfg.Transcription.MaxRetries,
		RetryBaseDelay: cfg.Transcription.GetRetryBaseDelay(),
		MaxConcurrent:  cfg.Transcription.MaxConcurrent,
	}, m, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcription client: %w", err)
	}

	kv, rdb, err := newKV(ctx, cfg.History, sessionID, logger)
	if err != nil {
		return nil, err
	}

	store := history.NewStore(kv, cfg.History.Capacity, m, logger)
	prefs := settings.NewService(kv, settings.UserSettings{
		AudioMode:   audio.Mode(cfg.Audio.DefaultMode),
		Language:    cfg.Transcription.DefaultLanguage,
		STTProvider: transcription.Provider(cfg.Transcription.DefaultProvider),
		AutoSave:    true,
	}, logger)

	logger.Info("Components initialized",
		slog.String("session_id", sessionID),
		slog.String("capture_driver", cfg.Capture.Driver),
		slog.String("codec", cfg.Capture.Codec),
		slog.String("history_backend", cfg.History.Backend),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
	)

	return &app{
		sessionID: sessionID,
		metrics:   m,
		sources:   sources,
		client:    client,
		kv:        kv,
		rdb:       rdb,
		assistant: assistant.New(recorder, client, store, prefs, logger),
	}, nil
}

func newCapability(cfg *config.Config, format goaudio.Format, logger *slog.Logger) (audio.Capability, error) {
	codec, err := capture.ParseCodec(cfg.Capture.Codec)
	if err != nil {
		return nil, err
	}
	encoder := capture.EncoderConfig{Codec: codec, FrameDuration: cfg.Capture.GetFrameDuration()}

	switch cfg.Capture.Driver {
	case "wavfile":
		return capture.NewWAVFile(capture.WAVFileConfig{
			MicrophonePath: cfg.Capture.MicrophoneFile,
			SecondaryPath:  cfg.Capture.SecondaryFile,
			Format:         format,
			Loop:           cfg.Capture.Loop,
			Encoder:        encoder,
		}, logger), nil
	case "synthetic":
		return capture.NewSynthetic(capture.SyntheticConfig{
			Format:              format,
			MicrophoneFrequency: cfg.Capture.MicrophoneTone,
			SecondaryFrequency:  cfg.Capture.SecondaryTone,
			Amplitude:           cfg.Capture.Amplitude,
			Encoder:             encoder,
		}, logger), nil
	}
	return nil, fmt.Errorf("unknown capture driver %q", cfg.Capture.Driver)
}

func newKV(ctx context.Context, cfg config.HistoryConfig, sessionID string,
	logger *slog.Logger) (history.KV, *redis.Client, error) {
	if cfg.Backend != "redis" {
		return history.NewMemoryKV(), nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}

	logger.Info("Session store connected",
		slog.String("addr", cfg.Redis.Addr),
		slog.Duration("ttl", cfg.Redis.GetTTLDuration()),
	)
	return history.NewRedisKV(client, cfg.Redis.Prefix, sessionID, cfg.Redis.GetTTLDuration()), client, nil
}

// close stops any recording, waits for in-flight transcriptions and drops
// the session data.
func (a *app) close(ctx context.Context, logger *slog.Logger) {
	if err := a.assistant.Close(); err != nil {
		logger.Error("Error stopping recorder", slog.String("error", err.Error()))
	}
	a.sources.ReleaseAll()
	if err := a.client.Close(); err != nil {
		logger.Error("Error closing transcription client", slog.String("error", err.Error()))
	}
	if err := a.kv.Close(ctx); err != nil {
		logger.Error("Error clearing session store", slog.String("error", err.Error()))
	}
	if a.rdb != nil {
		a.rdb.Close()
	}
}
