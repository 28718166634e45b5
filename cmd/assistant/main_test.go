package main

import (
	"context"
	"log/slog"
	"testing"

	goaudio "github.com/go-audio/audio"

	"github.com/jayesh4work/audio-assistant-extension/internal/apperr"
	"github.com/jayesh4work/audio-assistant-extension/internal/audio"
	"github.com/jayesh4work/audio-assistant-extension/internal/config"
)

func TestMimeTypeFor(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"take.wav", "audio/wav"},
		{"take.ulaw", "audio/basic"},
		{"take.pcm", "audio/L16"},
		{"take.webm", "audio/webm"},
		{"take.ogg", "audio/ogg"},
		{"take", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := mimeTypeFor(tt.path); got != tt.want {
			t.Errorf("mimeTypeFor(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestWAVDuration(t *testing.T) {
	header, err := audio.StreamingWAVHeader(goaudio.Format{NumChannels: 1, SampleRate: 8000})
	if err != nil {
		t.Fatalf("StreamingWAVHeader failed: %v", err)
	}
	// half a second of silence
	take := append(header, make([]byte, 8000)...)

	got, err := wavDuration(take, "audio/wav")
	if err != nil {
		t.Fatalf("wavDuration failed: %v", err)
	}
	if got < 0.499 || got > 0.501 {
		t.Errorf("Expected duration 0.5, got %.3f", got)
	}

	if _, err := wavDuration([]byte("not a wav file at all, just some bytes padding it out"), "audio/wav"); !apperr.IsKind(err, apperr.InvalidInput) {
		t.Errorf("Expected invalid_input for a corrupt WAV, got %v", err)
	}

	got, err = wavDuration([]byte{1, 2, 3}, "audio/webm")
	if err != nil || got != 0 {
		t.Errorf("Expected zero duration for non-WAV input, got %.3f, %v", got, err)
	}
}

func TestInitLoggerLevels(t *testing.T) {
	l := initLogger(config.LoggingConfig{Level: "warn", Format: "json", Output: "stderr"})
	if l.Enabled(context.Background(), slog.LevelInfo) {
		t.Errorf("Expected info to be disabled at warn level")
	}
	if !l.Enabled(context.Background(), slog.LevelWarn) {
		t.Errorf("Expected warn to be enabled at warn level")
	}
}
