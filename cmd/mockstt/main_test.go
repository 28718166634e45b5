package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jayesh4work/audio-assistant-extension/internal/apperr"
	"github.com/jayesh4work/audio-assistant-extension/internal/transcription"
)

func newTestServer(t *testing.T, failFirst int64, failStatus int) *httptest.Server {
	t.Helper()
	h := &transcribeHandler{
		failFirst:  failFirst,
		failStatus: failStatus,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	srv := httptest.NewServer(newMux(h))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientAgainstMock(t *testing.T) {
	srv := newTestServer(t, 0, 0)
	client, err := transcription.NewClient(transcription.Config{Endpoint: srv.URL}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	res, err := client.Submit(context.Background(), transcription.Submission{
		Audio:    []byte("RIFF0000WAVE"),
		MIMEType: "audio/wav",
		Language: "en-US",
		Provider: transcription.ProviderGroq,
	})
	require.NoError(t, err)
	assert.Equal(t, "Test transcription of 12 bytes of audio", res.Transcript)
	assert.Equal(t, "groq", res.Provider)
	assert.Equal(t, "en-US", res.Language)
	assert.Equal(t, time.UTC, res.Timestamp.Location())
}

func TestInjectedFailuresAreRetried(t *testing.T) {
	srv := newTestServer(t, 2, http.StatusServiceUnavailable)
	client, err := transcription.NewClient(transcription.Config{
		Endpoint:       srv.URL,
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
	}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	res, err := client.Submit(context.Background(), transcription.Submission{
		Audio:    []byte("abc"),
		MIMEType: "audio/webm",
		Language: "en-US",
		Provider: transcription.ProviderOpenAI,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
}

func TestInjectedFailureStatus(t *testing.T) {
	srv := newTestServer(t, 1, http.StatusTooManyRequests)
	client, err := transcription.NewClient(transcription.Config{Endpoint: srv.URL, MaxRetries: 0}, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	_, err = client.Submit(context.Background(), transcription.Submission{
		Audio:    []byte("abc"),
		MIMEType: "audio/wav",
		Language: "en-US",
		Provider: transcription.ProviderGroq,
	})
	assert.True(t, apperr.IsKind(err, apperr.RateLimited))
}

func TestMissingAudio(t *testing.T) {
	srv := newTestServer(t, 0, 0)
	resp, err := http.Post(srv.URL+"/api/transcribe", "application/x-www-form-urlencoded", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
