// Command mockstt is a local speech-to-text endpoint for development. It
// accepts the multipart uploads the assistant sends and answers with a
// canned transcript, optionally failing the first requests.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"
)

// TranscriptionResponse mirrors the success body of the real service.
type TranscriptionResponse struct {
	Transcript     string    `json:"transcript"`
	Provider       string    `json:"provider"`
	Confidence     float64   `json:"confidence"`
	ProcessingTime int64     `json:"processingTime"`
	Language       string    `json:"language"`
	Timestamp      time.Time `json:"timestamp"`
}

type transcribeHandler struct {
	failFirst  int64
	failStatus int
	delay      time.Duration
	logger     *slog.Logger

	requests atomic.Int64
}

func (h *transcribeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	n := h.requests.Add(1)

	if err := r.ParseMultipartForm(25 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No audio file provided")
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error reading audio file")
		return
	}

	language := r.FormValue("language")
	provider := r.FormValue("sttProvider")

	h.logger.Info("Transcription request received",
		slog.Int64("request", n),
		slog.String("request_id", r.Header.Get("X-Request-ID")),
		slog.String("filename", header.Filename),
		slog.Int("audio_size", len(audioData)),
		slog.String("language", language),
		slog.String("provider", provider),
	)

	if n <= h.failFirst {
		h.logger.Warn("Injected failure", slog.Int64("request", n), slog.Int("status", h.failStatus))
		writeError(w, h.failStatus, fmt.Sprintf("injected failure %d of %d", n, h.failFirst))
		return
	}

	if h.delay > 0 {
		time.Sleep(h.delay)
	}

	response := TranscriptionResponse{
		Transcript:     fmt.Sprintf("Test transcription of %d bytes of audio", len(audioData)),
		Provider:       provider,
		Confidence:     0.95,
		ProcessingTime: time.Since(start).Milliseconds(),
		Language:       language,
		Timestamp:      time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func newMux(h http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /api/transcribe", h)
	return mux
}

func main() {
	addr := flag.String("addr", ":3000", "listen address")
	failFirst := flag.Int64("fail-first", 0, "fail this many requests before succeeding")
	failStatus := flag.Int("fail-status", http.StatusServiceUnavailable, "status code of injected failures")
	delay := flag.Duration("delay", 200*time.Millisecond, "simulated processing time")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	h := &transcribeHandler{
		failFirst:  *failFirst,
		failStatus: *failStatus,
		delay:      *delay,
		logger:     logger,
	}

	logger.Info("Test transcription server starting",
		slog.String("addr", *addr),
		slog.String("endpoint", "/api/transcribe"),
		slog.Int64("fail_first", *failFirst),
		slog.Int("fail_status", *failStatus),
	)

	if err := http.ListenAndServe(*addr, newMux(h)); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
