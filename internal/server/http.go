package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jayesh4work/audio-assistant-extension/internal/apperr"
	"github.com/jayesh4work/audio-assistant-extension/internal/assistant"
	"github.com/jayesh4work/audio-assistant-extension/internal/audio"
	"github.com/jayesh4work/audio-assistant-extension/internal/config"
	"github.com/jayesh4work/audio-assistant-extension/internal/history"
	"github.com/jayesh4work/audio-assistant-extension/internal/metrics"
	"github.com/jayesh4work/audio-assistant-extension/internal/settings"
	"github.com/jayesh4work/audio-assistant-extension/internal/transcription"
)

const (
	serviceName    = "audio-assistant"
	serviceVersion = "1.0.0"

	maxBodySize = 1 << 20
)

// Dependencies are the components the HTTP API exposes.
type Dependencies struct {
	Config    *config.Config
	Assistant *assistant.Assistant
	Sources   *audio.SourceManager
	Client    *transcription.Client
	Metrics   *metrics.Metrics
	// Gatherer serves /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// HTTPServer provides HTTP API endpoints for recording control and monitoring
type HTTPServer struct {
	server  *http.Server
	handler http.Handler
	logger  *slog.Logger
	deps    Dependencies

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, deps Dependencies, logger *slog.Logger) *HTTPServer {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	h := &HTTPServer{
		logger:    logger,
		deps:      deps,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = mux

	h.server = &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: mux,
		// recording stop waits for the transcription round trip
		ReadTimeout:  10 * time.Second,
		WriteTimeout: deps.Config.Transcription.GetTimeoutDuration()*time.Duration(deps.Config.Transcription.MaxRetries+1) + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the routed handler.
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("GET /sources", h.withMetrics("/sources", h.handleSources))

	mux.HandleFunc("GET /recording", h.withMetrics("/recording", h.handleRecordingState))
	mux.HandleFunc("POST /recording/start", h.withMetrics("/recording/start", h.handleRecordingStart))
	mux.HandleFunc("POST /recording/stop", h.withMetrics("/recording/stop", h.handleRecordingStop))
	mux.HandleFunc("GET /recording/levels", h.withMetrics("/recording/levels", h.handleLevels))
	mux.HandleFunc("PUT /recording/gain", h.withMetrics("/recording/gain", h.handleGain))

	mux.HandleFunc("GET /history", h.withMetrics("/history", h.handleHistory))
	mux.HandleFunc("DELETE /history", h.withMetrics("/history", h.handleHistoryClear))
	mux.HandleFunc("DELETE /history/{timestamp}", h.withMetrics("/history/{timestamp}", h.handleHistoryDelete))

	mux.HandleFunc("GET /settings", h.withMetrics("/settings", h.handleSettings))
	mux.HandleFunc("PUT /settings", h.withMetrics("/settings", h.handleSettingsUpdate))

	mux.HandleFunc("GET /config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("GET /stats", h.withMetrics("/stats", h.handleStats))

	// no request metrics for the metrics endpoint itself
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.deps.Gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /{$}", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.deps.Metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.deps.Metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := h.deps.Client.Stats()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": map[string]interface{}{
			"recorder": map[string]interface{}{
				"state":          h.deps.Assistant.Recorder().State(),
				"active_sources": h.deps.Sources.ActiveCount(),
			},
			"transcription": map[string]interface{}{
				"total_requests":  stats.TotalRequests,
				"success_rate":    stats.SuccessRate,
				"active_requests": stats.ActiveRequests,
			},
		},
	})
}

func (h *HTTPServer) handleSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sources":      h.deps.Assistant.Recorder().Sources(),
		"active_count": h.deps.Sources.ActiveCount(),
		"timestamp":    time.Now().UTC(),
	})
}

func (h *HTTPServer) handleRecordingState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state": h.deps.Assistant.Recorder().State(),
	})
}

type startRequest struct {
	Mode audio.Mode `json:"mode"`
}

func (h *HTTPServer) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	report, err := h.deps.Assistant.StartRecording(r.Context(), req.Mode)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

type stopRequest struct {
	Language string                 `json:"language"`
	Provider transcription.Provider `json:"provider"`
}

func (h *HTTPServer) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	outcome, err := h.deps.Assistant.StopAndTranscribe(r.Context(), req.Language, req.Provider)
	if err != nil {
		body := errorBody(err)
		if outcome != nil && outcome.Artifact != nil {
			body["artifact"] = outcome.Artifact
		}
		h.logRequestError(r, err)
		writeJSON(w, statusFor(err), body)
		return
	}

	response := map[string]interface{}{
		"artifact": outcome.Artifact,
		"result":   outcome.Result,
	}
	if outcome.Entry != nil {
		response["entry"] = outcome.Entry
	}
	if outcome.HistoryErr != nil {
		response["history_error"] = apperr.Message(outcome.HistoryErr)
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *HTTPServer) handleLevels(w http.ResponseWriter, r *http.Request) {
	recorder := h.deps.Assistant.Recorder()
	levels, err := recorder.Levels()
	if err != nil {
		h.writeError(w, err)
		return
	}
	gains, err := recorder.Gains()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"levels": levels,
		"gains":  gains,
	})
}

type gainRequest struct {
	Role  string   `json:"role"`
	Value *float64 `json:"value"`
}

func (h *HTTPServer) handleGain(w http.ResponseWriter, r *http.Request) {
	var req gainRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	role, err := audio.ParseKind(req.Role)
	if err != nil {
		h.writeError(w, apperr.Wrap(apperr.InvalidInput, err.Error(), err))
		return
	}
	if req.Value == nil {
		h.writeError(w, apperr.New(apperr.InvalidInput, "value is required"))
		return
	}

	stored, err := h.deps.Assistant.Recorder().SetGain(role, *req.Value)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"role":  role,
		"value": stored,
	})
}

func (h *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	items := h.deps.Assistant.History().GetHistory(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":    len(items),
		"capacity": h.deps.Assistant.History().Capacity(),
		"items":    items,
	})
}

func (h *HTTPServer) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Assistant.History().Clear(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPServer) handleHistoryDelete(w http.ResponseWriter, r *http.Request) {
	ts, err := history.ParseTimestamp(r.PathValue("timestamp"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	removed, err := h.deps.Assistant.History().DeleteEntry(r.Context(), ts)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !removed {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": "Transcript not found",
			"kind":  "not_found",
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPServer) handleSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Assistant.Settings().Load(r.Context()))
}

func (h *HTTPServer) handleSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	patch, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		h.writeError(w, apperr.Wrap(apperr.InvalidInput, "failed to read request body", err))
		return
	}

	updated, err := h.deps.Assistant.Settings().Update(r.Context(), func(u *settings.UserSettings) error {
		merged, err := settings.Merge(*u, patch)
		if err != nil {
			return err
		}
		*u = merged
		return nil
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleConfig returns the configuration without credentials
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.deps.Config
	client := h.deps.Client.Config()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"audio": map[string]interface{}{
			"sample_rate":     cfg.Audio.SampleRate,
			"channels":        cfg.Audio.Channels,
			"meter_window":    cfg.Audio.MeterWindow,
			"meter_rate":      cfg.Audio.MeterRate,
			"microphone_gain": cfg.Audio.MicrophoneGain,
			"secondary_gain":  cfg.Audio.SecondaryGain,
			"default_mode":    cfg.Audio.DefaultMode,
		},
		"capture": map[string]interface{}{
			"driver":            cfg.Capture.Driver,
			"codec":             cfg.Capture.Codec,
			"frame_duration_ms": cfg.Capture.FrameDurationMs,
		},
		"transcription": map[string]interface{}{
			"endpoint":         client.Endpoint,
			"path":             client.Path,
			"timeout":          client.Timeout.String(),
			"max_retries":      client.MaxRetries,
			"retry_base_delay": client.RetryBaseDelay.String(),
			"max_concurrent":   client.MaxConcurrent,
		},
		"history": map[string]interface{}{
			"backend":  cfg.History.Backend,
			"capacity": cfg.History.Capacity,
		},
		"logging": map[string]interface{}{
			"level":  cfg.Logging.Level,
			"format": cfg.Logging.Format,
			"output": cfg.Logging.Output,
		},
	})
}

func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime":        time.Since(h.startTime).String(),
		"timestamp":     time.Now().UTC(),
		"transcription": h.deps.Client.Stats(),
		"recorder": map[string]interface{}{
			"state":          h.deps.Assistant.Recorder().State(),
			"active_sources": h.deps.Sources.ActiveCount(),
		},
		"history": map[string]interface{}{
			"size":     h.deps.Assistant.History().Len(r.Context()),
			"capacity": h.deps.Assistant.History().Capacity(),
		},
	})
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "Audio Assistant",
		"version": serviceVersion,
		"endpoints": map[string]interface{}{
			"GET /":                       "API documentation",
			"GET /health":                 "Service health check",
			"GET /sources":                "Source availability",
			"GET /recording":              "Recorder state",
			"POST /recording/start":       "Start a recording {mode}",
			"POST /recording/stop":        "Stop and transcribe {language, provider}",
			"GET /recording/levels":       "Live meter levels and gains",
			"PUT /recording/gain":         "Set a source gain {role, value}",
			"GET /history":                "Transcript history, newest first",
			"DELETE /history":             "Clear transcript history",
			"DELETE /history/{timestamp}": "Delete one transcript",
			"GET /settings":               "User settings",
			"PUT /settings":               "Update user settings",
			"GET /config":                 "Service configuration",
			"GET /stats":                  "Service statistics",
			"GET /metrics":                "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *HTTPServer) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", slog.String("error", err.Error()))
	}
	writeJSON(w, status, errorBody(err))
}

func (h *HTTPServer) logRequestError(r *http.Request, err error) {
	h.logger.Warn("Request failed",
		slog.String("path", r.URL.Path),
		slog.String("kind", string(apperr.KindOf(err))),
		slog.String("error", err.Error()),
	)
}

func errorBody(err error) map[string]interface{} {
	return map[string]interface{}{
		"error": apperr.Message(err),
		"kind":  apperr.KindOf(err),
	}
}

// statusFor maps an error kind to the response status.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.InvalidInput:
		return http.StatusBadRequest
	case apperr.PermissionDenied:
		return http.StatusForbidden
	case apperr.DeviceUnavailable, apperr.Unavailable:
		return http.StatusServiceUnavailable
	case apperr.SessionActive, apperr.NotRecording, apperr.MixerUninitialized:
		return http.StatusConflict
	case apperr.PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case apperr.RateLimited:
		return http.StatusTooManyRequests
	case apperr.TimeoutError:
		return http.StatusGatewayTimeout
	case apperr.AuthenticationRequired, apperr.AccessDenied, apperr.ServiceNotFound,
		apperr.ServerError, apperr.ServiceUnavailable, apperr.NetworkError:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// decodeBody decodes an optional JSON body into v.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Wrap(apperr.InvalidInput, "invalid request body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
