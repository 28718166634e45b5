package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/jayesh4work/audio-assistant-extension/internal/apperr"
	"github.com/jayesh4work/audio-assistant-extension/internal/metrics"
)

// DefaultPath is the transcription route on the endpoint.
const DefaultPath = "/api/transcribe"

// Client submits recordings to the transcription endpoint
type Client struct {
	config    Config
	http      *resty.Client
	semaphore chan struct{} // Concurrency limit
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// sleep waits between attempts; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalAttempts   uint64
	totalRetries    uint64
	avgResponseTime time.Duration

	mu sync.RWMutex

	// closeMu orders inflight.Add against Close
	closeMu  sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// Config contains transcription client configuration
type Config struct {
	Endpoint       string
	Path           string
	APIKey         string
	Timeout        time.Duration // per attempt
	MaxRetries     int           // additional attempts after the first
	RetryBaseDelay time.Duration // delay before retry n is n*RetryBaseDelay
	MaxConcurrent  int
}

// Submission is one recording to transcribe.
type Submission struct {
	Audio    []byte
	MIMEType string
	Language string
	Provider Provider
}

// Result is a successful transcription.
type Result struct {
	Transcript       string    `json:"transcript"`
	Provider         string    `json:"provider"`
	Confidence       float64   `json:"confidence"`
	ProcessingTimeMs int64     `json:"processingTime"`
	Language         string    `json:"language"`
	Timestamp        time.Time `json:"timestamp"`
	// Attempts is the number of requests it took.
	Attempts int `json:"-"`
}

// wireResult is the endpoint's success body.
type wireResult struct {
	Transcript     string  `json:"transcript"`
	Provider       string  `json:"provider"`
	Confidence     float64 `json:"confidence"`
	ProcessingTime float64 `json:"processingTime"`
	Language       string  `json:"language"`
	Timestamp      string  `json:"timestamp"`
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalAttempts   uint64        `json:"total_attempts"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// outcome tags the result of one attempt.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRetryable
	outcomeTerminal
)

type attempt struct {
	outcome outcome
	result  *Result
	err     *apperr.Error
}

// NewClient creates a new transcription client
func NewClient(config Config, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if !strings.HasPrefix(config.Path, "/") {
		config.Path = "/" + config.Path
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = time.Second
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	// retries are driven by Submit, never by the transport
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(config.Endpoint, "/")).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "audio-assistant/1.0")
	if config.APIKey != "" {
		httpClient.SetAuthToken(config.APIKey)
	}

	return &Client{
		config:    config,
		http:      httpClient,
		semaphore: make(chan struct{}, config.MaxConcurrent),
		metrics:   m,
		logger:    logger,
		sleep:     sleepContext,
	}, nil
}

// Submit sends a recording for transcription. Retryable failures are
// repeated up to MaxRetries times with linear backoff; only the last
// classified error is returned, carrying the attempt count.
func (c *Client) Submit(ctx context.Context, sub Submission) (*Result, error) {
	if len(sub.Audio) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "No audio data to transcribe")
	}
	if strings.TrimSpace(sub.Language) == "" {
		return nil, apperr.New(apperr.InvalidInput, "Language is required")
	}
	provider, err := ParseProvider(string(sub.Provider))
	if err != nil {
		return nil, err
	}
	sub.Provider = provider

	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return nil, apperr.New(apperr.UnknownError, "Transcription client is closed")
	}
	c.inflight.Add(1)
	c.closeMu.Unlock()
	defer c.inflight.Done()

	// Acquire semaphore for concurrency limiting
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, apperr.Wrap(apperr.UnknownError, "Transcription was canceled", ctx.Err())
	}

	requestID := uuid.NewString()
	startTime := time.Now()
	c.incrementTotalRequests()
	c.metrics.RecordTranscriptionRequest()

	var last *apperr.Error
	attempts := 0

	for n := 0; n <= c.config.MaxRetries; n++ {
		if n > 0 {
			c.incrementTotalRetries()
			c.metrics.RecordTranscriptionRetry()

			if err := c.sleep(ctx, c.config.RetryBaseDelay*time.Duration(n)); err != nil {
				last = &apperr.Error{Kind: apperr.UnknownError, Message: "Transcription was canceled", Err: err}
				break
			}
		}

		attempts++
		c.incrementTotalAttempts()
		res := c.do(ctx, requestID, sub)

		switch res.outcome {
		case outcomeSuccess:
			res.result.Attempts = attempts
			elapsed := time.Since(startTime)
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(elapsed)
			c.metrics.RecordTranscriptionSuccess(elapsed.Seconds(), attempts)
			c.logger.Info("Transcription completed",
				slog.String("request_id", requestID),
				slog.String("provider", res.result.Provider),
				slog.Int("attempts", attempts),
				slog.Duration("elapsed", elapsed),
			)
			return res.result, nil
		case outcomeRetryable:
			last = res.err
			if n < c.config.MaxRetries {
				c.logger.Warn("Transcription attempt failed, retrying",
					slog.String("request_id", requestID),
					slog.Int("attempt", attempts),
					slog.String("kind", string(res.err.Kind)),
					slog.Int("status", res.err.Status),
					slog.String("error", res.err.Error()),
				)
			}
			continue
		case outcomeTerminal:
			last = res.err
		}
		break
	}

	last.Attempts = attempts
	elapsed := time.Since(startTime)
	c.incrementFailedRequests()
	c.metrics.RecordTranscriptionFailure(string(last.Kind), elapsed.Seconds(), attempts)
	c.logger.Error("Transcription failed",
		slog.String("request_id", requestID),
		slog.String("kind", string(last.Kind)),
		slog.Int("attempts", attempts),
		slog.String("error", last.Error()),
	)
	return nil, last
}

// do performs a single bounded attempt.
func (c *Client) do(ctx context.Context, requestID string, sub Submission) attempt {
	actx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.http.R().
		SetContext(actx).
		SetHeader("X-Request-ID", requestID).
		SetFileReader("audio", filenameFor(sub.MIMEType), bytes.NewReader(sub.Audio)).
		SetFormData(map[string]string{
			"language":    sub.Language,
			"sttProvider": string(sub.Provider),
		}).
		Post(c.config.Path)
	receivedAt := time.Now()

	if err != nil {
		if ctx.Err() != nil {
			// the caller gave up; no point in retrying
			return attempt{outcome: outcomeTerminal, err: &apperr.Error{
				Kind: apperr.UnknownError, Message: "Transcription was canceled", Err: ctx.Err()}}
		}
		e := classifyTransportError(err)
		return attempt{outcome: outcomeRetryable, err: e}
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		e := classifyStatus(status, resp.Body())
		if e.Kind.Retryable() {
			return attempt{outcome: outcomeRetryable, err: e}
		}
		return attempt{outcome: outcomeTerminal, err: e}
	}

	result, err := decodeResult(resp.Body(), receivedAt)
	if err != nil {
		e := &apperr.Error{Kind: apperr.UnknownError, Message: "Invalid response from transcription service", Status: status, Err: err}
		return attempt{outcome: outcomeTerminal, err: e}
	}
	return attempt{outcome: outcomeSuccess, result: result}
}

// decodeResult validates a success body and normalizes its timestamp to UTC,
// falling back to the receive time when it is missing or unparseable.
func decodeResult(body []byte, receivedAt time.Time) (*Result, error) {
	var wire wireResult
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	confidence := wire.Confidence
	if math.IsNaN(confidence) || confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	processing := int64(math.Round(wire.ProcessingTime))
	if processing < 0 {
		processing = 0
	}

	return &Result{
		Transcript:       wire.Transcript,
		Provider:         wire.Provider,
		Confidence:       confidence,
		ProcessingTimeMs: processing,
		Language:         wire.Language,
		Timestamp:        NormalizeTimestamp(wire.Timestamp, receivedAt),
	}, nil
}

// NormalizeTimestamp parses an ISO-8601 timestamp into UTC. fallback is used
// when s is empty or invalid.
func NormalizeTimestamp(s string, fallback time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s != "" {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
	}
	return fallback.UTC()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) incrementTotalAttempts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalAttempts++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// Stats returns current client statistics
func (c *Client) Stats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalAttempts:   c.totalAttempts,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

// Config returns the effective configuration with the API key redacted.
func (c *Client) Config() Config {
	cfg := c.config
	if cfg.APIKey != "" {
		cfg.APIKey = "***"
	}
	return cfg
}

// Close rejects new submissions and waits for in-flight ones to finish.
// It is safe to call more than once.
func (c *Client) Close() error {
	c.closeMu.Lock()
	c.closed = true
	c.closeMu.Unlock()

	c.inflight.Wait()
	return nil
}
