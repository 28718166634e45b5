package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/jayesh4work/audio-assistant-extension/internal/apperr"
	"github.com/jayesh4work/audio-assistant-extension/internal/metrics"
	"github.com/jayesh4work/audio-assistant-extension/internal/transcription"
)

// StorageKey is the key the history list is stored under.
const StorageKey = "transcript_history"

// DefaultCapacity is the number of transcripts kept.
const DefaultCapacity = 50

// Transcript is a stored transcription result. Timestamp identifies it.
type Transcript struct {
	Transcript       string    `json:"transcript"`
	Provider         string    `json:"provider"`
	Confidence       float64   `json:"confidence"`
	ProcessingTimeMs int64     `json:"processingTime"`
	Language         string    `json:"language"`
	Timestamp        time.Time `json:"timestamp"`
	// Duration of the recording in seconds.
	Duration float64 `json:"duration"`
}

// Store is the bounded transcript history. Mutations are serialized.
type Store struct {
	kv       KV
	capacity int
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu sync.Mutex
}

// NewStore creates a history over kv. capacity <= 0 uses DefaultCapacity.
func NewStore(kv KV, capacity int, m *metrics.Metrics, logger *slog.Logger) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{kv: kv, capacity: capacity, metrics: m, logger: logger}
}

// Capacity returns the maximum number of stored transcripts.
func (s *Store) Capacity() int {
	return s.capacity
}

// AddEntry stores result as the newest transcript, evicting the oldest ones
// beyond capacity.
func (s *Store) AddEntry(ctx context.Context, result *transcription.Result, durationSeconds float64) (Transcript, error) {
	if result == nil {
		return Transcript{}, apperr.New(apperr.InvalidInput, "no transcription result to store")
	}
	if math.IsNaN(durationSeconds) || math.IsInf(durationSeconds, 0) || durationSeconds < 0 {
		return Transcript{}, apperr.Newf(apperr.InvalidInput, "invalid duration %v", durationSeconds)
	}

	entry := Transcript{
		Transcript:       result.Transcript,
		Provider:         result.Provider,
		Confidence:       result.Confidence,
		ProcessingTimeMs: result.ProcessingTimeMs,
		Language:         result.Language,
		Timestamp:        result.Timestamp.UTC(),
		Duration:         durationSeconds,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read(ctx)
	if err != nil {
		return Transcript{}, err
	}

	r, evicted := loadRing(s.capacity, current)
	if r.pushFront(entry) {
		evicted++
	}
	items := r.slice()

	if err := s.write(ctx, items); err != nil {
		return Transcript{}, err
	}

	s.metrics.RecordHistoryEvictions(evicted)
	s.metrics.SetHistorySize(len(items))
	s.logger.Debug("Transcript added to history",
		slog.Time("timestamp", entry.Timestamp),
		slog.Int("size", len(items)),
		slog.Int("evicted", evicted),
	)
	return entry, nil
}

// GetHistory returns the transcripts newest-first. Read failures are logged
// and yield an empty list.
func (s *Store) GetHistory(ctx context.Context) []Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.read(ctx)
	if err != nil {
		s.logger.Error("Failed to get transcript history", slog.String("error", err.Error()))
		return []Transcript{}
	}
	if len(items) > s.capacity {
		items = items[:s.capacity]
	}
	return items
}

// Len returns the number of stored transcripts.
func (s *Store) Len(ctx context.Context) int {
	return len(s.GetHistory(ctx))
}

// DeleteEntry removes the transcript whose timestamp equals ts and reports
// whether one was found. The order of the rest is unchanged.
func (s *Store) DeleteEntry(ctx context.Context, ts time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.read(ctx)
	if err != nil {
		return false, err
	}

	kept := items[:0:0]
	for _, t := range items {
		if !t.Timestamp.Equal(ts) {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(items) {
		return false, nil
	}

	if err := s.write(ctx, kept); err != nil {
		return false, err
	}
	s.metrics.SetHistorySize(len(kept))
	return true, nil
}

// Clear removes every transcript.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Remove(ctx, StorageKey); err != nil {
		s.metrics.RecordStorageError("remove")
		s.logger.Error("Failed to clear transcript history", slog.String("error", err.Error()))
		return apperr.Wrap(apperr.StorageError, "Failed to clear transcript history", err)
	}
	s.metrics.SetHistorySize(0)
	return nil
}

func (s *Store) read(ctx context.Context) ([]Transcript, error) {
	raw, ok, err := s.kv.Get(ctx, StorageKey)
	if err != nil {
		s.metrics.RecordStorageError("get")
		return nil, apperr.Wrap(apperr.StorageError, "Failed to read transcript history", err)
	}
	if !ok || len(raw) == 0 {
		return []Transcript{}, nil
	}

	var items []Transcript
	if err := json.Unmarshal(raw, &items); err != nil {
		s.metrics.RecordStorageError("decode")
		return nil, apperr.Wrap(apperr.StorageError, "Stored transcript history is corrupt", err)
	}
	if items == nil {
		items = []Transcript{}
	}
	return items, nil
}

func (s *Store) write(ctx context.Context, items []Transcript) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return apperr.Wrap(apperr.StorageError, "Failed to encode transcript history", err)
	}
	if err := s.kv.Set(ctx, StorageKey, raw); err != nil {
		s.metrics.RecordStorageError("set")
		s.logger.Error("Failed to save transcript history", slog.String("error", err.Error()))
		return apperr.Wrap(apperr.StorageError, "Failed to save transcript history", err)
	}
	return nil
}

// ParseTimestamp parses a transcript identifier.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.InvalidInput, fmt.Sprintf("invalid timestamp %q", s), err)
	}
	return t, nil
}
