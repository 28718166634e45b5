package history

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jayesh4work/audio-assistant-extension/internal/apperr"
	"github.com/jayesh4work/audio-assistant-extension/internal/transcription"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

var baseTime = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func result(i int) *transcription.Result {
	return &transcription.Result{
		Transcript: "transcript " + string(rune('A'+i)),
		Provider:   "groq",
		Confidence: 0.9,
		Language:   "en-US",
		Timestamp:  baseTime.Add(time.Duration(i) * time.Second),
	}
}

// failingKV fails the operations whose error is set.
type failingKV struct {
	*MemoryKV
	getErr, setErr, removeErr error
}

func (f *failingKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	return f.MemoryKV.Get(ctx, key)
}

func (f *failingKV) Set(ctx context.Context, key string, value []byte) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.MemoryKV.Set(ctx, key, value)
}

func (f *failingKV) Remove(ctx context.Context, key string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.MemoryKV.Remove(ctx, key)
}

func transcripts(items []Transcript) []string {
	out := make([]string, len(items))
	for i, t := range items {
		out[i] = t.Transcript
	}
	return out
}

func TestAddEntryEvictsOldest(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryKV(), 3, nil, testLogger())

	for i := 0; i < 4; i++ {
		_, err := s.AddEntry(ctx, result(i), float64(i))
		require.NoError(t, err)
	}

	items := s.GetHistory(ctx)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"transcript D", "transcript C", "transcript B"}, transcripts(items))
	assert.Equal(t, 3.0, items[0].Duration)
	assert.Equal(t, 3, s.Len(ctx))
}

func TestAddEntryStoresResultFields(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s := NewStore(kv, 0, nil, testLogger())
	assert.Equal(t, DefaultCapacity, s.Capacity())

	res := result(0)
	res.ProcessingTimeMs = 321
	res.Timestamp = time.Date(2024, 6, 1, 11, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	entry, err := s.AddEntry(ctx, res, 12.5)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, entry.Timestamp.Location())
	assert.True(t, res.Timestamp.Equal(entry.Timestamp))

	raw, ok, err := kv.Get(ctx, StorageKey)
	require.NoError(t, err)
	require.True(t, ok)

	var stored []map[string]any
	require.NoError(t, json.Unmarshal(raw, &stored))
	require.Len(t, stored, 1)
	assert.Equal(t, "2024-06-01T09:00:00Z", stored[0]["timestamp"])
	assert.Equal(t, 12.5, stored[0]["duration"])
	assert.Equal(t, 321.0, stored[0]["processingTime"])
}

func TestAddEntryRejectsInvalidInput(t *testing.T) {
	s := NewStore(NewMemoryKV(), 3, nil, testLogger())

	_, err := s.AddEntry(context.Background(), nil, 1)
	assert.True(t, apperr.IsKind(err, apperr.InvalidInput))

	_, err = s.AddEntry(context.Background(), result(0), -1)
	assert.True(t, apperr.IsKind(err, apperr.InvalidInput))
}

func TestDeleteEntryKeepsOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryKV(), 10, nil, testLogger())
	for i := 0; i < 5; i++ {
		_, err := s.AddEntry(ctx, result(i), 1)
		require.NoError(t, err)
	}

	deleted, err := s.DeleteEntry(ctx, result(2).Timestamp)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, []string{"transcript E", "transcript D", "transcript B", "transcript A"},
		transcripts(s.GetHistory(ctx)))

	deleted, err = s.DeleteEntry(ctx, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, 4, s.Len(ctx))

	// equal instants in another zone match
	deleted, err = s.DeleteEntry(ctx, result(0).Timestamp.In(time.FixedZone("X", -7*3600)))
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, 3, s.Len(ctx))
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s := NewStore(kv, 10, nil, testLogger())
	_, err := s.AddEntry(ctx, result(0), 1)
	require.NoError(t, err)

	require.NoError(t, s.Clear(ctx))
	assert.Empty(t, s.GetHistory(ctx))

	_, ok, _ := kv.Get(ctx, StorageKey)
	assert.False(t, ok, "clear removes the key")
}

func TestStorageFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("storage offline")

	t.Run("read failure degrades to empty", func(t *testing.T) {
		s := NewStore(&failingKV{MemoryKV: NewMemoryKV(), getErr: boom}, 10, nil, testLogger())
		items := s.GetHistory(ctx)
		assert.NotNil(t, items)
		assert.Empty(t, items)
	})

	t.Run("write failure propagates", func(t *testing.T) {
		s := NewStore(&failingKV{MemoryKV: NewMemoryKV(), setErr: boom}, 10, nil, testLogger())
		_, err := s.AddEntry(ctx, result(0), 1)
		assert.True(t, apperr.IsKind(err, apperr.StorageError))
		assert.ErrorIs(t, err, boom)
	})

	t.Run("read failure during add propagates", func(t *testing.T) {
		s := NewStore(&failingKV{MemoryKV: NewMemoryKV(), getErr: boom}, 10, nil, testLogger())
		_, err := s.AddEntry(ctx, result(0), 1)
		assert.True(t, apperr.IsKind(err, apperr.StorageError))
		_, err = s.DeleteEntry(ctx, baseTime)
		assert.True(t, apperr.IsKind(err, apperr.StorageError))
	})

	t.Run("clear failure propagates", func(t *testing.T) {
		s := NewStore(&failingKV{MemoryKV: NewMemoryKV(), removeErr: boom}, 10, nil, testLogger())
		assert.True(t, apperr.IsKind(s.Clear(ctx), apperr.StorageError))
	})

	t.Run("corrupt data", func(t *testing.T) {
		kv := NewMemoryKV()
		require.NoError(t, kv.Set(ctx, StorageKey, []byte("{not json")))
		s := NewStore(kv, 10, nil, testLogger())

		assert.Empty(t, s.GetHistory(ctx))
		_, err := s.AddEntry(ctx, result(0), 1)
		assert.True(t, apperr.IsKind(err, apperr.StorageError))
	})
}

func TestConcurrentAddsKeepBound(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryKV(), 20, nil, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := &transcription.Result{Transcript: "t", Timestamp: baseTime.Add(time.Duration(i) * time.Millisecond)}
			_, err := s.AddEntry(ctx, res, 1)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	items := s.GetHistory(ctx)
	require.Len(t, items, 20)

	seen := make(map[time.Time]bool)
	for _, it := range items {
		assert.False(t, seen[it.Timestamp], "duplicate entry %v", it.Timestamp)
		seen[it.Timestamp] = true
	}
}

func TestRing(t *testing.T) {
	r := newRing(3)
	assert.Empty(t, r.slice())

	for i := 0; i < 3; i++ {
		assert.False(t, r.pushFront(Transcript{Transcript: string(rune('a' + i))}))
	}
	assert.True(t, r.pushFront(Transcript{Transcript: "d"}))
	assert.Equal(t, []string{"d", "c", "b"}, transcripts(r.slice()))

	loaded, evicted := loadRing(2, []Transcript{{Transcript: "x"}, {Transcript: "y"}, {Transcript: "z"}})
	assert.Equal(t, 1, evicted)
	assert.Equal(t, []string{"x", "y"}, transcripts(loaded.slice()))
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("2024-06-01T09:00:00.123Z")
	require.NoError(t, err)
	assert.Equal(t, 123*time.Millisecond, time.Duration(ts.Nanosecond()))

	_, err = ParseTimestamp("last tuesday")
	assert.True(t, apperr.IsKind(err, apperr.InvalidInput))
}
