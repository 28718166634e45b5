package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryKV(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	_, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	value := []byte("v1")
	require.NoError(t, kv.Set(ctx, "k", value))
	value[0] = 'X'

	got, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), got, "stored values are copies")

	require.NoError(t, kv.Remove(ctx, "k"))
	_, ok, _ = kv.Get(ctx, "k")
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "a", []byte("1")))
	require.NoError(t, kv.Close(ctx))
	_, ok, _ = kv.Get(ctx, "a")
	assert.False(t, ok, "close wipes the session")
}

func TestRedisKV(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	kv := NewRedisKV(db, "assistant", "session-1", time.Hour)

	key := "assistant:session-1:transcript_history"
	assert.Equal(t, key, kv.Key(StorageKey))

	mock.ExpectGet(key).RedisNil()
	_, ok, err := kv.Get(ctx, StorageKey)
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectSet(key, "[]", time.Hour).SetVal("OK")
	require.NoError(t, kv.Set(ctx, StorageKey, []byte("[]")))

	mock.ExpectGet(key).SetVal("[]")
	got, ok, err := kv.Get(ctx, StorageKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("[]"), got)

	mock.ExpectSet("assistant:session-1:user_settings", "{}", time.Hour).SetVal("OK")
	require.NoError(t, kv.Set(ctx, "user_settings", []byte("{}")))

	mock.ExpectDel(key, "assistant:session-1:user_settings").SetVal(2)
	require.NoError(t, kv.Close(ctx))
	require.NoError(t, kv.Close(ctx), "nothing left to delete")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisKVErrors(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	kv := NewRedisKV(db, "assistant", "s", 0)
	boom := errors.New("connection reset")

	mock.ExpectGet("assistant:s:k").SetErr(boom)
	_, _, err := kv.Get(ctx, "k")
	assert.ErrorIs(t, err, boom)

	mock.ExpectSet("assistant:s:k", "v", 0).SetErr(boom)
	assert.ErrorIs(t, kv.Set(ctx, "k", []byte("v")), boom)

	mock.ExpectDel("assistant:s:k").SetErr(boom)
	assert.ErrorIs(t, kv.Remove(ctx, "k"), boom)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreOverRedis(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	kv := NewRedisKV(db, "assistant", "s", time.Minute)
	s := NewStore(kv, 5, nil, testLogger())

	mock.ExpectGet("assistant:s:transcript_history").RedisNil()
	assert.Empty(t, s.GetHistory(ctx))

	mock.ExpectDel("assistant:s:transcript_history").SetVal(0)
	require.NoError(t, s.Clear(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}
