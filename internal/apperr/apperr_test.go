package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("submit: %w", New(RateLimited, "Rate limit exceeded. Please try again later."))

	assert.Equal(t, RateLimited, KindOf(err))
	assert.Equal(t, UnknownError, KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.True(t, IsKind(err, RateLimited))
	assert.False(t, IsKind(nil, RateLimited))
}

func TestErrorsIsMatchesKind(t *testing.T) {
	err := Wrap(StorageError, "write failed", errors.New("disk full"))

	assert.True(t, errors.Is(err, New(StorageError, "")))
	assert.False(t, errors.Is(err, New(NetworkError, "")))
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, "write failed", Message(err))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(StorageError, "noop", nil))
}

func TestRetryable(t *testing.T) {
	retryable := []Kind{RateLimited, ServerError, ServiceUnavailable, NetworkError, TimeoutError}
	for _, k := range retryable {
		assert.True(t, k.Retryable(), string(k))
	}

	terminal := []Kind{InvalidInput, AuthenticationRequired, AccessDenied, ServiceNotFound, PayloadTooLarge, UnknownError, StorageError}
	for _, k := range terminal {
		assert.False(t, k.Retryable(), string(k))
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("attempt 2: %w", New(TimeoutError, "slow"))))
	assert.False(t, IsRetryable(New(InvalidInput, "bad")))
	assert.False(t, IsRetryable(errors.New("plain")), "unclassified errors are terminal")
	assert.False(t, IsRetryable(nil))
}
