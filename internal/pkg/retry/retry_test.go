package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proestever/FRENKABALv1-sub005/internal/entity"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(&entity.FetchError{Source: "scanner", StatusCode: 404}))
	assert.False(t, IsRetryable(entity.NewAddressValidationError("abc")))

	assert.True(t, IsRetryable(&entity.RateLimitError{Source: "dexscreener"}))
	for _, code := range []int{500, 502, 503, 504} {
		assert.True(t, IsRetryable(&entity.FetchError{Source: "scanner", StatusCode: code}), "status %d", code)
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Duration(0), ParseRetryAfter(""))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("garbage"))
	assert.Equal(t, 7*time.Second, ParseRetryAfter("7"))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("-3"))

	// A past HTTP-date means no wait.
	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC1123)
	assert.Equal(t, time.Duration(0), ParseRetryAfter(past))

	future := time.Now().Add(time.Minute).UTC().Format(time.RFC1123)
	d := ParseRetryAfter(future)
	assert.Greater(t, d, 50*time.Second)
	assert.LessOrEqual(t, d, time.Minute)
}

func TestFullJitterSleep(t *testing.T) {
	t.Parallel()

	for attempt := 0; attempt < 6; attempt++ {
		d := FullJitterSleep(attempt, 100*time.Millisecond, time.Second)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
	assert.Equal(t, time.Duration(0), FullJitterSleep(3, 0, time.Second))
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), Options{MaxRetries: 5, BaseDelay: time.Millisecond}, func() error {
		calls++
		return &entity.FetchError{Source: "scanner", StatusCode: 400}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), Options{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return &entity.FetchError{Source: "scanner", StatusCode: 503}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsBudget(t *testing.T) {
	t.Parallel()

	calls := 0
	rateLimited := &entity.RateLimitError{Source: "dexscreener", RetryAfter: time.Millisecond}
	err := Do(context.Background(), Options{MaxRetries: 2, BaseDelay: time.Millisecond}, func() error {
		calls++
		return rateLimited
	})

	var rl *entity.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 3, calls, "one initial attempt plus two retries")
}

func TestDo_ContextCancelAborts(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Options{MaxRetries: 10, BaseDelay: time.Hour}, func() error {
		calls++
		cancel()
		return &entity.FetchError{Source: "scanner", StatusCode: 502}
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
