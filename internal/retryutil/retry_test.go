package retryutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithBackoff_SucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	}, Options{MaxRetries: 3, InitialDelay: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithBackoff_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, Options{MaxRetries: 5, InitialDelay: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithBackoff_ExhaustsAfterMaxRetries(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("persistent")
	}, Options{MaxRetries: 2, InitialDelay: time.Millisecond})

	var exhausted *Exhausted
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, calls) // initial + 2 retries
	assert.Equal(t, 3, exhausted.Attempts)
}

func TestWithBackoff_NonRetryablePredicateStopsImmediately(t *testing.T) {
	calls := 0
	sentinel := errors.New("fatal")
	err := WithBackoff(context.Background(), func(ctx context.Context) error {
		calls++
		return sentinel
	}, Options{MaxRetries: 5, InitialDelay: time.Millisecond, IsRetryable: Never()})

	assert.Same(t, sentinel, err)
	assert.Equal(t, 1, calls)
}

func TestWithBackoff_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := WithBackoff(ctx, func(ctx context.Context) error {
		calls++
		return nil
	}, Options{MaxRetries: 3, InitialDelay: time.Millisecond})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestAny_TrueIfAnyPredicateMatches(t *testing.T) {
	p := Any(Never(), Always())
	assert.True(t, p(errors.New("x")))
}

func TestAll_FalseIfAnyPredicateFails(t *testing.T) {
	p := All(Always(), Never())
	assert.False(t, p(errors.New("x")))
}

func TestIsHTTPStatusRetryable(t *testing.T) {
	cases := map[int]bool{
		200: false,
		408: true,
		429: true,
		500: true,
		503: true,
		404: false,
	}
	for status, want := range cases {
		assert.Equal(t, want, IsHTTPStatusRetryable(status), "status %d", status)
	}
}

type transientErr struct{ temp bool }

func (e *transientErr) Error() string   { return "transient" }
func (e *transientErr) Temporary() bool { return e.temp }

func TestIsTransient_ChecksSelfReportingErrors(t *testing.T) {
	p := IsTransient()
	assert.True(t, p(&transientErr{temp: true}))
	assert.False(t, p(&transientErr{temp: false}))
	assert.False(t, p(errors.New("plain")))
}
