package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eto-fortune-pipeline/types"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, Backoff: []time.Duration{time.Millisecond}}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("%w: flaky", types.ErrTransient)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		return boom
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestDoDoesNotRetryConfigurationErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func(ctx context.Context) error {
		calls++
		return fmt.Errorf("%w: missing asset", types.ErrConfiguration)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 5, Backoff: []time.Duration{time.Hour}}, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("transient-ish")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithCredentialsFallsBackInOrder(t *testing.T) {
	var seen []string
	err := DoWithCredentials(context.Background(), fastPolicy(1), []string{"primary", "backup"},
		func(ctx context.Context, cred string) error {
			seen = append(seen, cred)
			if cred == "primary" {
				return errors.New("quota exceeded")
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"primary", "backup"}, seen)
}

func TestDoWithCredentialsStopsAfterFirstSuccess(t *testing.T) {
	calls := 0
	err := DoWithCredentials(context.Background(), fastPolicy(1), []string{"primary", "backup"},
		func(ctx context.Context, cred string) error {
			calls++
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoWithCredentialsAllFail(t *testing.T) {
	err := DoWithCredentials(context.Background(), fastPolicy(1), []string{"a", "b"},
		func(ctx context.Context, cred string) error {
			return fmt.Errorf("%s rejected", cred)
		})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 credentials failed")
	assert.Contains(t, err.Error(), "a rejected")
	assert.Contains(t, err.Error(), "b rejected")
}

func TestDoWithCredentialsConfigurationErrorShortCircuits(t *testing.T) {
	calls := 0
	err := DoWithCredentials(context.Background(), fastPolicy(1), []string{"a", "b"},
		func(ctx context.Context, cred string) error {
			calls++
			return fmt.Errorf("%w: bad request shape", types.ErrConfiguration)
		})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "a configuration error never reaches the fallback credential")
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestDoWithCredentialsNoCredentials(t *testing.T) {
	err := DoWithCredentials(context.Background(), fastPolicy(1), nil,
		func(ctx context.Context, cred string) error { return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestBackoffScheduleRepeatsLastEntry(t *testing.T) {
	p := Policy{MaxAttempts: 5, Backoff: []time.Duration{time.Second, 2 * time.Second}}
	assert.Equal(t, time.Second, backoffFor(p, 1))
	assert.Equal(t, 2*time.Second, backoffFor(p, 2))
	assert.Equal(t, 2*time.Second, backoffFor(p, 4))
}
