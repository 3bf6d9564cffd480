// Package retry is the shared resilient-call wrapper for the pipeline's
// external service boundaries (fortune generation, speech synthesis).
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"eto-fortune-pipeline/types"
)

// Policy bounds how a call is retried.
type Policy struct {
	MaxAttempts int
	// Backoff holds the sleep before each retry. When there are more
	// retries than entries the last entry repeats.
	Backoff []time.Duration
}

// DefaultPolicy matches the 3-attempt linear backoff the TTS path has
// always used.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff:     []time.Duration{2 * time.Second, 4 * time.Second},
	}
}

// Do invokes fn until it succeeds, all attempts are exhausted, a
// configuration error is returned, or ctx is done. Configuration errors are
// never retried. The last error is returned wrapped with the attempt count.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if isFatal(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}
		if sleepErr := sleep(ctx, backoffFor(p, attempt)); sleepErr != nil {
			return sleepErr
		}
	}
	return fmt.Errorf("after %d attempts: %w", p.MaxAttempts, err)
}

// DoWithCredentials runs fn under the policy once per credential, in order,
// until one succeeds. The primary credential exhausts its attempts before
// the next one is tried. Configuration errors and context cancellation stop
// the fallback chain immediately.
func DoWithCredentials(ctx context.Context, p Policy, creds []string, fn func(ctx context.Context, cred string) error) error {
	if len(creds) == 0 {
		return fmt.Errorf("%w: no credentials configured", types.ErrConfiguration)
	}
	var errs []string
	for _, cred := range creds {
		cred := cred
		err := Do(ctx, p, func(ctx context.Context) error {
			return fn(ctx, cred)
		})
		if err == nil {
			return nil
		}
		if isFatal(err) {
			return err
		}
		// A per-call timeout is transient and falls through to the next
		// credential; only the caller's own context ending stops the chain.
		if ctx.Err() != nil {
			return err
		}
		errs = append(errs, err.Error())
	}
	return fmt.Errorf("all %d credentials failed: %s", len(creds), strings.Join(errs, "; "))
}

func isFatal(err error) bool {
	return errors.Is(err, types.ErrConfiguration)
}

func backoffFor(p Policy, attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return time.Duration(attempt) * 2 * time.Second
	}
	idx := attempt - 1
	if idx >= len(p.Backoff) {
		idx = len(p.Backoff) - 1
	}
	return p.Backoff[idx]
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
