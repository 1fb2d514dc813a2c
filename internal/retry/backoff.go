// Package retry provides the exponential backoff policy the connection
// supervisor uses between reconnect attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ── Permanent errors ─────────────────────────────────────────────────

// PermanentError wraps an error to signal that retrying will not help.
// Return [Permanent](err) from the operation function to stop retrying
// immediately.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable.  The backoff loop will return
// the inner error immediately without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err has been marked as permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// ── Backoff ──────────────────────────────────────────────────────────

// Backoff implements exponential backoff with optional jitter.
type Backoff struct {
	// InitialDelay is the delay before the first retry (default 1s).
	InitialDelay time.Duration
	// MaxDelay caps the backoff duration (default 60s).
	MaxDelay time.Duration
	// Multiplier increases the delay each attempt (default 2.0).
	Multiplier float64
	// MaxAttempts is the total number of tries including the first.
	// Set to 0 for unlimited retries (until context cancelled).
	MaxAttempts int
	// Jitter adds ±25% randomisation to prevent thundering herd.
	Jitter bool
}

// DefaultBackoff returns the reconnect policy: unlimited attempts,
// starting at one second and capped at thirty.
func DefaultBackoff() *Backoff {
	return &Backoff{
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  0,
		Jitter:       true,
	}
}

// Start returns a fresh delay sequence for this policy.
func (b *Backoff) Start() *Sequence {
	s := &Sequence{
		initial:    b.InitialDelay,
		max:        b.MaxDelay,
		multiplier: b.Multiplier,
		jitter:     b.Jitter,
	}
	if s.initial == 0 {
		s.initial = time.Second
	}
	if s.multiplier <= 0 {
		s.multiplier = 2.0
	}
	if s.max == 0 {
		s.max = 60 * time.Second
	}
	if s.max < s.initial {
		s.max = s.initial
	}
	s.Reset()
	return s
}

// Do executes fn repeatedly until it succeeds, returns a permanent
// error, or the retry budget (attempts / context) is exhausted.
//
// The attempt parameter passed to fn is 1-based.  On success fn should
// return nil.  To abort retrying, wrap the error with [Permanent].
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	seq := b.Start()

	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}

		// Permanent errors are never retried.
		if IsPermanent(err) {
			return errors.Unwrap(err)
		}

		// Check attempt budget.
		if b.MaxAttempts > 0 && attempt >= b.MaxAttempts {
			return fmt.Errorf("max retries (%d) exceeded: %w", b.MaxAttempts, err)
		}

		if err := Sleep(ctx, seq.Next()); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// ── Sequence ─────────────────────────────────────────────────────────

// Sequence yields successive backoff delays.  It is not safe for
// concurrent use; each retry loop owns its own.
type Sequence struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     bool

	next time.Duration
}

// Next returns the delay to wait before the upcoming attempt and
// advances the sequence.
func (s *Sequence) Next() time.Duration {
	wait := s.next
	if s.jitter {
		wait = addJitter(wait)
	}

	s.next = time.Duration(float64(s.next) * s.multiplier)
	if s.next > s.max {
		s.next = s.max
	}
	return wait
}

// Reset rewinds the sequence to the initial delay.  The supervisor
// calls it after an attempt that got past the handshake.
func (s *Sequence) Reset() { s.next = s.initial }

// Sleep waits for d, returning early with ctx.Err() if ctx is
// cancelled first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// addJitter adds ±25% randomisation to a duration.
func addJitter(d time.Duration) time.Duration {
	quarter := float64(d) * 0.25
	delta := (rand.Float64() * 2 * quarter) - quarter
	result := float64(d) + delta
	return time.Duration(math.Max(result, float64(time.Millisecond)))
}
