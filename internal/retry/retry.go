// Package retry is the single retry-with-backoff combinator shared by every
// provisioning and confirmation call site. Ledger state is eventually
// consistent after a submission acknowledgment, so callers poll a predicate
// under an explicit budget instead of hand-rolling sleep loops.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var ErrBudgetExhausted = errors.New("retry budget exhausted")

// Permanent marks err as non-retryable; Do and Poll return it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Poll invokes predicate up to attempts times with a fixed interval between
// calls, returning nil as soon as the predicate reports true. A predicate
// error aborts the poll. Exhausting the budget returns ErrBudgetExhausted.
func Poll(ctx context.Context, attempts int, interval time.Duration, predicate func(context.Context) (bool, error)) error {
	if attempts < 1 {
		return ErrBudgetExhausted
	}
	sched := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(attempts-1)), ctx)
	op := func() error {
		ok, err := predicate(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return ErrBudgetExhausted
		}
		return nil
	}
	return backoff.Retry(op, sched)
}

// Do retries op up to attempts times with exponential backoff starting at
// initial. op may wrap an error with Permanent to stop early.
func Do(ctx context.Context, attempts int, initial time.Duration, op func(context.Context) error) error {
	if attempts < 1 {
		return ErrBudgetExhausted
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initial
	exp.MaxElapsedTime = 0
	sched := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
	return backoff.Retry(func() error { return op(ctx) }, sched)
}
