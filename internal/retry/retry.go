// File: internal/retry/retry.go

// Package retry provides the bounded fixed-delay retry primitive shared by
// the challenge resolver and the submission loop. The delay is deliberately
// constant rather than exponential: the external solving services expect a
// steady request cadence.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds a retried operation. MaxAttempts counts invocations of the
// operation, not re-tries; Delay is the fixed pause between attempts.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Permanent wraps err so Do stops retrying immediately and returns it.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do invokes op until it succeeds, the attempt budget is exhausted, or ctx is
// cancelled. An op returning an error consumes one attempt whether the error
// came from the call itself or from validating its result; callers encode
// "returned an invalid value" as an ordinary error.
func Do[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, backoff.Operation[T](op),
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Delay)),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
	)
}
