// Package retry runs an operation under a bounded exponential backoff policy.
package retry

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// TransientStatuses are the HTTP statuses treated as retryable: request
// timeout, too early, rate limiting and server side faults.
var TransientStatuses = map[int]bool{
	408: true,
	425: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// IsTransientStatus reports whether an HTTP status belongs to the retryable set.
func IsTransientStatus(status int) bool {
	return TransientStatuses[status]
}

// Policy bounds the number of attempts and the delay between them. Delays
// start at BaseDelay and double after every failed attempt.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// NotifyFunc is called before sleeping ahead of the next attempt.
type NotifyFunc func(attempt int, delay time.Duration, err error)

type transient interface {
	Transient() bool
}

// IsTransient reports whether err, or an error it wraps, declares itself
// transient. Network timeouts count as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var t transient
	if errors.As(err, &t) {
		return t.Transient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// Do calls op until it succeeds, returns a non-transient error, or the policy
// runs out of attempts. The last error is returned unchanged.
func Do(ctx context.Context, p Policy, notify NotifyFunc, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	} else {
		b.MaxInterval = time.Hour
	}

	var bo backoff.BackOff = backoff.WithMaxRetries(b, uint64(attempts-1))
	bo = backoff.WithContext(bo, ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bo, func(err error, delay time.Duration) {
		if notify != nil {
			notify(attempt, delay, err)
		}
	})
}
