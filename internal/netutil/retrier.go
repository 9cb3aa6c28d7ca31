// Package netutil provides helpers for network operations.
package netutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skycoin/skycoin/src/util/logging"
)

// ErrThresholdReached is returned when retries keep failing for longer than the threshold.
var ErrThresholdReached = errors.New("threshold timeout has been reached")

// RetryFunc is a function retried by Retrier.
type RetryFunc func() error

// Retrier retries a function with exponential backoff.
type Retrier struct {
	exponentialBackoff time.Duration
	exponentialFactor  uint32
	threshold          time.Duration
	errWhitelist       []error
	log                *logging.Logger
}

// NewRetrier returns a Retrier that waits exponentialBackoff after the first failure,
// multiplies the wait by factor after every further failure and gives up once threshold
// has passed since the first failure.
func NewRetrier(exponentialBackoff, threshold time.Duration, factor uint32) *Retrier {
	return &Retrier{
		exponentialBackoff: exponentialBackoff,
		threshold:          threshold,
		exponentialFactor:  factor,
		log:                logging.MustGetLogger("retrier"),
	}
}

// WithErrWhitelist sets the errors that are returned immediately instead of retried.
// Wrapped errors match as well.
func (r *Retrier) WithErrWhitelist(errors ...error) *Retrier {
	r.errWhitelist = append([]error(nil), errors...)
	return r
}

// WithLogger sets the logger that reports failed attempts.
func (r *Retrier) WithLogger(log *logging.Logger) *Retrier {
	r.log = log
	return r
}

// Do calls f until it succeeds, returns a whitelisted error, ctx is done or the threshold is reached.
func (r Retrier) Do(ctx context.Context, f RetryFunc) error {
	currentBackoff := r.exponentialBackoff

	var done *time.Timer
	defer func() {
		if done != nil {
			done.Stop()
		}
	}()

	for {
		err := f()
		if err == nil {
			return nil
		}
		if r.isWhitelisted(err) {
			return err
		}
		r.log.WithError(err).Warnf("Attempt failed, retrying in %s", currentBackoff)

		if done == nil {
			done = time.NewTimer(r.threshold)
		}
		select {
		case <-done.C:
			return fmt.Errorf("%w: %v", ErrThresholdReached, err)
		default:
		}

		backoff := time.NewTimer(currentBackoff)
		select {
		case <-ctx.Done():
			backoff.Stop()
			return ctx.Err()
		case <-done.C:
			backoff.Stop()
			return fmt.Errorf("%w: %v", ErrThresholdReached, err)
		case <-backoff.C:
		}
		currentBackoff = currentBackoff * time.Duration(r.exponentialFactor)
	}
}

func (r Retrier) isWhitelisted(err error) bool {
	for _, wErr := range r.errWhitelist {
		if errors.Is(err, wErr) {
			return true
		}
	}
	return false
}
