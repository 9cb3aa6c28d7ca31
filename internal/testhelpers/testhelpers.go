// Package testhelpers provides helpers for testing.
package testhelpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Timeout is the default time a test waits on a channel.
const Timeout = 5 * time.Second

// WithinTimeout tries to read an error from error channel within timeout and returns it.
// If timeout exceeds, ErrTimeout is returned.
func WithinTimeout(ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-time.After(Timeout):
		return ErrTimeout
	}
}

// NoErrorN performs require.NoError on multiple errors
func NoErrorN(t *testing.T, errs ...error) {
	for _, err := range errs {
		require.NoError(t, err)
	}
}

// Async runs f in a goroutine and returns the channel its error is delivered to.
func Async(f func() error) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- f() }()
	return ch
}
