package testhelpers

import "errors"

// ErrTimeout is returned by WithinTimeout when nothing was received in time.
var ErrTimeout = errors.New("timed out waiting for channel")
