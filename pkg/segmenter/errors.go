package segmenter

import "errors"

// ErrWaitTimeout is returned by Listen when no speech started within the
// caller-supplied timeout. Non-fatal: a BackgroundListener swallows it
// and retries.
var ErrWaitTimeout = errors.New("segmenter: wait timed out before speech started")

// ErrInvalidConfig is returned when a Config's invariants don't hold.
// Fatal: callers must reject it before any audio is consumed.
var ErrInvalidConfig = errors.New("segmenter: invalid config")
