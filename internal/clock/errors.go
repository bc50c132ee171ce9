package clock

import "errors"

// ErrClockNotFound is returned when no clock row exists for the tournament
var ErrClockNotFound = errors.New("tournament clock not found")

// ErrInvalidTransition is returned when a transition's precondition does not
// hold for the state the caller just read (e.g. pause while already paused)
var ErrInvalidTransition = errors.New("invalid clock transition")

// ErrCannotRevert is returned when reverting at level 1
var ErrCannotRevert = errors.New("cannot revert below level 1")

// ErrNoNextLevel is returned when advancing past the last structure level
var ErrNoNextLevel = errors.New("no next level in tournament structure")

// ErrClockConflict is returned when a conditional update matched zero rows:
// a concurrent caller already transitioned the clock. Benign for the
// scheduler, retry-after-refetch for manual callers.
var ErrClockConflict = errors.New("clock was modified concurrently")
