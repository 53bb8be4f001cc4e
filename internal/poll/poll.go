// Package poll blocks the calling goroutine until a condition holds or a
// deadline passes.
//
// The wait is deliberately not context-aware and does not select on any
// channel: it sleeps on the calling goroutine in fixed quanta. Anything the
// caller would otherwise react to during the wait (for example a spawn error
// reported on another goroutine) is not observed until WaitUntil returns.
package poll

import (
	"errors"
	"time"
)

// Quantum is the fixed sleep between predicate checks.
const Quantum = 10 * time.Millisecond

// ErrTimeout is returned when the predicate did not hold before the deadline.
var ErrTimeout = errors.New("timed out waiting for condition")

// Poller re-checks a predicate at fixed intervals.
type Poller struct {
	// Quantum is the sleep between checks. Zero means the package Quantum.
	Quantum time.Duration

	// Sleep blocks for the given duration. Nil means time.Sleep.
	Sleep func(time.Duration)
}

// WaitUntil checks cond, sleeping Quantum between checks, and returns nil as
// soon as it holds. Elapsed time is accumulated in quanta rather than read
// from the clock; once the accumulated time exceeds timeout, ErrTimeout is
// returned. cond is always checked at least once.
func (p Poller) WaitUntil(cond func() bool, timeout time.Duration) error {
	quantum := p.Quantum
	if quantum <= 0 {
		quantum = Quantum
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var elapsed time.Duration
	for !cond() {
		if elapsed > timeout {
			return ErrTimeout
		}
		sleep(quantum)
		elapsed += quantum
	}
	return nil
}

// WaitUntil is Poller{}.WaitUntil.
func WaitUntil(cond func() bool, timeout time.Duration) error {
	return Poller{}.WaitUntil(cond, timeout)
}
