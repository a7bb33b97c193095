package main

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Driver failure kinds. A *DriverError matches exactly one of them with errors.Is.
var (
	ErrNotFound      = errors.New("element not found")
	ErrTimeout       = errors.New("timed out")
	ErrNotActionable = errors.New("element not actionable")
	ErrTransport     = errors.New("driver transport error")
)

var (
	ErrAuthTimeout       = errors.New("login was not confirmed in time")
	ErrNoDriver          = errors.New("no browser driver available")
	ErrInvalidTransition = errors.New("invalid phase transition")
)

// DriverError records which driver operation failed, on what, and why.
type DriverError struct {
	Op       string
	Selector Selector
	Kind     error
	Err      error
}

func (e *DriverError) Error() string {
	msg := e.Op
	if e.Selector != "" {
		msg += " " + string(e.Selector)
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil && e.Err != e.Kind {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DriverError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newDriverError(op string, sel Selector, kind, err error) *DriverError {
	return &DriverError{Op: op, Selector: sel, Kind: kind, Err: err}
}

// errorKind reports the failure kind of err, defaulting to ErrTransport for
// anything the driver did not classify.
func errorKind(err error) error {
	for _, kind := range []error{ErrNotFound, ErrTimeout, ErrNotActionable, ErrTransport} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrTransport
}

// AuthTimeoutError is returned when login polling ran out of time or attempts.
type AuthTimeoutError struct {
	Attempts int
	Waited   time.Duration
}

func (e *AuthTimeoutError) Error() string {
	return fmt.Sprintf("login was not confirmed after %d attempts (%s)", e.Attempts, e.Waited.Round(time.Second))
}

func (e *AuthTimeoutError) Is(target error) bool { return target == ErrAuthTimeout }
