package client

import (
	"errors"
	"fmt"
)

// ErrAuth means the token was rejected. It is surfaced immediately and never
// retried with backoff; the caller must obtain a fresh token and call Connect
// again.
var ErrAuth = errors.New("authentication failed")

// ErrGiveUp is the terminal "unable to connect, please refresh" condition
// after maxReconnectAttempts consecutive failures.
var ErrGiveUp = errors.New("unable to connect after max attempts")

// TransportError wraps a socket or network failure; the connection manager
// retries these per the backoff schedule.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ReconciliationError means the server rejected a read mutation; the local
// change was already rolled back when this is returned.
type ReconciliationError struct {
	Op  string
	Err error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation failed for %s: %v", e.Op, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }
