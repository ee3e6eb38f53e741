// Package resilience classifies component errors into the taxonomy the
// dispatcher, ingestor and timeout transitioner use to decide whether to
// retry, abort a run, or drop a malformed response.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Kind is the top-level error classification.
type Kind int

const (
	UnknownKind Kind = iota
	StoreTransient
	StoreFatal
	BrokerTransient
	BrokerFatal
	ResponseMalformed
	UnknownReference
	ProgrammerError
)

func (k Kind) String() string {
	switch k {
	case StoreTransient:
		return "StoreTransient"
	case StoreFatal:
		return "StoreFatal"
	case BrokerTransient:
		return "BrokerTransient"
	case BrokerFatal:
		return "BrokerFatal"
	case ResponseMalformed:
		return "ResponseMalformed"
	case UnknownReference:
		return "UnknownReference"
	case ProgrammerError:
		return "ProgrammerError"
	default:
		return "Unknown"
	}
}

// Retryable reports whether an error of this kind should be retried rather
// than surfaced as a permanent failure. Transient store/broker errors and
// unknown kinds are retried; everything else is not.
func (k Kind) Retryable() bool {
	switch k {
	case StoreTransient, BrokerTransient, UnknownKind:
		return true
	default:
		return false
	}
}

// ClassifiedError attaches a Kind and originating component to an error.
type ClassifiedError struct {
	Err       error
	Kind      Kind
	Component string
	At        time.Time
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: [%s] %v", e.Component, e.Kind, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Retryable reports whether the ingestor/dispatcher should retry the
// operation that produced this error.
func (e *ClassifiedError) Retryable() bool { return e.Kind.Retryable() }

// Classify wraps err with the Kind inferred from its shape and message.
// component identifies the calling subsystem (e.g. "store", "broker").
func Classify(err error, component string) *ClassifiedError {
	if err == nil {
		return nil
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}
	return &ClassifiedError{
		Err:       err,
		Kind:      classify(err),
		Component: component,
		At:        time.Now(),
	}
}

// New wraps err with an explicit Kind, bypassing inference. Use this at the
// call sites that already know the classification, e.g. a store layer
// distinguishing a unique-constraint violation (StoreFatal) from a
// connection drop (StoreTransient).
func New(kind Kind, component string, err error) *ClassifiedError {
	return &ClassifiedError{Err: err, Kind: kind, Component: component, At: time.Now()}
}

func classify(err error) Kind {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return BrokerTransient
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return BrokerTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "connection refused", "connection reset", "broken pipe", "no route to host", "eof"):
		return BrokerTransient
	case containsAny(msg, "service unavailable", "try again", "too many requests", "502", "503", "504"):
		return StoreTransient
	case containsAny(msg, "unmarshal", "malformed", "invalid json", "unexpected token", "decode"):
		return ResponseMalformed
	case containsAny(msg, "not found", "no rows", "does not exist"):
		return UnknownReference
	case containsAny(msg, "constraint", "duplicate key", "invalid input syntax"):
		return StoreFatal
	default:
		return UnknownKind
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
