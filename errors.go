package hydra

import (
	"errors"
	"fmt"
)

// ErrorKind classifies bridge failures. Nothing here is retried
// automatically; retries are a decision for the calling UI.
type ErrorKind string

const (
	// KindOriginRejected: message from an unexpected origin. Dropped.
	KindOriginRejected ErrorKind = "origin-rejected"
	// KindSchemaInvalid: required payload fields missing or mistyped.
	KindSchemaInvalid ErrorKind = "schema-invalid"
	// KindStaleCorrelation: response id matches no pending transform.
	KindStaleCorrelation ErrorKind = "stale-correlation"
	// KindTargetNotFound: block or node id absent in the current DOM.
	KindTargetNotFound ErrorKind = "target-not-found"
	// KindTransformFailed: the document engine errored; the field reverts
	// to its last known-good value.
	KindTransformFailed ErrorKind = "transform-failed"
)

// BridgeError is the typed error surfaced at the protocol boundary.
type BridgeError struct {
	Kind   ErrorKind
	Op     string // operation that failed, e.g. "overlay.select"
	Detail string
	Err    error
}

func (e *BridgeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BridgeError) Unwrap() error { return e.Err }

// Errf builds a BridgeError with a formatted detail string.
func Errf(kind ErrorKind, op, format string, args ...any) *BridgeError {
	return &BridgeError{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is a BridgeError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var be *BridgeError
	return errors.As(err, &be) && be.Kind == kind
}
