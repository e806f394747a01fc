// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package apperr models the error taxonomy of spec §7 as a small sum type
// rather than distinct Go error types per kind, so call sites can branch on
// Kind() without a chain of errors.As checks.
package apperr

import (
	"errors"
	"fmt"
)

// Kind discriminates the error taxonomy from spec §7. It is not a type
// hierarchy — callers switch on Kind().
type Kind string

const (
	TransientUpstream    Kind = "transient_upstream"
	InvalidInput         Kind = "invalid_input"
	ProtocolViolation    Kind = "protocol_violation"
	TableUnknown         Kind = "table_unknown"
	ConfigurationFailure Kind = "configuration_failure"
)

// ErrCancelled is not an error in the taxonomy (spec §7 "Cancellation — not
// an error; propagated silently") but callers that receive it from a
// cancellable operation should treat it as a non-failure outcome.
var ErrCancelled = errors.New("cancelled")

// GatewayError is the terminal-error type that escapes a remote client or
// session operation (spec §7: "remote clients swallow retriable errors
// internally; only terminal errors escape").
type GatewayError struct {
	Kind    Kind
	Op      string
	Err     error
	Retries int
}

func (e *GatewayError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// New builds a GatewayError of the given kind.
func New(kind Kind, op string, err error) *GatewayError {
	return &GatewayError{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err if it is (or wraps) a *GatewayError,
// defaulting to TransientUpstream for unrecognized errors — a call site that
// does not know what went wrong should assume the safer "retry later"
// classification over treating it as permanent.
func KindOf(err error) Kind {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return TransientUpstream
}

// IsCancelled reports whether err represents cooperative cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
