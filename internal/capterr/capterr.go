// SPDX-License-Identifier: MIT

// Package capterr defines the error taxonomy shared across the capture
// pipeline so that the command boundary can render a human-readable
// string while internal callers keep using errors.Is/errors.As.
package capterr

import (
	"fmt"
	"strings"
)

// Kind classifies a failure for the command-surface error string.
type Kind int

const (
	// KindConfiguration covers invalid fps/CRF/resolution/codec combinations
	// and other input validated before a session starts.
	KindConfiguration Kind = iota
	// KindResource covers missing targets, a target closing mid-capture,
	// COM initialization failures, and encoder-open failures.
	KindResource
	// KindRuntime covers capture-callback errors, encoder send/receive
	// errors, audio worker errors, and muxer write errors.
	KindRuntime
	// KindFinalize covers trailer-write and ffmpeg-exec failures during
	// the post-session mux stage.
	KindFinalize
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindResource:
		return "resource"
	case KindRuntime:
		return "runtime"
	case KindFinalize:
		return "finalize"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind so command-surface code
// can render it and internal code can still unwrap it.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg == "" {
			return e.Err.Error()
		}
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a Kind-tagged error with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags an existing error with a Kind, preserving it for errors.As/Is.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Merge combines two errors into one message unless one already contains
// the other's text, matching the Capture Runtime's stop() composite-error
// rule: both a stop-producer failure and an on_session_finished failure
// can occur, but we don't want to repeat the same text twice.
func Merge(kind Kind, a, b error) error {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		return &Error{Kind: kind, Err: b}
	case b == nil:
		return &Error{Kind: kind, Err: a}
	}
	as, bs := a.Error(), b.Error()
	switch {
	case strings.Contains(as, bs):
		return &Error{Kind: kind, Err: a}
	case strings.Contains(bs, as):
		return &Error{Kind: kind, Err: b}
	}
	return &Error{Kind: kind, Err: fmt.Errorf("%w; %w", a, b)}
}
