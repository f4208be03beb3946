// Package errs defines the failure taxonomy shared by the pipeline stages.
package errs

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	NoEngineAvailable      Kind = "no_engine_available"
	NoTextFound            Kind = "no_text_found"
	UpstreamUnavailable    Kind = "upstream_unavailable"
	MalformedResponse      Kind = "malformed_response"
	FieldCoercion          Kind = "field_coercion"
	ClassificationFallback Kind = "classification_fallback"
)

// Upstream causes, only meaningful with UpstreamUnavailable.
const (
	CauseTimeout    = "timeout"
	CauseConnection = "connection"
	CauseStatus     = "status"
)

// Stages reported on aborted invocations.
const (
	StageAcquire   = "acquire"
	StageParse     = "parse"
	StageReconcile = "reconcile"
	StageClassify  = "classify"
)

// MaxPayload caps the diagnostic payload kept on an error.
const MaxPayload = 500

// Error is a classified failure. Payload keeps a truncated copy of whatever
// upstream content caused it.
type Error struct {
	Kind    Kind
	Stage   string
	Cause   string
	Status  int
	Payload string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Stage != "" {
		msg = e.Stage + ": " + msg
	}
	if e.Cause != "" {
		msg += " (" + e.Cause + ")"
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" status %d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind wrapping err.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Upstream builds an UpstreamUnavailable error with its cause.
func Upstream(cause string, status int, payload string, err error) *Error {
	return &Error{
		Kind:    UpstreamUnavailable,
		Cause:   cause,
		Status:  status,
		Payload: Truncate(payload, MaxPayload),
		Err:     err,
	}
}

// Malformed builds a MalformedResponse error keeping the raw payload.
func Malformed(payload string, err error) *Error {
	return &Error{
		Kind:    MalformedResponse,
		Payload: Truncate(payload, MaxPayload),
		Err:     err,
	}
}

// WithStage tags err with the stage that failed. Non-taxonomy errors are
// wrapped so the stage is still reported.
func WithStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		cp := *e
		cp.Stage = stage
		return &cp
	}
	return &Error{Kind: "", Stage: stage, Err: err}
}

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StageOf returns the stage recorded on err.
func StageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

// CauseOf returns the upstream cause recorded on err.
func CauseOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Cause
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Truncate shortens s to at most max bytes, marking the cut. The cut never
// splits a multi-byte rune.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...(truncated)"
}
