// Package apierr defines the error taxonomy used across the query path
// (spec §7). Every error the query engine surfaces to a caller is one of
// these kinds; anything else is a programming bug.
package apierr

import "errors"

// Kind classifies a failure for the purpose of response status mapping.
type Kind int

const (
	// KindMalformedQuery: the tokeniser rejected the input (strict UTF-8
	// mode only). Surfaced as status=error, 400-equivalent.
	KindMalformedQuery Kind = iota
	// KindIndexMissing: a shard file that exists could not be opened.
	// Fatal at startup. A shard file that is absent is not reported
	// with this kind: Index.Open logs it and serves that shard as empty.
	KindIndexMissing
	// KindIO: a shard or KV read failed. Retried once by the caller;
	// on a second failure the posting list is treated as empty and
	// status=degraded is reported.
	KindIO
	// KindTimeout: the per-request deadline elapsed. Surfaced as a
	// partial result with status=timeout.
	KindTimeout
	// KindProtocol: malformed request framing. The connection is
	// closed and the error logged.
	KindProtocol
)

// Error wraps an underlying cause with a Kind so callers can branch on
// taxonomy without string matching.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Msg + ": " + e.Cause.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// KindOf extracts the Kind from err, returning ok=false if err isn't (or
// doesn't wrap) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

var (
	// ErrIndexMissing names a shard file the index expects but that does
	// not exist on disk. Index.Open does not return it: an absent shard
	// is logged and treated as empty.
	ErrIndexMissing = errors.New("shard file missing")
	// ErrTokenization is returned by the tokenizer in strict mode on
	// malformed UTF-8.
	ErrTokenization = errors.New("malformed input text")
	// ErrNotFound names a document hash with no corresponding snippet
	// record. The resolver does not return it: it reports a missing
	// record as ok=false with a nil error.
	ErrNotFound = errors.New("document not found")
)
