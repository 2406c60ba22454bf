// Package faults tags errors with a structured kind at their point of origin,
// so callers branch on the kind instead of matching message substrings.
package faults

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Kind classifies a failure by its origin.
type Kind string

const (
	KindUnknown           Kind = "unknown"
	KindRateLimited       Kind = "rate_limited"       // 429 / quota exhaustion — locally retryable
	KindNotFound          Kind = "not_found"          // 404/403 — never retried, credential recovery offered
	KindValidationFailed  Kind = "validation_failed"  // client-side aspect-ratio check exhausted
	KindFeatureRejected   Kind = "feature_rejected"   // reference-image conditioning refused by the service
	KindTimedOut          Kind = "timed_out"          // async job exceeded its wall-clock ceiling
	KindMalformedResponse Kind = "malformed_response" // unparseable or structurally invalid model output
	KindNoMatch           Kind = "no_match"           // resolver found neither candidates nor an event
)

// Error wraps an underlying error with its kind. The message of the wrapped
// error is preserved unchanged.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// New creates a tagged error from a format string.
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Tag attaches a kind to an existing error. A nil error stays nil.
func Tag(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind attached to err, classifying untagged remote-service
// errors by their embedded API code as a fallback.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}

	// Untagged errors straight from the Gemini SDK carry a numeric code.
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429:
			return KindRateLimited
		case 404, 403:
			return KindNotFound
		}
		if apiErr.Status == "RESOURCE_EXHAUSTED" {
			return KindRateLimited
		}
	}

	// Last resort for errors that crossed a fmt.Errorf boundary untagged.
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "quota") || strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return KindRateLimited
	}

	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
