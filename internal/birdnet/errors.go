package birdnet

import (
	"errors"
	"fmt"
)

// Kind classifies an upstream failure.
type Kind string

const (
	KindInvalidURL   Kind = "invalid_url"
	KindNoData       Kind = "no_data"
	KindDecode       Kind = "decode_error"
	KindServer       Kind = "server_error"
	KindInvalidImage Kind = "invalid_image_data"
)

// Error is a typed upstream failure. All kinds are retryable by the caller;
// the client itself never retries.
type Error struct {
	Kind Kind
	Op   string // e.g. "fetch puzzle"
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("birdnet: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("birdnet: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNoData) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInvalidURL   = &Error{Kind: KindInvalidURL}
	ErrNoData       = &Error{Kind: KindNoData}
	ErrDecode       = &Error{Kind: KindDecode}
	ErrServer       = &Error{Kind: KindServer}
	ErrInvalidImage = &Error{Kind: KindInvalidImage}
)

// KindOf returns the kind of err, or "" if err is not an upstream failure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
