package bencode

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed is the root of every format error: bad prefixes, missing
	// terminators, wrong value kinds.
	ErrMalformed = errors.New("malformed bencode")

	// ErrTruncated means the input ended before a length prefix was satisfied.
	ErrTruncated = errors.New("truncated bencode input")

	ErrMissingKey = fmt.Errorf("%w: missing key", ErrMalformed)
)

// --------------------------------------------------------------------------------------------- //

/*
SyntaxError describes a decode failure.

Fields:
  - Construct: The construct being read ("integer", "byte string", "list", "dictionary", "value").
  - Offset: Byte offset of the failure in the input.
  - Msg: Human readable detail.
  - Err: ErrMalformed or ErrTruncated.
*/
type SyntaxError struct {
	Construct string
	Offset    int64
	Msg       string
	Err       error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%v: %s at offset %d: %s", e.Err, e.Construct, e.Offset, e.Msg)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// --------------------------------------------------------------------------------------------- //

func missingKey(key string) error {
	return fmt.Errorf("%w %q", ErrMissingKey, key)
}

func wrongKind(key string, want Kind, got Value) error {
	gotKind := "nil"
	if got != nil {
		gotKind = got.Kind().String()
	}

	return fmt.Errorf("%w: key %q: expected %s, got %s", ErrMalformed, key, want, gotKind)
}
