// SPDX-License-Identifier: Apache-2.0

package sev

import (
	"errors"
	"fmt"
)

// Decode errors. Every codec error is terminal for the message that
// produced it: the codec never substitutes a default or partial decode,
// and retry (if any) is the transport's concern.
var (
	// ErrMalformedEnvelope means the outer container was not a map with
	// exactly one key naming the message variant.
	ErrMalformedEnvelope = errors.New("sev: malformed message envelope")

	// ErrTruncatedInput means the input ended before a complete message
	// was decoded.
	ErrTruncatedInput = errors.New("sev: truncated input")

	// ErrAmbiguousPayload means a packet payload decoded under neither
	// the structured encoding nor the raw platform layout.
	ErrAmbiguousPayload = errors.New("sev: payload unresolvable")
)

// UnknownVariantError is returned when an envelope tag or packet mimetype
// does not name one of the six message variants.
type UnknownVariantError string

// Error implements the standard error interface.
func (e UnknownVariantError) Error() string {
	return fmt.Sprintf("sev: unknown message variant %q", string(e))
}

// ShapeError is returned when a payload's fields are missing, extra, or
// of the wrong type for the variant its tag announced. A tag naming one
// variant with another variant's payload bytes decodes to a ShapeError,
// never to a silently coerced message.
type ShapeError struct {
	Variant Type
	Err     error
}

// Error implements the standard error interface.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("sev: payload shape mismatch for %s: %v", e.Variant, e.Err)
}

// Unwrap supports errors.Is and errors.As.
func (e *ShapeError) Unwrap() error { return e.Err }

// ResolveError reports a packet whose payload failed both decode
// attempts. Structured holds the structured-decode failure and Raw the
// raw-layout failure; it unwraps to ErrAmbiguousPayload.
type ResolveError struct {
	Mimetype   string
	Structured error
	Raw        error
}

// Error implements the standard error interface.
func (e *ResolveError) Error() string {
	return fmt.Sprintf("sev: cannot resolve %q payload: structured: %v; raw: %v",
		e.Mimetype, e.Structured, e.Raw)
}

// Unwrap supports errors.Is.
func (e *ResolveError) Unwrap() error { return ErrAmbiguousPayload }
