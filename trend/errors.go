package trend

import "errors"

// ErrInvalidInput is returned when request parameters fail validation.
var ErrInvalidInput = errors.New("trend: invalid input")

// ErrInvariant is returned when aggregated data violates an internal
// invariant (count mismatch, undropped zero bucket). It signals a
// programming fault, not bad input, and is surfaced rather than recovered.
var ErrInvariant = errors.New("trend: invariant violation")

// ErrUnknownMode is returned for a report mode outside daily/incremental/current.
var ErrUnknownMode = errors.New("trend: unknown report mode")
