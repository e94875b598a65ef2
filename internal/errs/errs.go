// SPDX-License-Identifier: MIT
//
// Package errs holds the sentinel errors shared by every layer. Callers wrap
// them with fmt.Errorf("...: %w", ...) and match with errors.Is.
package errs

import "errors"

var (
	// ErrInvalidArgument covers contract violations on the numeric core: a
	// percent outside [0,1], a non power-of-two FFT size, a non-positive
	// resize or an unsupported filter kind.
	ErrInvalidArgument = errors.New("invalid argument")

	ErrUnknownKey   = errors.New("unknown parameter key")
	ErrDuplicateKey = errors.New("duplicate parameter key")

	// ErrOutOfRange is returned when a raw value falls outside a parameter's
	// [min, max] bounds.
	ErrOutOfRange = errors.New("value out of range")

	// ErrSocket wraps discovery bind/send/receive failures.
	ErrSocket = errors.New("socket error")

	// ErrChannel is returned when the sync event channel is unavailable.
	ErrChannel = errors.New("channel error")
)
