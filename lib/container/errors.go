// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"errors"
	"fmt"
)

// Kind classifies container errors. The mount layer maps kinds to
// errno responses; the CLI maps them to startup diagnostics.
type Kind int

const (
	// KindCorrupt indicates malformed container structure: bad magic,
	// truncated segments, undecodable metadata, checksum mismatches,
	// duplicate object IDs, or an object tree deeper than the
	// container's declared ceiling. Forensic containers are sometimes
	// damaged or adversarially malformed; every structural assumption
	// is checked rather than trusted.
	KindCorrupt Kind = iota + 1

	// KindBadKey indicates the passphrase does not unseal the
	// container's master key.
	KindBadKey

	// KindKeyRequired indicates the container is encrypted and no
	// passphrase was supplied.
	KindKeyRequired

	// KindUnsupportedVersion indicates a format version this reader
	// does not understand.
	KindUnsupportedVersion

	// KindNotFound indicates a referenced object ID does not exist in
	// the object table.
	KindNotFound
)

// String returns the kind's name for diagnostics.
func (k Kind) String() string {
	switch k {
	case KindCorrupt:
		return "corrupt"
	case KindBadKey:
		return "bad key"
	case KindKeyRequired:
		return "key required"
	case KindUnsupportedVersion:
		return "unsupported version"
	case KindNotFound:
		return "not found"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Error is a classified container error.
type Error struct {
	// Kind classifies the failure.
	Kind Kind

	// Detail describes what failed, in terms of container structure.
	Detail string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("container %s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("container %s: %s", e.Kind, e.Detail)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Corruptf returns a KindCorrupt error with a formatted detail.
func Corruptf(format string, args ...any) error {
	return &Error{Kind: KindCorrupt, Detail: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is (or wraps) a container Error of the
// given kind.
func IsKind(err error, kind Kind) bool {
	var containerError *Error
	return errors.As(err, &containerError) && containerError.Kind == kind
}
