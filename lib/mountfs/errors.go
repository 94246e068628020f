// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

package mountfs

import "errors"

var (
	// ErrNotFound reports that a directory has no child with the
	// requested name.
	ErrNotFound = errors.New("no such entry")

	// ErrNotADirectory reports a lookup or listing on an object that
	// is not a directory.
	ErrNotADirectory = errors.New("not a directory")

	// ErrNotReadable reports an open on an object without a data
	// stream (a directory, symlink, or device node).
	ErrNotReadable = errors.New("object has no data stream")

	// ErrUnknownInode reports an inode number the Index never issued.
	// The kernel should only ever send inodes it learned from us, so
	// this indicates a protocol bug rather than user error.
	ErrUnknownInode = errors.New("unknown inode")

	// ErrUnmounting reports an operation that arrived after unmount
	// began.
	ErrUnmounting = errors.New("filesystem is unmounting")

	// ErrStaleHandle reports a read on a handle that was already
	// released.
	ErrStaleHandle = errors.New("stale file handle")
)
