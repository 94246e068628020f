// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package mountfs exposes an opened evidence container as a read-only
// FUSE filesystem.
//
// The package is built from four pieces. The Index assigns kernel
// inode numbers to container objects lazily, on first sight, and
// keeps the binding stable for the life of the mount. The Resolver
// turns directory lookups and listings into bound entries, resolving
// hardlinks to their target's inode and refusing trees deeper than
// the container's declared ceiling. The Dispatcher owns open file
// handles and serves byte-range reads, keeping one decoded chunk per
// handle so sequential reads do not re-decode. The Session tracks
// mount lifecycle: once unmounting begins new operations are refused
// and in-flight ones are drained for a bounded grace period.
//
// The filesystem is strictly read-only. Any open for writing fails
// with EROFS, and no mutation operations are implemented.
package mountfs
