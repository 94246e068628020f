// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package container reads evidence containers in the ECF format: a
// forensic disk-image container holding a tree of logical objects
// (files, directories, symlinks, reconstructed "virtual" objects)
// spread across one or more ordered segment files, with per-chunk
// compression (lz4 or zstd), optional encryption, and BLAKE3 chunk
// checksums.
//
// An encrypted container carries its 32-byte master key sealed to an
// age scrypt (passphrase) recipient in a keyslot block. The object
// table, chunk index, and every data chunk are encrypted with
// XChaCha20-Poly1305 under keys derived from the master key via
// HKDF-SHA256 with distinct info strings.
//
// Layout of a segment file:
//
//	header (34 bytes): magic "EVCF" | version | flags | segment index |
//	    segment count | 16-byte container ID | metadata offset
//	chunk data at the offsets recorded in the chunk index
//	metadata blocks (segment 0 only, at the recorded metadata offset):
//	    keyslot | meta | object table | chunk index
//
// Metadata blocks are length-prefixed CBOR (Core Deterministic
// Encoding, see lib/codec). Placing them after the chunk data lets the
// writer stream data with offsets known up front and append the index
// last, the same trick forensic acquisition tools use so a capture can
// start before the object count is known.
//
// [Open] returns a *Container. All read methods are safe for
// concurrent use: chunk reads use positional file I/O and the
// decompressors are either pure functions (lz4) or documented
// concurrency-safe (zstd DecodeAll).
//
// [Builder] writes the same format. It exists for test fixtures and
// acquisition tooling built on this library; evidencefs itself never
// modifies a container.
package container
