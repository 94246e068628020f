// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for the sensitive
// material evidencefs handles: container passphrases and the unsealed
// container master key.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock (preventing swap), and marks it
// excluded from core dumps via madvise(MADV_DONTDUMP). On Close, the
// memory is zeroed, unlocked, and unmapped. Because the memory lives
// outside the Go heap, the garbage collector cannot copy or relocate
// it, so key material does not linger in freed heap pages after the
// mount session ends.
//
// Passphrases enter the process through [ReadFromPath] (file or stdin)
// or through the interactive prompt in cmd/evidencefs; both store the
// passphrase in a Buffer immediately and zero the transient copy.
package secret
