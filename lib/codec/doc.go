// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration shared by
// every evidence-container metadata block: the container meta record,
// the object table, and the chunk index.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// Same logical data always produces identical bytes. A forensic format
// needs this — the byte image of container metadata must be
// reproducible so that segment checksums and acquisition reports stay
// meaningful across tool versions.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Container wire types use integer field keys (`cbor:"N,keyasint"`)
// to keep metadata blocks compact on disk; field numbers are protocol
// constants and must never be renumbered.
package codec
