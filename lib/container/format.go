// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Format constants. These values are protocol constants — changing
// them breaks container compatibility.
const (
	// FormatVersion is the ECF format version this package reads and
	// writes.
	FormatVersion = 1

	// headerSize is the fixed per-segment header: 4-byte magic +
	// 1-byte version + 1-byte flags + 2-byte segment index + 2-byte
	// segment count + 16-byte container ID + 8-byte metadata offset.
	// All integers big-endian. The metadata offset is nonzero only in
	// segment 0, where the metadata blocks live.
	headerSize = 34

	// flagEncrypted marks a container whose object table, chunk
	// index, and chunk data are encrypted under the sealed master key.
	flagEncrypted = 0x01

	// MasterKeySize is the size of the container master key.
	MasterKeySize = 32

	// DefaultChunkSize is the chunk size the Builder uses when none
	// is configured. 64 KiB balances seek granularity for random
	// reads against per-chunk checksum and compression overhead.
	DefaultChunkSize = 64 * 1024

	// DefaultMaxDepth is the tree-depth ceiling the Builder declares
	// when none is configured. Readers refuse to traverse deeper;
	// this bounds cycle-following in corrupted or adversarial
	// containers.
	DefaultMaxDepth = 64

	// maxBlockSize caps the length prefix of a metadata block. A
	// larger prefix means a corrupt or hostile container; refusing it
	// bounds allocation.
	maxBlockSize = 1 << 30
)

// magic is the 4-byte segment file signature.
var magic = [4]byte{'E', 'V', 'C', 'F'}

// HKDF info strings for the keys derived from the master key. Distinct
// strings give domain separation between the three ciphertext classes.
const (
	hkdfInfoObjects    = "evidencefs.ecf.v1.objects"
	hkdfInfoChunkIndex = "evidencefs.ecf.v1.chunkindex"
	hkdfInfoChunks     = "evidencefs.ecf.v1.chunks"
)

// segmentHeader is the decoded fixed header of one segment file.
type segmentHeader struct {
	flags        uint8
	segmentIndex uint16
	segmentCount uint16
	containerID  [16]byte
	metaOffset   uint64
}

func (h *segmentHeader) encrypted() bool {
	return h.flags&flagEncrypted != 0
}

// decodeSegmentHeader parses a segment header from raw bytes.
func decodeSegmentHeader(raw []byte) (*segmentHeader, error) {
	if len(raw) < headerSize {
		return nil, Corruptf("segment header truncated: %d bytes", len(raw))
	}
	if [4]byte(raw[0:4]) != magic {
		return nil, Corruptf("bad magic %q: not an evidence container", raw[0:4])
	}
	if version := raw[4]; version != FormatVersion {
		return nil, &Error{
			Kind:   KindUnsupportedVersion,
			Detail: fmt.Sprintf("format version %d (this reader supports version %d)", version, FormatVersion),
		}
	}

	header := &segmentHeader{
		flags:        raw[5],
		segmentIndex: binary.BigEndian.Uint16(raw[6:8]),
		segmentCount: binary.BigEndian.Uint16(raw[8:10]),
		metaOffset:   binary.BigEndian.Uint64(raw[26:34]),
	}
	copy(header.containerID[:], raw[10:26])

	if header.segmentCount == 0 {
		return nil, Corruptf("segment count is zero")
	}
	if header.segmentIndex >= header.segmentCount {
		return nil, Corruptf("segment index %d out of range (count %d)",
			header.segmentIndex, header.segmentCount)
	}
	return header, nil
}

// encodeSegmentHeader writes a segment header into a fixed-size array.
func encodeSegmentHeader(header *segmentHeader) [headerSize]byte {
	var raw [headerSize]byte
	copy(raw[0:4], magic[:])
	raw[4] = FormatVersion
	raw[5] = header.flags
	binary.BigEndian.PutUint16(raw[6:8], header.segmentIndex)
	binary.BigEndian.PutUint16(raw[8:10], header.segmentCount)
	copy(raw[10:26], header.containerID[:])
	binary.BigEndian.PutUint64(raw[26:34], header.metaOffset)
	return raw
}

// Meta is the container metadata block: acquisition provenance plus
// the structural facts a reader needs before touching the object tree.
type Meta struct {
	// CaseNumber identifies the investigation this evidence belongs to.
	CaseNumber string `cbor:"1,keyasint,omitempty"`

	// Examiner is the acquiring examiner's name or identifier.
	Examiner string `cbor:"2,keyasint,omitempty"`

	// Description is free text describing the evidence source.
	Description string `cbor:"3,keyasint,omitempty"`

	// Tool names the acquisition tool and version.
	Tool string `cbor:"4,keyasint,omitempty"`

	// AcquisitionStart and AcquisitionEnd bound the acquisition
	// window (unix seconds, 0 = unknown). Objects without their own
	// timestamps inherit AcquisitionEnd.
	AcquisitionStart int64 `cbor:"5,keyasint,omitempty"`
	AcquisitionEnd   int64 `cbor:"6,keyasint,omitempty"`

	// ChunkSize is the uncompressed size of every chunk except an
	// object's last.
	ChunkSize uint32 `cbor:"7,keyasint"`

	// RootID is the object ID of the tree root (a directory).
	RootID uint64 `cbor:"8,keyasint"`

	// MaxDepth is the declared tree-depth ceiling. Readers treat any
	// path deeper than this as corruption rather than following it.
	MaxDepth uint32 `cbor:"9,keyasint,omitempty"`

	// ObjectCount and ChunkCount are the expected table sizes,
	// cross-checked against the decoded tables.
	ObjectCount uint64 `cbor:"10,keyasint"`
	ChunkCount  uint64 `cbor:"11,keyasint"`

	// Extra holds tool-specific acquisition metadata.
	Extra map[string]any `cbor:"12,keyasint,omitempty"`
}

// chunkRecord locates and describes one stored chunk.
type chunkRecord struct {
	// Segment is the index of the segment file holding the chunk.
	Segment uint16 `cbor:"1,keyasint"`

	// Offset is the chunk's byte offset within its segment file.
	Offset uint64 `cbor:"2,keyasint"`

	// StoredSize is the on-disk byte length (after compression and,
	// when encrypted, including nonce and AEAD tag).
	StoredSize uint32 `cbor:"3,keyasint"`

	// RawSize is the chunk's uncompressed plaintext length.
	RawSize uint32 `cbor:"4,keyasint"`

	// Compression is the chunk's compression tag.
	Compression CompressionTag `cbor:"5,keyasint"`

	// Sum is the BLAKE3-256 checksum of the raw chunk bytes.
	Sum []byte `cbor:"6,keyasint"`
}

// readBlock reads one length-prefixed metadata block.
func readBlock(r io.Reader) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, &Error{Kind: KindCorrupt, Detail: "metadata block prefix truncated", Err: err}
	}
	length := binary.BigEndian.Uint32(prefix[:])
	if length > maxBlockSize {
		return nil, Corruptf("metadata block length %d exceeds limit", length)
	}
	if length == 0 {
		return nil, nil
	}
	block := make([]byte, length)
	if _, err := io.ReadFull(r, block); err != nil {
		return nil, &Error{Kind: KindCorrupt, Detail: "metadata block truncated", Err: err}
	}
	return block, nil
}

// writeBlock writes one length-prefixed metadata block.
func writeBlock(w io.Writer, block []byte) error {
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(block)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("writing block prefix: %w", err)
	}
	if _, err := w.Write(block); err != nil {
		return fmt.Errorf("writing block: %w", err)
	}
	return nil
}
