// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the compression algorithm used for a
// chunk. Tags are stored in chunk index records. These values are
// protocol constants — changing them breaks container compatibility.
type CompressionTag uint8

const (
	// CompressionNone indicates uncompressed data. The Builder falls
	// back to this when a chunk is incompressible (media files,
	// already-compressed archives — common in acquired evidence).
	CompressionNone CompressionTag = 0

	// CompressionLZ4 indicates LZ4 block compression. The default:
	// decode speed dominates mount read latency, and acquired disk
	// images are mostly binary.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd indicates zstd compression at the default
	// level. Better ratios for text-heavy logical acquisitions
	// (logs, documents, registry hives).
	CompressionZstd CompressionTag = 2
)

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// errIncompressible reports that compression would not shrink the
// chunk. The Builder stores such chunks raw under CompressionNone.
var errIncompressible = errors.New("incompressible data")

// compressChunk compresses data using the specified algorithm. For
// CompressionNone, returns the input unchanged (no copy).
func compressChunk(data []byte, tag CompressionTag) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		return compressLZ4(data)
	case CompressionZstd:
		return compressZstd(data)
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

// decompressChunk decompresses a stored chunk. rawSize must match the
// original chunk length exactly — a mismatch is corruption.
func decompressChunk(stored []byte, tag CompressionTag, rawSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(stored) != rawSize {
			return nil, Corruptf("uncompressed chunk: size %d does not match recorded %d",
				len(stored), rawSize)
		}
		return stored, nil
	case CompressionLZ4:
		return decompressLZ4(stored, rawSize)
	case CompressionZstd:
		return decompressZstd(stored, rawSize)
	default:
		return nil, Corruptf("unknown compression tag %d", tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	destination := make([]byte, bound)

	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	// CompressBlock returns 0 when it determines the data is
	// incompressible. Also reject output that grew.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}

	return destination[:written], nil
}

func decompressLZ4(stored []byte, rawSize int) ([]byte, error) {
	destination := make([]byte, rawSize)
	read, err := lz4.UncompressBlock(stored, destination)
	if err != nil {
		return nil, &Error{Kind: KindCorrupt, Detail: "lz4 decompress", Err: err}
	}
	if read != rawSize {
		return nil, Corruptf("lz4 decompress: got %d bytes, recorded %d", read, rawSize)
	}
	return destination, nil
}

// zstdEncoder and zstdDecoder are reused across calls to avoid
// repeated initialization overhead. Both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("container: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("container: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(stored []byte, rawSize int) ([]byte, error) {
	destination := make([]byte, 0, rawSize)
	result, err := zstdDecoder.DecodeAll(stored, destination)
	if err != nil {
		return nil, &Error{Kind: KindCorrupt, Detail: "zstd decompress", Err: err}
	}
	if len(result) != rawSize {
		return nil, Corruptf("zstd decompress: got %d bytes, recorded %d", len(result), rawSize)
	}
	return result, nil
}
