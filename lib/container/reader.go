// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/evidencefs/evidencefs/lib/codec"
	"github.com/evidencefs/evidencefs/lib/secret"
)

// segment is one open container segment file.
type segment struct {
	path   string
	file   *os.File
	header *segmentHeader
}

// Container is a read-only handle on an evidence container: its
// decoded metadata, object table, chunk index, and the open segment
// files chunk reads are served from.
//
// All methods are safe for concurrent use. Chunk reads use
// File.ReadAt and never share a file offset.
type Container struct {
	meta     Meta
	segments []*segment
	objects  map[uint64]*Object
	chunks   []chunkRecord

	// chunkKey is the derived chunk subkey, nil for plaintext
	// containers. Zeroed on Close.
	chunkKey []byte

	closeOnce sync.Once
}

// Encrypted reports whether the segment at path belongs to an
// encrypted container. It reads only the fixed header, so callers can
// decide whether a passphrase is needed before calling Open.
func Encrypted(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("opening segment: %w", err)
	}
	defer f.Close()

	raw := make([]byte, headerSize)
	if _, err := f.ReadAt(raw, 0); err != nil {
		return false, Corruptf("segment %s: reading header: %v", path, err)
	}
	hdr, err := decodeSegmentHeader(raw)
	if err != nil {
		return false, fmt.Errorf("segment %s: %w", path, err)
	}
	return hdr.encrypted(), nil
}

// Open opens every segment of a container and decodes its metadata.
// The passphrase may be nil for plaintext containers; for encrypted
// containers a nil passphrase fails with KindKeyRequired and a wrong
// one with KindBadKey. Open does not retain the passphrase.
func Open(paths []string, passphrase *secret.Buffer) (*Container, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no segment paths given")
	}

	segments := make([]*segment, len(paths))
	var group errgroup.Group
	for i, path := range paths {
		group.Go(func() error {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("opening segment: %w", err)
			}
			raw := make([]byte, headerSize)
			if _, err := f.ReadAt(raw, 0); err != nil {
				f.Close()
				return Corruptf("segment %s: reading header: %v", path, err)
			}
			hdr, err := decodeSegmentHeader(raw)
			if err != nil {
				f.Close()
				return fmt.Errorf("segment %s: %w", path, err)
			}
			segments[i] = &segment{path: path, file: f, header: hdr}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		for _, s := range segments {
			if s != nil {
				s.file.Close()
			}
		}
		return nil, err
	}

	c := &Container{segments: segments}
	if err := c.load(passphrase); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// load validates the segment set and decodes the metadata blocks of
// segment 0, decrypting them when the container is encrypted.
func (c *Container) load(passphrase *secret.Buffer) error {
	first := c.segments[0].header
	for _, s := range c.segments {
		h := s.header
		if h.containerID != first.containerID {
			return Corruptf("segment %s: container ID mismatch", s.path)
		}
		if h.segmentCount != first.segmentCount {
			return Corruptf("segment %s: segment count mismatch", s.path)
		}
		if h.flags != first.flags {
			return Corruptf("segment %s: flags mismatch", s.path)
		}
	}
	if int(first.segmentCount) != len(c.segments) {
		return Corruptf("container has %d segments, %d given",
			first.segmentCount, len(c.segments))
	}

	sort.Slice(c.segments, func(i, j int) bool {
		return c.segments[i].header.segmentIndex < c.segments[j].header.segmentIndex
	})
	for i, s := range c.segments {
		if int(s.header.segmentIndex) != i {
			return Corruptf("segment index %d duplicated or missing",
				s.header.segmentIndex)
		}
	}

	head := c.segments[0]
	if head.header.metaOffset < headerSize {
		return Corruptf("segment 0 has no metadata offset")
	}
	if _, err := head.file.Seek(int64(head.header.metaOffset), io.SeekStart); err != nil {
		return Corruptf("seeking to metadata: %v", err)
	}
	keyslot, err := readBlock(head.file)
	if err != nil {
		return fmt.Errorf("reading keyslot block: %w", err)
	}
	metaRaw, err := readBlock(head.file)
	if err != nil {
		return fmt.Errorf("reading metadata block: %w", err)
	}
	objectsRaw, err := readBlock(head.file)
	if err != nil {
		return fmt.Errorf("reading object table block: %w", err)
	}
	chunksRaw, err := readBlock(head.file)
	if err != nil {
		return fmt.Errorf("reading chunk index block: %w", err)
	}

	if head.header.encrypted() {
		if passphrase == nil {
			return &Error{Kind: KindKeyRequired, Detail: "container is encrypted"}
		}
		if len(keyslot) == 0 {
			return Corruptf("encrypted container has empty keyslot")
		}
		master, err := unsealMasterKey(keyslot, passphrase)
		if err != nil {
			return err
		}
		defer master.Close()

		objectKey, err := deriveKey(master, hkdfInfoObjects)
		if err != nil {
			return err
		}
		defer secret.Zero(objectKey)
		indexKey, err := deriveKey(master, hkdfInfoChunkIndex)
		if err != nil {
			return err
		}
		defer secret.Zero(indexKey)
		c.chunkKey, err = deriveKey(master, hkdfInfoChunks)
		if err != nil {
			return err
		}

		if objectsRaw, err = decryptBlock(objectKey, objectsRaw); err != nil {
			return fmt.Errorf("object table: %w", err)
		}
		if chunksRaw, err = decryptBlock(indexKey, chunksRaw); err != nil {
			return fmt.Errorf("chunk index: %w", err)
		}
	}

	if err := codec.Unmarshal(metaRaw, &c.meta); err != nil {
		return Corruptf("decoding metadata: %v", err)
	}
	if c.meta.ChunkSize == 0 {
		return Corruptf("metadata has zero chunk size")
	}
	if c.meta.MaxDepth == 0 {
		c.meta.MaxDepth = DefaultMaxDepth
	}

	var objects []*Object
	if err := codec.Unmarshal(objectsRaw, &objects); err != nil {
		return Corruptf("decoding object table: %v", err)
	}
	c.objects = make(map[uint64]*Object, len(objects))
	for _, obj := range objects {
		if _, dup := c.objects[obj.ID]; dup {
			return Corruptf("duplicate object ID %d", obj.ID)
		}
		c.objects[obj.ID] = obj
	}
	if uint64(len(objects)) != c.meta.ObjectCount {
		return Corruptf("object table has %d entries, metadata says %d",
			len(objects), c.meta.ObjectCount)
	}
	root, ok := c.objects[c.meta.RootID]
	if !ok {
		return Corruptf("root object %d missing", c.meta.RootID)
	}
	if !root.IsDir() {
		return Corruptf("root object %d is %s, not a directory",
			root.ID, root.Kind)
	}

	if err := codec.Unmarshal(chunksRaw, &c.chunks); err != nil {
		return Corruptf("decoding chunk index: %v", err)
	}
	if uint64(len(c.chunks)) != c.meta.ChunkCount {
		return Corruptf("chunk index has %d entries, metadata says %d",
			len(c.chunks), c.meta.ChunkCount)
	}
	for _, obj := range objects {
		if obj.ChunkCount == 0 {
			continue
		}
		end := obj.FirstChunk + uint64(obj.ChunkCount)
		if end < obj.FirstChunk || end > uint64(len(c.chunks)) {
			return Corruptf("object %d chunk range [%d, %d) out of bounds",
				obj.ID, obj.FirstChunk, end)
		}
	}
	for _, rec := range c.chunks {
		if int(rec.Segment) >= len(c.segments) {
			return Corruptf("chunk references segment %d of %d",
				rec.Segment, len(c.segments))
		}
	}
	return nil
}

// Meta returns the container's acquisition metadata.
func (c *Container) Meta() Meta { return c.meta }

// ChunkSize returns the uncompressed chunk size in bytes.
func (c *Container) ChunkSize() uint32 { return c.meta.ChunkSize }

// MaxDepth returns the tree depth ceiling for path resolution.
func (c *Container) MaxDepth() uint32 { return c.meta.MaxDepth }

// Root returns the root directory object.
func (c *Container) Root() *Object { return c.objects[c.meta.RootID] }

// Object returns the object with the given ID, failing with
// KindNotFound if the container has no such object.
func (c *Container) Object(id uint64) (*Object, error) {
	obj, ok := c.objects[id]
	if !ok {
		return nil, &Error{Kind: KindNotFound,
			Detail: fmt.Sprintf("object %d", id)}
	}
	return obj, nil
}

// ObjectCount returns the number of objects in the container.
func (c *Container) ObjectCount() int { return len(c.objects) }

// ReadChunk reads, decrypts, decompresses, and verifies chunk rel of
// the object's data stream, returning the raw chunk bytes. The final
// chunk of a stream may be shorter than ChunkSize.
func (c *Container) ReadChunk(obj *Object, rel uint32) ([]byte, error) {
	if rel >= obj.ChunkCount {
		return nil, Corruptf("object %d has no chunk %d", obj.ID, rel)
	}
	rec := c.chunks[obj.FirstChunk+uint64(rel)]
	seg := c.segments[rec.Segment]

	stored := make([]byte, rec.StoredSize)
	if _, err := seg.file.ReadAt(stored, int64(rec.Offset)); err != nil {
		return nil, Corruptf("object %d chunk %d: reading segment %d: %v",
			obj.ID, rel, rec.Segment, err)
	}
	if c.chunkKey != nil {
		var err error
		if stored, err = decryptBlock(c.chunkKey, stored); err != nil {
			return nil, fmt.Errorf("object %d chunk %d: %w", obj.ID, rel, err)
		}
	}
	raw, err := decompressChunk(stored, rec.Compression, int(rec.RawSize))
	if err != nil {
		return nil, fmt.Errorf("object %d chunk %d: %w", obj.ID, rel, err)
	}
	sum := blake3.Sum256(raw)
	if !bytes.Equal(sum[:], rec.Sum) {
		return nil, Corruptf("object %d chunk %d: checksum mismatch", obj.ID, rel)
	}
	return raw, nil
}

// ReadAt reads from the object's data stream at the given byte offset,
// returning the number of bytes copied into dest. A read at or past
// the stream's end returns 0 with no error; a read crossing the end is
// truncated.
func (c *Container) ReadAt(obj *Object, dest []byte, off uint64) (int, error) {
	if !obj.HasData() {
		return 0, Corruptf("object %d (%s) has no data stream", obj.ID, obj.Kind)
	}
	if off >= obj.Size {
		return 0, nil
	}
	if max := obj.Size - off; uint64(len(dest)) > max {
		dest = dest[:max]
	}

	chunkSize := uint64(c.meta.ChunkSize)
	total := 0
	for len(dest) > 0 {
		rel := uint32(off / chunkSize)
		within := off % chunkSize
		raw, err := c.ReadChunk(obj, rel)
		if err != nil {
			return total, err
		}
		if within >= uint64(len(raw)) {
			return total, Corruptf("object %d chunk %d shorter than offset",
				obj.ID, rel)
		}
		n := copy(dest, raw[within:])
		dest = dest[n:]
		off += uint64(n)
		total += n
	}
	return total, nil
}

// Close closes every segment file and zeroes the chunk key. Close is
// idempotent.
func (c *Container) Close() error {
	var first error
	c.closeOnce.Do(func() {
		secret.Zero(c.chunkKey)
		c.chunkKey = nil
		for _, s := range c.segments {
			if s == nil {
				continue
			}
			if err := s.file.Close(); err != nil && first == nil {
				first = err
			}
		}
	})
	return first
}
