// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"crypto/rand"
	"fmt"
	"os"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/evidencefs/evidencefs/lib/codec"
	"github.com/evidencefs/evidencefs/lib/secret"
)

// BuilderOptions configure a container build.
type BuilderOptions struct {
	// Meta seeds the container metadata. ChunkSize, RootID,
	// ObjectCount, and ChunkCount are filled in by Write.
	Meta Meta

	// Passphrase, when non-nil, produces an encrypted container. The
	// builder does not retain it past Write.
	Passphrase *secret.Buffer

	// Compression selects the per-chunk compression. Chunks that do
	// not shrink are stored uncompressed regardless. Defaults to LZ4.
	Compression CompressionTag

	// ChunkSize is the uncompressed chunk size in bytes. Defaults to
	// DefaultChunkSize.
	ChunkSize uint32

	// SegmentCount splits the container across this many segment
	// files, balancing chunk data between them. Defaults to 1.
	SegmentCount int
}

// Builder assembles a container in memory and writes it out as one or
// more segment files. Not safe for concurrent use.
type Builder struct {
	opts    BuilderOptions
	objects map[uint64]*Object
	data    map[uint64][]byte
	nextID  uint64
	rootID  uint64
}

// NewBuilder returns a builder with an empty root directory.
func NewBuilder(opts BuilderOptions) *Builder {
	if opts.Compression == CompressionNone {
		opts.Compression = CompressionLZ4
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.SegmentCount <= 0 {
		opts.SegmentCount = 1
	}
	b := &Builder{
		opts:    opts,
		objects: make(map[uint64]*Object),
		data:    make(map[uint64][]byte),
		nextID:  1,
	}
	b.rootID = b.add(&Object{Kind: KindDirectory})
	return b
}

// Root returns the root directory's object ID.
func (b *Builder) Root() uint64 { return b.rootID }

func (b *Builder) add(obj *Object) uint64 {
	obj.ID = b.nextID
	b.nextID++
	b.objects[obj.ID] = obj
	return obj.ID
}

func (b *Builder) attach(parent uint64, name string, id uint64) error {
	p, ok := b.objects[parent]
	if !ok {
		return fmt.Errorf("parent object %d does not exist", parent)
	}
	if !p.IsDir() {
		return fmt.Errorf("parent object %d is %s, not a directory", parent, p.Kind)
	}
	for _, child := range p.Children {
		if child.Name == name {
			return fmt.Errorf("directory %d already has child %q", parent, name)
		}
	}
	p.Children = append(p.Children, ChildRef{Name: name, ID: id})
	return nil
}

// addChild registers obj under parent, undoing the registration when
// attachment fails.
func (b *Builder) addChild(parent uint64, name string, obj *Object) (uint64, error) {
	id := b.add(obj)
	if err := b.attach(parent, name, id); err != nil {
		delete(b.objects, id)
		b.nextID--
		return 0, err
	}
	return id, nil
}

// AddDirectory creates an empty directory under parent.
func (b *Builder) AddDirectory(parent uint64, name string) (uint64, error) {
	return b.addChild(parent, name, &Object{Kind: KindDirectory})
}

// AddFile creates a regular file under parent with the given content.
func (b *Builder) AddFile(parent uint64, name string, data []byte) (uint64, error) {
	id, err := b.addChild(parent, name, &Object{
		Kind: KindRegular,
		Size: uint64(len(data)),
	})
	if err != nil {
		return 0, err
	}
	b.data[id] = data
	return id, nil
}

// AddVirtual creates a reconstructed file under parent. It reads the
// same as a regular file but is marked as tool output rather than an
// acquired object.
func (b *Builder) AddVirtual(parent uint64, name string, data []byte) (uint64, error) {
	id, err := b.addChild(parent, name, &Object{
		Kind: KindVirtual,
		Size: uint64(len(data)),
	})
	if err != nil {
		return 0, err
	}
	b.data[id] = data
	return id, nil
}

// AddSymlink creates a symbolic link under parent.
func (b *Builder) AddSymlink(parent uint64, name, target string) (uint64, error) {
	return b.addChild(parent, name, &Object{
		Kind:       KindSymlink,
		Size:       uint64(len(target)),
		LinkTarget: target,
	})
}

// AddHardlink creates a second name for target under parent.
func (b *Builder) AddHardlink(parent uint64, name string, target uint64) (uint64, error) {
	t, ok := b.objects[target]
	if !ok {
		return 0, fmt.Errorf("hardlink target %d does not exist", target)
	}
	if t.IsDir() {
		return 0, fmt.Errorf("hardlink target %d is a directory", target)
	}
	return b.addChild(parent, name, &Object{
		Kind:   KindHardlink,
		LinkID: target,
	})
}

// AddSpecial creates a fifo, character device, or block device node
// under parent. Rdev is ignored for fifos.
func (b *Builder) AddSpecial(parent uint64, name string, typ SpecialType, rdev uint32) (uint64, error) {
	return b.addChild(parent, name, &Object{
		Kind:    KindSpecial,
		Special: typ,
		Rdev:    rdev,
	})
}

// SetTimes records acquisition timestamps on an existing object.
func (b *Builder) SetTimes(id uint64, mtime, atime, ctime, btime int64) error {
	obj, ok := b.objects[id]
	if !ok {
		return fmt.Errorf("object %d does not exist", id)
	}
	obj.MTime, obj.ATime, obj.CTime, obj.BTime = mtime, atime, ctime, btime
	return nil
}

// storedChunk is one chunk payload pending placement in a segment.
type storedChunk struct {
	rec     chunkRecord
	payload []byte
}

// Write chunks every data stream and writes the container to the
// given segment paths, one file per segment. len(paths) must equal
// SegmentCount.
func (b *Builder) Write(paths []string) error {
	if len(paths) != b.opts.SegmentCount {
		return fmt.Errorf("container has %d segments, %d paths given",
			b.opts.SegmentCount, len(paths))
	}

	var chunkKey []byte
	var keyslot []byte
	var objectKey, indexKey []byte
	encrypted := b.opts.Passphrase != nil
	if encrypted {
		masterRaw := make([]byte, MasterKeySize)
		if _, err := rand.Read(masterRaw); err != nil {
			return fmt.Errorf("generating master key: %w", err)
		}
		master, err := secret.NewFromBytes(masterRaw)
		if err != nil {
			return fmt.Errorf("holding master key: %w", err)
		}
		defer master.Close()

		if keyslot, err = sealMasterKey(master.Bytes(), b.opts.Passphrase); err != nil {
			return err
		}
		if objectKey, err = deriveKey(master, hkdfInfoObjects); err != nil {
			return err
		}
		defer secret.Zero(objectKey)
		if indexKey, err = deriveKey(master, hkdfInfoChunkIndex); err != nil {
			return err
		}
		defer secret.Zero(indexKey)
		if chunkKey, err = deriveKey(master, hkdfInfoChunks); err != nil {
			return err
		}
		defer secret.Zero(chunkKey)
	}

	// Objects are serialized in ID order so identical inputs produce
	// identical containers.
	ids := make([]uint64, 0, len(b.objects))
	for id := range b.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var chunks []storedChunk
	objects := make([]*Object, 0, len(ids))
	for _, id := range ids {
		obj := b.objects[id]
		objects = append(objects, obj)
		data, hasData := b.data[id]
		if !hasData {
			continue
		}
		obj.FirstChunk = uint64(len(chunks))
		for off := 0; off < len(data); off += int(b.opts.ChunkSize) {
			end := off + int(b.opts.ChunkSize)
			if end > len(data) {
				end = len(data)
			}
			chunk, err := b.storeChunk(data[off:end], chunkKey)
			if err != nil {
				return fmt.Errorf("object %d: %w", id, err)
			}
			chunks = append(chunks, chunk)
		}
		obj.ChunkCount = uint32(len(chunks)) - uint32(obj.FirstChunk)
	}

	var containerID [16]byte
	if _, err := rand.Read(containerID[:]); err != nil {
		return fmt.Errorf("generating container ID: %w", err)
	}

	// Balance chunk data across segments by stored size. Segment 0
	// additionally carries the metadata blocks at its tail.
	var totalStored uint64
	for _, chunk := range chunks {
		totalStored += uint64(len(chunk.payload))
	}
	budget := totalStored/uint64(len(paths)) + 1

	segChunks := make([][]int, len(paths))
	records := make([]chunkRecord, len(chunks))
	seg, segBytes := 0, uint64(0)
	offset := uint64(headerSize)
	for i := range chunks {
		if segBytes >= budget && seg < len(paths)-1 {
			seg++
			segBytes = 0
			offset = headerSize
		}
		chunks[i].rec.Segment = uint16(seg)
		chunks[i].rec.Offset = offset
		records[i] = chunks[i].rec
		segChunks[seg] = append(segChunks[seg], i)
		offset += uint64(len(chunks[i].payload))
		segBytes += uint64(len(chunks[i].payload))
	}

	meta := b.opts.Meta
	meta.ChunkSize = b.opts.ChunkSize
	meta.RootID = b.rootID
	meta.ObjectCount = uint64(len(objects))
	meta.ChunkCount = uint64(len(records))
	if meta.MaxDepth == 0 {
		meta.MaxDepth = DefaultMaxDepth
	}

	metaRaw, err := codec.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	objectsRaw, err := codec.Marshal(objects)
	if err != nil {
		return fmt.Errorf("encoding object table: %w", err)
	}
	chunksRaw, err := codec.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding chunk index: %w", err)
	}
	if encrypted {
		if objectsRaw, err = encryptBlock(objectKey, objectsRaw); err != nil {
			return fmt.Errorf("object table: %w", err)
		}
		if chunksRaw, err = encryptBlock(indexKey, chunksRaw); err != nil {
			return fmt.Errorf("chunk index: %w", err)
		}
	}

	var flags uint8
	if encrypted {
		flags |= flagEncrypted
	}
	for seg, path := range paths {
		var dataLen uint64
		for _, i := range segChunks[seg] {
			dataLen += uint64(len(chunks[i].payload))
		}
		hdr := &segmentHeader{
			flags:        flags,
			segmentIndex: uint16(seg),
			segmentCount: uint16(len(paths)),
			containerID:  containerID,
		}
		if seg == 0 {
			hdr.metaOffset = headerSize + dataLen
		}

		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating segment: %w", err)
		}
		raw := encodeSegmentHeader(hdr)
		if _, err := f.Write(raw[:]); err != nil {
			f.Close()
			return fmt.Errorf("segment %s: writing header: %w", path, err)
		}
		for _, i := range segChunks[seg] {
			if _, err := f.Write(chunks[i].payload); err != nil {
				f.Close()
				return fmt.Errorf("segment %s: writing chunk: %w", path, err)
			}
		}
		if seg == 0 {
			for _, block := range [][]byte{keyslot, metaRaw, objectsRaw, chunksRaw} {
				if err := writeBlock(f, block); err != nil {
					f.Close()
					return fmt.Errorf("segment %s: writing metadata: %w", path, err)
				}
			}
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("segment %s: %w", path, err)
		}
	}
	return nil
}

// storeChunk compresses, encrypts, and checksums one raw chunk.
func (b *Builder) storeChunk(raw []byte, chunkKey []byte) (storedChunk, error) {
	sum := blake3.Sum256(raw)
	rec := chunkRecord{
		RawSize:     uint32(len(raw)),
		Compression: b.opts.Compression,
		Sum:         sum[:],
	}
	payload, err := compressChunk(raw, b.opts.Compression)
	if err == errIncompressible {
		rec.Compression = CompressionNone
		payload = append([]byte(nil), raw...)
	} else if err != nil {
		return storedChunk{}, err
	}
	if chunkKey != nil {
		if payload, err = encryptBlock(chunkKey, payload); err != nil {
			return storedChunk{}, err
		}
	}
	rec.StoredSize = uint32(len(payload))
	return storedChunk{rec: rec, payload: payload}, nil
}
