// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

package mountfs

import "sync"

// RootInode is the inode number of the mount root, fixed by the FUSE
// protocol.
const RootInode = 1

// binding records what an issued inode number points at.
type binding struct {
	objectID uint64
	depth    uint32
}

// Index assigns inode numbers to container objects. Bindings are
// created lazily, the first time an object becomes visible through a
// lookup or listing, and never change or disappear until the mount
// ends. Two names for the same object (hardlinks) share one inode.
//
// Safe for concurrent use.
type Index struct {
	mu       sync.RWMutex
	byInode  map[uint64]binding
	byObject map[uint64]uint64
	next     uint64
}

// NewIndex returns an index with the root object pre-bound to
// RootInode at depth zero.
func NewIndex(rootObjectID uint64) *Index {
	idx := &Index{
		byInode:  make(map[uint64]binding),
		byObject: make(map[uint64]uint64),
		next:     RootInode + 1,
	}
	idx.byInode[RootInode] = binding{objectID: rootObjectID}
	idx.byObject[rootObjectID] = RootInode
	return idx
}

// Bind returns the inode number for the given object, allocating a
// fresh one on first sight. The depth is recorded on first binding
// and kept thereafter: an object reachable at several depths keeps
// the depth it was first seen at.
func (idx *Index) Bind(objectID uint64, depth uint32) uint64 {
	idx.mu.RLock()
	ino, ok := idx.byObject[objectID]
	idx.mu.RUnlock()
	if ok {
		return ino
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if ino, ok := idx.byObject[objectID]; ok {
		return ino
	}
	ino = idx.next
	idx.next++
	idx.byInode[ino] = binding{objectID: objectID, depth: depth}
	idx.byObject[objectID] = ino
	return ino
}

// Resolve returns the object ID and recorded depth bound to an inode.
func (idx *Index) Resolve(ino uint64) (objectID uint64, depth uint32, err error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	b, ok := idx.byInode[ino]
	if !ok {
		return 0, 0, ErrUnknownInode
	}
	return b.objectID, b.depth, nil
}

// Len returns the number of issued bindings.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byInode)
}
