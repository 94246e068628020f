// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

package mountfs

import (
	"sync"

	"github.com/evidencefs/evidencefs/lib/container"
)

// Handle is one open read handle on an object's data stream. Reads on
// a single handle are serialized; the handle keeps the most recently
// decoded chunk so a sequential reader decodes each chunk once.
// Distinct handles on the same object read independently.
type Handle struct {
	id  uint64
	obj *container.Object

	mu       sync.Mutex
	released bool
	chunkRel uint32
	chunk    []byte
}

// Dispatcher owns the handle table. Open and Release maintain it;
// Read serves byte ranges through a handle's chunk cache.
//
// Safe for concurrent use.
type Dispatcher struct {
	c *container.Container

	mu      sync.Mutex
	handles map[uint64]*Handle
	next    uint64
}

// NewDispatcher returns a dispatcher reading from the given container.
func NewDispatcher(c *container.Container) *Dispatcher {
	return &Dispatcher{
		c:       c,
		handles: make(map[uint64]*Handle),
		next:    1,
	}
}

// Open creates a handle on the object's data stream. Directories and
// other objects without data fail with ErrNotReadable.
func (d *Dispatcher) Open(obj *container.Object) (*Handle, error) {
	if !obj.HasData() {
		return nil, ErrNotReadable
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	h := &Handle{id: d.next, obj: obj}
	d.next++
	d.handles[h.id] = h
	return h, nil
}

// Read copies bytes from the handle's stream at the given offset.
// Reads at or past the end return 0 with no error; reads crossing the
// end are truncated. Reading a released handle fails with
// ErrStaleHandle.
func (d *Dispatcher) Read(h *Handle, dest []byte, off uint64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return 0, ErrStaleHandle
	}
	if off >= h.obj.Size {
		return 0, nil
	}
	if max := h.obj.Size - off; uint64(len(dest)) > max {
		dest = dest[:max]
	}

	chunkSize := uint64(d.c.ChunkSize())
	total := 0
	for len(dest) > 0 {
		rel := uint32(off / chunkSize)
		within := off % chunkSize
		if h.chunk == nil || h.chunkRel != rel {
			raw, err := d.c.ReadChunk(h.obj, rel)
			if err != nil {
				return total, err
			}
			h.chunkRel = rel
			h.chunk = raw
		}
		if within >= uint64(len(h.chunk)) {
			return total, container.Corruptf("object %d chunk %d shorter than offset",
				h.obj.ID, rel)
		}
		n := copy(dest, h.chunk[within:])
		dest = dest[n:]
		off += uint64(n)
		total += n
	}
	return total, nil
}

// Release closes a handle and drops its cached chunk. Idempotent.
func (d *Dispatcher) Release(h *Handle) {
	h.mu.Lock()
	h.released = true
	h.chunk = nil
	h.mu.Unlock()

	d.mu.Lock()
	delete(d.handles, h.id)
	d.mu.Unlock()
}

// OpenHandles returns the number of handles not yet released.
func (d *Dispatcher) OpenHandles() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handles)
}
