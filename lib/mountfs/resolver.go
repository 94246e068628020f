// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

package mountfs

import (
	"sync"

	"github.com/evidencefs/evidencefs/lib/container"
)

// Entry is one resolved directory entry: a name bound to an inode and
// the object it denotes. Hardlinks are resolved before binding, so
// Object is never a hardlink and two names for the same target share
// an inode.
type Entry struct {
	Name   string
	Ino    uint64
	Object *container.Object
}

// Resolver turns directory lookups and listings into bound entries.
// Each directory's listing is computed once, on first access, and the
// frozen result is served for the life of the mount. The entry order
// is the container's child order.
//
// Safe for concurrent use.
type Resolver struct {
	c   *container.Container
	idx *Index

	mu       sync.Mutex
	listings map[uint64][]Entry
}

// NewResolver returns a resolver over the given container and index.
func NewResolver(c *container.Container, idx *Index) *Resolver {
	return &Resolver{
		c:        c,
		idx:      idx,
		listings: make(map[uint64][]Entry),
	}
}

// List returns the frozen listing of the directory bound to dirIno.
// The returned slice is shared; callers must not modify it.
func (r *Resolver) List(dirIno uint64) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entries, ok := r.listings[dirIno]; ok {
		return entries, nil
	}
	entries, err := r.computeListing(dirIno)
	if err != nil {
		return nil, err
	}
	r.listings[dirIno] = entries
	return entries, nil
}

// Lookup resolves one name within the directory bound to dirIno.
func (r *Resolver) Lookup(dirIno uint64, name string) (Entry, error) {
	entries, err := r.List(dirIno)
	if err != nil {
		return Entry{}, err
	}
	for _, entry := range entries {
		if entry.Name == name {
			return entry, nil
		}
	}
	return Entry{}, ErrNotFound
}

// computeListing resolves every child of a directory, following
// hardlinks to their targets and binding inodes as a side effect.
// Called with r.mu held.
func (r *Resolver) computeListing(dirIno uint64) ([]Entry, error) {
	objectID, depth, err := r.idx.Resolve(dirIno)
	if err != nil {
		return nil, err
	}
	dir, err := r.c.Object(objectID)
	if err != nil {
		return nil, err
	}
	if !dir.IsDir() {
		return nil, ErrNotADirectory
	}
	if depth >= r.c.MaxDepth() {
		return nil, container.Corruptf("directory %d at depth %d exceeds declared ceiling %d",
			objectID, depth, r.c.MaxDepth())
	}

	seen := make(map[string]bool, len(dir.Children))
	entries := make([]Entry, 0, len(dir.Children))
	for _, child := range dir.Children {
		if child.Name == "" || child.Name == "." || child.Name == ".." {
			return nil, container.Corruptf("directory %d has reserved child name %q",
				objectID, child.Name)
		}
		if seen[child.Name] {
			return nil, container.Corruptf("directory %d has duplicate child %q",
				objectID, child.Name)
		}
		seen[child.Name] = true

		obj, err := r.c.Object(child.ID)
		if err != nil {
			return nil, container.Corruptf("directory %d child %q references missing object %d",
				objectID, child.Name, child.ID)
		}
		if obj.Kind == container.KindHardlink {
			target, err := r.c.Object(obj.LinkID)
			if err != nil {
				return nil, container.Corruptf("hardlink %d references missing object %d",
					obj.ID, obj.LinkID)
			}
			if target.Kind == container.KindHardlink || target.IsDir() {
				return nil, container.Corruptf("hardlink %d has invalid target %d (%s)",
					obj.ID, target.ID, target.Kind)
			}
			obj = target
		}

		entries = append(entries, Entry{
			Name:   child.Name,
			Ino:    r.idx.Bind(obj.ID, depth+1),
			Object: obj,
		})
	}
	return entries, nil
}
