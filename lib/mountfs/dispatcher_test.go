// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

package mountfs

import (
	"bytes"
	"sync"
	"testing"

	"github.com/evidencefs/evidencefs/lib/container"
)

func TestDispatcherRead(t *testing.T) {
	data := []byte("0123456789abcdefghij")
	c := openTestContainer(t, container.BuilderOptions{ChunkSize: 8}, func(t *testing.T, b *container.Builder) {
		addFile(t, b, b.Root(), "f", data)
	})
	obj, err := c.Object(c.Root().Children[0].ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}

	d := NewDispatcher(c)
	h, err := d.Open(obj)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Release(h)

	for _, tc := range []struct {
		off  uint64
		size int
		want string
	}{
		{0, 4, "0123"},
		{4, 4, "4567"},    // same chunk, cache hit
		{6, 4, "6789"},    // crosses the first chunk boundary
		{18, 10, "ij"},    // truncated at the end
		{20, 4, ""},       // at the end
		{1000, 4, ""},     // far past the end
		{3, 17, "3456789abcdefghij"},
	} {
		dest := make([]byte, tc.size)
		n, err := d.Read(h, dest, tc.off)
		if err != nil {
			t.Fatalf("read at %d: %v", tc.off, err)
		}
		if string(dest[:n]) != tc.want {
			t.Errorf("read at %d: %q, want %q", tc.off, dest[:n], tc.want)
		}
	}
}

func TestDispatcherOpenRejectsNonData(t *testing.T) {
	c := openTestContainer(t, container.BuilderOptions{}, func(t *testing.T, b *container.Builder) {
		addDir(t, b, b.Root(), "dir")
		if _, err := b.AddSymlink(b.Root(), "link", "dir"); err != nil {
			t.Fatalf("adding symlink: %v", err)
		}
	})

	d := NewDispatcher(c)
	if _, err := d.Open(c.Root()); err != ErrNotReadable {
		t.Errorf("open directory: got %v, want ErrNotReadable", err)
	}
	link, err := c.Object(c.Root().Children[1].ID)
	if err != nil {
		t.Fatalf("lookup link: %v", err)
	}
	if _, err := d.Open(link); err != ErrNotReadable {
		t.Errorf("open symlink: got %v, want ErrNotReadable", err)
	}
}

func TestDispatcherReleaseIdempotent(t *testing.T) {
	c := openTestContainer(t, container.BuilderOptions{}, func(t *testing.T, b *container.Builder) {
		addFile(t, b, b.Root(), "f", []byte("x"))
	})
	obj, err := c.Object(c.Root().Children[0].ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}

	d := NewDispatcher(c)
	h, err := d.Open(obj)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if d.OpenHandles() != 1 {
		t.Fatalf("open handles %d, want 1", d.OpenHandles())
	}

	d.Release(h)
	d.Release(h)
	if d.OpenHandles() != 0 {
		t.Fatalf("open handles %d after release, want 0", d.OpenHandles())
	}
	if _, err := d.Read(h, make([]byte, 1), 0); err != ErrStaleHandle {
		t.Errorf("read on released handle: got %v, want ErrStaleHandle", err)
	}
}

func TestDispatcherConcurrentHandles(t *testing.T) {
	data := bytes.Repeat([]byte("concurrent evidence stream "), 512)
	c := openTestContainer(t, container.BuilderOptions{ChunkSize: 256}, func(t *testing.T, b *container.Builder) {
		addFile(t, b, b.Root(), "f", data)
	})
	obj, err := c.Object(c.Root().Children[0].ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	d := NewDispatcher(c)

	const readers = 8
	var wg sync.WaitGroup
	errs := make(chan error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(offset uint64) {
			defer wg.Done()
			h, err := d.Open(obj)
			if err != nil {
				errs <- err
				return
			}
			defer d.Release(h)

			dest := make([]byte, 300)
			n, err := d.Read(h, dest, offset)
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(dest[:n], data[offset:offset+uint64(n)]) {
				t.Errorf("read at %d returned wrong bytes", offset)
			}
		}(uint64(i * 137))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent read: %v", err)
	}
}
