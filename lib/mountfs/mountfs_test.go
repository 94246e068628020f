// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

package mountfs

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/evidencefs/evidencefs/lib/container"
)

// testLogger discards all output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openTestContainer builds a container via build and opens it.
func openTestContainer(t *testing.T, opts container.BuilderOptions, build func(t *testing.T, b *container.Builder)) *container.Container {
	t.Helper()
	b := container.NewBuilder(opts)
	build(t, b)

	dir := t.TempDir()
	segments := opts.SegmentCount
	if segments <= 0 {
		segments = 1
	}
	paths := make([]string, segments)
	for i := range paths {
		paths[i] = filepath.Join(dir, fmt.Sprintf("evidence.ecf.%03d", i))
	}
	if err := b.Write(paths); err != nil {
		t.Fatalf("writing container: %v", err)
	}

	c, err := container.Open(paths, nil)
	if err != nil {
		t.Fatalf("opening container: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// addFile attaches a regular file, failing the test on error.
func addFile(t *testing.T, b *container.Builder, parent uint64, name string, data []byte) uint64 {
	t.Helper()
	id, err := b.AddFile(parent, name, data)
	if err != nil {
		t.Fatalf("adding %s: %v", name, err)
	}
	return id
}

// addDir attaches a directory, failing the test on error.
func addDir(t *testing.T, b *container.Builder, parent uint64, name string) uint64 {
	t.Helper()
	id, err := b.AddDirectory(parent, name)
	if err != nil {
		t.Fatalf("adding %s: %v", name, err)
	}
	return id
}
