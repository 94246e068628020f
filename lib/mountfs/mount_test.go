// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

package mountfs

import (
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/evidencefs/evidencefs/lib/container"
)

// fuseAvailable checks whether /dev/fuse is accessible. Tests that
// need a real kernel mount call this and skip if the device is absent.
func fuseAvailable(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/fuse"); err != nil {
		t.Skip("skipping: /dev/fuse not available")
	}
}

// testMount builds a container, mounts it, and returns the
// mountpoint. The session is unmounted during cleanup.
func testMount(t *testing.T, build func(t *testing.T, b *container.Builder)) string {
	t.Helper()
	fuseAvailable(t)

	c := openTestContainer(t, container.BuilderOptions{}, build)
	mountpoint := filepath.Join(t.TempDir(), "mount")

	session, err := Mount(Options{
		Mountpoint: mountpoint,
		Container:  c,
		Logger:     testLogger(),
	})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	t.Cleanup(func() {
		if err := session.Unmount(); err != nil {
			t.Errorf("Unmount: %v", err)
		}
		if session.State() != StateStopped {
			t.Errorf("state after unmount: %s, want stopped", session.State())
		}
	})
	return mountpoint
}

func TestMountReadFiles(t *testing.T) {
	mountpoint := testMount(t, func(t *testing.T, b *container.Builder) {
		addFile(t, b, b.Root(), "a.txt", []byte("abcd"))
		dir := addDir(t, b, b.Root(), "dir")
		addFile(t, b, dir, "b.txt", nil)
	})

	content, err := os.ReadFile(filepath.Join(mountpoint, "a.txt"))
	if err != nil {
		t.Fatalf("reading a.txt: %v", err)
	}
	if string(content) != "abcd" {
		t.Errorf("a.txt content %q, want \"abcd\"", content)
	}

	// Reads past the end truncate; reads at the end return EOF.
	f, err := os.Open(filepath.Join(mountpoint, "a.txt"))
	if err != nil {
		t.Fatalf("opening a.txt: %v", err)
	}
	defer f.Close()
	dest := make([]byte, 10)
	n, err := f.ReadAt(dest, 2)
	if err != nil && err != io.EOF {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(dest[:n]) != "cd" {
		t.Errorf("ReadAt(2) = %q, want \"cd\"", dest[:n])
	}

	empty, err := os.ReadFile(filepath.Join(mountpoint, "dir", "b.txt"))
	if err != nil {
		t.Fatalf("reading dir/b.txt: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("b.txt has %d bytes, want empty", len(empty))
	}
}

func TestMountDirectoryListing(t *testing.T) {
	mountpoint := testMount(t, func(t *testing.T, b *container.Builder) {
		addFile(t, b, b.Root(), "z-file", []byte("z"))
		addDir(t, b, b.Root(), "a-dir")
	})

	entries, err := os.ReadDir(mountpoint)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	// Listing preserves container child order, not lexical order.
	if len(entries) != 2 || entries[0].Name() != "a-dir" && entries[0].Name() != "z-file" {
		t.Fatalf("unexpected listing: %v", entries)
	}
	names := map[string]bool{}
	for _, entry := range entries {
		names[entry.Name()] = true
	}
	if !names["z-file"] || !names["a-dir"] {
		t.Errorf("listing %v, want z-file and a-dir", names)
	}
}

func TestMountReadOnly(t *testing.T) {
	mountpoint := testMount(t, func(t *testing.T, b *container.Builder) {
		addFile(t, b, b.Root(), "a.txt", []byte("abcd"))
	})

	if _, err := os.OpenFile(filepath.Join(mountpoint, "a.txt"), os.O_WRONLY, 0); err == nil {
		t.Error("write open succeeded on a read-only mount")
	}
	if err := os.Mkdir(filepath.Join(mountpoint, "new"), 0o755); err == nil {
		t.Error("mkdir succeeded on a read-only mount")
	}
	if err := os.Remove(filepath.Join(mountpoint, "a.txt")); err == nil {
		t.Error("unlink succeeded on a read-only mount")
	}
}

func TestMountSymlinkAndHardlink(t *testing.T) {
	mountpoint := testMount(t, func(t *testing.T, b *container.Builder) {
		id := addFile(t, b, b.Root(), "target", []byte("linked"))
		if _, err := b.AddSymlink(b.Root(), "sym", "target"); err != nil {
			t.Fatalf("adding symlink: %v", err)
		}
		if _, err := b.AddHardlink(b.Root(), "hard", id); err != nil {
			t.Fatalf("adding hardlink: %v", err)
		}
	})

	dest, err := os.Readlink(filepath.Join(mountpoint, "sym"))
	if err != nil {
		t.Fatalf("readlink: %v", err)
	}
	if dest != "target" {
		t.Errorf("symlink target %q, want \"target\"", dest)
	}

	// Following the symlink reads the target's content.
	content, err := os.ReadFile(filepath.Join(mountpoint, "sym"))
	if err != nil {
		t.Fatalf("reading through symlink: %v", err)
	}
	if string(content) != "linked" {
		t.Errorf("symlink read %q, want \"linked\"", content)
	}

	// Hardlinks share the target's inode.
	targetInfo, err := os.Stat(filepath.Join(mountpoint, "target"))
	if err != nil {
		t.Fatalf("stat target: %v", err)
	}
	hardInfo, err := os.Stat(filepath.Join(mountpoint, "hard"))
	if err != nil {
		t.Fatalf("stat hard: %v", err)
	}
	targetStat := targetInfo.Sys().(*syscall.Stat_t)
	hardStat := hardInfo.Sys().(*syscall.Stat_t)
	if targetStat.Ino != hardStat.Ino {
		t.Errorf("hardlink inode %d, target inode %d", hardStat.Ino, targetStat.Ino)
	}

	hardContent, err := os.ReadFile(filepath.Join(mountpoint, "hard"))
	if err != nil {
		t.Fatalf("reading hardlink: %v", err)
	}
	if string(hardContent) != "linked" {
		t.Errorf("hardlink read %q, want \"linked\"", hardContent)
	}
}

func TestMountAttributes(t *testing.T) {
	mountpoint := testMount(t, func(t *testing.T, b *container.Builder) {
		id := addFile(t, b, b.Root(), "stamped", []byte("x"))
		if err := b.SetTimes(id, 1735689600, 0, 0, 0); err != nil {
			t.Fatalf("set times: %v", err)
		}
	})

	info, err := os.Stat(filepath.Join(mountpoint, "stamped"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o444 {
		t.Errorf("file mode %v, want r--r--r--", info.Mode().Perm())
	}
	if got := info.ModTime().Unix(); got != 1735689600 {
		t.Errorf("mtime %d, want 1735689600", got)
	}

	rootInfo, err := os.Stat(mountpoint)
	if err != nil {
		t.Fatalf("stat root: %v", err)
	}
	if rootInfo.Mode().Perm() != 0o555 {
		t.Errorf("root mode %v, want r-xr-xr-x", rootInfo.Mode().Perm())
	}
}
