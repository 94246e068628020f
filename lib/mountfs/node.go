// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

package mountfs

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/evidencefs/evidencefs/lib/container"
)

// filesystem is the state shared by every node of one mount.
type filesystem struct {
	c          *container.Container
	resolver   *Resolver
	dispatcher *Dispatcher
	session    *Session
	logger     *slog.Logger

	uid, gid   uint32
	totalBytes uint64
}

// errno maps resolver, dispatcher, and container errors to FUSE
// errnos. Corruption and I/O failures surface as EIO and are logged;
// the mount stays up so the rest of the tree remains readable.
func (f *filesystem) errno(op string, ino uint64, err error) syscall.Errno {
	switch {
	case errors.Is(err, ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, ErrNotADirectory):
		return syscall.ENOTDIR
	case errors.Is(err, ErrNotReadable):
		return syscall.ENXIO
	case errors.Is(err, ErrStaleHandle):
		return syscall.EBADF
	case errors.Is(err, ErrUnmounting):
		return syscall.ENODEV
	case container.IsKind(err, container.KindNotFound):
		return syscall.ENOENT
	}
	f.logger.Error("filesystem operation failed", "op", op, "ino", ino, "error", err)
	return syscall.EIO
}

// objectNode exposes one container object through the kernel. The
// same type serves directories, files, symlinks, and device nodes;
// the kernel routes operations by the mode bits in StableAttr.
type objectNode struct {
	gofuse.Inode
	fsys *filesystem
	obj  *container.Object
	ino  uint64
}

var _ gofuse.InodeEmbedder = (*objectNode)(nil)
var _ gofuse.NodeLookuper = (*objectNode)(nil)
var _ gofuse.NodeReaddirer = (*objectNode)(nil)
var _ gofuse.NodeGetattrer = (*objectNode)(nil)
var _ gofuse.NodeOpener = (*objectNode)(nil)
var _ gofuse.NodeReader = (*objectNode)(nil)
var _ gofuse.NodeReleaser = (*objectNode)(nil)
var _ gofuse.NodeReadlinker = (*objectNode)(nil)
var _ gofuse.NodeGetxattrer = (*objectNode)(nil)
var _ gofuse.NodeListxattrer = (*objectNode)(nil)
var _ gofuse.NodeStatfser = (*objectNode)(nil)

func (n *objectNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	if err := n.fsys.session.BeginOp(); err != nil {
		return nil, syscall.ENODEV
	}
	defer n.fsys.session.EndOp()

	// Desktop environments probe for trash directories on every
	// mount. Decline quietly instead of logging a scary miss.
	if strings.HasPrefix(name, ".Trash") {
		n.fsys.logger.Debug("declining trash directory probe", "name", name)
		return nil, syscall.ENOENT
	}

	entry, err := n.fsys.resolver.Lookup(n.ino, name)
	if err != nil {
		return nil, n.fsys.errno("lookup", n.ino, err)
	}

	child := n.NewPersistentInode(ctx, &objectNode{
		fsys: n.fsys,
		obj:  entry.Object,
		ino:  entry.Ino,
	}, gofuse.StableAttr{
		Mode: typeBits(entry.Object),
		Ino:  entry.Ino,
	})
	n.fsys.fillAttr(entry.Object, entry.Ino, &out.Attr)
	return child, 0
}

func (n *objectNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	if err := n.fsys.session.BeginOp(); err != nil {
		return nil, syscall.ENODEV
	}
	defer n.fsys.session.EndOp()

	entries, err := n.fsys.resolver.List(n.ino)
	if err != nil {
		return nil, n.fsys.errno("readdir", n.ino, err)
	}
	dirEntries := make([]fuse.DirEntry, len(entries))
	for i, entry := range entries {
		dirEntries[i] = fuse.DirEntry{
			Name: entry.Name,
			Mode: typeBits(entry.Object),
			Ino:  entry.Ino,
		}
	}
	return &sliceDirStream{entries: dirEntries}, 0
}

func (n *objectNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	if err := n.fsys.session.BeginOp(); err != nil {
		return syscall.ENODEV
	}
	defer n.fsys.session.EndOp()

	n.fsys.fillAttr(n.obj, n.ino, &out.Attr)
	return 0
}

func (n *objectNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if err := n.fsys.session.BeginOp(); err != nil {
		return nil, 0, syscall.ENODEV
	}
	defer n.fsys.session.EndOp()

	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}
	if n.obj.IsDir() {
		return nil, 0, syscall.EISDIR
	}

	h, err := n.fsys.dispatcher.Open(n.obj)
	if err != nil {
		return nil, 0, n.fsys.errno("open", n.ino, err)
	}

	// Evidence is immutable, so the kernel page cache never goes
	// stale.
	return h, fuse.FOPEN_KEEP_CACHE, 0
}

func (n *objectNode) Read(ctx context.Context, f gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if err := n.fsys.session.BeginOp(); err != nil {
		return nil, syscall.ENODEV
	}
	defer n.fsys.session.EndOp()

	h, ok := f.(*Handle)
	if !ok {
		return nil, syscall.EBADF
	}
	read, err := n.fsys.dispatcher.Read(h, dest, uint64(off))
	if err != nil {
		return nil, n.fsys.errno("read", n.ino, err)
	}
	return fuse.ReadResultData(dest[:read]), 0
}

func (n *objectNode) Release(ctx context.Context, f gofuse.FileHandle) syscall.Errno {
	if h, ok := f.(*Handle); ok {
		n.fsys.dispatcher.Release(h)
	}
	return 0
}

func (n *objectNode) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	if err := n.fsys.session.BeginOp(); err != nil {
		return nil, syscall.ENODEV
	}
	defer n.fsys.session.EndOp()

	if n.obj.Kind != container.KindSymlink {
		return nil, syscall.EINVAL
	}
	return []byte(n.obj.LinkTarget), 0
}

func (n *objectNode) Getxattr(ctx context.Context, attr string, dest []byte) (uint32, syscall.Errno) {
	return 0, syscall.ENODATA
}

func (n *objectNode) Listxattr(ctx context.Context, dest []byte) (uint32, syscall.Errno) {
	return 0, 0
}

func (n *objectNode) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	blockSize := uint64(n.fsys.c.ChunkSize())
	out.Blocks = (n.fsys.totalBytes + blockSize - 1) / blockSize
	out.Bfree = 0
	out.Bavail = 0
	out.Files = uint64(n.fsys.c.ObjectCount())
	out.Ffree = 0
	out.Bsize = uint32(blockSize)
	out.Frsize = uint32(blockSize)
	out.NameLen = 255
	return 0
}

// typeBits returns the file-type bits for an object, used in
// StableAttr and directory entries.
func typeBits(obj *container.Object) uint32 {
	switch obj.Kind {
	case container.KindDirectory:
		return syscall.S_IFDIR
	case container.KindSymlink:
		return syscall.S_IFLNK
	case container.KindSpecial:
		switch obj.Special {
		case container.SpecialFifo:
			return syscall.S_IFIFO
		case container.SpecialChar:
			return syscall.S_IFCHR
		case container.SpecialBlock:
			return syscall.S_IFBLK
		}
	}
	return syscall.S_IFREG
}

// fillAttr populates kernel attributes for an object. Directories
// are world-traversable and files world-readable; everything else is
// masked off because the mount is read-only. Objects without their
// own timestamps inherit the acquisition end time.
func (f *filesystem) fillAttr(obj *container.Object, ino uint64, attr *fuse.Attr) {
	attr.Ino = ino
	switch obj.Kind {
	case container.KindDirectory:
		attr.Mode = syscall.S_IFDIR | 0o555
	case container.KindSymlink:
		attr.Mode = syscall.S_IFLNK | 0o777
	default:
		attr.Mode = typeBits(obj) | 0o444
	}
	attr.Size = obj.Size
	attr.Blocks = (attr.Size + 511) / 512
	attr.Blksize = f.c.ChunkSize()
	attr.Nlink = 1
	attr.Rdev = obj.Rdev
	attr.Owner = fuse.Owner{Uid: f.uid, Gid: f.gid}

	fallback := f.c.Meta().AcquisitionEnd
	attr.Mtime = timestamp(obj.MTime, fallback)
	attr.Atime = timestamp(obj.ATime, fallback)
	attr.Ctime = timestamp(obj.CTime, fallback)
}

func timestamp(value, fallback int64) uint64 {
	if value <= 0 {
		value = fallback
	}
	if value <= 0 {
		return 0
	}
	return uint64(value)
}

// sliceDirStream implements fs.DirStream from a slice of entries.
type sliceDirStream struct {
	entries []fuse.DirEntry
	index   int
}

func (s *sliceDirStream) HasNext() bool {
	return s.index < len(s.entries)
}

func (s *sliceDirStream) Next() (fuse.DirEntry, syscall.Errno) {
	if s.index >= len(s.entries) {
		return fuse.DirEntry{}, syscall.EINVAL
	}
	entry := s.entries[s.index]
	s.index++
	return entry, 0
}

func (s *sliceDirStream) Close() {}
