// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

package mountfs

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/evidencefs/evidencefs/lib/clock"
	"github.com/evidencefs/evidencefs/lib/container"
)

// DefaultGracePeriod bounds how long Unmount waits for in-flight
// operations before forcing the kernel unmount.
const DefaultGracePeriod = 5 * time.Second

// Options configures a mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	// Created if it does not exist.
	Mountpoint string

	// Container is the opened evidence container to serve. The
	// session owns it from Mount on and closes it during Unmount.
	Container *container.Container

	// GracePeriod bounds the in-flight drain during Unmount. Zero
	// uses DefaultGracePeriod.
	GracePeriod time.Duration

	// AllowOther permits other users (including root) to access the
	// mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Clock drives the unmount grace timer. If nil, the real clock
	// is used.
	Clock clock.Clock

	// Logger receives diagnostic messages. If nil, an error-level
	// logger on stderr is used.
	Logger *slog.Logger
}

// Mount mounts the container at the configured mountpoint and returns
// the running session. The caller must call Unmount on the session
// when done.
func Mount(options Options) (*Session, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.Container == nil {
		return nil, fmt.Errorf("container is required")
	}
	if options.GracePeriod == 0 {
		options.GracePeriod = DefaultGracePeriod
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	c := options.Container
	idx := NewIndex(c.Root().ID)
	fsys := &filesystem{
		c:          c,
		resolver:   NewResolver(c, idx),
		dispatcher: NewDispatcher(c),
		logger:     options.Logger,
		uid:        uint32(os.Getuid()),
		gid:        uint32(os.Getgid()),
		totalBytes: c.Meta().ChunkCount * uint64(c.ChunkSize()),
	}
	session := newSession(c, fsys.dispatcher, options.Clock, options.GracePeriod, options.Logger)
	fsys.session = session

	// The kernel may send operations the moment the mount syscall
	// completes, so the session is mounted before fs.Mount returns.
	session.setState(StateMounted)

	root := &objectNode{fsys: fsys, obj: c.Root(), ino: RootInode}

	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second
	negativeTimeout := 1 * time.Second

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "evidencefs",
			Name:       "evidencefs",
			AllowOther: options.AllowOther,
			Options:    []string{"ro"},
		},
	})
	if err != nil {
		session.setState(StateStopped)
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}
	session.server = server

	options.Logger.Info("evidence filesystem mounted",
		"mountpoint", options.Mountpoint,
		"objects", c.ObjectCount(),
		"case", c.Meta().CaseNumber,
	)
	return session, nil
}
