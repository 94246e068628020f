// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

package mountfs

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/evidencefs/evidencefs/lib/clock"
	"github.com/evidencefs/evidencefs/lib/container"
)

// State is the mount lifecycle state.
type State int32

const (
	// StateStarting is the window between Session creation and the
	// kernel mount completing.
	StateStarting State = iota

	// StateMounted is normal operation.
	StateMounted

	// StateUnmounting means Unmount has begun: new operations are
	// refused while in-flight ones drain.
	StateUnmounting

	// StateStopped means the kernel mount is gone and the container
	// is closed.
	StateStopped
)

// String returns the state's name for logging.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateMounted:
		return "mounted"
	case StateUnmounting:
		return "unmounting"
	case StateStopped:
		return "stopped"
	default:
		return "invalid"
	}
}

// Session is one mounted filesystem: the kernel server, the container
// it serves, and the lifecycle state gating operations.
//
// The state and in-flight count share one mutex. A WaitGroup cannot
// gate this: BeginOp would Add from a zero counter while the drain
// goroutine sits in Wait, which is documented WaitGroup misuse and can
// panic in a kernel handler racing the unmount.
type Session struct {
	server     *fuse.Server
	c          *container.Container
	dispatcher *Dispatcher
	clk        clock.Clock
	grace      time.Duration
	logger     *slog.Logger

	mu           sync.Mutex
	cond         *sync.Cond
	state        State
	inflight     int
	graceExpired bool

	unmountOnce sync.Once
	unmountErr  error
}

// newSession returns a session in the starting state.
func newSession(c *container.Container, dispatcher *Dispatcher, clk clock.Clock, grace time.Duration, logger *slog.Logger) *Session {
	s := &Session{
		c:          c,
		dispatcher: dispatcher,
		clk:        clk,
		grace:      grace,
		logger:     logger,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.cond.Broadcast()
	s.mu.Unlock()
}

// BeginOp registers an in-flight operation. It fails with
// ErrUnmounting once unmount has begun; on success the caller must
// call EndOp when the operation completes.
func (s *Session) BeginOp() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateMounted {
		return ErrUnmounting
	}
	s.inflight++
	return nil
}

// EndOp marks an operation begun with BeginOp as complete.
func (s *Session) EndOp() {
	s.mu.Lock()
	s.inflight--
	if s.inflight == 0 {
		s.cond.Broadcast()
	}
	s.mu.Unlock()
}

// Wait blocks until the kernel unmounts the filesystem, whether via
// Unmount or an external umount/fusermount.
func (s *Session) Wait() {
	s.server.Wait()
}

// Unmount takes the session down: new operations are refused,
// in-flight ones are drained for the grace period, the kernel mount
// is removed, and the container is closed. Idempotent; concurrent
// calls share one outcome.
func (s *Session) Unmount() error {
	s.unmountOnce.Do(func() { s.unmountErr = s.unmount() })
	return s.unmountErr
}

func (s *Session) unmount() error {
	s.setState(StateUnmounting)
	s.logger.Info("unmounting", "open_handles", s.dispatcher.OpenHandles())

	drained := s.drainOps()
	if !drained {
		s.logger.Warn("grace period expired with operations in flight",
			"grace", s.grace)
	}

	var err error
	if s.server != nil {
		err = s.server.Unmount()
	}
	s.setState(StateStopped)

	// Abandoned reads may still hold the container's segment files
	// and chunk key. Closing underneath them would race; the process
	// releases everything at exit anyway.
	if drained {
		if closeErr := s.c.Close(); err == nil {
			err = closeErr
		}
	} else {
		s.logger.Warn("container left open: abandoned operations still reference it")
	}
	if err != nil {
		return err
	}
	s.logger.Info("unmounted")
	return nil
}

// drainOps waits for in-flight operations to finish, bounded by the
// grace period. Reports whether the drain completed in time.
func (s *Session) drainOps() bool {
	timerDone := make(chan struct{})
	defer close(timerDone)
	go func() {
		select {
		case <-s.clk.After(s.grace):
			s.mu.Lock()
			s.graceExpired = true
			s.cond.Broadcast()
			s.mu.Unlock()
		case <-timerDone:
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.inflight > 0 && !s.graceExpired {
		s.cond.Wait()
	}
	return s.inflight == 0
}
