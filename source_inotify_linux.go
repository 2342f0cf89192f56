//go:build linux

// source_inotify_linux.go: raw inotify ChangeSource
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package inflow

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/agilira/go-errors"
	"golang.org/x/sys/unix"
)

// Events on the parent directory that may mean new content in the target
const inotifyMask = unix.IN_MODIFY | unix.IN_CLOSE_WRITE | unix.IN_CREATE | unix.IN_MOVED_TO

// inotifySource reads a non-blocking inotify descriptor through os.File so
// that Close unblocks a pending Read.
type inotifySource struct {
	path      string
	name      string
	events    *os.File
	closeOnce sync.Once
	closeErr  error
}

func newInotifySource(path string) (ChangeSource, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeNativeUnavailable, "unable to open an inotify descriptor").
			WithContext("path", path)
	}

	dir := filepath.Dir(path)
	if _, err := unix.InotifyAddWatch(fd, dir, inotifyMask); err != nil {
		_ = unix.Close(fd)
		return nil, errors.Wrap(err, ErrCodeNativeUnavailable, "unable to add inotify watch").
			WithContext("path", path).
			WithContext("dir", dir)
	}

	return &inotifySource{
		path:   path,
		name:   filepath.Base(path),
		events: os.NewFile(uintptr(fd), "inotify"),
	}, nil
}

func (s *inotifySource) Kind() SourceKind { return SourceInotify }

func (s *inotifySource) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.events.Close()
	})
	return s.closeErr
}

func (s *inotifySource) Run(ctx context.Context, emit func(ChangeEvent)) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	buf := make([]byte, 64*(unix.SizeofInotifyEvent+unix.NAME_MAX+1))
	for {
		n, err := s.events.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, ErrCodeNativeUnavailable, "inotify read failed").
				WithContext("path", s.path)
		}

		changed, alive := s.scan(buf[:n])
		if changed {
			emit(ChangeEvent{Path: s.path, Time: time.Now(), Source: SourceInotify})
		}
		if !alive {
			return errors.New(ErrCodeNativeUnavailable, "inotify watch removed").
				WithContext("path", s.path)
		}
	}
}

// scan walks one read worth of events. A batch touching the target several
// times is reported once.
func (s *inotifySource) scan(buf []byte) (changed, alive bool) {
	alive = true
	for offset := 0; offset+unix.SizeofInotifyEvent <= len(buf); {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset])) // #nosec G103 -- kernel event layout
		end := offset + unix.SizeofInotifyEvent + int(raw.Len)
		if end > len(buf) {
			break
		}
		name := strings.TrimRight(string(buf[offset+unix.SizeofInotifyEvent:end]), "\x00")

		switch {
		case raw.Mask&unix.IN_Q_OVERFLOW != 0:
			changed = true
		case raw.Mask&unix.IN_IGNORED != 0:
			alive = false
		case raw.Mask&inotifyMask != 0 && name == s.name:
			changed = true
		}
		offset = end
	}
	return changed, alive
}
