// source_fsnotify.go: fsnotify backed ChangeSource
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package inflow

import (
	"context"
	goerrors "errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/agilira/go-errors"
	"github.com/fsnotify/fsnotify"
)

// fsnotifySource watches the parent directory so that a file which does not
// exist yet is picked up on create or rename-in.
type fsnotifySource struct {
	path      string
	watcher   *fsnotify.Watcher
	closeOnce sync.Once
	closeErr  error
}

func newFsnotifySource(path string) (ChangeSource, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeNativeUnavailable, "fsnotify unavailable").
			WithContext("path", path)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, errors.Wrap(err, ErrCodeNativeUnavailable, "cannot watch parent directory").
			WithContext("path", path).
			WithContext("dir", dir)
	}

	return &fsnotifySource{path: path, watcher: watcher}, nil
}

func (s *fsnotifySource) Kind() SourceKind { return SourceFsnotify }

func (s *fsnotifySource) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.watcher.Close()
	})
	return s.closeErr
}

const fsnotifyInteresting = fsnotify.Write | fsnotify.Create

func (s *fsnotifySource) Run(ctx context.Context, emit func(ChangeEvent)) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-s.watcher.Events:
			if !ok {
				return s.closedErr(ctx)
			}
			if event.Op&fsnotifyInteresting == 0 || !matchesTarget(event.Name, s.path) {
				continue
			}
			emit(ChangeEvent{Path: s.path, Time: time.Now(), Source: SourceFsnotify})

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return s.closedErr(ctx)
			}
			// Lost events may have touched the target
			if goerrors.Is(err, fsnotify.ErrEventOverflow) {
				emit(ChangeEvent{Path: s.path, Time: time.Now(), Source: SourceFsnotify})
				continue
			}
			return errors.Wrap(err, ErrCodeNativeUnavailable, "fsnotify watch failed").
				WithContext("path", s.path)
		}
	}
}

func (s *fsnotifySource) closedErr(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	return errors.New(ErrCodeNativeUnavailable, "fsnotify channels closed").
		WithContext("path", s.path)
}
