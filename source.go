// source.go: ChangeSource capability interface and backend selection
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package inflow

import (
	"context"
	"path/filepath"
)

// ChangeSource detects changes of a single file until its context ends.
//
// Implementations:
//   - inotifySource: raw inotify on the parent directory (Linux)
//   - fsnotifySource: github.com/fsnotify/fsnotify on the parent directory
//   - pollSource: adaptive stat polling, always available
type ChangeSource interface {
	// Run blocks, calling emit for every detected change, until ctx is done.
	// A nil return means ctx ended; any other error means the mechanism broke
	// and the caller should degrade to polling.
	Run(ctx context.Context, emit func(ChangeEvent)) error

	// Kind identifies the mechanism
	Kind() SourceKind

	// Close releases OS resources. Safe to call more than once.
	Close() error
}

// HasNativeSupport reports whether this build has a native change
// notification mechanism. It is a platform constant.
func HasNativeSupport() bool {
	return nativeSupport
}

// newChangeSource arms the best mechanism allowed by cfg for path.
// Native failures are not errors: they are reported through fallback
// and the poller is returned instead.
func newChangeSource(path string, cfg *Config, fallback func(kind SourceKind, err error)) ChangeSource {
	type attempt struct {
		kind SourceKind
		open func(string) (ChangeSource, error)
	}
	var attempts []attempt

	inotify := attempt{SourceInotify, newInotifySource}
	fsnotify := attempt{SourceFsnotify, newFsnotifySource}

	switch cfg.effectiveBackend() {
	case BackendPoll:
	case BackendInotify:
		attempts = append(attempts, inotify)
	case BackendFsnotify:
		attempts = append(attempts, fsnotify)
	default:
		if nativeSupport {
			attempts = append(attempts, inotify, fsnotify)
		}
	}

	for _, a := range attempts {
		source, err := a.open(path)
		if err == nil {
			return source
		}
		if fallback != nil {
			fallback(a.kind, err)
		}
	}

	return newPollSource(path, newPollSchedule(cfg))
}

// matchesTarget reports whether a directory event name refers to target
func matchesTarget(eventName, target string) bool {
	if eventName == "" {
		return false
	}
	if filepath.IsAbs(eventName) {
		return filepath.Clean(eventName) == target
	}
	return eventName == filepath.Base(target)
}
