// inflow: file-driven input with native change notification and adaptive polling
//
// Philosophy:
// - One watched file per watcher, "something changed" is the only event
// - Native OS notification where it works, adaptive polling everywhere else
// - Latched change signal: a change is never lost between two waits
// - Cheap immediate reads (10ms debounce) for tight per-frame loops
//
// Example Usage:
//   reader := inflow.NewReader(inflow.Config{InputPath: "in.txt"})
//   defer reader.Close()
//
//   if v, ok := inflow.TryRead[int](reader); ok {
//       speed = v
//   }
//
//   task := inflow.ReadAsync[float64](reader)
//   gain, err := task.Wait()
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package inflow

import (
	goerrors "errors"
	"time"

	"github.com/agilira/go-errors"
)

// Error codes for inflow operations
const (
	ErrCodeInvalidConfig     = "INFLOW_INVALID_CONFIG"
	ErrCodeWatcherSpawn      = "INFLOW_WATCHER_SPAWN"
	ErrCodeNativeUnavailable = "INFLOW_NATIVE_UNAVAILABLE"
	ErrCodeReaderClosed      = "INFLOW_READER_CLOSED"
	ErrCodeCanceled          = "INFLOW_CANCELED"
	ErrCodeInputCreate       = "INFLOW_INPUT_CREATE"
	ErrCodeOutputOpen        = "INFLOW_OUTPUT_OPEN"
	ErrCodeOutputWrite       = "INFLOW_OUTPUT_WRITE"
	ErrCodeConfigFile        = "INFLOW_CONFIG_FILE"
	ErrCodeInvalidBackend    = "INFLOW_INVALID_BACKEND"
	ErrCodeCallbackPanic     = "INFLOW_CALLBACK_PANIC"
	ErrCodeAudit             = "INFLOW_AUDIT"
)

// ChangeEvent reports that the watched file changed. It carries no diff.
type ChangeEvent struct {
	Path   string     // Absolute path of the watched file
	Time   time.Time  // Detection time
	Source SourceKind // Mechanism that detected the change
}

// ChangeCallback is called on the watcher goroutine for every detected change
type ChangeCallback func(event ChangeEvent)

// ErrorHandler is called for non-fatal problems (open failures in silent mode,
// native notification degradation, audit write failures).
// It receives the error and the file path where the error occurred.
type ErrorHandler func(err error, filepath string)

// SourceKind identifies a ChangeSource implementation
type SourceKind int

const (
	SourceNone SourceKind = iota
	SourcePoll
	SourceFsnotify
	SourceInotify
)

func (k SourceKind) String() string {
	switch k {
	case SourcePoll:
		return "poll"
	case SourceFsnotify:
		return "fsnotify"
	case SourceInotify:
		return "inotify"
	default:
		return "none"
	}
}

// Native reports whether the kind is an OS notification mechanism
func (k SourceKind) Native() bool {
	return k == SourceFsnotify || k == SourceInotify
}

// HasCode reports whether the first coded error in err's chain carries code
func HasCode(err error, code string) bool {
	var coder errors.ErrorCoder
	if !goerrors.As(err, &coder) {
		return false
	}
	return string(coder.ErrorCode()) == code
}
