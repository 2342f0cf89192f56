// config.go: Configuration management for inflow
//
// Copyright (c) 2025 AGILira
// Series: AGILira System Libraries
// SPDX-License-Identifier: MPL-2.0

package inflow

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/agilira/go-errors"
)

// Backend selects which ChangeSource a watcher tries to arm
type Backend string

const (
	// BackendAuto tries inotify (Linux), then fsnotify, then polling
	BackendAuto Backend = "auto"
	// BackendInotify uses raw inotify; falls back to polling off Linux
	BackendInotify Backend = "inotify"
	// BackendFsnotify uses github.com/fsnotify/fsnotify
	BackendFsnotify Backend = "fsnotify"
	// BackendPoll forces the adaptive poller
	BackendPoll Backend = "poll"
)

// ParseBackend converts a user supplied backend name
func ParseBackend(name string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(name))) {
	case "", BackendAuto:
		return BackendAuto, nil
	case BackendInotify:
		return BackendInotify, nil
	case BackendFsnotify:
		return BackendFsnotify, nil
	case BackendPoll, "polling":
		return BackendPoll, nil
	}
	return "", errors.New(ErrCodeInvalidBackend, "unknown change notification backend").
		WithContext("backend", name)
}

// Default values
const (
	DefaultInputPath       = "in.txt"
	DefaultOutputPath      = "log.txt"
	DefaultPlaceholder     = "# Enter input values here (one per line)"
	DefaultDebounceWindow  = 10 * time.Millisecond
	DefaultRecheckInterval = 100 * time.Millisecond
	DefaultPollInitial     = 50 * time.Millisecond
	DefaultPollMin         = 10 * time.Millisecond
	DefaultPollMax         = 500 * time.Millisecond
	DefaultPollIdleLimit   = 10
)

// Config configures watchers, readers and writers
type Config struct {
	// InputPath is the file values are read from
	// Default: in.txt
	InputPath string

	// OutputPath is the default file for Writer.Log
	// Default: log.txt
	OutputPath string

	// Backend selects the change notification mechanism
	// Default: BackendAuto
	Backend Backend

	// DisableEventDriven forces polling even where native notification exists.
	// Useful on sandboxed or network filesystems.
	DisableEventDriven bool

	// DebounceWindow is how long TryRead trusts an unchanged modification time
	// Default: 10ms
	DebounceWindow time.Duration

	// RecheckInterval bounds a single wait inside ReadWithTimeout
	// Default: 100ms
	RecheckInterval time.Duration

	// Adaptive polling schedule.
	// Defaults: 50ms initial, 10ms after a change, 500ms cap,
	// interval doubles after 10 idle polls.
	PollInitial   time.Duration
	PollMin       time.Duration
	PollMax       time.Duration
	PollIdleLimit int

	// Placeholder is written to a missing input file by blocking reads
	Placeholder string

	// Quiet suppresses the advisory "[Waiting for input ...]" notices
	Quiet bool

	// Notices receives advisory notices. Default: os.Stdout
	Notices io.Writer

	// VerboseOutput makes Writer return errors instead of warning and discarding
	// when a file cannot be opened (the writer is silent by default)
	VerboseOutput bool

	// ErrorHandler is called for non-fatal errors.
	// If nil, errors go to Logger when set, otherwise to stderr.
	ErrorHandler ErrorHandler

	// Logger receives operational diagnostics. Optional.
	Logger *slog.Logger

	// Audit configuration for the watch/read trail
	// Default: disabled
	Audit AuditConfig

	// clock overrides the debounce clock (unix nanoseconds). Tests only.
	clock func() int64
}

// WithDefaults applies sensible defaults to the configuration
func (c *Config) WithDefaults() *Config {
	config := *c

	if config.InputPath == "" {
		config.InputPath = DefaultInputPath
	}
	if config.OutputPath == "" {
		config.OutputPath = DefaultOutputPath
	}
	if config.Backend == "" {
		config.Backend = BackendAuto
	}
	if config.DebounceWindow <= 0 {
		config.DebounceWindow = DefaultDebounceWindow
	}
	if config.RecheckInterval <= 0 {
		config.RecheckInterval = DefaultRecheckInterval
	}

	if config.PollMin <= 0 {
		config.PollMin = DefaultPollMin
	}
	if config.PollInitial <= 0 {
		config.PollInitial = DefaultPollInitial
	}
	if config.PollMax <= 0 {
		config.PollMax = DefaultPollMax
	}
	// GUARD RAIL: keep min <= initial <= max
	if config.PollInitial < config.PollMin {
		config.PollInitial = config.PollMin
	}
	if config.PollMax < config.PollInitial {
		config.PollMax = config.PollInitial
	}
	if config.PollIdleLimit <= 0 {
		config.PollIdleLimit = DefaultPollIdleLimit
	}

	if config.Placeholder == "" {
		config.Placeholder = DefaultPlaceholder
	}
	if config.Notices == nil {
		config.Notices = os.Stdout
	}
	if config.Audit == (AuditConfig{}) {
		config.Audit = DefaultAuditConfig()
	}

	return &config
}

// Validate rejects configurations that cannot be honoured
func (c *Config) Validate() error {
	if _, err := ParseBackend(string(c.Backend)); err != nil {
		return err
	}
	if c.PollMin < 0 || c.PollInitial < 0 || c.PollMax < 0 {
		return errors.New(ErrCodeInvalidConfig, "poll intervals must not be negative").
			WithContext("poll_min", c.PollMin).
			WithContext("poll_initial", c.PollInitial).
			WithContext("poll_max", c.PollMax)
	}
	if c.PollMin > 0 && c.PollMax > 0 && c.PollMin > c.PollMax {
		return errors.New(ErrCodeInvalidConfig, "poll_min exceeds poll_max").
			WithContext("poll_min", c.PollMin).
			WithContext("poll_max", c.PollMax)
	}
	if c.DebounceWindow < 0 || c.RecheckInterval < 0 {
		return errors.New(ErrCodeInvalidConfig, "debounce window and recheck interval must not be negative")
	}
	return nil
}

// effectiveBackend resolves the backend against the event-driven toggle
func (c *Config) effectiveBackend() Backend {
	if c.DisableEventDriven {
		return BackendPoll
	}
	return c.Backend
}

// reportError routes a non-fatal error to the configured sinks
func (c *Config) reportError(err error, path string) {
	if c.ErrorHandler != nil {
		c.ErrorHandler(err, path)
		return
	}
	if c.Logger != nil {
		c.Logger.Warn("inflow", "path", path, "err", err)
		return
	}
	fmt.Fprintf(os.Stderr, "[inflow] warning: %s: %v\n", path, err)
}
