// watcher.go: single-file watcher with a latched change signal
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package inflow

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-errors"
)

// WorkerState is the lifecycle state of a Watcher's worker goroutine
type WorkerState int32

const (
	StateStopped WorkerState = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s WorkerState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// WatcherStats reports counters for monitoring and tests
type WatcherStats struct {
	Detected  int64      // Changes reported by the source
	Consumed  int64      // Signals taken by a wait
	Fallbacks int64      // Native mechanisms that failed and were replaced
	Kind      SourceKind // Current mechanism
	State     WorkerState
}

// Watcher watches one file and latches a "changed" signal.
//
// Many changes between two waits coalesce into one signal; a change that
// happens while nobody waits is kept for the next wait. Start and Stop are
// serialised, so at most one worker is alive per Watcher.
type Watcher struct {
	config      *Config
	auditLogger *AuditLogger
	ownsAudit   bool

	// lifecycleMu serialises Start and Stop
	lifecycleMu sync.Mutex

	// signal is the latch: capacity one, send-if-empty, receive consumes
	signal chan struct{}

	mu      sync.Mutex // guards the fields below
	path    string
	cancel  context.CancelFunc
	source  ChangeSource
	stopped chan struct{} // closed while no worker runs
	done    chan struct{} // closed when the worker returns

	state     atomic.Int32
	kind      atomic.Int32
	detected  atomic.Int64
	consumed  atomic.Int64
	fallbacks atomic.Int64
}

// NewWatcher creates an idle watcher. It never fails.
func NewWatcher(config Config) *Watcher {
	cfg := config.WithDefaults()

	auditLogger, err := NewAuditLogger(cfg.Audit)
	if err != nil {
		// Fallback to disabled audit if setup fails
		cfg.reportError(err, cfg.Audit.OutputFile)
		auditLogger, _ = NewAuditLogger(AuditConfig{Enabled: false})
	}

	w := newWatcher(cfg, auditLogger)
	w.ownsAudit = true
	return w
}

func newWatcher(cfg *Config, auditLogger *AuditLogger) *Watcher {
	stopped := make(chan struct{})
	close(stopped)

	return &Watcher{
		config:      cfg,
		auditLogger: auditLogger,
		signal:      make(chan struct{}, 1),
		stopped:     stopped,
	}
}

// Start arms a change source for path and launches the worker. A running
// watcher is stopped first. Native notification failures degrade to polling
// and are not errors; only an unusable path is.
func (w *Watcher) Start(path string, onChange ChangeCallback) error {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	w.stopLocked()

	if path == "" {
		return errors.New(ErrCodeWatcherSpawn, "cannot watch an empty path")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, ErrCodeWatcherSpawn, "invalid file path").
			WithContext("path", path)
	}

	w.state.Store(int32(StateStarting))
	w.drain()

	source := newChangeSource(absPath, w.config, func(kind SourceKind, err error) {
		w.degrade(kind, absPath, err)
	})
	w.kind.Store(int32(source.Kind()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	w.mu.Lock()
	w.path = absPath
	w.cancel = cancel
	w.source = source
	w.stopped = make(chan struct{})
	w.done = done
	w.mu.Unlock()

	go w.run(ctx, source, absPath, onChange, done)

	w.state.Store(int32(StateRunning))
	w.auditLogger.LogFileWatch("watch_start", absPath)
	w.debug("watch started", absPath, "source", source.Kind().String())
	return nil
}

// Stop ends the worker, releases native handles and waits for the worker
// to return. Calling Stop on a stopped watcher does nothing.
func (w *Watcher) Stop() error {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	w.stopLocked()
	return nil
}

// Close stops the watcher and releases its audit logger
func (w *Watcher) Close() error {
	if err := w.Stop(); err != nil {
		return err
	}
	if w.ownsAudit {
		return w.auditLogger.Close()
	}
	return nil
}

func (w *Watcher) stopLocked() {
	w.mu.Lock()
	cancel, source, stopped, done, path := w.cancel, w.source, w.stopped, w.done, w.path
	w.cancel = nil
	w.source = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}

	w.state.Store(int32(StateStopping))
	cancel()
	close(stopped)
	_ = source.Close()
	<-done

	w.kind.Store(int32(SourceNone))
	w.state.Store(int32(StateStopped))
	w.auditLogger.LogFileWatch("watch_stop", path)
}

// run drives the source and degrades to polling if a native source breaks
func (w *Watcher) run(ctx context.Context, source ChangeSource, path string, onChange ChangeCallback, done chan struct{}) {
	defer close(done)

	emit := func(event ChangeEvent) {
		w.detected.Add(1)
		w.latch()
		w.auditLogger.LogFileWatch("change_detected", path)
		if onChange != nil {
			w.dispatch(onChange, event)
		}
	}

	for {
		err := source.Run(ctx, emit)
		_ = source.Close()
		if err == nil || ctx.Err() != nil {
			return
		}

		w.degrade(source.Kind(), path, err)
		poller := newPollSource(path, newPollSchedule(w.config))
		w.mu.Lock()
		w.source = poller
		w.mu.Unlock()
		w.kind.Store(int32(SourcePoll))
		source = poller

		// Changes during the failure window are unknown: force one re-check
		emit(ChangeEvent{Path: path, Time: time.Now(), Source: SourcePoll})
	}
}

// dispatch runs the user callback, keeping a panic from killing the worker
func (w *Watcher) dispatch(onChange ChangeCallback, event ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			w.auditLogger.LogFileWatch("callback_panic", event.Path)
			w.config.reportError(errors.New(ErrCodeCallbackPanic, fmt.Sprintf("change callback panicked: %v", r)), event.Path)
		}
	}()
	onChange(event)
}

// degrade records that a native mechanism could not serve path.
// It is a capability change, not an error for the caller.
func (w *Watcher) degrade(kind SourceKind, path string, err error) {
	w.fallbacks.Add(1)
	w.auditLogger.Log(AuditWarn, "native_fallback", path, nil, map[string]interface{}{
		"source": kind.String(),
		"reason": err.Error(),
	})
	w.debug("native notification unavailable, polling", path, "source", kind.String(), "err", err)
}

func (w *Watcher) latch() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *Watcher) drain() {
	select {
	case <-w.signal:
	default:
	}
}

func (w *Watcher) take() bool {
	select {
	case <-w.signal:
		w.consumed.Add(1)
		return true
	default:
		return false
	}
}

func (w *Watcher) stoppedCh() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

// WaitForChange consumes one pending change signal, waiting up to timeout.
// A timeout <= 0 only checks. It returns false on timeout (leaving nothing
// consumed) and when the watcher is stopped.
func (w *Watcher) WaitForChange(timeout time.Duration) bool {
	if w.take() {
		return true
	}
	if timeout <= 0 {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.signal:
		w.consumed.Add(1)
		return true
	case <-timer.C:
		return false
	case <-w.stoppedCh():
		return w.take()
	}
}

// Wait blocks until a change is signalled. It returns false when the
// watcher is not running or is stopped while waiting.
func (w *Watcher) Wait() bool {
	return w.WaitContext(context.Background())
}

// WaitContext is Wait that also returns false when ctx ends
func (w *Watcher) WaitContext(ctx context.Context) bool {
	if w.take() {
		return true
	}

	select {
	case <-w.signal:
		w.consumed.Add(1)
		return true
	case <-w.stoppedCh():
		return w.take()
	case <-ctx.Done():
		return false
	}
}

// IsRunning returns true while a worker is alive
func (w *Watcher) IsRunning() bool {
	return w.State() == StateRunning
}

// State returns the worker lifecycle state
func (w *Watcher) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Kind returns the mechanism currently serving the watcher
func (w *Watcher) Kind() SourceKind {
	return SourceKind(w.kind.Load())
}

// Native reports whether the running watcher uses OS notification
func (w *Watcher) Native() bool {
	return w.Kind().Native()
}

// Path returns the absolute watched path, empty before the first Start
func (w *Watcher) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path
}

// Stats returns the watcher counters
func (w *Watcher) Stats() WatcherStats {
	return WatcherStats{
		Detected:  w.detected.Load(),
		Consumed:  w.consumed.Load(),
		Fallbacks: w.fallbacks.Load(),
		Kind:      w.Kind(),
		State:     w.State(),
	}
}

func (w *Watcher) debug(msg, path string, args ...any) {
	if w.config.Logger == nil {
		return
	}
	w.config.Logger.Debug(msg, append([]any{"path", path}, args...)...)
}
