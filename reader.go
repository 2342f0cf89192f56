// reader.go: typed reads from a watched input file
//
// Four read modes share one Reader:
//   - TryRead: immediate, debounced, never blocks
//   - ReadWithTimeout: bounded wait driven by a private watcher
//   - Read: blocks until a value appears, the context ends or the reader closes
//   - ReadAsync / ReadAsyncFunc: Read on a managed goroutine (see task.go)
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package inflow

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// fileSystem is the file access a Reader needs
type fileSystem interface {
	Stat(name string) (os.FileInfo, error)
	Open(name string) (io.ReadCloser, error)
}

type osFileSystem struct{}

func (osFileSystem) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }

// #nosec G304 -- reading the configured input file is the purpose of this package
func (osFileSystem) Open(name string) (io.ReadCloser, error) { return os.Open(name) }

// debounceEntry remembers the last real read of the input file.
// It only advances when the file is actually opened.
type debounceEntry struct {
	modTime   int64
	checkedAt int64
	exists    bool
}

// Reader reads typed values from one input file.
//
// TryRead and ReadWithTimeout use the Reader's debounce entry and must be
// called from one goroutine at a time. Read and the async reads work on a
// snapshot of the Reader and may run concurrently with anything.
type Reader struct {
	config      *Config
	fs          fileSystem
	clock       func() int64
	auditLogger *AuditLogger
	ownsAudit   bool
	notices     *noticeWriter

	mu   sync.Mutex // guards path
	path string

	eventDriven atomic.Bool

	// single owner: the goroutine calling TryRead / ReadWithTimeout
	cache debounceEntry

	ctx       context.Context
	cancel    context.CancelFunc
	tasks     sync.WaitGroup
	pending   atomic.Int64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewReader creates a Reader for config.InputPath (default in.txt)
func NewReader(config Config) *Reader {
	cfg := config.WithDefaults()

	auditLogger, err := NewAuditLogger(cfg.Audit)
	if err != nil {
		cfg.reportError(err, cfg.Audit.OutputFile)
		auditLogger, _ = NewAuditLogger(AuditConfig{Enabled: false})
	}

	r := newReader(cfg, auditLogger)
	r.ownsAudit = true
	return r
}

func newReader(cfg *Config, auditLogger *AuditLogger) *Reader {
	clock := cfg.clock
	if clock == nil {
		clock = timecache.CachedTimeNano
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Reader{
		config:      cfg,
		fs:          osFileSystem{},
		clock:       clock,
		auditLogger: auditLogger,
		notices:     &noticeWriter{w: cfg.Notices, quiet: cfg.Quiet},
		path:        cfg.InputPath,
		ctx:         ctx,
		cancel:      cancel,
	}
	r.eventDriven.Store(!cfg.DisableEventDriven)
	return r
}

// SetPath switches the input file. The debounce entry is cleared.
func (r *Reader) SetPath(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if path != r.path {
		r.path = path
		r.cache = debounceEntry{}
	}
}

// Path returns the input file path as configured
func (r *Reader) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// SetEventDriven toggles native change notification for reads started afterwards
func (r *Reader) SetEventDriven(enabled bool) {
	r.eventDriven.Store(enabled)
}

// EventDriven reports whether new reads try native notification
func (r *Reader) EventDriven() bool {
	return r.eventDriven.Load()
}

// Reset clears the debounce entry
func (r *Reader) Reset() {
	r.mu.Lock()
	r.cache = debounceEntry{}
	r.mu.Unlock()
}

// Pending returns the number of async reads still running
func (r *Reader) Pending() int {
	return int(r.pending.Load())
}

// Wait joins every outstanding async read
func (r *Reader) Wait() {
	r.tasks.Wait()
}

// Close cancels outstanding async and blocking reads, joins them and
// releases the audit trail. Reads started after Close fail with
// ErrCodeReaderClosed.
func (r *Reader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		r.cancel()
		r.tasks.Wait()
		if r.ownsAudit {
			err = r.auditLogger.Close()
		}
	})
	return err
}

// TryRead returns the first value of type T in the input file without
// blocking. It returns false when the file is missing, holds no parsable
// value, or was read less than DebounceWindow ago and has not changed since.
func TryRead[T Scalar](r *Reader) (T, bool) {
	var zero T

	path := r.Path()
	now := r.clock()

	var modTime int64
	info, statErr := r.fs.Stat(path)
	if statErr == nil {
		modTime = info.ModTime().UnixNano()
		if r.cache.exists &&
			now-r.cache.checkedAt < int64(r.config.DebounceWindow) &&
			modTime == r.cache.modTime {
			return zero, false
		}
	}

	value, ok, err := readValue[T](r.fs, path)
	if err != nil {
		r.cache = debounceEntry{checkedAt: now}
		return zero, false
	}

	r.cache = debounceEntry{modTime: modTime, checkedAt: now, exists: statErr == nil}
	if ok {
		r.auditLogger.LogRead(path, value, "try")
	}
	return value, ok
}

// ReadWithTimeout waits up to timeout for a value of type T. The input file
// is created with a placeholder when missing. A timeout <= 0 makes a single
// immediate attempt.
func ReadWithTimeout[T Scalar](r *Reader, timeout time.Duration) (T, bool) {
	var zero T
	if r.closed.Load() {
		return zero, false
	}

	s := r.snapshot()
	if err := s.ensureInput(); err != nil {
		s.config.reportError(err, s.path)
	}

	if timeout <= 0 {
		return TryRead[T](r)
	}
	deadline := time.Now().Add(timeout)

	watcher := s.newWatcher()
	if err := watcher.Start(s.path, nil); err != nil {
		s.config.reportError(err, s.path)
	}
	defer func() { _ = watcher.Stop() }()

	s.notices.printf("[Waiting for input in %s (timeout: %dms)...]\n", s.path, timeout.Milliseconds())

	if value, ok := TryRead[T](r); ok {
		s.notices.printf("[Read value: %v]\n", value)
		return value, true
	}

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			s.notices.printf("[Timeout reached]\n")
			s.auditLogger.LogTimeout(s.path, timeout)
			return zero, false
		}

		wait := min(remaining, s.config.RecheckInterval)
		if watcher.IsRunning() {
			if watcher.WaitForChange(wait) {
				s.notices.printf("[File updated, re-checking...]\n")
			}
		} else {
			time.Sleep(wait)
		}

		if r.closed.Load() {
			return zero, false
		}
		if value, ok := TryRead[T](r); ok {
			s.notices.printf("[Read value: %v]\n", value)
			return value, true
		}
	}
}

// Read blocks until the input file holds a value of type T. It fails with
// ErrCodeCanceled when ctx ends and ErrCodeReaderClosed when the Reader is
// closed. The input file is created with a placeholder when missing.
func Read[T Scalar](ctx context.Context, r *Reader) (T, error) {
	var zero T
	if r.closed.Load() {
		return zero, errors.New(ErrCodeReaderClosed, "reader is closed")
	}
	return readUntilFound[T](ctx, r.ctx, r.snapshot(), "blocking")
}

// readSnapshot is what a blocking or async read needs from its Reader,
// copied at call time so the read never touches the Reader's debounce entry.
type readSnapshot struct {
	path        string
	config      *Config
	eventDriven bool
	fs          fileSystem
	auditLogger *AuditLogger
	notices     *noticeWriter
}

func (r *Reader) snapshot() readSnapshot {
	return readSnapshot{
		path:        r.Path(),
		config:      r.config,
		eventDriven: r.EventDriven(),
		fs:          r.fs,
		auditLogger: r.auditLogger,
		notices:     r.notices,
	}
}

// newWatcher builds a watcher that shares the reader's audit trail
func (s readSnapshot) newWatcher() *Watcher {
	cfg := *s.config
	if !s.eventDriven {
		cfg.DisableEventDriven = true
	}
	return newWatcher(&cfg, s.auditLogger)
}

// ensureInput creates a missing input file holding only the placeholder
func (s readSnapshot) ensureInput() error {
	created, err := CreateInput(s.path, s.config.Placeholder)
	if created {
		s.auditLogger.LogFileWatch("input_created", s.path)
	}
	return err
}

// CreateInput creates path holding only the placeholder line. An existing
// file is left untouched and reported as not created.
func CreateInput(path, placeholder string) (bool, error) {
	// #nosec G302 G304 -- user editable input file at a configured path
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, ErrCodeInputCreate, "cannot create input file").
			WithContext("path", path)
	}
	defer file.Close()

	if _, err := fmt.Fprintln(file, placeholder); err != nil {
		return true, errors.Wrap(err, ErrCodeInputCreate, "cannot write input placeholder").
			WithContext("path", path)
	}
	return true, nil
}

// readUntilFound is the read-until-success protocol shared by Read and the
// async reads. The watcher is armed before the first read so that a write
// landing between the read and the wait is latched, not lost.
func readUntilFound[T Scalar](ctx, readerCtx context.Context, s readSnapshot, mode string) (T, error) {
	var zero T

	if err := s.ensureInput(); err != nil {
		return zero, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(readerCtx, cancel)
	defer stop()

	watcher := s.newWatcher()
	if err := watcher.Start(s.path, nil); err != nil {
		return zero, err
	}
	defer func() { _ = watcher.Stop() }()

	s.notices.printf("[Waiting for input in %s...]\n", s.path)

	for {
		if value, ok, _ := readValue[T](s.fs, s.path); ok {
			s.notices.printf("[Read value: %v]\n", value)
			s.auditLogger.LogRead(s.path, value, mode)
			return value, nil
		}

		changed := watcher.WaitContext(ctx)

		if readerCtx.Err() != nil {
			return zero, errors.New(ErrCodeReaderClosed, "reader closed while waiting for input").
				WithContext("path", s.path)
		}
		if ctx.Err() != nil {
			return zero, errors.Wrap(ctx.Err(), ErrCodeCanceled, "read canceled while waiting for input").
				WithContext("path", s.path)
		}
		if !changed && !watcher.IsRunning() {
			return zero, errors.New(ErrCodeWatcherSpawn, "watcher stopped while waiting for input").
				WithContext("path", s.path)
		}
		if changed {
			s.notices.printf("[File updated, re-checking...]\n")
		}
	}
}

// readValue opens path and returns its first value of type T
func readValue[T Scalar](fs fileSystem, path string) (T, bool, error) {
	var zero T

	file, err := fs.Open(path)
	if err != nil {
		return zero, false, err
	}
	defer file.Close()

	value, ok := ParseFirst[T](file)
	return value, ok, nil
}

// noticeWriter serialises advisory notices from concurrent reads
type noticeWriter struct {
	mu    sync.Mutex
	w     io.Writer
	quiet bool
}

func (n *noticeWriter) printf(format string, args ...any) {
	if n == nil || n.quiet || n.w == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	_, _ = fmt.Fprintf(n.w, format, args...)
}
