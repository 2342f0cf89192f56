// writer.go: append-only output files with cached handles
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package inflow

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/agilira/go-errors"
)

// Writer appends values to output files. Handles are opened once per path
// and kept until CloseAll; every write goes straight to the file.
//
// In silent mode (the default) a file that cannot be opened produces a
// warning through the ErrorHandler and the write is dropped. Otherwise the
// error is returned.
type Writer struct {
	config *Config

	mu          sync.Mutex
	handles     map[string]*os.File
	silent      bool
	defaultPath string

	console   io.Writer
	consoleMu sync.Mutex
}

// NewWriter creates a Writer whose Log calls go to config.OutputPath
func NewWriter(config Config) *Writer {
	return newWriter(config.WithDefaults())
}

func newWriter(cfg *Config) *Writer {
	return &Writer{
		config:      cfg,
		handles:     make(map[string]*os.File),
		silent:      !cfg.VerboseOutput,
		defaultPath: cfg.OutputPath,
		console:     os.Stdout,
	}
}

// Write appends the concatenation of args to path
func (w *Writer) Write(path string, args ...any) error {
	return w.write(path, joinArgs(args))
}

// Log appends args and a newline to the default output file
func (w *Writer) Log(args ...any) error {
	return w.Write(w.DefaultPath(), append(args, "\n")...)
}

// Logf appends a formatted line to the default output file
func (w *Writer) Logf(format string, args ...any) error {
	line := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	return w.write(w.DefaultPath(), line)
}

func (w *Writer) write(path, data string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	file, err := w.handleLocked(path)
	if err != nil {
		return w.fail(err, path)
	}
	if _, err := file.WriteString(data); err != nil {
		return w.fail(errors.Wrap(err, ErrCodeOutputWrite, "cannot write output file").
			WithContext("path", path), path)
	}
	return nil
}

// handleLocked returns the cached handle for path, opening it on first use
func (w *Writer) handleLocked(path string) (*os.File, error) {
	if file, ok := w.handles[path]; ok {
		return file, nil
	}

	// #nosec G302 G304 -- output path chosen by the caller
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeOutputOpen, "cannot open output file").
			WithContext("path", path)
	}
	w.handles[path] = file
	return file, nil
}

func (w *Writer) fail(err error, path string) error {
	if w.silent {
		w.config.reportError(err, path)
		return nil
	}
	return err
}

// Flush syncs path to disk, or every open file when path is empty
func (w *Writer) Flush(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if path != "" {
		file, ok := w.handles[path]
		if !ok {
			return nil
		}
		return file.Sync()
	}

	var firstErr error
	for _, file := range w.handles {
		if err := file.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CloseAll closes every cached handle. The Writer stays usable.
func (w *Writer) CloseAll() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	for path, file := range w.handles {
		if err := file.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, ErrCodeOutputWrite, "cannot close output file").
				WithContext("path", path)
		}
		delete(w.handles, path)
	}
	return firstErr
}

// Handles lists the paths with an open handle, sorted
func (w *Writer) Handles() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	paths := make([]string, 0, len(w.handles))
	for path := range w.handles {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// SetSilent switches between warn-and-drop and returning open errors
func (w *Writer) SetSilent(silent bool) {
	w.mu.Lock()
	w.silent = silent
	w.mu.Unlock()
}

// IsSilent reports whether open failures are dropped
func (w *Writer) IsSilent() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.silent
}

// SetDefaultPath changes the file used by Log and Logf
func (w *Writer) SetDefaultPath(path string) {
	w.mu.Lock()
	w.defaultPath = path
	w.mu.Unlock()
}

// DefaultPath returns the file used by Log and Logf
func (w *Writer) DefaultPath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.defaultPath
}

// Console prints args and a newline to stdout
func (w *Writer) Console(args ...any) {
	_, _ = fmt.Fprintln(w.console, joinArgs(args))
}

// ConsoleSafe is Console serialised across goroutines, so lines from
// concurrent callers never interleave.
func (w *Writer) ConsoleSafe(args ...any) {
	line := joinArgs(args)
	w.consoleMu.Lock()
	defer w.consoleMu.Unlock()
	_, _ = fmt.Fprintln(w.console, line)
}

func joinArgs(args []any) string {
	var b strings.Builder
	for _, arg := range args {
		fmt.Fprint(&b, arg)
	}
	return b.String()
}
