// writer_test.go: Tests for output handles and console helpers
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package inflow

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return string(data)
}

func TestWriterLogAppendsToDefaultPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	w := NewWriter(Config{OutputPath: path})
	defer w.CloseAll()

	if err := w.Log("step ", 1); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := w.Logf("speed=%.1f", 2.5); err != nil {
		t.Fatalf("Logf: %v", err)
	}
	if err := w.Logf("done\n"); err != nil {
		t.Fatalf("Logf: %v", err)
	}

	want := "step 1\nspeed=2.5\ndone\n"
	if got := readFile(t, path); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestWriterWriteConcatenates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.txt")
	w := NewWriter(Config{})
	defer w.CloseAll()

	if err := w.Write(path, "x=", 1.5, " y=", 2, "\n"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Write(path, "next\n"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if got := readFile(t, path); got != "x=1.5 y=2\nnext\n" {
		t.Errorf("Unexpected content %q", got)
	}
}

func TestWriterAppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := os.WriteFile(path, []byte("old\n"), 0644); err != nil {
		t.Fatal(err)
	}

	w := NewWriter(Config{})
	defer w.CloseAll()
	if err := w.Write(path, "new\n"); err != nil {
		t.Fatal(err)
	}

	if got := readFile(t, path); got != "old\nnew\n" {
		t.Errorf("Expected append, got %q", got)
	}
}

func TestWriterCachesHandles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")

	w := NewWriter(Config{})
	for i := 0; i < 3; i++ {
		_ = w.Write(a, i)
		_ = w.Write(b, i)
	}

	handles := w.Handles()
	if len(handles) != 2 || handles[0] != a || handles[1] != b {
		t.Errorf("Expected sorted handles [%s %s], got %v", a, b, handles)
	}

	if err := w.Flush(""); err != nil {
		t.Errorf("Flush all: %v", err)
	}
	if err := w.Flush(a); err != nil {
		t.Errorf("Flush one: %v", err)
	}
	if err := w.Flush(filepath.Join(dir, "never-opened.txt")); err != nil {
		t.Errorf("Flush of an unknown path: %v", err)
	}

	if err := w.CloseAll(); err != nil {
		t.Fatalf("CloseAll: %v", err)
	}
	if len(w.Handles()) != 0 {
		t.Errorf("Expected no handles after CloseAll, got %v", w.Handles())
	}

	// still usable after CloseAll
	if err := w.Write(a, "x"); err != nil {
		t.Errorf("Write after CloseAll: %v", err)
	}
	_ = w.CloseAll()
	if got := readFile(t, a); got != "012x" {
		t.Errorf("Unexpected content %q", got)
	}
}

func TestWriterSilentModeDropsOpenFailures(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "missing", "out.txt")

	var reported []string
	w := NewWriter(Config{ErrorHandler: func(err error, path string) {
		if HasCode(err, ErrCodeOutputOpen) {
			reported = append(reported, path)
		}
	}})
	defer w.CloseAll()

	if !w.IsSilent() {
		t.Fatal("Expected silent mode by default")
	}
	if err := w.Write(bad, "lost"); err != nil {
		t.Errorf("Silent writer returned %v", err)
	}
	if len(reported) != 1 || reported[0] != bad {
		t.Errorf("Expected one warning for %s, got %v", bad, reported)
	}

	w.SetSilent(false)
	if err := w.Write(bad, "lost"); !HasCode(err, ErrCodeOutputOpen) {
		t.Errorf("Expected %s, got %v", ErrCodeOutputOpen, err)
	}
}

func TestWriterVerboseOutput(t *testing.T) {
	w := NewWriter(Config{VerboseOutput: true})
	if w.IsSilent() {
		t.Error("Expected VerboseOutput to disable silent mode")
	}
}

func TestWriterSetDefaultPath(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(Config{OutputPath: filepath.Join(dir, "first.txt")})
	defer w.CloseAll()

	second := filepath.Join(dir, "second.txt")
	w.SetDefaultPath(second)
	if w.DefaultPath() != second {
		t.Fatalf("Expected default path %s, got %s", second, w.DefaultPath())
	}
	if err := w.Log("hi"); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, second); got != "hi\n" {
		t.Errorf("Unexpected content %q", got)
	}
}

func TestConsoleSafeLinesDoNotInterleave(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(Config{})
	w.console = &out

	const goroutines, lines = 8, 50
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < lines; i++ {
				w.ConsoleSafe("worker ", g, " line ", i)
			}
		}(g)
	}
	wg.Wait()

	got := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	if len(got) != goroutines*lines {
		t.Fatalf("Expected %d lines, got %d", goroutines*lines, len(got))
	}
	for _, line := range got {
		var g, i int
		if _, err := fmt.Sscanf(line, "worker %d line %d", &g, &i); err != nil {
			t.Fatalf("Corrupted line %q", line)
		}
	}
}

func TestConsole(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(Config{})
	w.console = &out

	w.Console("a", 1, true)
	if out.String() != "a1true\n" {
		t.Errorf("Unexpected console output %q", out.String())
	}
}
