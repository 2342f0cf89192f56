// reader_test.go: Tests for immediate, timed and blocking reads
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package inflow

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingFS counts how often the input file is actually opened
type countingFS struct {
	osFileSystem
	opens atomic.Int32
}

func (c *countingFS) Open(name string) (io.ReadCloser, error) {
	c.opens.Add(1)
	return c.osFileSystem.Open(name)
}

// fakeClock is a manually advanced debounce clock
type fakeClock struct {
	now atomic.Int64
}

func (c *fakeClock) Now() int64 { return c.now.Load() }
func (c *fakeClock) Advance(d time.Duration) { c.now.Add(int64(d)) }

func newTestReader(t *testing.T, cfg Config) *Reader {
	t.Helper()
	if cfg.Notices == nil {
		cfg.Notices = io.Discard
	}
	r := NewReader(cfg)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestTryReadDebounce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	if err := os.WriteFile(path, []byte("5\n"), 0644); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}

	clock := &fakeClock{}
	clock.now.Store(time.Now().UnixNano())
	fs := &countingFS{}

	cfg := Config{InputPath: path, DebounceWindow: 10 * time.Millisecond, Notices: io.Discard}
	cfg.clock = clock.Now
	r := newTestReader(t, cfg)
	r.fs = fs
	r.clock = clock.Now

	if v, ok := TryRead[int](r); !ok || v != 5 {
		t.Fatalf("First read: expected 5, got %d (ok=%v)", v, ok)
	}
	if fs.opens.Load() != 1 {
		t.Fatalf("Expected 1 open, got %d", fs.opens.Load())
	}

	// inside the window with an unchanged file: no open, no value
	clock.Advance(5 * time.Millisecond)
	if v, ok := TryRead[int](r); ok {
		t.Errorf("Expected debounced miss, got %d", v)
	}
	if fs.opens.Load() != 1 {
		t.Errorf("Debounced read opened the file (%d opens)", fs.opens.Load())
	}

	// window elapsed: the file is read again
	clock.Advance(20 * time.Millisecond)
	if v, ok := TryRead[int](r); !ok || v != 5 {
		t.Errorf("Expected 5 after the window, got %d (ok=%v)", v, ok)
	}
	if fs.opens.Load() != 2 {
		t.Errorf("Expected 2 opens, got %d", fs.opens.Load())
	}

	// a new modification time bypasses the window
	if err := os.WriteFile(path, []byte("8\n"), 0644); err != nil {
		t.Fatalf("Failed to rewrite input: %v", err)
	}
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Failed to touch input: %v", err)
	}
	clock.Advance(time.Millisecond)
	if v, ok := TryRead[int](r); !ok || v != 8 {
		t.Errorf("Expected 8 after a change inside the window, got %d (ok=%v)", v, ok)
	}
	if fs.opens.Load() != 3 {
		t.Errorf("Expected 3 opens, got %d", fs.opens.Load())
	}
}

func TestTryReadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.txt")
	r := newTestReader(t, Config{InputPath: path})

	if v, ok := TryRead[int](r); ok {
		t.Errorf("Expected no value from a missing file, got %d", v)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("TryRead must not create the input file")
	}
}

func TestTryReadPlaceholderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	if _, err := CreateInput(path, DefaultPlaceholder); err != nil {
		t.Fatalf("CreateInput: %v", err)
	}
	r := newTestReader(t, Config{InputPath: path})

	if v, ok := TryRead[string](r); ok {
		t.Errorf("The placeholder must never be a value, got %q", v)
	}
}

func TestResetClearsDebounce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	if err := os.WriteFile(path, []byte("1\n"), 0644); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}

	clock := &fakeClock{}
	cfg := Config{InputPath: path, DebounceWindow: time.Hour}
	cfg.clock = clock.Now
	r := newTestReader(t, cfg)
	r.clock = clock.Now

	if _, ok := TryRead[int](r); !ok {
		t.Fatal("Expected the first read to succeed")
	}
	if _, ok := TryRead[int](r); ok {
		t.Fatal("Expected the second read to be debounced")
	}
	r.Reset()
	if v, ok := TryRead[int](r); !ok || v != 1 {
		t.Errorf("Expected a fresh read after Reset, got %d (ok=%v)", v, ok)
	}
}

func TestSetPathSwitchesInput(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	if err := os.WriteFile(a, []byte("1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	r := newTestReader(t, Config{InputPath: a, DebounceWindow: time.Hour})
	if v, _ := TryRead[int](r); v != 1 {
		t.Fatalf("Expected 1 from %s, got %d", a, v)
	}

	r.SetPath(b)
	if r.Path() != b {
		t.Errorf("Expected path %s, got %s", b, r.Path())
	}
	if v, ok := TryRead[int](r); !ok || v != 2 {
		t.Errorf("Expected 2 from %s, got %d (ok=%v)", b, v, ok)
	}
}

func TestReadWithTimeoutCreatesInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	r := newTestReader(t, Config{InputPath: path, Quiet: true})

	if _, ok := ReadWithTimeout[int](r, 30*time.Millisecond); ok {
		t.Fatal("Expected a timeout on a fresh input file")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected the input file to be created: %v", err)
	}
	if strings.TrimSpace(string(data)) != DefaultPlaceholder {
		t.Errorf("Expected only the placeholder, got %q", data)
	}
}

func TestReadWithTimeoutBoundary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	r := newTestReader(t, fastPollConfigFor(path))

	const timeout = 150 * time.Millisecond
	start := time.Now()
	_, ok := ReadWithTimeout[int](r, timeout)
	elapsed := time.Since(start)

	if ok {
		t.Fatal("Expected no value")
	}
	if elapsed < timeout {
		t.Errorf("Returned after %v, before the %v timeout", elapsed, timeout)
	}
	if elapsed > timeout+2*time.Second {
		t.Errorf("Returned after %v, far past the %v timeout", elapsed, timeout)
	}
}

func TestReadWithTimeoutZeroIsImmediate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	if err := os.WriteFile(path, []byte("# value\n12\n"), 0644); err != nil {
		t.Fatal(err)
	}
	r := newTestReader(t, Config{InputPath: path})

	start := time.Now()
	v, ok := ReadWithTimeout[int](r, 0)
	if !ok || v != 12 {
		t.Errorf("Expected 12, got %d (ok=%v)", v, ok)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Zero timeout waited %v", elapsed)
	}
}

func TestReadWithTimeoutSeesLateValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	var notices bytes.Buffer
	cfg := fastPollConfigFor(path)
	cfg.Quiet = false
	cfg.Notices = &lockedBuffer{buf: &notices}
	r := newTestReader(t, cfg)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(path, []byte("# answer\n42\n"), 0644)
	}()

	v, ok := ReadWithTimeout[int](r, 3*time.Second)
	if !ok || v != 42 {
		t.Fatalf("Expected 42, got %d (ok=%v)", v, ok)
	}

	out := notices.String()
	if !strings.Contains(out, "[Waiting for input in ") {
		t.Errorf("Expected a waiting notice, got %q", out)
	}
	if !strings.Contains(out, "[Read value: 42]") {
		t.Errorf("Expected a read notice, got %q", out)
	}
}

func TestReadBlocksUntilValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	r := newTestReader(t, fastPollConfigFor(path))

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(path, []byte("2.5\n"), 0644)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v, err := Read[float64](ctx, r)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if v != 2.5 {
		t.Errorf("Expected 2.5, got %v", v)
	}
}

func TestReadReturnsExistingValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	if err := os.WriteFile(path, []byte("ready\n"), 0644); err != nil {
		t.Fatal(err)
	}
	r := newTestReader(t, Config{InputPath: path, Quiet: true})

	v, err := Read[string](context.Background(), r)
	if err != nil || v != "ready" {
		t.Errorf("Expected %q, got %q (err=%v)", "ready", v, err)
	}
}

func TestReadCanceledByContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	r := newTestReader(t, fastPollConfigFor(path))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Read[int](ctx, r)
	if !HasCode(err, ErrCodeCanceled) {
		t.Errorf("Expected %s, got %v", ErrCodeCanceled, err)
	}
}

func TestReadEndsWhenReaderCloses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	r := NewReader(fastPollConfigFor(path))

	result := make(chan error, 1)
	go func() {
		_, err := Read[int](context.Background(), r)
		result <- err
	}()

	time.Sleep(50 * time.Millisecond)
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-result:
		if !HasCode(err, ErrCodeReaderClosed) {
			t.Errorf("Expected %s, got %v", ErrCodeReaderClosed, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not return after Close")
	}

	if _, err := Read[int](context.Background(), r); !HasCode(err, ErrCodeReaderClosed) {
		t.Errorf("Expected %s after Close, got %v", ErrCodeReaderClosed, err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Second Close: %v", err)
	}
}

func TestConcurrentBlockingReads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	r := newTestReader(t, fastPollConfigFor(path))

	const readers = 4
	var wg sync.WaitGroup
	values := make(chan int, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			v, err := Read[int](ctx, r)
			if err != nil {
				t.Errorf("Read: %v", err)
				return
			}
			values <- v
		}()
	}

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("7\n"), 0644); err != nil {
		t.Fatal(err)
	}
	wg.Wait()
	close(values)

	count := 0
	for v := range values {
		count++
		if v != 7 {
			t.Errorf("Expected 7, got %d", v)
		}
	}
	if count != readers {
		t.Errorf("Expected %d values, got %d", readers, count)
	}
}

func TestCreateInputKeepsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	if err := os.WriteFile(path, []byte("3\n"), 0644); err != nil {
		t.Fatal(err)
	}

	created, err := CreateInput(path, DefaultPlaceholder)
	if err != nil || created {
		t.Fatalf("Expected existing file untouched, created=%v err=%v", created, err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "3\n" {
		t.Errorf("Existing content changed to %q", data)
	}
}

func TestCreateInputFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "in.txt")
	if _, err := CreateInput(path, DefaultPlaceholder); !HasCode(err, ErrCodeInputCreate) {
		t.Errorf("Expected %s, got %v", ErrCodeInputCreate, err)
	}
}

func TestEventDrivenToggle(t *testing.T) {
	r := newTestReader(t, Config{})
	if !r.EventDriven() {
		t.Error("Expected event-driven reads by default")
	}
	r.SetEventDriven(false)
	if r.EventDriven() {
		t.Error("Expected event-driven reads to be disabled")
	}

	w := r.snapshot().newWatcher()
	if !w.config.DisableEventDriven {
		t.Error("Expected watchers of a polling reader to poll")
	}
}

// readSequence runs the same writes and reads against a reader and
// returns what each read saw
func readSequence(t *testing.T, eventDriven bool) []string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.txt")
	cfg := fastPollConfigFor(path)
	cfg.Backend = BackendAuto
	r := newTestReader(t, cfg)
	r.SetEventDriven(eventDriven)

	writeLater := func(content string) {
		go func() {
			time.Sleep(50 * time.Millisecond)
			_ = os.WriteFile(path, []byte(content), 0644)
		}()
	}

	var seen []string

	writeLater("# first\n7\n")
	v, ok := ReadWithTimeout[int](r, 3*time.Second)
	seen = append(seen, fmt.Sprintf("timeout:%d:%v", v, ok))

	if err := os.WriteFile(path, []byte("# waiting\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, ok = ReadWithTimeout[int](r, 100*time.Millisecond)
	seen = append(seen, fmt.Sprintf("empty:%v", ok))

	writeLater("12 extra\n# note\n")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n, err := Read[int](ctx, r)
	seen = append(seen, fmt.Sprintf("blocking:%d:%v", n, err))

	if err := os.WriteFile(path, []byte("# waiting\n"), 0644); err != nil {
		t.Fatal(err)
	}
	writeLater("2.5\n")
	f, err := ReadAsync[float64](r).Wait()
	seen = append(seen, fmt.Sprintf("async:%v:%v", f, err))

	return seen
}

func TestReadsAreEquivalentAcrossModes(t *testing.T) {
	want := []string{"timeout:7:true", "empty:false", "blocking:12:<nil>", "async:2.5:<nil>"}

	modes := []struct {
		name        string
		eventDriven bool
	}{
		{"event driven", true},
		{"polling", false},
	}

	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			got := readSequence(t, mode.eventDriven)
			if strings.Join(got, " ") != strings.Join(want, " ") {
				t.Errorf("Expected %v, got %v", want, got)
			}
		})
	}
}

// fastPollConfigFor is fastPollConfig reading path, without notices
func fastPollConfigFor(path string) Config {
	cfg := fastPollConfig()
	cfg.InputPath = path
	cfg.Quiet = true
	cfg.RecheckInterval = 20 * time.Millisecond
	return cfg
}

// lockedBuffer lets notices be written from one goroutine and read from another
type lockedBuffer struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}
