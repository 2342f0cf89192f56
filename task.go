// task.go: asynchronous reads on tomb-managed goroutines
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package inflow

import (
	"github.com/agilira/go-errors"
	"gopkg.in/tomb.v1"
)

// Task is the handle of one asynchronous read. Each task owns its own
// watcher. A task cannot be cancelled on its own; closing the Reader that
// started it ends it with ErrCodeReaderClosed.
type Task[T Scalar] struct {
	tomb   tomb.Tomb
	result chan T
	value  T
	path   string
}

// ReadAsync starts Read on a new goroutine and returns immediately
func ReadAsync[T Scalar](r *Reader) *Task[T] {
	return startTask[T](r, nil)
}

// ReadAsyncFunc is ReadAsync that also hands the value to fn, on the task
// goroutine, before the task completes.
func ReadAsyncFunc[T Scalar](r *Reader, fn func(T)) *Task[T] {
	return startTask(r, fn)
}

func startTask[T Scalar](r *Reader, fn func(T)) *Task[T] {
	snapshot := r.snapshot()
	t := &Task[T]{
		result: make(chan T, 1),
		path:   snapshot.path,
	}

	if r.closed.Load() {
		t.tomb.Kill(errors.New(ErrCodeReaderClosed, "reader is closed"))
		close(t.result)
		t.tomb.Done()
		return t
	}

	r.tasks.Add(1)
	r.pending.Add(1)

	go func() {
		defer r.tasks.Done()
		defer r.pending.Add(-1)
		defer t.tomb.Done()
		defer close(t.result)

		value, err := readUntilFound[T](r.ctx, r.ctx, snapshot, "async")
		if err != nil {
			t.tomb.Kill(err)
			return
		}

		t.value = value
		if fn != nil {
			fn(value)
		}
		t.result <- value
	}()

	return t
}

// Wait blocks until the task ends and returns its value or error
func (t *Task[T]) Wait() (T, error) {
	if err := t.tomb.Wait(); err != nil {
		var zero T
		return zero, err
	}
	return t.value, nil
}

// C delivers the value once, then is closed. A failed task closes C
// without sending.
func (t *Task[T]) C() <-chan T {
	return t.result
}

// Done is closed when the task has ended
func (t *Task[T]) Done() <-chan struct{} {
	return t.tomb.Dead()
}

// Err returns nil while the task runs or after it succeeded
func (t *Task[T]) Err() error {
	select {
	case <-t.tomb.Dead():
		return t.tomb.Err()
	default:
		return nil
	}
}

// Path is the input file the task reads
func (t *Task[T]) Path() string {
	return t.path
}
