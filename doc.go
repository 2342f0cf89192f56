// Package inflow turns a plain text file into a live input channel.
//
// A program that needs a value from its user (a speed, a gain, a name)
// watches a file instead of prompting on a terminal. The user edits the
// file in any editor, saves, and the program picks up the first value it
// can parse. Output goes the other way through cached append-only handles.
//
// # Architecture Overview
//
// inflow consists of four cooperating parts:
//  1. **Change sources**: raw inotify on Linux, fsnotify elsewhere, and an
//     adaptive stat poller everywhere native notification is unavailable
//  2. **Watcher**: one goroutine per watched file that latches "something
//     changed" into a signal a reader can wait on without losing updates
//  3. **Reader**: typed reads in four modes (immediate, timed, blocking, async)
//  4. **Writer**: lazily opened append handles keyed by path
//
// # Reading Values
//
// The first line that parses as the requested type wins. Lines starting with
// "#" and blank lines are skipped, so the placeholder written into a fresh
// input file never satisfies a read.
//
//	reader := inflow.NewReader(inflow.Config{InputPath: "in.txt"})
//	defer reader.Close()
//
//	// per frame, never blocks, re-reads at most every DebounceWindow
//	if speed, ok := inflow.TryRead[float64](reader); ok {
//		sim.SetSpeed(speed)
//	}
//
//	// wait up to two seconds
//	steps, ok := inflow.ReadWithTimeout[int](reader, 2*time.Second)
//
//	// block until the user saves a value or ctx ends
//	name, err := inflow.Read[string](ctx, reader)
//
// Async reads run the blocking protocol on a managed goroutine:
//
//	task := inflow.ReadAsync[int](reader)
//	// ... keep working ...
//	n, err := task.Wait()
//
// Closing the Reader cancels and joins every outstanding task.
//
// # Watching Files
//
// A Watcher can be used on its own when the caller only needs to know that
// a file changed:
//
//	watcher := inflow.NewWatcher(inflow.Config{})
//	defer watcher.Close()
//
//	if err := watcher.Start("in.txt", nil); err != nil {
//		return err
//	}
//	for watcher.Wait() {
//		reload()
//	}
//
// Native notification is tried first. When it cannot be armed, or breaks at
// runtime, the watcher silently degrades to polling: 50ms initially, 10ms
// right after a change, doubling after 10 quiet polls up to 500ms. Set
// Config.DisableEventDriven to force polling.
//
// # Writing Output
//
//	session := inflow.Default()
//	session.Output.Log("step", 42, "done")          // appends to log.txt
//	session.Output.Write("trace.txt", "x=", 1.5, "\n")
//
// The writer is silent by default: a file that cannot be opened is reported
// through the error handler and the write is discarded.
//
// # Configuration
//
// Config can be built in code, loaded from YAML or TOML with LoadConfigFile,
// overlaid with INFLOW_* environment variables by ApplyEnv, and finally
// overridden by command-line flags through ConfigFromArgs. LoadConfig applies
// all three in that order.
//
// # Audit Trail
//
// When Config.Audit.Enabled is set, watch starts, backend fallbacks, reads
// and timeouts are recorded in a SQLite database (or a .jsonl file) for later
// inspection with "inflow audit stats".
//
// Repository: https://github.com/agilira/inflow
package inflow
