// Utility functions for the inflow CLI
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/inflow"
	"github.com/agilira/orpheus/pkg/orpheus"
)

type readMode int

const (
	readBlocking readMode = iota
	readTry
	readTimeout
	readAsync
)

// maxArgs bounds positional argument collection
const maxArgs = 256

// loadConfig layers an optional configuration file, the environment and
// command flags translated to the library's flag set
func (m *Manager) loadConfig(configFile string, flags ...string) (inflow.Config, error) {
	return inflow.LoadConfig("inflow", configFile, flags)
}

func (m *Manager) newReader(cfg inflow.Config) *inflow.Reader {
	reader := inflow.NewReader(cfg)
	m.auditLogger.LogFileWatch("cli_read", reader.Path())
	return reader
}

// readAs dispatches a read on the value type named by typeName
func readAs(ctx context.Context, r *inflow.Reader, typeName string, mode readMode, timeout time.Duration) (string, bool, error) {
	switch strings.ToLower(typeName) {
	case "int":
		return readTyped[int](ctx, r, mode, timeout)
	case "int64":
		return readTyped[int64](ctx, r, mode, timeout)
	case "float32":
		return readTyped[float32](ctx, r, mode, timeout)
	case "float64", "float":
		return readTyped[float64](ctx, r, mode, timeout)
	case "string", "", "auto":
		return readTyped[string](ctx, r, mode, timeout)
	}
	return "", false, errors.New(inflow.ErrCodeInvalidConfig, fmt.Sprintf("unsupported value type: %s", typeName))
}

func readTyped[T inflow.Scalar](ctx context.Context, r *inflow.Reader, mode readMode, timeout time.Duration) (string, bool, error) {
	switch mode {
	case readTry:
		value, ok := inflow.TryRead[T](r)
		return fmt.Sprint(value), ok, nil

	case readTimeout:
		value, ok := inflow.ReadWithTimeout[T](r, timeout)
		return fmt.Sprint(value), ok, nil

	case readAsync:
		task := inflow.ReadAsync[T](r)
		select {
		case <-task.Done():
		case <-ctx.Done():
			_ = r.Close()
		}
		value, err := task.Wait()
		if err != nil {
			return "", false, err
		}
		return fmt.Sprint(value), true, nil

	default:
		value, err := inflow.Read[T](ctx, r)
		if err != nil {
			return "", false, err
		}
		return fmt.Sprint(value), true, nil
	}
}

// parseDuration accepts Go durations ("250ms", "2s") and bare milliseconds
func parseDuration(value string) (time.Duration, error) {
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.New(inflow.ErrCodeInvalidConfig, fmt.Sprintf("invalid duration: %s", value))
	}
	return d, nil
}

// createInput is CreateInput with the CLI's error wording
func createInput(path, placeholder string) (bool, error) {
	created, err := inflow.CreateInput(path, placeholder)
	if err != nil {
		return false, errors.Wrap(err, inflow.ErrCodeInputCreate, "failed to create input file")
	}
	return created, nil
}

// collectArgs returns the positional arguments from index start onwards
func collectArgs(ctx *orpheus.Context, start int) []string {
	var args []string
	for i := start; i < maxArgs; i++ {
		arg := ctx.GetArg(i)
		if arg == "" {
			break
		}
		args = append(args, arg)
	}
	return args
}

func printConfig(w io.Writer, cfg *inflow.Config) {
	fmt.Fprintf(w, "\nEffective configuration:\n")
	fmt.Fprintf(w, "  Input:            %s\n", cfg.InputPath)
	fmt.Fprintf(w, "  Output:           %s\n", cfg.OutputPath)
	fmt.Fprintf(w, "  Debounce:         %v\n", cfg.DebounceWindow)
	fmt.Fprintf(w, "  Recheck interval: %v\n", cfg.RecheckInterval)
	fmt.Fprintf(w, "  Polling:          %v initial, %v after change, %v cap, doubles after %d idle polls\n",
		cfg.PollInitial, cfg.PollMin, cfg.PollMax, cfg.PollIdleLimit)
	fmt.Fprintf(w, "  Audit:            %v\n", cfg.Audit.Enabled)
}

func printAuditStats(w io.Writer, stats *inflow.AuditStats) {
	fmt.Fprintf(w, "Backend:  %s (%s)\n", stats.Backend, stats.Location)
	fmt.Fprintf(w, "Events:   %d\n", stats.TotalEvents)
	fmt.Fprintf(w, "Size:     %d bytes\n", stats.SizeBytes)
	if stats.TotalEvents == 0 {
		return
	}
	fmt.Fprintf(w, "Range:    %s .. %s\n",
		stats.OldestEvent.Format(time.RFC3339), stats.NewestEvent.Format(time.RFC3339))
	for _, line := range sortedCounts(stats.EventsByName) {
		fmt.Fprintf(w, "  %s\n", line)
	}
}

func sortedCounts(counts map[string]int64) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("%-18s %d", key, counts[key]))
	}
	return lines
}
