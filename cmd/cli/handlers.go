// Command handlers for the inflow CLI
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/inflow"
	"github.com/agilira/orpheus/pkg/orpheus"
)

// handleRead reads one typed value and prints it.
// Without --timeout or --try it blocks until a value appears or Ctrl+C.
func (m *Manager) handleRead(ctx *orpheus.Context) error {
	filePath := ctx.GetArg(0)
	if filePath == "" {
		return errors.New(inflow.ErrCodeInvalidConfig, "usage: inflow read <file> [--type=int]")
	}

	var flags []string
	if ctx.GetFlagBool("quiet") {
		flags = append(flags, "--quiet")
	}
	cfg, err := m.loadConfig(ctx.GetFlagString("config"), flags...)
	if err != nil {
		return err
	}
	cfg.InputPath = filePath
	cfg.Notices = m.out
	if ctx.GetFlagBool("poll") {
		cfg.DisableEventDriven = true
	}

	mode := readBlocking
	switch {
	case ctx.GetFlagBool("try"):
		mode = readTry
	case ctx.GetFlagString("timeout") != "":
		mode = readTimeout
	case ctx.GetFlagBool("async"):
		mode = readAsync
	}

	var timeout time.Duration
	if mode == readTimeout {
		timeout, err = parseDuration(ctx.GetFlagString("timeout"))
		if err != nil {
			return err
		}
	}

	reader := m.newReader(cfg)
	defer func() { _ = reader.Close() }()

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	value, found, err := readAs(runCtx, reader, ctx.GetFlagString("type"), mode, timeout)
	if err != nil {
		return err
	}
	if !found {
		return errors.New(inflow.ErrCodeInvalidConfig, "no value available").
			WithContext("path", filePath)
	}

	fmt.Fprintln(m.out, value)
	return nil
}

// handleInit creates the input file with its placeholder, leaving an
// existing file untouched.
func (m *Manager) handleInit(ctx *orpheus.Context) error {
	filePath := ctx.GetArg(0)
	if filePath == "" {
		return errors.New(inflow.ErrCodeInvalidConfig, "usage: inflow init <file>")
	}

	cfg, err := m.loadConfig(ctx.GetFlagString("config"))
	if err != nil {
		return err
	}

	created, err := createInput(filePath, cfg.WithDefaults().Placeholder)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(m.out, "Created %s\n", filePath)
	} else {
		fmt.Fprintf(m.out, "%s already exists\n", filePath)
	}
	return nil
}

// handleWatch prints a line per detected change until --count changes,
// --for elapses or Ctrl+C.
func (m *Manager) handleWatch(ctx *orpheus.Context) error {
	filePath := ctx.GetArg(0)
	if filePath == "" {
		return errors.New(inflow.ErrCodeInvalidConfig, "usage: inflow watch <file>")
	}

	var flags []string
	if name := ctx.GetFlagString("backend"); name != "" {
		flags = append(flags, "--backend", name)
	}
	cfg, err := m.loadConfig(ctx.GetFlagString("config"), flags...)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if limit := ctx.GetFlagString("for"); limit != "" {
		d, err := parseDuration(limit)
		if err != nil {
			return err
		}
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, d)
		defer cancel()
	}

	watcher := inflow.NewWatcher(cfg)
	defer func() { _ = watcher.Close() }()

	var seen atomic.Int64
	count := int64(ctx.GetFlagInt("count"))
	if err := watcher.Start(filePath, func(event inflow.ChangeEvent) {
		n := seen.Add(1)
		fmt.Fprintf(m.out, "[%s] %s changed (%s)\n", event.Time.Format("15:04:05.000"), event.Path, event.Source)
		if count > 0 && n >= count {
			stop()
		}
	}); err != nil {
		return err
	}
	m.auditLogger.LogFileWatch("cli_watch", filePath)

	fmt.Fprintf(m.out, "Watching %s (%s)\n", watcher.Path(), watcher.Kind())
	if count == 0 {
		fmt.Fprintln(m.out, "Press Ctrl+C to stop...")
	}

	<-runCtx.Done()
	stats := watcher.Stats()
	if err := watcher.Stop(); err != nil {
		return err
	}

	if ctx.GetFlagBool("verbose") {
		fmt.Fprintf(m.out, "Detected: %d  Fallbacks: %d\n", stats.Detected, stats.Fallbacks)
	}
	return nil
}

// handleWrite appends the remaining arguments, space separated, to a file
func (m *Manager) handleWrite(ctx *orpheus.Context) error {
	filePath := ctx.GetArg(0)
	values := collectArgs(ctx, 1)
	if filePath == "" || len(values) == 0 {
		return errors.New(inflow.ErrCodeInvalidConfig, "usage: inflow write <file> <value>...")
	}

	writer := inflow.NewWriter(inflow.Config{OutputPath: filePath, VerboseOutput: ctx.GetFlagBool("verbose")})
	defer func() { _ = writer.CloseAll() }()

	line := strings.Join(values, " ")
	if !ctx.GetFlagBool("no-newline") {
		line += "\n"
	}
	if err := writer.Write(filePath, line); err != nil {
		return err
	}
	m.auditLogger.LogFileWatch("cli_write", filePath)
	return writer.Flush(filePath)
}

// handleInfo shows what this build and platform can do
func (m *Manager) handleInfo(ctx *orpheus.Context) error {
	cfg, err := m.loadConfig(ctx.GetFlagString("config"))
	if err != nil {
		return err
	}
	effective := cfg.WithDefaults()

	fmt.Fprintf(m.out, "inflow %s\n", Version)
	fmt.Fprintf(m.out, "Native change notification: %v\n", inflow.HasNativeSupport())
	fmt.Fprintf(m.out, "Backend: %s\n", effective.Backend)
	fmt.Fprintf(m.out, "Event driven: %v\n", !effective.DisableEventDriven)

	if ctx.GetFlagBool("verbose") {
		printConfig(m.out, effective)
	}
	return nil
}

// handleAuditStats summarises an audit trail
func (m *Manager) handleAuditStats(ctx *orpheus.Context) error {
	auditLogger := m.auditLogger
	if file := ctx.GetFlagString("file"); file != "" || auditLogger == nil {
		var flags []string
		if file != "" {
			flags = append(flags, "--audit-file", file)
		}
		cfg, err := m.loadConfig("", flags...)
		if err != nil {
			return err
		}
		auditCfg := cfg.Audit
		auditCfg.Enabled = true
		auditLogger, err = inflow.NewAuditLogger(auditCfg)
		if err != nil {
			return err
		}
		defer func() { _ = auditLogger.Close() }()
	}

	stats, err := auditLogger.Stats()
	if err != nil {
		return err
	}
	printAuditStats(m.out, stats)
	return nil
}

// handleCompletion generates shell completion scripts
func (m *Manager) handleCompletion(ctx *orpheus.Context) error {
	const commands = "read watch write init info audit completion"

	switch shell := ctx.GetArg(0); shell {
	case "bash":
		fmt.Fprintf(m.out, "# Bash completion for inflow\n")
		fmt.Fprintf(m.out, "# Add to ~/.bashrc: source <(inflow completion bash)\n")
		fmt.Fprintf(m.out, "_inflow_completion() {\n")
		fmt.Fprintf(m.out, "  COMPREPLY=($(compgen -W '%s' -- \"${COMP_WORDS[COMP_CWORD]}\"))\n", commands)
		fmt.Fprintf(m.out, "}\n")
		fmt.Fprintf(m.out, "complete -F _inflow_completion inflow\n")
	case "zsh":
		fmt.Fprintf(m.out, "#compdef inflow\n")
		fmt.Fprintf(m.out, "_inflow() {\n")
		fmt.Fprintf(m.out, "  _arguments '1: :(%s)'\n", commands)
		fmt.Fprintf(m.out, "}\n")
	case "fish":
		fmt.Fprintf(m.out, "complete -c inflow -f -a '%s'\n", commands)
	default:
		return errors.New(inflow.ErrCodeInvalidConfig, fmt.Sprintf("unsupported shell: %s", shell))
	}
	return nil
}
