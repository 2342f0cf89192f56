// Package cli provides the inflow command-line interface.
//
// Commands:
//   - read:   read one value from an input file (immediate, timed, blocking or async)
//   - watch:  print every change of a file as it is detected
//   - write:  append a value to an output file
//   - init:   create an input file holding only the placeholder
//   - info:   platform capabilities and effective configuration
//   - audit:  audit trail statistics
//
// Built on the Orpheus framework, with flags, INFLOW_* variables and an
// optional --config file layered through the inflow configuration loaders.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"io"
	"os"

	"github.com/agilira/inflow"
	"github.com/agilira/orpheus/pkg/orpheus"
)

// Version of the inflow CLI
const Version = "1.0.0"

// Manager wires inflow operations to Orpheus commands
type Manager struct {
	app         *orpheus.App
	out         io.Writer
	auditLogger *inflow.AuditLogger // Optional audit integration
}

// NewManager creates the CLI manager with every command registered
func NewManager() *Manager {
	app := orpheus.New("inflow").
		SetDescription("File-driven input: values typed into a watched file").
		SetVersion(Version)

	manager := &Manager{
		app: app,
		out: os.Stdout,
	}

	manager.setupReadCommands()
	manager.setupWatchCommands()
	manager.setupWriteCommands()
	manager.setupUtilityCommands()

	return manager
}

// WithAudit records CLI operations in auditLogger. Without it each command
// opens the trail described by its configuration, if enabled.
func (m *Manager) WithAudit(auditLogger *inflow.AuditLogger) *Manager {
	m.auditLogger = auditLogger
	return m
}

// SetOutput redirects command output (default os.Stdout)
func (m *Manager) SetOutput(w io.Writer) *Manager {
	m.out = w
	return m
}

// Run executes the CLI application with the provided arguments
func (m *Manager) Run(args []string) error {
	return m.app.Run(args)
}

func (m *Manager) setupReadCommands() {
	// read <file> [--type=string] [--timeout=] [--try] [--async] [--poll]
	readCmd := orpheus.NewCommand("read", "Read the first value from an input file")
	readCmd.SetHandler(m.handleRead)
	readCmd.AddFlag("type", "t", "string", "Value type (int|int64|float32|float64|string)")
	readCmd.AddFlag("timeout", "", "", "Give up after this duration (e.g. 500ms); empty blocks")
	readCmd.AddFlag("config", "c", "", "Configuration file (.yaml, .yml, .toml)")
	readCmd.AddBoolFlag("try", "", false, "Single immediate attempt, never waits")
	readCmd.AddBoolFlag("async", "a", false, "Read on a background task and join it")
	readCmd.AddBoolFlag("poll", "p", false, "Disable native change notification")
	readCmd.AddBoolFlag("quiet", "q", false, "Suppress waiting notices")
	m.app.AddCommand(readCmd)

	// init <file>
	initCmd := orpheus.NewCommand("init", "Create an input file holding the placeholder").
		AddFlag("config", "c", "", "Configuration file (.yaml, .yml, .toml)").
		SetHandler(m.handleInit)
	m.app.AddCommand(initCmd)
}

func (m *Manager) setupWatchCommands() {
	// watch <file> [--backend=auto] [--count=0] [--for=]
	watchCmd := orpheus.NewCommand("watch", "Report changes of a file as they are detected")
	watchCmd.SetHandler(m.handleWatch)
	watchCmd.AddFlag("backend", "b", "", "Backend (auto|inotify|fsnotify|poll)")
	watchCmd.AddFlag("for", "", "", "Stop after this duration (e.g. 30s)")
	watchCmd.AddFlag("config", "c", "", "Configuration file (.yaml, .yml, .toml)")
	watchCmd.AddIntFlag("count", "n", 0, "Stop after this many changes (0 = until interrupted)")
	watchCmd.AddBoolFlag("verbose", "v", false, "Show watcher statistics on exit")
	m.app.AddCommand(watchCmd)
}

func (m *Manager) setupWriteCommands() {
	// write <file> <value>...
	writeCmd := orpheus.NewCommand("write", "Append a line to an output file")
	writeCmd.SetHandler(m.handleWrite)
	writeCmd.AddBoolFlag("no-newline", "", false, "Do not terminate the line")
	writeCmd.AddBoolFlag("verbose", "v", false, "Fail when the file cannot be opened")
	m.app.AddCommand(writeCmd)
}

func (m *Manager) setupUtilityCommands() {
	// info [--verbose]
	infoCmd := orpheus.NewCommand("info", "Platform capabilities and effective configuration")
	infoCmd.SetHandler(m.handleInfo)
	infoCmd.AddFlag("config", "c", "", "Configuration file (.yaml, .yml, .toml)")
	infoCmd.AddBoolFlag("verbose", "v", false, "Show the effective configuration")
	m.app.AddCommand(infoCmd)

	// audit stats [--file=]
	auditCmd := orpheus.NewCommand("audit", "Audit trail management")
	statsCmd := auditCmd.Subcommand("stats", "Summarise the audit trail", m.handleAuditStats)
	statsCmd.AddFlag("file", "f", "", "Audit trail (.db or .jsonl); default from configuration")
	m.app.AddCommand(auditCmd)

	// completion <shell>
	completionCmd := orpheus.NewCommand("completion", "Generate shell completion scripts")
	completionCmd.SetHandler(m.handleCompletion)
	m.app.AddCommand(completionCmd)
}
