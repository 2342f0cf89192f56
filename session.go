// session.go: a Reader and a Writer sharing one configuration
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package inflow

import "sync"

// Session owns the input and output side of a program. Most programs need
// exactly one; Default returns a shared instance built on first use.
type Session struct {
	config      *Config
	auditLogger *AuditLogger

	Input  *Reader
	Output *Writer
}

// NewSession creates a Session. An audit trail that cannot be opened is
// reported and disabled; NewSession never fails.
func NewSession(config Config) *Session {
	cfg := config.WithDefaults()

	auditLogger, err := NewAuditLogger(cfg.Audit)
	if err != nil {
		cfg.reportError(err, cfg.Audit.OutputFile)
		auditLogger, _ = NewAuditLogger(AuditConfig{Enabled: false})
	}

	return &Session{
		config:      cfg,
		auditLogger: auditLogger,
		Input:       newReader(cfg, auditLogger),
		Output:      newWriter(cfg),
	}
}

// Config returns the effective configuration
func (s *Session) Config() Config {
	return *s.config
}

// SetInputPath switches the file values are read from
func (s *Session) SetInputPath(path string) {
	s.Input.SetPath(path)
}

// SetOutputPath switches the default file of Log and Logf
func (s *Session) SetOutputPath(path string) {
	s.Output.SetDefaultPath(path)
}

// SetEventDriven toggles native change notification for new reads
func (s *Session) SetEventDriven(enabled bool) {
	s.Input.SetEventDriven(enabled)
}

// EventDriven reports whether new reads try native notification
func (s *Session) EventDriven() bool {
	return s.Input.EventDriven()
}

// Reset restores the configured paths and modes and clears the debounce entry.
// Open output handles are kept.
func (s *Session) Reset() {
	s.Input.SetPath(s.config.InputPath)
	s.Input.Reset()
	s.Input.SetEventDriven(!s.config.DisableEventDriven)
	s.Output.SetDefaultPath(s.config.OutputPath)
	s.Output.SetSilent(!s.config.VerboseOutput)
}

// Close ends outstanding reads, closes output handles and the audit trail
func (s *Session) Close() error {
	var firstErr error
	if err := s.Input.Close(); err != nil {
		firstErr = err
	}
	if err := s.Output.CloseAll(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.auditLogger.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

var (
	defaultMu      sync.Mutex
	defaultSession *Session
)

// Default returns the process-wide Session, built with default configuration
// on first use.
func Default() *Session {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultSession == nil {
		defaultSession = NewSession(Config{})
	}
	return defaultSession
}

// ResetDefault closes the process-wide Session; the next Default call
// builds a fresh one.
func ResetDefault() error {
	defaultMu.Lock()
	session := defaultSession
	defaultSession = nil
	defaultMu.Unlock()

	if session == nil {
		return nil
	}
	return session.Close()
}
