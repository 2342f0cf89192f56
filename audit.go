// audit.go: audit trail of watch and read activity
//
// Every watcher start/stop, detected change, native fallback, value read and
// read timeout can be recorded. Events are buffered and flushed to a
// pluggable backend (SQLite by default, JSONL for *.jsonl files).
//
// The trail is disabled unless AuditConfig.Enabled is set; a disabled or nil
// *AuditLogger accepts every call and does nothing.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package inflow

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// AuditLevel represents the severity of audit events
type AuditLevel int

const (
	AuditInfo AuditLevel = iota
	AuditWarn
	AuditCritical
)

func (al AuditLevel) String() string {
	switch al {
	case AuditInfo:
		return "INFO"
	case AuditWarn:
		return "WARN"
	case AuditCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ParseAuditLevel converts "info", "warn" or "critical" (any case)
func ParseAuditLevel(name string) (AuditLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "info", "":
		return AuditInfo, true
	case "warn", "warning":
		return AuditWarn, true
	case "critical":
		return AuditCritical, true
	}
	return AuditInfo, false
}

// AuditEvent represents a single auditable event
type AuditEvent struct {
	Timestamp   time.Time              `json:"timestamp"`
	Level       AuditLevel             `json:"level"`
	Event       string                 `json:"event"`
	Component   string                 `json:"component"`
	FilePath    string                 `json:"file_path,omitempty"`
	Value       interface{}            `json:"value,omitempty"`
	ProcessID   int                    `json:"process_id"`
	ProcessName string                 `json:"process_name"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Checksum    string                 `json:"checksum"`
}

// AuditConfig configures the audit trail
type AuditConfig struct {
	Enabled bool `json:"enabled"`

	// OutputFile selects the backend: *.jsonl writes JSON lines, *.db (or
	// empty) uses SQLite. Empty means <tmp>/inflow/audit.db.
	OutputFile string `json:"output_file"`

	MinLevel   AuditLevel `json:"min_level"`
	BufferSize int        `json:"buffer_size"`

	// FlushInterval of the background flusher. Zero means 2s, negative disables it.
	FlushInterval time.Duration `json:"flush_interval"`
}

// DefaultAuditConfig returns the default audit configuration: disabled,
// with buffering settings ready for when it is switched on.
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:       false,
		MinLevel:      AuditInfo,
		BufferSize:    256,
		FlushInterval: 2 * time.Second,
	}
}

// AuditLogger buffers audit events and hands them to a backend in batches
type AuditLogger struct {
	config      AuditConfig
	backend     auditBackend
	buffer      []AuditEvent
	bufferMu    sync.Mutex
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closeOnce   sync.Once
	processID   int
	processName string
}

// NewAuditLogger creates an audit logger. A disabled config yields a logger
// with no backend that ignores every call.
func NewAuditLogger(config AuditConfig) (*AuditLogger, error) {
	if !config.Enabled {
		return &AuditLogger{config: config, stopCh: make(chan struct{})}, nil
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultAuditConfig().BufferSize
	}
	if config.FlushInterval == 0 {
		config.FlushInterval = DefaultAuditConfig().FlushInterval
	}

	backend, err := createAuditBackend(config)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeAudit, "failed to initialize audit backend").
			WithContext("output_file", config.OutputFile)
	}

	logger := &AuditLogger{
		config:      config,
		backend:     backend,
		buffer:      make([]AuditEvent, 0, config.BufferSize),
		stopCh:      make(chan struct{}),
		processID:   os.Getpid(),
		processName: getProcessName(),
	}

	if config.FlushInterval > 0 {
		logger.flushTicker = time.NewTicker(config.FlushInterval)
		go logger.flushLoop()
	}

	return logger, nil
}

// Enabled reports whether events are being recorded
func (al *AuditLogger) Enabled() bool {
	return al != nil && al.backend != nil && al.config.Enabled
}

// Log records an audit event
func (al *AuditLogger) Log(level AuditLevel, event, filePath string, value interface{}, context map[string]interface{}) {
	if !al.Enabled() || level < al.config.MinLevel {
		return
	}

	auditEvent := AuditEvent{
		Timestamp:   timecache.CachedTime(),
		Level:       level,
		Event:       event,
		Component:   "inflow",
		FilePath:    filePath,
		Value:       value,
		ProcessID:   al.processID,
		ProcessName: al.processName,
		Context:     context,
	}
	auditEvent.Checksum = checksum(auditEvent)

	al.bufferMu.Lock()
	al.buffer = append(al.buffer, auditEvent)
	if len(al.buffer) >= al.config.BufferSize {
		_ = al.flushBufferUnsafe()
	}
	al.bufferMu.Unlock()
}

// LogFileWatch logs watcher lifecycle and change events
func (al *AuditLogger) LogFileWatch(event, filePath string) {
	al.Log(AuditInfo, event, filePath, nil, nil)
}

// LogRead logs a value taken from an input file
func (al *AuditLogger) LogRead(filePath string, value interface{}, mode string) {
	al.Log(AuditInfo, "value_read", filePath, value, map[string]interface{}{"mode": mode})
}

// LogTimeout logs a timed read that gave up
func (al *AuditLogger) LogTimeout(filePath string, timeout time.Duration) {
	al.Log(AuditWarn, "read_timeout", filePath, nil, map[string]interface{}{"timeout": timeout.String()})
}

// Flush immediately writes all buffered events
func (al *AuditLogger) Flush() error {
	if !al.Enabled() {
		return nil
	}
	al.bufferMu.Lock()
	defer al.bufferMu.Unlock()
	return al.flushBufferUnsafe()
}

// Stats flushes pending events and reports backend statistics
func (al *AuditLogger) Stats() (*AuditStats, error) {
	if !al.Enabled() {
		return nil, errors.New(ErrCodeAudit, "audit trail is disabled")
	}
	if err := al.Flush(); err != nil {
		return nil, err
	}
	return al.backend.Stats()
}

// Close flushes and releases the backend. It is safe to call more than once.
func (al *AuditLogger) Close() error {
	if al == nil {
		return nil
	}

	var err error
	al.closeOnce.Do(func() {
		close(al.stopCh)
		if al.flushTicker != nil {
			al.flushTicker.Stop()
		}
		if al.backend == nil {
			return
		}
		if flushErr := al.Flush(); flushErr != nil {
			err = flushErr
		}
		if closeErr := al.backend.Close(); closeErr != nil && err == nil {
			err = errors.Wrap(closeErr, ErrCodeAudit, "failed to close audit backend")
		}
	})
	return err
}

func (al *AuditLogger) flushLoop() {
	for {
		select {
		case <-al.flushTicker.C:
			_ = al.Flush()
		case <-al.stopCh:
			return
		}
	}
}

// flushBufferUnsafe writes the buffer to the backend (caller holds bufferMu)
func (al *AuditLogger) flushBufferUnsafe() error {
	if len(al.buffer) == 0 {
		return nil
	}
	if err := al.backend.Write(al.buffer); err != nil {
		return errors.Wrap(err, ErrCodeAudit, "failed to write audit events")
	}
	al.buffer = al.buffer[:0]
	return nil
}

// checksum is a SHA-256 over the identifying fields, for tamper detection
func checksum(event AuditEvent) string {
	data := fmt.Sprintf("%s:%s:%s:%s:%v",
		event.Timestamp.Format(time.RFC3339Nano),
		event.Level, event.Event, event.FilePath, event.Value)
	return fmt.Sprintf("%x", sha256.Sum256([]byte(data)))
}

func getProcessName() string {
	if len(os.Args) == 0 {
		return "inflow"
	}
	return filepath.Base(os.Args[0])
}
