// env_config.go: INFLOW_* environment variable overrides
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package inflow

import (
	"strconv"
	"strings"
	"time"

	"github.com/agilira/go-errors"
	"github.com/xyproto/env/v2"
)

// Environment variables read by ApplyEnv
const (
	EnvInputPath       = "INFLOW_INPUT"
	EnvOutputPath      = "INFLOW_OUTPUT"
	EnvBackend         = "INFLOW_BACKEND"
	EnvEventDriven     = "INFLOW_EVENT_DRIVEN"
	EnvDebounce        = "INFLOW_DEBOUNCE"
	EnvRecheckInterval = "INFLOW_RECHECK_INTERVAL"
	EnvPollInitial     = "INFLOW_POLL_INITIAL"
	EnvPollMin         = "INFLOW_POLL_MIN"
	EnvPollMax         = "INFLOW_POLL_MAX"
	EnvPollIdleLimit   = "INFLOW_POLL_IDLE_LIMIT"
	EnvQuiet           = "INFLOW_QUIET"
	EnvVerboseOutput   = "INFLOW_VERBOSE_OUTPUT"
	EnvAuditEnabled    = "INFLOW_AUDIT_ENABLED"
	EnvAuditOutputFile = "INFLOW_AUDIT_OUTPUT_FILE"
	EnvAuditMinLevel   = "INFLOW_AUDIT_MIN_LEVEL"
)

// LoadConfigFromEnv builds a Config from INFLOW_* variables alone
func LoadConfigFromEnv() (Config, error) {
	return ApplyEnv(Config{})
}

// ApplyEnv overrides cfg with every INFLOW_* variable that is set.
// The environment is re-read on every call.
func ApplyEnv(cfg Config) (Config, error) {
	env.Load()

	if env.Has(EnvInputPath) {
		cfg.InputPath = env.Str(EnvInputPath)
	}
	if env.Has(EnvOutputPath) {
		cfg.OutputPath = env.Str(EnvOutputPath)
	}
	if env.Has(EnvBackend) {
		backend, err := ParseBackend(env.Str(EnvBackend))
		if err != nil {
			return cfg, err
		}
		cfg.Backend = backend
	}
	if env.Has(EnvEventDriven) {
		cfg.DisableEventDriven = !env.Bool(EnvEventDriven)
	}
	if env.Has(EnvQuiet) {
		cfg.Quiet = env.Bool(EnvQuiet)
	}
	if env.Has(EnvVerboseOutput) {
		cfg.VerboseOutput = env.Bool(EnvVerboseOutput)
	}
	if env.Has(EnvPollIdleLimit) {
		limit, err := strconv.Atoi(strings.TrimSpace(env.Str(EnvPollIdleLimit)))
		if err != nil {
			return cfg, errors.Wrap(err, ErrCodeInvalidConfig, "invalid integer in environment").
				WithContext("variable", EnvPollIdleLimit)
		}
		cfg.PollIdleLimit = limit
	}

	durations := []struct {
		name string
		into *time.Duration
	}{
		{EnvDebounce, &cfg.DebounceWindow},
		{EnvRecheckInterval, &cfg.RecheckInterval},
		{EnvPollInitial, &cfg.PollInitial},
		{EnvPollMin, &cfg.PollMin},
		{EnvPollMax, &cfg.PollMax},
	}
	for _, d := range durations {
		if !env.Has(d.name) {
			continue
		}
		parsed, err := time.ParseDuration(env.Str(d.name))
		if err != nil {
			return cfg, errors.Wrap(err, ErrCodeInvalidConfig, "invalid duration in environment").
				WithContext("variable", d.name)
		}
		*d.into = parsed
	}

	if env.Has(EnvAuditEnabled) {
		cfg.Audit.Enabled = env.Bool(EnvAuditEnabled)
	}
	if env.Has(EnvAuditOutputFile) {
		cfg.Audit.OutputFile = env.Str(EnvAuditOutputFile)
	}
	if env.Has(EnvAuditMinLevel) {
		level, ok := ParseAuditLevel(env.Str(EnvAuditMinLevel))
		if !ok {
			return cfg, errors.New(ErrCodeInvalidConfig, "invalid audit level in environment").
				WithContext("variable", EnvAuditMinLevel)
		}
		cfg.Audit.MinLevel = level
	}

	return cfg, nil
}
