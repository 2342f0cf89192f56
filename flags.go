// flags.go: command-line overrides through flash-flags
//
// Configuration precedence, highest first:
//
//	flags > INFLOW_* environment > configuration file > defaults
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package inflow

import (
	flashflags "github.com/agilira/flash-flags"
	"github.com/agilira/go-errors"
)

// ErrCodeHelpRequested is returned by ConfigFromArgs for -h / --help
const ErrCodeHelpRequested = "INFLOW_HELP_REQUESTED"

// NewFlagSet registers the inflow flags with base as defaults
func NewFlagSet(name string, base Config) *flashflags.FlagSet {
	base = *base.WithDefaults()

	fs := flashflags.New(name)
	fs.SetDescription("inflow: values typed into a watched file, read by a running program")

	fs.String("input", base.InputPath, "Input file values are read from")
	fs.String("output", base.OutputPath, "Default output file")
	fs.String("backend", string(base.Backend), "Change notification backend: auto, inotify, fsnotify, poll")
	fs.Bool("event-driven", !base.DisableEventDriven, "Use native change notification when available")
	fs.Duration("debounce", base.DebounceWindow, "Window in which an unchanged file is not re-read")
	fs.Duration("recheck-interval", base.RecheckInterval, "Longest single wait inside a timed read")
	fs.Duration("poll-initial", base.PollInitial, "Initial polling interval")
	fs.Duration("poll-min", base.PollMin, "Polling interval right after a change")
	fs.Duration("poll-max", base.PollMax, "Polling interval cap")
	fs.Int("poll-idle-limit", base.PollIdleLimit, "Idle polls before the interval doubles")
	fs.Bool("quiet", base.Quiet, "Suppress advisory notices")
	fs.Bool("verbose-output", base.VerboseOutput, "Return output open errors instead of warning")
	fs.Bool("audit", base.Audit.Enabled, "Record an audit trail")
	fs.String("audit-file", base.Audit.OutputFile, "Audit trail file (.db for SQLite, .jsonl for JSON lines)")

	return fs
}

// ConfigFromArgs applies command-line flags on top of base. Flags that are
// not given keep the value from base.
func ConfigFromArgs(name string, base Config, args []string) (Config, error) {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			NewFlagSet(name, base).PrintHelp()
			return base, errors.New(ErrCodeHelpRequested, "help requested")
		}
	}

	fs := NewFlagSet(name, base)
	if err := fs.Parse(args); err != nil {
		return base, errors.Wrap(err, ErrCodeInvalidConfig, "failed to parse command-line flags")
	}

	backend, err := ParseBackend(fs.GetString("backend"))
	if err != nil {
		return base, err
	}

	cfg := base
	cfg.InputPath = fs.GetString("input")
	cfg.OutputPath = fs.GetString("output")
	cfg.Backend = backend
	cfg.DisableEventDriven = !fs.GetBool("event-driven")
	cfg.DebounceWindow = fs.GetDuration("debounce")
	cfg.RecheckInterval = fs.GetDuration("recheck-interval")
	cfg.PollInitial = fs.GetDuration("poll-initial")
	cfg.PollMin = fs.GetDuration("poll-min")
	cfg.PollMax = fs.GetDuration("poll-max")
	cfg.PollIdleLimit = fs.GetInt("poll-idle-limit")
	cfg.Quiet = fs.GetBool("quiet")
	cfg.VerboseOutput = fs.GetBool("verbose-output")
	cfg.Audit.Enabled = fs.GetBool("audit")
	cfg.Audit.OutputFile = fs.GetString("audit-file")

	if err := cfg.Validate(); err != nil {
		return base, err
	}
	return cfg, nil
}

// LoadConfig layers an optional configuration file, the environment and
// command-line flags, in increasing order of precedence.
func LoadConfig(name, configFile string, args []string) (Config, error) {
	var cfg Config
	if configFile != "" {
		fileCfg, err := LoadConfigFile(configFile)
		if err != nil {
			return Config{}, err
		}
		cfg = fileCfg
	}

	cfg, err := ApplyEnv(cfg)
	if err != nil {
		return Config{}, err
	}
	return ConfigFromArgs(name, cfg, args)
}
