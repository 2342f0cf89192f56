// config_file.go: YAML and TOML configuration files
//
// Durations are written as Go duration strings ("50ms", "2s").
//
//	input: in.txt
//	output: log.txt
//	backend: auto
//	poll:
//	  initial: 50ms
//	  min: 10ms
//	  max: 500ms
//	  idle_limit: 10
//	audit:
//	  enabled: true
//	  output_file: /var/log/inflow/audit.jsonl
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package inflow

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/agilira/go-errors"
	"go.yaml.in/yaml/v3"
)

// fileConfig is the on-disk shape of Config
type fileConfig struct {
	Input           string `yaml:"input" toml:"input"`
	Output          string `yaml:"output" toml:"output"`
	Backend         string `yaml:"backend" toml:"backend"`
	EventDriven     *bool  `yaml:"event_driven" toml:"event_driven"`
	Debounce        string `yaml:"debounce" toml:"debounce"`
	RecheckInterval string `yaml:"recheck_interval" toml:"recheck_interval"`
	Placeholder     string `yaml:"placeholder" toml:"placeholder"`
	Quiet           bool   `yaml:"quiet" toml:"quiet"`
	Verbose         bool   `yaml:"verbose_output" toml:"verbose_output"`

	Poll struct {
		Initial   string `yaml:"initial" toml:"initial"`
		Min       string `yaml:"min" toml:"min"`
		Max       string `yaml:"max" toml:"max"`
		IdleLimit int    `yaml:"idle_limit" toml:"idle_limit"`
	} `yaml:"poll" toml:"poll"`

	Audit struct {
		Enabled       bool   `yaml:"enabled" toml:"enabled"`
		OutputFile    string `yaml:"output_file" toml:"output_file"`
		MinLevel      string `yaml:"min_level" toml:"min_level"`
		BufferSize    int    `yaml:"buffer_size" toml:"buffer_size"`
		FlushInterval string `yaml:"flush_interval" toml:"flush_interval"`
	} `yaml:"audit" toml:"audit"`
}

// LoadConfigFile reads a .yaml/.yml or .toml file into a Config.
// Unset keys keep their zero value, so the result composes with
// WithDefaults and with environment and flag overrides.
func LoadConfigFile(path string) (Config, error) {
	// #nosec G304 -- configuration path supplied by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, ErrCodeConfigFile, "cannot read configuration file").
			WithContext("path", path)
	}
	return parseConfigFile(path, data)
}

func parseConfigFile(path string, data []byte) (Config, error) {
	var fc fileConfig

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return Config{}, errors.Wrap(err, ErrCodeConfigFile, "invalid YAML configuration").
				WithContext("path", path)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &fc); err != nil {
			return Config{}, errors.Wrap(err, ErrCodeConfigFile, "invalid TOML configuration").
				WithContext("path", path)
		}
	default:
		return Config{}, errors.New(ErrCodeConfigFile, "unsupported configuration format, use .yaml, .yml or .toml").
			WithContext("path", path)
	}

	return fc.toConfig(path)
}

func (fc *fileConfig) toConfig(path string) (Config, error) {
	cfg := Config{
		InputPath:     fc.Input,
		OutputPath:    fc.Output,
		Placeholder:   fc.Placeholder,
		Quiet:         fc.Quiet,
		VerboseOutput: fc.Verbose,
		PollIdleLimit: fc.Poll.IdleLimit,
		Audit: AuditConfig{
			Enabled:    fc.Audit.Enabled,
			OutputFile: fc.Audit.OutputFile,
			BufferSize: fc.Audit.BufferSize,
		},
	}

	if fc.Backend != "" {
		backend, err := ParseBackend(fc.Backend)
		if err != nil {
			return Config{}, err
		}
		cfg.Backend = backend
	}
	if fc.EventDriven != nil {
		cfg.DisableEventDriven = !*fc.EventDriven
	}

	durations := []struct {
		key   string
		value string
		into  *time.Duration
	}{
		{"debounce", fc.Debounce, &cfg.DebounceWindow},
		{"recheck_interval", fc.RecheckInterval, &cfg.RecheckInterval},
		{"poll.initial", fc.Poll.Initial, &cfg.PollInitial},
		{"poll.min", fc.Poll.Min, &cfg.PollMin},
		{"poll.max", fc.Poll.Max, &cfg.PollMax},
		{"audit.flush_interval", fc.Audit.FlushInterval, &cfg.Audit.FlushInterval},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return Config{}, errors.Wrap(err, ErrCodeConfigFile, "invalid duration").
				WithContext("path", path).
				WithContext("key", d.key)
		}
		*d.into = parsed
	}

	if fc.Audit.MinLevel != "" {
		level, ok := ParseAuditLevel(fc.Audit.MinLevel)
		if !ok {
			return Config{}, errors.New(ErrCodeConfigFile, "invalid audit level").
				WithContext("path", path).
				WithContext("min_level", fc.Audit.MinLevel)
		}
		cfg.Audit.MinLevel = level
	}

	return cfg, nil
}
