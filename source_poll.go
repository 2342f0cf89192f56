// source_poll.go: adaptive stat polling, the universal fallback ChangeSource
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package inflow

import (
	"context"
	"os"
	"time"
)

// pollSchedule is the adaptive interval of the poller.
// A change drops the interval to min; idleLimit consecutive idle polls
// double it, capped at max.
type pollSchedule struct {
	min       time.Duration
	max       time.Duration
	current   time.Duration
	idleLimit int
	idle      int
}

func newPollSchedule(cfg *Config) *pollSchedule {
	return &pollSchedule{
		min:       cfg.PollMin,
		max:       cfg.PollMax,
		current:   cfg.PollInitial,
		idleLimit: cfg.PollIdleLimit,
	}
}

// Interval returns the wait before the next poll
func (s *pollSchedule) Interval() time.Duration {
	return s.current
}

// Observe records the outcome of one poll and returns the next interval
func (s *pollSchedule) Observe(changed bool) time.Duration {
	if changed {
		s.current = s.min
		s.idle = 0
		return s.current
	}

	s.idle++
	if s.idle >= s.idleLimit {
		s.idle = 0
		s.current *= 2
		if s.current > s.max {
			s.current = s.max
		}
	}
	return s.current
}

// fileStat is the part of os.Stat the poller compares
type fileStat struct {
	modTime time.Time
	size    int64
	exists  bool
}

func statFile(path string) fileStat {
	info, err := os.Stat(path)
	if err != nil {
		return fileStat{}
	}
	return fileStat{modTime: info.ModTime(), size: info.Size(), exists: true}
}

// pollSource watches a file by comparing stat snapshots.
// The baseline is taken when the source is built, not when Run starts,
// so a write racing with Start is still seen.
type pollSource struct {
	path     string
	schedule *pollSchedule
	stat     func(string) fileStat
	last     fileStat
}

func newPollSource(path string, schedule *pollSchedule) *pollSource {
	return &pollSource{
		path:     path,
		schedule: schedule,
		stat:     statFile,
		last:     statFile(path),
	}
}

func (p *pollSource) Kind() SourceKind { return SourcePoll }

func (p *pollSource) Close() error { return nil }

// Run polls until ctx is done. Creation, modification and size changes are
// all reported as a change; deletion is not.
func (p *pollSource) Run(ctx context.Context, emit func(ChangeEvent)) error {
	timer := time.NewTimer(p.schedule.Interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		current := p.stat(p.path)
		changed := current.exists &&
			(!p.last.exists || !current.modTime.Equal(p.last.modTime) || current.size != p.last.size)
		p.last = current

		if changed {
			emit(ChangeEvent{Path: p.path, Time: time.Now(), Source: SourcePoll})
		}
		timer.Reset(p.schedule.Observe(changed))
	}
}
