// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stmrtc

import (
	"log"
	"os"
	"time"

	"github.com/go-lpc/rtc/stmrtc/internal/regs"
)

type config struct {
	msg     *log.Logger
	base    int64
	verbose bool

	poll struct {
		limit int           // max number of register reads, 0 for no limit
		min   time.Duration // first sleep between reads, 0 for a tight loop
		max   time.Duration
	}
}

func newConfig() config {
	return config{
		msg:  log.New(os.Stdout, "stmrtc: ", 0),
		base: regs.RTC_BASE,
	}
}

// Option configures a Device.
type Option func(*config)

// WithLogger sets the logger used for verbose register tracing.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithVerbose enables tracing of every register access.
func WithVerbose(v bool) Option {
	return func(cfg *config) {
		cfg.verbose = v
	}
}

// WithBase sets the physical address of the RTC peripheral.
// It is only used by Open.
func WithBase(addr int64) Option {
	return func(cfg *config) {
		cfg.base = addr
	}
}

// WithPollLimit bounds the number of status reads a wait operation may
// issue before failing with ErrPollTimeout.
// A zero or negative limit polls until the condition is met.
func WithPollLimit(n int) Option {
	return func(cfg *config) {
		cfg.poll.limit = n
	}
}

// WithPollBackoff makes wait operations sleep between status reads,
// starting at min and doubling up to max.
func WithPollBackoff(min, max time.Duration) Option {
	return func(cfg *config) {
		if max < min {
			max = min
		}
		cfg.poll.min = min
		cfg.poll.max = max
	}
}
