// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stmrtc

import (
	"context"
	"fmt"
)

// Config describes the state Setup brings the peripheral to.
type Config struct {
	Prescaler  uint32    // reload value, 0x7fff for a 32.768 kHz crystal
	Interrupts Interrupt // sources to enable, others are disabled
	Counter    *uint32   // counter value to load, if any
	Alarm      *uint32   // alarm value to load, if any
}

// Setup synchronizes the registers and programs the peripheral, waiting
// for each write to be committed before issuing the next one.
func (dev *Device) Setup(ctx context.Context, cfg Config) error {
	err := dev.WaitForSynchro(ctx)
	if err != nil {
		return fmt.Errorf("stmrtc: could not setup RTC: %w", err)
	}

	type step struct {
		name string
		f    func() error
	}

	steps := []step{
		{"disable interrupts", func() error { return dev.ITConfig(ITAll&^cfg.Interrupts, false) }},
		{"enable interrupts", func() error { return dev.ITConfig(cfg.Interrupts, true) }},
		{"set prescaler", func() error { return dev.SetPrescaler(cfg.Prescaler) }},
	}
	if cfg.Counter != nil {
		v := *cfg.Counter
		steps = append(steps, step{"set counter", func() error { return dev.SetCounter(v) }})
	}
	if cfg.Alarm != nil {
		v := *cfg.Alarm
		steps = append(steps, step{"set alarm", func() error { return dev.SetAlarm(v) }})
	}

	for _, s := range steps {
		err = dev.WaitForLastTask(ctx)
		if err != nil {
			return fmt.Errorf("stmrtc: could not setup RTC (%s): %w", s.name, err)
		}
		err = s.f()
		if err != nil {
			return fmt.Errorf("stmrtc: could not setup RTC (%s): %w", s.name, err)
		}
	}

	err = dev.WaitForLastTask(ctx)
	if err != nil {
		return fmt.Errorf("stmrtc: could not setup RTC: %w", err)
	}
	return nil
}
