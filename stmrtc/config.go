// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stmrtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-lpc/rtc/stmrtc/internal/regs"
)

// ConfigMode is an open configuration window of the peripheral.
//
// The counter, prescaler and alarm registers can only be written through a
// ConfigMode. Values are staged until Exit, which clears CRL.CNF and lets the
// peripheral commit them. Only one ConfigMode exists at a time per Device.
type ConfigMode struct {
	dev *Device

	mu   sync.Mutex
	done bool
}

// EnterConfigMode sets CRL.CNF and returns the configuration window.
// It blocks while another window of the same device is open.
//
// Callers should WaitForLastTask before entering, so that no previous write
// is still being committed.
func (dev *Device) EnterConfigMode() (*ConfigMode, error) {
	dev.win.Lock()
	return dev.enter()
}

// enter opens a configuration window. dev.win must be held.
func (dev *Device) enter() (*ConfigMode, error) {
	dev.mu.Lock()
	dev.setCNF()
	err := dev.err
	dev.mu.Unlock()

	if err != nil {
		dev.win.Unlock()
		return nil, fmt.Errorf("stmrtc: could not enter configuration mode: %w", err)
	}
	return &ConfigMode{dev: dev}, nil
}

// Exit clears CRL.CNF, which starts the commit of the staged values.
// The window can not be used afterwards.
func (cm *ConfigMode) Exit() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.done {
		return ErrConfigClosed
	}
	cm.done = true

	dev := cm.dev
	defer dev.win.Unlock()

	dev.mu.Lock()
	dev.clearCNF()
	err := dev.err
	dev.mu.Unlock()

	if err != nil {
		return fmt.Errorf("stmrtc: could not exit configuration mode: %w", err)
	}
	return nil
}

// SetCounter stages a new counter value.
func (cm *ConfigMode) SetCounter(v uint32) error {
	return cm.write("counter", func(dev *Device) {
		dev.regs.cnt.w(v)
	})
}

// SetPrescaler stages a new prescaler reload value.
// Only the low 20 bits of v are used.
func (cm *ConfigMode) SetPrescaler(v uint32) error {
	return cm.write("prescaler", func(dev *Device) {
		dev.regs.prl.hi.w(uint16((v & regs.PRLH_MSB_MASK) >> 16))
		dev.regs.prl.lo.w(uint16(v & regs.LSB_MASK))
	})
}

// SetAlarm stages a new alarm value.
func (cm *ConfigMode) SetAlarm(v uint32) error {
	return cm.write("alarm", func(dev *Device) {
		dev.regs.alr.w(v)
	})
}

func (cm *ConfigMode) write(name string, f func(dev *Device)) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.done {
		return ErrConfigClosed
	}

	dev := cm.dev
	dev.mu.Lock()
	f(dev)
	err := dev.err
	dev.mu.Unlock()

	if err != nil {
		return fmt.Errorf("stmrtc: could not write %s: %w", name, err)
	}
	return nil
}

// SetCounter enters configuration mode, writes the counter and exits
// configuration mode.
//
// SetCounter does not wait for a previous write to be committed:
// callers must WaitForLastTask first.
// SetCounter must not be called while the calling goroutine holds a
// ConfigMode of the same device.
func (dev *Device) SetCounter(v uint32) error {
	return dev.configure("counter", func(cm *ConfigMode) error {
		return cm.SetCounter(v)
	})
}

// SetPrescaler enters configuration mode, writes the prescaler reload and
// exits configuration mode.
// Only the low 20 bits of v are used.
//
// The same sequencing rules as SetCounter apply.
func (dev *Device) SetPrescaler(v uint32) error {
	return dev.configure("prescaler", func(cm *ConfigMode) error {
		return cm.SetPrescaler(v)
	})
}

// SetAlarm enters configuration mode, writes the alarm and exits
// configuration mode.
//
// The same sequencing rules as SetCounter apply.
func (dev *Device) SetAlarm(v uint32) error {
	return dev.configure("alarm", func(cm *ConfigMode) error {
		return cm.SetAlarm(v)
	})
}

// Update waits for the last write to be committed, opens a configuration
// window, runs f with it and closes the window.
//
// Unlike a WaitForLastTask followed by one of the Set methods, no other
// writer of the device can slip in between the wait and the window.
func (dev *Device) Update(ctx context.Context, f func(cm *ConfigMode) error) error {
	dev.win.Lock()
	err := dev.poll(ctx, regs.CRL_RTOFF)
	if err != nil {
		dev.win.Unlock()
		return fmt.Errorf("stmrtc: could not wait for last write: %w", err)
	}

	cm, err := dev.enter()
	if err != nil {
		return fmt.Errorf("stmrtc: could not update RTC: %w", err)
	}

	err = f(cm)
	if e := cm.Exit(); e != nil && err == nil && !errors.Is(e, ErrConfigClosed) {
		err = e
	}
	if err != nil {
		return fmt.Errorf("stmrtc: could not update RTC: %w", err)
	}
	return nil
}

func (dev *Device) configure(name string, f func(cm *ConfigMode) error) error {
	cm, err := dev.EnterConfigMode()
	if err != nil {
		return fmt.Errorf("stmrtc: could not set %s: %w", name, err)
	}

	err = f(cm)
	if e := cm.Exit(); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return fmt.Errorf("stmrtc: could not set %s: %w", name, err)
	}
	return nil
}

// CRL holds write-0-to-clear flags: writing 1 to them leaves them alone, so
// CRL updates write 1 to every flag that must be preserved instead of
// writing back a value read earlier, which could clear a flag raised in
// between.

func (dev *Device) setCNF() {
	dev.regs.crl.w(regs.CRL_RC_W0 | regs.CRL_CNF)
}

func (dev *Device) clearCNF() {
	dev.regs.crl.w(regs.CRL_RC_W0)
}

func (dev *Device) clearFlags(f Flag) {
	crl := dev.regs.crl.r()
	mask := f.bits() & uint16(flagClearable)
	dev.regs.crl.w((crl & regs.CRL_CNF) | (regs.CRL_RC_W0 &^ mask))
}

// ITConfig enables or disables the given interrupt sources.
// Other sources are left untouched.
func (dev *Device) ITConfig(it Interrupt, enabled bool) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	crh := dev.regs.crh.r()
	switch {
	case enabled:
		crh |= it.bits()
	default:
		crh &^= it.bits()
	}
	dev.regs.crh.w(crh & regs.CRH_MASK)

	if dev.err != nil {
		return fmt.Errorf("stmrtc: could not configure interrupts %v: %w", it, dev.err)
	}
	return nil
}

// FlagStatus reports whether any of the given flags is set.
func (dev *Device) FlagStatus(f Flag) bool {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.regs.crl.r()&f.bits() != 0
}

// ClearFlag clears the given flags. Other flags are left untouched.
//
// RTOFF is read-only and is never cleared. RSF can only be cleared: it is
// set back by the hardware once the registers are synchronized.
func (dev *Device) ClearFlag(f Flag) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	dev.clearFlags(f)
	if dev.err != nil {
		return fmt.Errorf("stmrtc: could not clear flags %v: %w", f, dev.err)
	}
	return nil
}

// ITStatus reports whether any of the given interrupt sources is both
// pending and enabled.
func (dev *Device) ITStatus(it Interrupt) bool {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	var (
		crh = dev.regs.crh.r()
		crl = dev.regs.crl.r()
	)
	for _, src := range sources {
		if it&src.it == 0 {
			continue
		}
		if crh&src.it.bits() != 0 && crl&src.flag.bits() != 0 {
			return true
		}
	}
	return false
}

// ClearITPendingBit clears the pending flags of the given interrupt
// sources.
func (dev *Device) ClearITPendingBit(it Interrupt) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	dev.clearFlags(it.Flag())
	if dev.err != nil {
		return fmt.Errorf("stmrtc: could not clear pending interrupts %v: %w", it, dev.err)
	}
	return nil
}
