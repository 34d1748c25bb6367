// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stmrtc

import (
	"encoding/binary"
	"fmt"
	"log"
	"sync"

	"github.com/go-lpc/rtc/internal/mmap"
	"github.com/go-lpc/rtc/stmrtc/internal/regs"
)

// Device is the register interface of an RTC peripheral.
//
// A Device is safe for concurrent use: register accesses are serialized
// and configuration windows never interleave.
type Device struct {
	msg *log.Logger
	cfg config
	mem *mmap.Handle // nil when the bank is owned by the caller

	mu  sync.Mutex // serializes register accesses
	win sync.Mutex // held for the whole life of a configuration window
	buf [2]byte
	err error // first register I/O error

	regs struct {
		crh reg16
		crl reg16
		prl reg32
		div reg32
		cnt reg32
		alr reg32
	}
}

// New returns a Device driving the registers of the provided bank.
func New(bank Bank, opts ...Option) *Device {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	dev := &Device{
		msg: cfg.msg,
		cfg: cfg,
	}
	dev.bind(bank)
	return dev
}

// Open maps the RTC peripheral registers from the named memory device
// (e.g. /dev/mem) and returns a Device driving them.
func Open(devmem string, opts ...Option) (*Device, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	mem, err := mmap.Open(devmem, cfg.base, regs.RTC_SPAN)
	if err != nil {
		return nil, fmt.Errorf("stmrtc: could not map RTC registers from %q: %w", devmem, err)
	}

	dev := New(mem, opts...)
	dev.mem = mem
	return dev, nil
}

// Close releases the register mapping, if the device owns one.
func (dev *Device) Close() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.mem == nil {
		return nil
	}
	err := dev.mem.Close()
	dev.mem = nil
	if err != nil {
		return fmt.Errorf("stmrtc: could not unmap RTC registers: %w", err)
	}
	return nil
}

func (dev *Device) bind(bank Bank) {
	dev.regs.crh = newReg16(dev, bank, regs.CRH)
	dev.regs.crl = newReg16(dev, bank, regs.CRL)
	dev.regs.prl = newReg32(dev, bank, regs.PRLH, regs.PRLL)
	dev.regs.div = newReg32(dev, bank, regs.DIVH, regs.DIVL)
	dev.regs.cnt = newReg32(dev, bank, regs.CNTH, regs.CNTL)
	dev.regs.alr = newReg32(dev, bank, regs.ALRH, regs.ALRL)
}

// Err returns the first register I/O error encountered by the device.
// Once set, reads return zero and writes are dropped.
func (dev *Device) Err() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.err
}

func (dev *Device) readU16(r Bank, off int64) uint16 {
	if dev.err != nil {
		return 0
	}
	_, dev.err = r.ReadAt(dev.buf[:2], off)
	if dev.err != nil {
		dev.err = fmt.Errorf("stmrtc: could not read register %s: %w", regs.Name(off), dev.err)
		return 0
	}
	v := binary.LittleEndian.Uint16(dev.buf[:2])
	if dev.cfg.verbose {
		dev.msg.Printf("r %-4s -> 0x%04x", regs.Name(off), v)
	}
	return v
}

func (dev *Device) writeU16(w Bank, off int64, v uint16) {
	if dev.err != nil {
		return
	}
	if dev.cfg.verbose {
		dev.msg.Printf("w %-4s <- 0x%04x", regs.Name(off), v)
	}
	binary.LittleEndian.PutUint16(dev.buf[:2], v)
	_, dev.err = w.WriteAt(dev.buf[:2], off)
	if dev.err != nil {
		dev.err = fmt.Errorf("stmrtc: could not write register %s: %w", regs.Name(off), dev.err)
		return
	}
}

// Counter returns the current value of the seconds counter.
//
// After a bus reset or a bus clock stop, WaitForSynchro must have returned
// before the value can be trusted.
func (dev *Device) Counter() uint32 {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.regs.cnt.r()
}

// Divider returns the live value of the prescaler divider.
func (dev *Device) Divider() uint32 {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.divider()
}

func (dev *Device) divider() uint32 {
	hi := uint32(dev.regs.div.hi.r() & regs.DIVH_MASK)
	lo := uint32(dev.regs.div.lo.r())
	return hi<<16 | lo
}

// State is a snapshot of the peripheral registers.
type State struct {
	Enabled Interrupt // CRH
	Flags   Flag      // CRL, without the configuration bit
	Config  bool      // CRL.CNF
	Counter uint32
	Divider uint32
}

func (st State) String() string {
	return fmt.Sprintf(
		"counter=%d (0x%08x) divider=0x%05x flags=%v it=%v cnf=%v",
		st.Counter, st.Counter, st.Divider, st.Flags, st.Enabled, st.Config,
	)
}

// Snapshot reads the control, counter and divider registers at once.
func (dev *Device) Snapshot() (State, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	var (
		crh = dev.regs.crh.r()
		crl = dev.regs.crl.r()
		st  = State{
			Enabled: Interrupt(crh) & ITAll,
			Flags:   Flag(crl) & FlagAll,
			Config:  crl&regs.CRL_CNF != 0,
			Counter: dev.regs.cnt.r(),
			Divider: dev.divider(),
		}
	)
	if dev.err != nil {
		return State{}, fmt.Errorf("stmrtc: could not read RTC state: %w", dev.err)
	}
	return st, nil
}
