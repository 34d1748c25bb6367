// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rtcsim simulates the register window of an STM32F10x RTC
// peripheral.
//
// The simulated bank follows the write protocol of the silicon: counter,
// prescaler and alarm writes are only staged while CRL.CNF is set and are
// committed when it is cleared; CRL.RTOFF then stays low for a number of
// status reads, during which writes are lost. After a simulated bus reset,
// counter and divider reads return stale values until CRL.RSF is set
// again. Every breach of the protocol is recorded as a Violation.
package rtcsim // import "github.com/go-lpc/rtc/stmrtc/rtcsim"

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/go-lpc/rtc/stmrtc/internal/regs"
)

// Register offsets of the RTC window.
const (
	CRH  = regs.CRH
	CRL  = regs.CRL
	PRLH = regs.PRLH
	PRLL = regs.PRLL
	DIVH = regs.DIVH
	DIVL = regs.DIVL
	CNTH = regs.CNTH
	CNTL = regs.CNTL
	ALRH = regs.ALRH
	ALRL = regs.ALRL

	Span = regs.RTC_SPAN
)

// Register bits.
const (
	SECIE = regs.CRH_SECIE
	ALRIE = regs.CRH_ALRIE
	OWIE  = regs.CRH_OWIE

	SECF  = regs.CRL_SECF
	ALRF  = regs.CRL_ALRF
	OWF   = regs.CRL_OWF
	RSF   = regs.CRL_RSF
	CNF   = regs.CRL_CNF
	RTOFF = regs.CRL_RTOFF
)

const maxViolations = 1024

// Config holds the timing of the simulated peripheral, expressed in CRL
// reads since the CPU has no other way to observe time passing in the RTC
// domain.
type Config struct {
	WriteLatency int  // CRL reads with RTOFF low after a write is started
	SyncLatency  int  // CRL reads with RSF low after it is cleared
	Trace        bool // record every register access
}

// Access is a register access issued through the Bank.
type Access struct {
	Write bool
	Reg   string
	Off   int64
	Value uint16
	CNF   bool // configuration mode before the access
}

func (acc Access) String() string {
	op := "r"
	if acc.Write {
		op = "w"
	}
	return fmt.Sprintf("%s %-4s 0x%04x cnf=%v", op, acc.Reg, acc.Value, acc.CNF)
}

// ViolationKind describes a breach of the peripheral protocol.
type ViolationKind uint8

const (
	WriteOutsideConfig ViolationKind = iota + 1 // CNT/PRL/ALR written with CNF clear
	WriteWhileBusy                              // register written with RTOFF low
	WriteReadOnly                               // DIV or RTOFF written
	ReadUnsynchronized                          // CNT/DIV read before RSF was set back
)

func (k ViolationKind) String() string {
	switch k {
	case WriteOutsideConfig:
		return "write-outside-config"
	case WriteWhileBusy:
		return "write-while-busy"
	case WriteReadOnly:
		return "write-read-only"
	case ReadUnsynchronized:
		return "read-unsynchronized"
	}
	return fmt.Sprintf("ViolationKind(%d)", uint8(k))
}

// Violation is a recorded breach of the peripheral protocol.
type Violation struct {
	Kind  ViolationKind
	Reg   string
	Value uint16
}

func (v Violation) String() string {
	return fmt.Sprintf("%v: %s=0x%04x", v.Kind, v.Reg, v.Value)
}

// Bank is a simulated RTC register window.
// It implements io.ReaderAt and io.WriterAt with 16-bit accesses.
type Bank struct {
	mu  sync.Mutex
	cfg Config

	crh   uint16
	flags uint16 // SECF, ALRF, OWF, RSF
	cnf   bool

	prl uint32
	div uint32
	cnt uint32
	alr uint32

	stage map[int64]uint16 // register halves written in configuration mode
	busy  int              // CRL reads left with RTOFF low
	sync  int              // CRL reads left with RSF low
	stale bool
	snap  struct {
		cnt uint32
		div uint32
	}

	trace []Access
	viols []Violation
}

// New returns a simulated bank in its backup-domain reset state, right
// after a bus reset: registers are not synchronized yet.
func New(cfg Config) *Bank {
	b := &Bank{
		cfg:   cfg,
		prl:   0x8000,
		div:   0x8000,
		alr:   0xffffffff,
		stage: make(map[int64]uint16),
	}
	b.desync()
	return b
}

// ReadAt implements io.ReaderAt.
func (b *Bank) ReadAt(p []byte, off int64) (int, error) {
	if err := checkAccess(p, off); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	cnf := b.cnf
	v := b.read(off)
	binary.LittleEndian.PutUint16(p, v)
	b.record(Access{Reg: regs.Name(off), Off: off, Value: v, CNF: cnf})
	return len(p), nil
}

// WriteAt implements io.WriterAt.
func (b *Bank) WriteAt(p []byte, off int64) (int, error) {
	if err := checkAccess(p, off); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	v := binary.LittleEndian.Uint16(p)
	b.record(Access{Write: true, Reg: regs.Name(off), Off: off, Value: v, CNF: b.cnf})
	b.write(off, v)
	return len(p), nil
}

func checkAccess(p []byte, off int64) error {
	switch {
	case len(p) != 2:
		return fmt.Errorf("rtcsim: invalid %d-byte access at 0x%x", len(p), off)
	case off < 0 || off >= Span || off%4 != 0:
		return fmt.Errorf("rtcsim: invalid register offset 0x%x", off)
	}
	return nil
}

func (b *Bank) read(off int64) uint16 {
	switch off {
	case CRH:
		return b.crh
	case CRL:
		v := b.crl()
		if b.busy > 0 {
			b.busy--
		}
		if b.flags&RSF == 0 {
			b.sync--
			if b.sync <= 0 {
				b.synchronized()
			}
		}
		return v
	case DIVH:
		return uint16(b.view(off, b.div, b.snap.div)>>16) & regs.DIVH_MASK
	case DIVL:
		return uint16(b.view(off, b.div, b.snap.div))
	case CNTH:
		return uint16(b.view(off, b.cnt, b.snap.cnt) >> 16)
	case CNTL:
		return uint16(b.view(off, b.cnt, b.snap.cnt))
	}
	// PRL and ALR are write-only, other offsets are reserved.
	return 0
}

// view returns the value seen by the CPU for a register living in the RTC
// clock domain.
func (b *Bank) view(off int64, live, snap uint32) uint32 {
	if !b.stale {
		return live
	}
	v := snap
	if off == CNTH || off == DIVH {
		v >>= 16
	}
	b.violate(ReadUnsynchronized, off, uint16(v))
	return snap
}

func (b *Bank) crl() uint16 {
	v := b.flags
	if b.cnf {
		v |= CNF
	}
	if b.busy == 0 {
		v |= RTOFF
	}
	return v
}

func (b *Bank) write(off int64, v uint16) {
	if b.busy > 0 {
		b.violate(WriteWhileBusy, off, v)
		return
	}

	switch off {
	case CRH:
		b.crh = v & regs.CRH_MASK
		b.busy = b.cfg.WriteLatency

	case CRL:
		if v&RTOFF != 0 {
			b.violate(WriteReadOnly, off, v)
		}
		rsf := b.flags & RSF
		b.flags &= v | ^uint16(regs.CRL_RC_W0)
		if rsf != 0 && b.flags&RSF == 0 {
			b.armSync()
		}
		cnf := v&CNF != 0
		if b.cnf && !cnf {
			b.commit()
		}
		b.cnf = cnf

	case CNTH, CNTL, PRLH, PRLL, ALRH, ALRL:
		if !b.cnf {
			b.violate(WriteOutsideConfig, off, v)
			return
		}
		b.stage[off] = v

	case DIVH, DIVL:
		b.violate(WriteReadOnly, off, v)
	}
}

func (b *Bank) commit() {
	for off, v := range b.stage {
		switch off {
		case CNTH:
			b.cnt = setHi(b.cnt, v)
		case CNTL:
			b.cnt = setLo(b.cnt, v)
		case PRLH:
			b.prl = setHi(b.prl, v&regs.DIVH_MASK)
		case PRLL:
			b.prl = setLo(b.prl, v)
		case ALRH:
			b.alr = setHi(b.alr, v)
		case ALRL:
			b.alr = setLo(b.alr, v)
		}
		delete(b.stage, off)
	}
	b.busy = b.cfg.WriteLatency
}

func setHi(v uint32, hi uint16) uint32 { return v&regs.LSB_MASK | uint32(hi)<<16 }
func setLo(v uint32, lo uint16) uint32 { return v&^regs.LSB_MASK | uint32(lo) }

func (b *Bank) desync() {
	b.stale = true
	b.snap.cnt = b.cnt
	b.snap.div = b.div
	b.flags &^= RSF
	b.armSync()
}

func (b *Bank) armSync() {
	b.sync = b.cfg.SyncLatency
	if b.sync <= 0 {
		b.synchronized()
	}
}

func (b *Bank) synchronized() {
	b.flags |= RSF
	b.stale = false
}

func (b *Bank) record(acc Access) {
	if !b.cfg.Trace {
		return
	}
	b.trace = append(b.trace, acc)
}

func (b *Bank) violate(kind ViolationKind, off int64, v uint16) {
	if len(b.viols) >= maxViolations {
		return
	}
	b.viols = append(b.viols, Violation{Kind: kind, Reg: regs.Name(off), Value: v})
}

// Tick advances the counter by one second, raising the second, alarm and
// overflow flags as the hardware does.
func (b *Bank) Tick() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tick()
}

func (b *Bank) tick() {
	b.cnt++
	b.div = b.prl
	b.flags |= SECF
	if b.cnt == 0 {
		b.flags |= OWF
	}
	if b.cnt == b.alr {
		b.flags |= ALRF
	}
}

// Step advances the prescaler divider by n RTC clock cycles, ticking the
// counter each time the divider underflows.
func (b *Bank) Step(n uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := uint32(0); i < n; i++ {
		if b.div == 0 {
			b.tick()
			continue
		}
		b.div--
	}
}

// Run ticks the counter every period until the context is done.
func (b *Bank) Run(ctx context.Context, period time.Duration) error {
	tick := time.NewTicker(period)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			b.Tick()
		}
	}
}

// Desync simulates a bus reset or a bus clock stop: RSF is cleared and
// counter and divider reads return the values frozen at that point until
// the registers are synchronized again.
func (b *Bank) Desync() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.desync()
}

// Peek returns the raw content of a register, including write-only ones,
// without any side effect.
func (b *Bank) Peek(off int64) uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch off {
	case CRH:
		return b.crh
	case CRL:
		return b.crl()
	case PRLH:
		return uint16(b.prl >> 16)
	case PRLL:
		return uint16(b.prl)
	case DIVH:
		return uint16(b.div >> 16)
	case DIVL:
		return uint16(b.div)
	case CNTH:
		return uint16(b.cnt >> 16)
	case CNTL:
		return uint16(b.cnt)
	case ALRH:
		return uint16(b.alr >> 16)
	case ALRL:
		return uint16(b.alr)
	}
	return 0
}

// Poke forces the raw content of a register, bypassing the write protocol.
// For CRL, only the SECF, ALRF, OWF and RSF flags are affected.
func (b *Bank) Poke(off int64, v uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch off {
	case CRH:
		b.crh = v & regs.CRH_MASK
	case CRL:
		b.flags = v & regs.CRL_RC_W0
		if b.flags&RSF != 0 {
			b.stale = false
		}
	case PRLH:
		b.prl = setHi(b.prl, v&regs.DIVH_MASK)
	case PRLL:
		b.prl = setLo(b.prl, v)
	case DIVH:
		b.div = setHi(b.div, v&regs.DIVH_MASK)
	case DIVL:
		b.div = setLo(b.div, v)
	case CNTH:
		b.cnt = setHi(b.cnt, v)
	case CNTL:
		b.cnt = setLo(b.cnt, v)
	case ALRH:
		b.alr = setHi(b.alr, v)
	case ALRL:
		b.alr = setLo(b.alr, v)
	}
}

// Busy reports whether a write is still being committed.
func (b *Bank) Busy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.busy > 0
}

// Trace returns the register accesses recorded so far.
func (b *Bank) Trace() []Access {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Access(nil), b.trace...)
}

// Violations returns the protocol violations recorded so far.
func (b *Bank) Violations() []Violation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Violation(nil), b.viols...)
}

// Reset forgets the recorded trace and violations.
func (b *Bank) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trace = b.trace[:0]
	b.viols = b.viols[:0]
}
