// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package regs holds the register map of the STM32F10x RTC peripheral.
package regs // import "github.com/go-lpc/rtc/stmrtc/internal/regs"

// physical location of the RTC peripheral on the APB1 bus.
const (
	RTC_BASE = 0x40002800
	RTC_SPAN = 0x400
)

// register offsets, from RTC_BASE.
// each register is 16-bit wide, on a 32-bit stride.
const (
	CRH  = 0x00 // control register high: interrupt enables
	CRL  = 0x04 // control register low: flags, configuration mode
	PRLH = 0x08 // prescaler reload, bits 19:16 (write-only)
	PRLL = 0x0C // prescaler reload, bits 15:0 (write-only)
	DIVH = 0x10 // prescaler divider, bits 19:16 (read-only)
	DIVL = 0x14 // prescaler divider, bits 15:0 (read-only)
	CNTH = 0x18 // counter, bits 31:16
	CNTL = 0x1C // counter, bits 15:0
	ALRH = 0x20 // alarm, bits 31:16 (write-only)
	ALRL = 0x24 // alarm, bits 15:0 (write-only)

	NREGS = 10
)

// CRH bits.
const (
	CRH_SECIE = 0x0001 // second interrupt enable
	CRH_ALRIE = 0x0002 // alarm interrupt enable
	CRH_OWIE  = 0x0004 // overflow interrupt enable

	CRH_MASK = CRH_SECIE | CRH_ALRIE | CRH_OWIE
)

// CRL bits.
const (
	CRL_SECF  = 0x0001 // second flag
	CRL_ALRF  = 0x0002 // alarm flag
	CRL_OWF   = 0x0004 // overflow flag
	CRL_RSF   = 0x0008 // registers synchronized flag
	CRL_CNF   = 0x0010 // configuration flag
	CRL_RTOFF = 0x0020 // RTC operation OFF (last write terminated)

	CRL_MASK = CRL_SECF | CRL_ALRF | CRL_OWF | CRL_RSF | CRL_CNF | CRL_RTOFF

	// flags software may clear by writing 0.
	CRL_RC_W0 = CRL_SECF | CRL_ALRF | CRL_OWF | CRL_RSF
)

const (
	LSB_MASK      = 0x0000FFFF
	PRLH_MSB_MASK = 0x000F0000
	DIVH_MASK     = 0x000F
	PRL_MAX       = 0x000FFFFF
)

// Name returns the register name at the given offset.
func Name(off int64) string {
	switch off {
	case CRH:
		return "CRH"
	case CRL:
		return "CRL"
	case PRLH:
		return "PRLH"
	case PRLL:
		return "PRLL"
	case DIVH:
		return "DIVH"
	case DIVL:
		return "DIVL"
	case CNTH:
		return "CNTH"
	case CNTL:
		return "CNTL"
	case ALRH:
		return "ALRH"
	case ALRL:
		return "ALRL"
	}
	return "???"
}
