// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stmrtc

import (
	"github.com/go-lpc/rtc/stmrtc/internal/regs"
)

type reg16 struct {
	r func() uint16
	w func(v uint16)
}

func newReg16(dev *Device, rw Bank, offset int64) reg16 {
	return reg16{
		r: func() uint16 {
			return dev.readU16(rw, offset)
		},
		w: func(v uint16) {
			dev.writeU16(rw, offset, v)
		},
	}
}

// reg32 is a logical 32-bit value split over a high and a low 16-bit
// register.
type reg32 struct {
	hi reg16
	lo reg16
}

func newReg32(dev *Device, rw Bank, hi, lo int64) reg32 {
	return reg32{
		hi: newReg16(dev, rw, hi),
		lo: newReg16(dev, rw, lo),
	}
}

// r reads the low half first, then the high half.
func (reg *reg32) r() uint32 {
	lo := reg.lo.r()
	hi := reg.hi.r()
	return uint32(hi)<<16 | uint32(lo)
}

// w writes the high half first, then the low half.
func (reg *reg32) w(v uint32) {
	reg.hi.w(uint16(v >> 16))
	reg.lo.w(uint16(v & regs.LSB_MASK))
}
