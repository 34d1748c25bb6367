// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stmrtc drives the battery-backed real-time clock of STM32F10x
// micro-controllers.
//
// The peripheral holds a 32-bit seconds counter, a 20-bit prescaler reload,
// a 32-bit alarm and the live prescaler divider, each split over two 16-bit
// registers. The counter, prescaler and alarm registers may only be written
// inside a configuration window (CRL.CNF set); the write is committed in the
// RTC clock domain when the window is closed and the peripheral reports the
// end of the commit through CRL.RTOFF. After a bus reset or a bus clock stop,
// register reads may only be trusted once CRL.RSF has been set again.
//
// A typical bring-up sequence reads:
//
//	dev.WaitForSynchro(ctx)
//	dev.WaitForLastTask(ctx)
//	dev.SetPrescaler(0x7fff) // 32.768 kHz LSE -> 1 Hz
//	dev.WaitForLastTask(ctx)
//	dev.SetCounter(now)
//	dev.WaitForLastTask(ctx)
//
// which is what Device.Setup does.
package stmrtc // import "github.com/go-lpc/rtc/stmrtc"

import (
	"errors"
	"io"
)

// Bank is the register window of the RTC peripheral.
//
// Registers are 16-bit little-endian words on a 32-bit stride, addressed by
// their offset from the peripheral base.
type Bank interface {
	io.ReaderAt
	io.WriterAt
}

var (
	// ErrConfigClosed is returned when a configuration window is used
	// after it has been exited.
	ErrConfigClosed = errors.New("stmrtc: configuration mode already exited")

	// ErrPollTimeout is returned when a poll loop exhausted its retries
	// before the hardware condition was observed.
	ErrPollTimeout = errors.New("stmrtc: hardware condition not reached")
)
