// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stmrtc

import (
	"fmt"
	"strings"

	"github.com/go-lpc/rtc/stmrtc/internal/regs"
)

// Flag is a set of CRL status flags.
type Flag uint16

const (
	FlagSEC   Flag = regs.CRL_SECF  // second tick
	FlagALR   Flag = regs.CRL_ALRF  // alarm
	FlagOW    Flag = regs.CRL_OWF   // counter overflow
	FlagRSF   Flag = regs.CRL_RSF   // registers synchronized
	FlagRTOFF Flag = regs.CRL_RTOFF // last write terminated

	// FlagAll holds every flag known to the peripheral.
	FlagAll = FlagSEC | FlagALR | FlagOW | FlagRSF | FlagRTOFF

	// flagClearable holds the flags software may clear.
	flagClearable = FlagSEC | FlagALR | FlagOW | FlagRSF
)

var flagNames = []struct {
	f    Flag
	name string
}{
	{FlagSEC, "SEC"},
	{FlagALR, "ALR"},
	{FlagOW, "OW"},
	{FlagRSF, "RSF"},
	{FlagRTOFF, "RTOFF"},
}

// Valid reports whether f only holds known flags.
func (f Flag) Valid() bool { return f&^FlagAll == 0 }

func (f Flag) bits() uint16 { return uint16(f & FlagAll) }

func (f Flag) String() string {
	f &= FlagAll
	if f == 0 {
		return "0"
	}
	var names []string
	for _, v := range flagNames {
		if f&v.f != 0 {
			names = append(names, v.name)
		}
	}
	return strings.Join(names, "|")
}

// ParseFlag parses a '|' or ',' separated list of flag names,
// as returned by Flag.String.
func ParseFlag(s string) (Flag, error) {
	var f Flag
	for _, tok := range splitNames(s) {
		v, ok := lookupFlag(tok)
		if !ok {
			return 0, fmt.Errorf("stmrtc: unknown flag %q", tok)
		}
		f |= v
	}
	return f, nil
}

func lookupFlag(name string) (Flag, bool) {
	name = strings.ToUpper(name)
	for _, v := range flagNames {
		if v.name == name {
			return v.f, true
		}
	}
	return 0, false
}

// Interrupt is a set of RTC interrupt sources.
type Interrupt uint16

const (
	ITSecond   Interrupt = regs.CRH_SECIE
	ITAlarm    Interrupt = regs.CRH_ALRIE
	ITOverflow Interrupt = regs.CRH_OWIE

	// ITAll holds every interrupt source of the peripheral.
	ITAll = ITSecond | ITAlarm | ITOverflow
)

// sources maps each interrupt source to its enable bit (CRH) and its
// pending flag (CRL).
// Enable and pending bits happen to sit at the same positions on this
// peripheral; nothing in the driver relies on it.
var sources = []struct {
	it   Interrupt
	flag Flag
	name string
}{
	{ITSecond, FlagSEC, "SEC"},
	{ITAlarm, FlagALR, "ALR"},
	{ITOverflow, FlagOW, "OW"},
}

// Valid reports whether it only holds known interrupt sources.
func (it Interrupt) Valid() bool { return it&^ITAll == 0 }

func (it Interrupt) bits() uint16 { return uint16(it & ITAll) }

// Flag returns the pending flags associated with the interrupt sources.
func (it Interrupt) Flag() Flag {
	var f Flag
	for _, src := range sources {
		if it&src.it != 0 {
			f |= src.flag
		}
	}
	return f
}

func (it Interrupt) String() string {
	it &= ITAll
	if it == 0 {
		return "0"
	}
	var names []string
	for _, src := range sources {
		if it&src.it != 0 {
			names = append(names, src.name)
		}
	}
	return strings.Join(names, "|")
}

// ParseInterrupt parses a '|' or ',' separated list of interrupt source
// names (SEC, ALR, OW), as returned by Interrupt.String.
func ParseInterrupt(s string) (Interrupt, error) {
	var it Interrupt
	for _, tok := range splitNames(s) {
		found := false
		for _, src := range sources {
			if src.name == strings.ToUpper(tok) {
				it |= src.it
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("stmrtc: unknown interrupt source %q", tok)
		}
	}
	return it, nil
}

func splitNames(s string) []string {
	toks := strings.FieldsFunc(s, func(r rune) bool {
		return r == '|' || r == ',' || r == ' '
	})
	out := toks[:0]
	for _, tok := range toks {
		if tok == "0" {
			continue
		}
		out = append(out, tok)
	}
	return out
}
