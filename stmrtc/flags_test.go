// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stmrtc

import (
	"fmt"
	"testing"

	"github.com/go-lpc/rtc/stmrtc/internal/regs"
	"github.com/go-lpc/rtc/stmrtc/rtcsim"
)

func TestFlagString(t *testing.T) {
	for _, tc := range []struct {
		f    Flag
		want string
	}{
		{0, "0"},
		{FlagSEC, "SEC"},
		{FlagALR | FlagOW, "ALR|OW"},
		{FlagAll, "SEC|ALR|OW|RSF|RTOFF"},
		{FlagRSF | 0x100, "RSF"},
	} {
		t.Run(tc.want, func(t *testing.T) {
			if got, want := tc.f.String(), tc.want; got != want {
				t.Fatalf("invalid string: got=%q, want=%q", got, want)
			}
			f, err := ParseFlag(tc.want)
			if err != nil {
				t.Fatalf("could not parse %q: %+v", tc.want, err)
			}
			if got, want := f, tc.f&FlagAll; got != want {
				t.Fatalf("invalid round-trip: got=%v, want=%v", got, want)
			}
		})
	}

	for _, tc := range []struct {
		s    string
		want Flag
		err  error
	}{
		{"sec,alr", FlagSEC | FlagALR, nil},
		{"ow rsf", FlagOW | FlagRSF, nil},
		{"", 0, nil},
		{"SEC|CNF", 0, fmt.Errorf(`stmrtc: unknown flag "CNF"`)},
	} {
		t.Run(tc.s, func(t *testing.T) {
			got, err := ParseFlag(tc.s)
			switch {
			case err != nil && tc.err != nil:
				if got, want := err.Error(), tc.err.Error(); got != want {
					t.Fatalf("invalid error: got=%q, want=%q", got, want)
				}
				return
			case err != nil:
				t.Fatalf("could not parse %q: %+v", tc.s, err)
			case tc.err != nil:
				t.Fatalf("expected an error parsing %q", tc.s)
			}
			if got != tc.want {
				t.Fatalf("invalid flags: got=%v, want=%v", got, tc.want)
			}
		})
	}

	if Flag(regs.CRL_CNF).Valid() {
		t.Fatalf("CNF is not a status flag")
	}
	if !FlagAll.Valid() {
		t.Fatalf("FlagAll should be valid")
	}
}

func TestInterruptString(t *testing.T) {
	for _, tc := range []struct {
		it   Interrupt
		want string
		flag Flag
	}{
		{0, "0", 0},
		{ITSecond, "SEC", FlagSEC},
		{ITAlarm, "ALR", FlagALR},
		{ITOverflow, "OW", FlagOW},
		{ITOverflow | ITAlarm, "ALR|OW", FlagALR | FlagOW},
		{ITAll, "SEC|ALR|OW", FlagSEC | FlagALR | FlagOW},
	} {
		t.Run(tc.want, func(t *testing.T) {
			if got, want := tc.it.String(), tc.want; got != want {
				t.Fatalf("invalid string: got=%q, want=%q", got, want)
			}
			if got, want := tc.it.Flag(), tc.flag; got != want {
				t.Fatalf("invalid pending flags: got=%v, want=%v", got, want)
			}
			it, err := ParseInterrupt(tc.want)
			if err != nil {
				t.Fatalf("could not parse %q: %+v", tc.want, err)
			}
			if it != tc.it {
				t.Fatalf("invalid round-trip: got=%v, want=%v", it, tc.it)
			}
		})
	}

	_, err := ParseInterrupt("SEC,RSF")
	if err == nil {
		t.Fatalf("expected an error parsing a non-interrupt flag")
	}
	if Interrupt(0x8).Valid() {
		t.Fatalf("0x8 is not an interrupt source")
	}
}

func TestITConfig(t *testing.T) {
	dev, bank := newSim(t, rtcsim.Config{})

	for _, tc := range []struct {
		it      Interrupt
		enabled bool
		want    uint16
	}{
		{ITOverflow | ITAlarm, true, regs.CRH_OWIE | regs.CRH_ALRIE},
		{ITOverflow, false, regs.CRH_ALRIE},
		{ITSecond, true, regs.CRH_ALRIE | regs.CRH_SECIE},
		{ITSecond, true, regs.CRH_ALRIE | regs.CRH_SECIE},
		{ITOverflow, false, regs.CRH_ALRIE | regs.CRH_SECIE},
		{ITAll, false, 0},
		{ITAll, true, regs.CRH_MASK},
		{0, false, regs.CRH_MASK},
	} {
		t.Run(fmt.Sprintf("%v=%v", tc.it, tc.enabled), func(t *testing.T) {
			err := dev.ITConfig(tc.it, tc.enabled)
			if err != nil {
				t.Fatalf("could not configure interrupts: %+v", err)
			}
			if got, want := bank.Peek(regs.CRH), tc.want; got != want {
				t.Fatalf("invalid CRH: got=0x%04x, want=0x%04x", got, want)
			}
		})
	}
	checkViolations(t, bank)
}

func TestITStatus(t *testing.T) {
	dev, bank := newSim(t, rtcsim.Config{})

	for _, src := range sources {
		for _, enabled := range []bool{false, true} {
			for _, pending := range []bool{false, true} {
				name := fmt.Sprintf("%s-enabled=%v-pending=%v", src.name, enabled, pending)
				t.Run(name, func(t *testing.T) {
					var crh, crl uint16
					if enabled {
						crh = uint16(src.it)
					}
					if pending {
						crl = uint16(src.flag)
					}
					// other sources are enabled and pending.
					for _, o := range sources {
						if o.it == src.it {
							continue
						}
						crh |= uint16(o.it)
						crl |= uint16(o.flag)
					}
					bank.Poke(regs.CRH, crh)
					bank.Poke(regs.CRL, crl|regs.CRL_RSF)

					if got, want := dev.ITStatus(src.it), enabled && pending; got != want {
						t.Fatalf("invalid status: got=%v, want=%v", got, want)
					}
					if got, want := dev.FlagStatus(src.flag), pending; got != want {
						t.Fatalf("invalid flag status: got=%v, want=%v", got, want)
					}
				})
			}
		}
	}
}

func TestClearFlag(t *testing.T) {
	for _, tc := range []struct {
		clear Flag
		want  uint16
	}{
		{FlagALR, regs.CRL_SECF | regs.CRL_OWF | regs.CRL_RSF},
		{FlagSEC | FlagOW, regs.CRL_ALRF | regs.CRL_RSF},
		{FlagRTOFF, regs.CRL_RC_W0},
		{0, regs.CRL_RC_W0},
		{FlagRSF, regs.CRL_SECF | regs.CRL_ALRF | regs.CRL_OWF},
		{FlagAll, 0},
	} {
		t.Run(tc.clear.String(), func(t *testing.T) {
			dev, bank := newSim(t, rtcsim.Config{SyncLatency: 3})
			bank.Poke(regs.CRL, regs.CRL_RC_W0)

			err := dev.ClearFlag(tc.clear)
			if err != nil {
				t.Fatalf("could not clear flags: %+v", err)
			}
			if got, want := bank.Peek(regs.CRL), tc.want|regs.CRL_RTOFF; got != want {
				t.Fatalf("invalid CRL: got=0x%04x, want=0x%04x", got, want)
			}
			checkViolations(t, bank)
		})
	}
}

func TestClearITPendingBit(t *testing.T) {
	dev, bank := newSim(t, rtcsim.Config{})
	bank.Poke(regs.CRL, regs.CRL_RC_W0)

	err := dev.ClearITPendingBit(ITOverflow | ITSecond)
	if err != nil {
		t.Fatalf("could not clear pending interrupts: %+v", err)
	}
	if got, want := bank.Peek(regs.CRL), uint16(regs.CRL_ALRF|regs.CRL_RSF|regs.CRL_RTOFF); got != want {
		t.Fatalf("invalid CRL: got=0x%04x, want=0x%04x", got, want)
	}
}
