// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/go-lpc/rtc/calibdb"
	"github.com/go-lpc/rtc/stmrtc"
	"github.com/go-lpc/rtc/stmrtc/rtcsim"
)

type fakeDB struct {
	prl  map[string]uint32
	last map[string]calibdb.Sync
	recs []calibdb.Sync
}

func (db *fakeDB) Prescaler(ctx context.Context, board string) (uint32, error) {
	v, ok := db.prl[board]
	if !ok {
		return 0, calibdb.ErrNoCalib
	}
	return v, nil
}

func (db *fakeDB) LastSync(ctx context.Context, board string) (calibdb.Sync, error) {
	v, ok := db.last[board]
	if !ok {
		return v, calibdb.ErrNoCalib
	}
	return v, nil
}

func (db *fakeDB) RecordSync(ctx context.Context, board string, sync calibdb.Sync) error {
	db.recs = append(db.recs, sync)
	return nil
}

func (db *fakeDB) Close() error { return nil }

func newTestCtl(t *testing.T) (*ctl, *rtcsim.Bank, *bytes.Buffer, *fakeDB) {
	t.Helper()

	ctl, err := newCtl("", true, 0, false)
	if err != nil {
		t.Fatalf("could not create ctl: %+v", err)
	}
	out := new(bytes.Buffer)
	ctl.out = out
	ctl.timeout = 5 * time.Second

	db := &fakeDB{
		prl:  map[string]uint32{"board-1": 0x7ffe},
		last: map[string]calibdb.Sync{"board-1": {Counter: 0, Time: time.Unix(1600000000, 0).UTC()}},
	}
	ctl.db = func() (calibrator, error) { return db, nil }
	ctl.now = func() time.Time { return time.Unix(1600000062, 0) }

	return ctl, ctl.sim, out, db
}

func TestExec(t *testing.T) {
	ctx := context.Background()
	ctl, bank, out, db := newTestCtl(t)
	defer ctl.close()

	for _, tc := range []struct {
		args string
		want string
	}{
		{"sync", ""},
		{"setup -prescaler 0x7fff -counter 1000 -it SEC", ""},
		{"counter", "counter: 1000 (0x000003e8)\n"},
		{"counter 0x10", ""},
		{"counter", "counter: 16 (0x00000010)\n"},
		{"alarm 20", ""},
		{"it ALR,OW on", ""},
		{"it SEC off", ""},
		{"flags", "flags: RSF|RTOFF\n"},
		{"status", "counter=16 (0x00000010) divider=0x08000 flags=RSF|RTOFF it=ALR|OW cnf=false\n"},
		{"prescaler 0x9c3f", ""},
		{"calib board-1", "board \"board-1\": prescaler=0x07ffe\n"},
		{"record board-1", "board \"board-1\": drift=46s since 2020-09-13T12:26:40Z\nboard \"board-1\": counter=16\n"},
		{"record board-2", "board \"board-2\": no previous sync (calibdb: no calibration data)\nboard \"board-2\": counter=16\n"},
	} {
		t.Run(tc.args, func(t *testing.T) {
			out.Reset()
			err := ctl.exec(ctx, strings.Fields(tc.args))
			if err != nil {
				t.Fatalf("could not run %q: %+v", tc.args, err)
			}
			if got, want := out.String(), tc.want; got != want {
				t.Fatalf("invalid output:\ngot= %q\nwant=%q", got, want)
			}
		})
	}

	if got, want := bank.Peek(rtcsim.CRH), uint16(rtcsim.ALRIE|rtcsim.OWIE); got != want {
		t.Fatalf("invalid CRH: got=0x%04x, want=0x%04x", got, want)
	}
	if got, want := bank.Peek(rtcsim.ALRL), uint16(20); got != want {
		t.Fatalf("invalid alarm: got=%d, want=%d", got, want)
	}
	if got, want := bank.Peek(rtcsim.PRLL), uint16(0x7ffe); got != want {
		t.Fatalf("invalid prescaler: got=0x%x, want=0x%x", got, want)
	}
	if got, want := len(db.recs), 2; got != want {
		t.Fatalf("invalid number of recorded syncs: got=%d, want=%d", got, want)
	}
	if vs := bank.Violations(); len(vs) != 0 {
		t.Fatalf("protocol violations: %v", vs)
	}

	bank.Tick()
	out.Reset()
	err := ctl.exec(ctx, []string{"flags", "clear", "SEC"})
	if err != nil {
		t.Fatalf("could not clear flags: %+v", err)
	}
	if ctl.dev.FlagStatus(stmrtc.FlagSEC) {
		t.Fatalf("second flag not cleared")
	}
}

func TestExecErrors(t *testing.T) {
	ctx := context.Background()
	ctl, _, _, _ := newTestCtl(t)
	defer ctl.close()

	for _, tc := range []struct {
		args string
		want string
	}{
		{"", "missing command"},
		{"boom", `unknown command "boom"`},
		{"counter 1 2", "usage: counter [value]"},
		{"counter 0x1ffffffff", `could not parse value "0x1ffffffff": strconv.ParseUint: parsing "0x1ffffffff": value out of range`},
		{"alarm", "usage: alarm <value>"},
		{"it SEC", "usage: it <sources> on|off"},
		{"it SEC maybe", `invalid interrupt state "maybe" (want on|off)`},
		{"it RSF on", `stmrtc: unknown interrupt source "RSF"`},
		{"flags clear", "usage: flags [clear <flags>]"},
		{"flags clear CNF", `stmrtc: unknown flag "CNF"`},
		{"setup -bogus", "could not parse setup arguments: flag provided but not defined: -bogus"},
		{"calib", "usage: calib <board>"},
		{"calib board-2", "calibdb: no calibration data"},
	} {
		t.Run(tc.args, func(t *testing.T) {
			err := ctl.exec(ctx, strings.Fields(tc.args))
			if err == nil {
				t.Fatalf("expected an error")
			}
			if got, want := err.Error(), tc.want; got != want {
				t.Fatalf("invalid error:\ngot= %q\nwant=%q", got, want)
			}
		})
	}
}

func TestParseSetup(t *testing.T) {
	cnt := uint32(1000)
	alr := uint32(0x10)
	for _, tc := range []struct {
		args string
		want stmrtc.Config
	}{
		{"", stmrtc.Config{Prescaler: 0x7fff}},
		{"-prescaler 32767 -it SEC|ALR", stmrtc.Config{Prescaler: 0x7fff, Interrupts: stmrtc.ITSecond | stmrtc.ITAlarm}},
		{"-counter 1000 -alarm 0x10", stmrtc.Config{Prescaler: 0x7fff, Counter: &cnt, Alarm: &alr}},
	} {
		t.Run(tc.args, func(t *testing.T) {
			got, err := parseSetup(strings.Fields(tc.args))
			if err != nil {
				t.Fatalf("could not parse setup: %+v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("invalid config:\ngot= %+v\nwant=%+v", got, tc.want)
			}
		})
	}
}

func TestEval(t *testing.T) {
	ctx := context.Background()
	ctl, _, out, _ := newTestCtl(t)
	defer ctl.close()

	for _, tc := range []struct {
		line string
		quit bool
		want string
	}{
		{"", false, ""},
		{"   ", false, ""},
		{"help", false, fmt.Sprintf("commands: %s quit\n", strings.Join(commands, " "))},
		{"sync", false, ""},
		{"quit", true, ""},
		{"exit", true, ""},
	} {
		t.Run(tc.line, func(t *testing.T) {
			out.Reset()
			quit, err := ctl.eval(ctx, tc.line)
			if err != nil {
				t.Fatalf("could not eval %q: %+v", tc.line, err)
			}
			if quit != tc.quit {
				t.Fatalf("invalid quit: got=%v, want=%v", quit, tc.quit)
			}
			if got, want := out.String(), tc.want; got != want {
				t.Fatalf("invalid output: got=%q, want=%q", got, want)
			}
		})
	}

	if got, want := complete("s"), []string{"status", "sync", "setup"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid completion: got=%q, want=%q", got, want)
	}
}
