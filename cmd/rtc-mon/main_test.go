// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/go-lpc/rtc/stmrtc"
	"github.com/go-lpc/rtc/stmrtc/rtcsim"
)

type fakeMailer struct {
	subjects []string
}

func (m *fakeMailer) send(subject, body string) error {
	m.subjects = append(m.subjects, subject)
	return nil
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	bank := rtcsim.New(rtcsim.Config{WriteLatency: 1, SyncLatency: 2})
	dev := stmrtc.New(bank)

	err := dev.Setup(ctx, stmrtc.Config{
		Prescaler: 0x7fff,
		Counter:   u32(0xfffffffe),
		Alarm:     u32(0xffffffff),
	})
	if err != nil {
		t.Fatalf("could not setup RTC: %+v", err)
	}

	var (
		mail = new(fakeMailer)
		mon  = newMonitor(dev, time.Second, mail)
	)

	bank.Tick() // alarm
	bank.Tick() // overflow
	err = mon.check(ctx)
	if err != nil {
		t.Fatalf("could not check RTC: %+v", err)
	}
	if dev.FlagStatus(stmrtc.FlagALR | stmrtc.FlagOW) {
		t.Fatalf("alarm and overflow flags not cleared")
	}
	if !dev.FlagStatus(stmrtc.FlagSEC) {
		t.Fatalf("second flag cleared")
	}

	bank.Desync()
	err = mon.check(ctx)
	if err != nil {
		t.Fatalf("could not check RTC: %+v", err)
	}
	if !dev.FlagStatus(stmrtc.FlagRSF) {
		t.Fatalf("RTC not resynchronized")
	}

	err = mon.check(ctx)
	if err != nil {
		t.Fatalf("could not check RTC: %+v", err)
	}

	want := []string{
		"[rtc-mon] alarm alert",
		"[rtc-mon] overflow alert",
		"[rtc-mon] sync alert",
	}
	if got := mail.subjects; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid alerts:\ngot= %q\nwant=%q", got, want)
	}
}

func TestMaxAlerts(t *testing.T) {
	ctx := context.Background()
	bank := rtcsim.New(rtcsim.Config{})
	dev := stmrtc.New(bank)

	var (
		mail = new(fakeMailer)
		mon  = newMonitor(dev, time.Second, mail)
	)
	for i := 0; i < 2*maxAlerts; i++ {
		bank.Poke(rtcsim.CRL, rtcsim.ALRF|rtcsim.RSF)
		err := mon.check(ctx)
		if err != nil {
			t.Fatalf("could not check RTC: %+v", err)
		}
	}

	if got, want := len(mail.subjects), maxAlerts; got != want {
		t.Fatalf("invalid number of mails: got=%d, want=%d", got, want)
	}
	if got, want := mon.alerts["alarm"], 2*maxAlerts; got != want {
		t.Fatalf("invalid number of alerts: got=%d, want=%d", got, want)
	}
}

func TestRun(t *testing.T) {
	bank := rtcsim.New(rtcsim.Config{WriteLatency: 1, SyncLatency: 1})
	dev := stmrtc.New(bank, stmrtc.WithPollBackoff(time.Millisecond, 10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	mon := newMonitor(dev, 5*time.Millisecond, new(fakeMailer))
	err := mon.run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("invalid error: %+v", err)
	}
}

func TestMailer(t *testing.T) {
	alertMailUsr = ""
	err := mailer{}.send("subject", "body")
	if err == nil || !strings.Contains(err.Error(), "missing credentials") {
		t.Fatalf("invalid error: %+v", err)
	}

	for _, tc := range []struct {
		s    string
		want []string
	}{
		{"", nil},
		{"a@example.com", []string{"a@example.com"}},
		{"a@example.com, b@example.com,", []string{"a@example.com", "b@example.com"}},
	} {
		if got := splitTargets(tc.s); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("invalid targets for %q: got=%q, want=%q", tc.s, got, tc.want)
		}
	}
}

func u32(v uint32) *uint32 { return &v }
