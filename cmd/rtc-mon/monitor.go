// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	mail "gopkg.in/gomail.v2"

	"github.com/go-lpc/rtc/stmrtc"
)

const maxAlerts = 5

type sender interface {
	send(subject, body string) error
}

type monitor struct {
	dev    *stmrtc.Device
	freq   time.Duration
	mail   sender
	alerts map[string]int // number of alerts per kind
}

func newMonitor(dev *stmrtc.Device, freq time.Duration, mail sender) *monitor {
	return &monitor{
		dev:    dev,
		freq:   freq,
		mail:   mail,
		alerts: make(map[string]int),
	}
}

func (mon *monitor) run(ctx context.Context) error {
	err := mon.dev.WaitForSynchro(ctx)
	if err != nil {
		return fmt.Errorf("could not synchronize RTC: %w", err)
	}

	tick := time.NewTicker(mon.freq)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			err := mon.check(ctx)
			if err != nil {
				return err
			}
		}
	}
}

func (mon *monitor) check(ctx context.Context) error {
	st, err := mon.dev.Snapshot()
	if err != nil {
		return fmt.Errorf("could not read RTC state: %w", err)
	}

	if st.Flags&stmrtc.FlagRSF == 0 {
		mon.alert("sync", st)
		err = mon.dev.WaitForSynchro(ctx)
		if err != nil {
			return fmt.Errorf("could not resynchronize RTC: %w", err)
		}
	}

	var handled stmrtc.Flag
	for _, v := range []struct {
		kind string
		flag stmrtc.Flag
	}{
		{"alarm", stmrtc.FlagALR},
		{"overflow", stmrtc.FlagOW},
	} {
		if st.Flags&v.flag == 0 {
			continue
		}
		mon.alert(v.kind, st)
		handled |= v.flag
	}

	if handled == 0 {
		return nil
	}
	err = mon.dev.ClearFlag(handled)
	if err != nil {
		return fmt.Errorf("could not clear flags %v: %w", handled, err)
	}
	return nil
}

func (mon *monitor) alert(kind string, st stmrtc.State) {
	log.Printf("%s alert: %v", kind, st)
	mon.alerts[kind]++

	if mon.alerts[kind] > maxAlerts {
		return
	}

	err := mon.mail.send(
		fmt.Sprintf("[rtc-mon] %s alert", kind),
		fmt.Sprintf("kind: %s\nstate: %v\nfreq: %v\ncount: %d",
			kind, st, mon.freq, mon.alerts[kind],
		),
	)
	if err != nil {
		log.Printf("could not send mail alert: %+v", err)
	}
}

var (
	alertMailUsr  = os.Getenv("MAIL_USERNAME")
	alertMailPwd  = os.Getenv("MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("MAIL_PORT"))
	alertMailTgts = splitTargets(os.Getenv("MAIL_TGTS"))
)

type mailer struct{}

func (mailer) send(subject, body string) error {
	if alertMailUsr == "" || alertMailPwd == "" ||
		alertMailSrv == "" || alertMailPort == 0 ||
		len(alertMailTgts) == 0 {
		return fmt.Errorf("missing credentials")
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", alertMailUsr)
	msg.SetHeader("Bcc", alertMailTgts...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	return dial.DialAndSend(msg)
}

func splitTargets(s string) []string {
	var out []string
	for _, tgt := range strings.Split(s, ",") {
		tgt = strings.TrimSpace(tgt)
		if tgt == "" {
			continue
		}
		out = append(out, tgt)
	}
	return out
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
