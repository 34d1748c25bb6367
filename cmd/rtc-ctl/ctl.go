// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-lpc/rtc/calibdb"
	"github.com/go-lpc/rtc/stmrtc"
	"github.com/go-lpc/rtc/stmrtc/rtcsim"
)

type calibrator interface {
	Prescaler(ctx context.Context, board string) (uint32, error)
	LastSync(ctx context.Context, board string) (calibdb.Sync, error)
	RecordSync(ctx context.Context, board string, sync calibdb.Sync) error
	Close() error
}

type ctl struct {
	dev *stmrtc.Device
	sim *rtcsim.Bank // nil when driving real hardware
	out io.Writer

	timeout time.Duration
	db      func() (calibrator, error)
	now     func() time.Time
}

func (ctl *ctl) close() {
	_ = ctl.dev.Close()
}

var commands = []string{
	"status", "counter", "prescaler", "alarm", "divider",
	"it", "flags", "sync", "setup", "calib", "record",
}

func (ctl *ctl) exec(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command")
	}

	if ctl.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ctl.timeout)
		defer cancel()
	}

	name, args := args[0], args[1:]
	switch name {
	case "status":
		st, err := ctl.dev.Snapshot()
		if err != nil {
			return err
		}
		fmt.Fprintf(ctl.out, "%v\n", st)
		return nil

	case "counter":
		switch len(args) {
		case 0:
			cnt := ctl.dev.Counter()
			if err := ctl.dev.Err(); err != nil {
				return err
			}
			fmt.Fprintf(ctl.out, "counter: %d (0x%08x)\n", cnt, cnt)
			return nil
		case 1:
			v, err := parseU32(args[0])
			if err != nil {
				return err
			}
			return ctl.update(ctx, func(cm *stmrtc.ConfigMode) error {
				return cm.SetCounter(v)
			})
		}
		return fmt.Errorf("usage: counter [value]")

	case "prescaler", "alarm":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <value>", name)
		}
		v, err := parseU32(args[0])
		if err != nil {
			return err
		}
		return ctl.update(ctx, func(cm *stmrtc.ConfigMode) error {
			if name == "alarm" {
				return cm.SetAlarm(v)
			}
			return cm.SetPrescaler(v)
		})

	case "divider":
		div := ctl.dev.Divider()
		if err := ctl.dev.Err(); err != nil {
			return err
		}
		fmt.Fprintf(ctl.out, "divider: %d (0x%05x)\n", div, div)
		return nil

	case "it":
		if len(args) != 2 {
			return fmt.Errorf("usage: it <sources> on|off")
		}
		it, err := stmrtc.ParseInterrupt(args[0])
		if err != nil {
			return err
		}
		var enabled bool
		switch args[1] {
		case "on":
			enabled = true
		case "off":
			enabled = false
		default:
			return fmt.Errorf("invalid interrupt state %q (want on|off)", args[1])
		}
		err = ctl.dev.WaitForLastTask(ctx)
		if err != nil {
			return err
		}
		err = ctl.dev.ITConfig(it, enabled)
		if err != nil {
			return err
		}
		return ctl.dev.WaitForLastTask(ctx)

	case "flags":
		switch {
		case len(args) == 0:
			st, err := ctl.dev.Snapshot()
			if err != nil {
				return err
			}
			fmt.Fprintf(ctl.out, "flags: %v\n", st.Flags)
			return nil
		case len(args) == 2 && args[0] == "clear":
			f, err := stmrtc.ParseFlag(args[1])
			if err != nil {
				return err
			}
			return ctl.dev.ClearFlag(f)
		}
		return fmt.Errorf("usage: flags [clear <flags>]")

	case "sync":
		return ctl.dev.WaitForSynchro(ctx)

	case "setup":
		cfg, err := parseSetup(args)
		if err != nil {
			return err
		}
		return ctl.dev.Setup(ctx, cfg)

	case "calib":
		if len(args) != 1 {
			return fmt.Errorf("usage: calib <board>")
		}
		return ctl.calib(ctx, args[0])

	case "record":
		if len(args) != 1 {
			return fmt.Errorf("usage: record <board>")
		}
		return ctl.record(ctx, args[0])
	}

	return fmt.Errorf("unknown command %q", name)
}

func (ctl *ctl) update(ctx context.Context, f func(cm *stmrtc.ConfigMode) error) error {
	err := ctl.dev.Update(ctx, f)
	if err != nil {
		return err
	}
	return ctl.dev.WaitForLastTask(ctx)
}

func (ctl *ctl) calib(ctx context.Context, board string) error {
	db, err := ctl.db()
	if err != nil {
		return fmt.Errorf("could not open calibration db: %w", err)
	}
	defer db.Close()

	prl, err := db.Prescaler(ctx, board)
	if err != nil {
		return err
	}

	err = ctl.update(ctx, func(cm *stmrtc.ConfigMode) error {
		return cm.SetPrescaler(prl)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(ctl.out, "board %q: prescaler=0x%05x\n", board, prl)
	return nil
}

func (ctl *ctl) record(ctx context.Context, board string) error {
	db, err := ctl.db()
	if err != nil {
		return fmt.Errorf("could not open calibration db: %w", err)
	}
	defer db.Close()

	err = ctl.dev.WaitForSynchro(ctx)
	if err != nil {
		return err
	}

	now := time.Now
	if ctl.now != nil {
		now = ctl.now
	}
	cur := calibdb.Sync{Counter: ctl.dev.Counter(), Time: now()}
	if err := ctl.dev.Err(); err != nil {
		return err
	}

	ref, err := db.LastSync(ctx, board)
	switch {
	case err == nil:
		fmt.Fprintf(ctl.out, "board %q: drift=%v since %v\n",
			board, calibdb.Drift(cur, ref), ref.Time.Format(time.RFC3339),
		)
	default:
		fmt.Fprintf(ctl.out, "board %q: no previous sync (%v)\n", board, err)
	}

	err = db.RecordSync(ctx, board, cur)
	if err != nil {
		return err
	}
	fmt.Fprintf(ctl.out, "board %q: counter=%d\n", board, cur.Counter)
	return nil
}

func parseSetup(args []string) (stmrtc.Config, error) {
	var (
		cfg stmrtc.Config
		set = flag.NewFlagSet("setup", flag.ContinueOnError)
		prl = set.String("prescaler", "0x7fff", "prescaler reload")
		cnt = set.String("counter", "", "counter value")
		alr = set.String("alarm", "", "alarm value")
		its = set.String("it", "", "interrupt sources to enable")
	)
	set.SetOutput(io.Discard)

	err := set.Parse(args)
	if err != nil {
		return cfg, fmt.Errorf("could not parse setup arguments: %w", err)
	}

	cfg.Prescaler, err = parseU32(*prl)
	if err != nil {
		return cfg, err
	}
	cfg.Interrupts, err = stmrtc.ParseInterrupt(*its)
	if err != nil {
		return cfg, err
	}
	for _, v := range []struct {
		s   string
		dst **uint32
	}{
		{*cnt, &cfg.Counter},
		{*alr, &cfg.Alarm},
	} {
		if v.s == "" {
			continue
		}
		u, err := parseU32(v.s)
		if err != nil {
			return cfg, err
		}
		*v.dst = &u
	}
	return cfg, nil
}

func parseU32(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("could not parse value %q: %w", s, err)
	}
	return uint32(v), nil
}
