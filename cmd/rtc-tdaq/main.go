// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command rtc-tdaq starts a TDAQ process publishing the seconds ticks of an
// STM32F10x RTC peripheral.
//
// Each tick is sent on the /ticks output port as the little-endian 32-bit
// value of the counter.
//
// Example:
//
//	$> rtc-tdaq -sim -prescaler 0x7fff -rc-addr :44000 -id rtc-01
package main // import "github.com/go-lpc/rtc/cmd/rtc-tdaq"

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"golang.org/x/sync/errgroup"

	"github.com/go-lpc/rtc/stmrtc"
	"github.com/go-lpc/rtc/stmrtc/rtcsim"
)

func main() {
	var (
		devmem = flag.String("dev", "/dev/mem", "path to the physical memory device")
		sim    = flag.Bool("sim", false, "drive a simulated RTC")
		base   = flag.Int64("base", 0x40002800, "physical address of the RTC peripheral")
		prl    = flag.String("prescaler", "0x7fff", "prescaler reload applied on /config")
		freq   = flag.Duration("freq", 10*time.Millisecond, "second flag probing interval")
	)

	cmd := flags.New()

	reload, err := strconv.ParseUint(*prl, 0, 32)
	if err != nil {
		log.Fatalf("could not parse prescaler %q: %+v", *prl, err)
	}

	var (
		bank *rtcsim.Bank
		dev  *stmrtc.Device
		opts = []stmrtc.Option{
			stmrtc.WithBase(*base),
			stmrtc.WithPollBackoff(time.Millisecond, 100*time.Millisecond),
		}
	)
	switch {
	case *sim:
		bank = rtcsim.New(rtcsim.Config{WriteLatency: 2, SyncLatency: 2})
		dev = stmrtc.New(bank, opts...)
	default:
		dev, err = stmrtc.Open(*devmem, opts...)
		if err != nil {
			log.Fatalf("could not open RTC: %+v", err)
		}
	}
	defer dev.Close()

	rtc := newServer(dev, uint32(reload), *freq)

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", rtc.OnConfig)
	srv.CmdHandle("/init", rtc.OnInit)
	srv.CmdHandle("/reset", rtc.OnReset)
	srv.CmdHandle("/start", rtc.OnStart)
	srv.CmdHandle("/stop", rtc.OnStop)
	srv.CmdHandle("/quit", rtc.OnQuit)

	srv.OutputHandle("/ticks", rtc.ticks)

	srv.RunHandle(rtc.run)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	grp, ctx := errgroup.WithContext(ctx)
	if bank != nil {
		grp.Go(func() error {
			err := bank.Run(ctx, time.Second)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	grp.Go(func() error {
		defer cancel()
		return srv.Run(ctx)
	})

	err = grp.Wait()
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}
