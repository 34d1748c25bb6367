// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command rtc-ctl reads and programs the RTC peripheral of an STM32F10x.
//
// Usage: rtc-ctl [OPTIONS] <command> [args...]
//
// Commands:
//
//	status                     display the peripheral registers
//	counter [value]            display or set the seconds counter
//	prescaler <value>          set the prescaler reload
//	alarm <value>              set the alarm
//	divider                    display the prescaler divider
//	it <sources> on|off        enable or disable interrupt sources (SEC,ALR,OW)
//	flags [clear <flags>]      display or clear status flags (SEC,ALR,OW,RSF)
//	sync                       wait for the registers to be synchronized
//	setup -prescaler v [-counter v] [-alarm v] [-it sources]
//	calib <board>              load the calibrated prescaler of a board
//	record <board>             record the current counter of a board
//
// Example:
//
//	$> rtc-ctl -sim setup -prescaler 0x7fff -counter 1000
//	$> rtc-ctl -dev /dev/mem status
//	$> rtc-ctl -sim -i
package main // import "github.com/go-lpc/rtc/cmd/rtc-ctl"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-lpc/rtc"
	"github.com/go-lpc/rtc/calibdb"
	"github.com/go-lpc/rtc/stmrtc"
	"github.com/go-lpc/rtc/stmrtc/rtcsim"
)

func main() {
	var (
		devmem  = flag.String("dev", "/dev/mem", "path to the physical memory device")
		sim     = flag.Bool("sim", false, "drive a simulated RTC")
		base    = flag.Int64("base", 0x40002800, "physical address of the RTC peripheral")
		dbname  = flag.String("db", "rtc", "name of the calibration database")
		shell   = flag.Bool("i", false, "run an interactive shell")
		verbose = flag.Bool("v", false, "enable verbose register tracing")
		timeout = flag.Duration("timeout", 5*time.Second, "timeout of each command")
		version = flag.Bool("version", false, "print version and exit")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: rtc-ctl [OPTIONS] <command> [args...]\n\nOptions:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	log.SetPrefix("rtc-ctl: ")
	log.SetFlags(0)

	if *version {
		v, sum := rtc.Version()
		fmt.Printf("rtc-ctl %s %s\n", v, sum)
		return
	}

	if !*shell && flag.NArg() == 0 {
		flag.Usage()
		log.Fatalf("missing command")
	}

	ctl, err := newCtl(*devmem, *sim, *base, *verbose)
	if err != nil {
		log.Fatalf("could not open RTC: %+v", err)
	}
	defer ctl.close()

	ctl.timeout = *timeout
	ctl.db = func() (calibrator, error) {
		return calibdb.Open(*dbname)
	}

	switch {
	case *shell:
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if ctl.sim != nil {
			go func() { _ = ctl.sim.Run(ctx, time.Second) }()
		}
		err = ctl.shell(ctx, "rtc> ")
	default:
		err = ctl.exec(context.Background(), flag.Args())
	}
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func newCtl(devmem string, sim bool, base int64, verbose bool) (*ctl, error) {
	opts := []stmrtc.Option{
		stmrtc.WithLogger(log.New(os.Stderr, "stmrtc: ", 0)),
		stmrtc.WithVerbose(verbose),
		stmrtc.WithBase(base),
	}

	if sim {
		bank := rtcsim.New(rtcsim.Config{WriteLatency: 2, SyncLatency: 2})
		return &ctl{
			dev: stmrtc.New(bank, opts...),
			sim: bank,
			out: os.Stdout,
		}, nil
	}

	dev, err := stmrtc.Open(devmem, opts...)
	if err != nil {
		return nil, err
	}
	return &ctl{dev: dev, out: os.Stdout}, nil
}
