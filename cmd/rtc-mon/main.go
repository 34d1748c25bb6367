// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command rtc-mon watches the RTC peripheral of an STM32F10x and raises
// alerts on alarm, counter overflow and loss of register synchronization.
//
// Alerts are logged and sent by mail when the MAIL_USERNAME, MAIL_PASSWORD,
// MAIL_SERVER, MAIL_PORT and MAIL_TGTS environment variables are set.
//
// Example:
//
//	$> rtc-mon -dev /dev/mem -freq 500ms
//	$> rtc-mon -sim -pmon -pmon-freq 2s
package main // import "github.com/go-lpc/rtc/cmd/rtc-mon"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/sbinet/pmon"
	"golang.org/x/sync/errgroup"

	"github.com/go-lpc/rtc/stmrtc"
	"github.com/go-lpc/rtc/stmrtc/rtcsim"
)

func main() {
	var (
		devmem = flag.String("dev", "/dev/mem", "path to the physical memory device")
		sim    = flag.Bool("sim", false, "watch a simulated RTC")
		base   = flag.Int64("base", 0x40002800, "physical address of the RTC peripheral")
		freq   = flag.Duration("freq", 1*time.Second, "probing interval")
		doMon  = flag.Bool("pmon", false, "enable pmon monitoring")
		monF   = flag.Duration("pmon-freq", 1*time.Second, "pmon frequency")
		monO   = flag.String("pmon-out", "rtc-mon-pmon.log", "pmon output file")
	)

	flag.Parse()

	log.SetPrefix("rtc-mon: ")
	log.SetFlags(0)

	err := run(*devmem, *sim, *base, *freq, *doMon, *monF, *monO)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(devmem string, sim bool, base int64, freq time.Duration, doMon bool, monFreq time.Duration, monOut string) error {
	var (
		dev  *stmrtc.Device
		bank *rtcsim.Bank
		opts = []stmrtc.Option{
			stmrtc.WithBase(base),
			stmrtc.WithPollBackoff(time.Millisecond, 100*time.Millisecond),
		}
	)

	switch {
	case sim:
		bank = rtcsim.New(rtcsim.Config{WriteLatency: 2, SyncLatency: 2})
		dev = stmrtc.New(bank, opts...)
	default:
		var err error
		dev, err = stmrtc.Open(devmem, opts...)
		if err != nil {
			return fmt.Errorf("could not open RTC: %w", err)
		}
	}
	defer dev.Close()

	if doMon {
		p, err := pmon.Monitor(os.Getpid())
		if err != nil {
			return fmt.Errorf("could not start monitoring (pid=%d): %w", os.Getpid(), err)
		}
		f, err := os.Create(monOut)
		if err != nil {
			return fmt.Errorf("could not create pmon log file: %w", err)
		}
		defer f.Close()
		p.W = f
		p.Freq = monFreq

		go func() {
			log.Printf("run pmon...")
			err := p.Run()
			if err != nil {
				log.Printf("could not run pmon: %+v", err)
			}
		}()

		defer func() {
			err := p.Kill()
			if err != nil {
				log.Printf("could not stop pmon: %+v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	go func() {
		select {
		case <-stop:
			log.Printf("stopping...")
			cancel()
		case <-ctx.Done():
		}
	}()

	grp, gctx := errgroup.WithContext(ctx)
	if bank != nil {
		grp.Go(func() error {
			return bank.Run(gctx, time.Second)
		})
	}

	mon := newMonitor(dev, freq, mailer{})
	grp.Go(func() error {
		return mon.run(gctx)
	})

	err := grp.Wait()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("could not monitor RTC: %w", err)
	}
	return nil
}
