// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/go-daq/tdaq"

	"github.com/go-lpc/rtc/stmrtc"
)

type server struct {
	dev  *stmrtc.Device
	prl  uint32
	freq time.Duration

	n    int
	data chan []byte
}

func newServer(dev *stmrtc.Device, prl uint32, freq time.Duration) *server {
	return &server{
		dev:  dev,
		prl:  prl,
		freq: freq,
		data: make(chan []byte, 1024),
	}
}

func (srv *server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command... (prescaler=0x%05x)", srv.prl)
	err := srv.dev.Update(ctx.Ctx, func(cm *stmrtc.ConfigMode) error {
		return cm.SetPrescaler(srv.prl)
	})
	if err == nil {
		err = srv.dev.WaitForLastTask(ctx.Ctx)
	}
	if err != nil {
		ctx.Msg.Errorf("could not configure prescaler: %+v", err)
		return fmt.Errorf("could not configure prescaler: %w", err)
	}
	return nil
}

func (srv *server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	return srv.reset(ctx)
}

func (srv *server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	return srv.reset(ctx)
}

func (srv *server) reset(ctx tdaq.Context) error {
	err := srv.dev.WaitForSynchro(ctx.Ctx)
	if err != nil {
		ctx.Msg.Errorf("could not synchronize RTC: %+v", err)
		return fmt.Errorf("could not synchronize RTC: %w", err)
	}

	err = srv.dev.ClearITPendingBit(stmrtc.ITSecond)
	if err != nil {
		return fmt.Errorf("could not clear second flag: %w", err)
	}

	srv.data = make(chan []byte, 1024)
	srv.n = 0
	return nil
}

func (srv *server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	return srv.second(ctx, true)
}

func (srv *server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	n := srv.n
	ctx.Msg.Debugf("received /stop command... -> n=%d", n)
	return srv.second(ctx, false)
}

func (srv *server) second(ctx tdaq.Context, enabled bool) error {
	err := srv.dev.WaitForLastTask(ctx.Ctx)
	if err == nil {
		err = srv.dev.ITConfig(stmrtc.ITSecond, enabled)
	}
	if err == nil {
		err = srv.dev.WaitForLastTask(ctx.Ctx)
	}
	if err != nil {
		ctx.Msg.Errorf("could not configure second interrupt: %+v", err)
		return fmt.Errorf("could not configure second interrupt: %w", err)
	}
	return nil
}

func (srv *server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	return nil
}

func (srv *server) ticks(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case data := <-srv.data:
		dst.Body = data
	}
	return nil
}

func (srv *server) run(ctx tdaq.Context) error {
	tick := time.NewTicker(srv.freq)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Ctx.Done():
			return nil
		case <-tick.C:
			err := srv.poll(ctx)
			if err != nil {
				return err
			}
		}
	}
}

// poll publishes the counter if a second tick is pending.
func (srv *server) poll(ctx tdaq.Context) error {
	if !srv.dev.ITStatus(stmrtc.ITSecond) {
		return srv.dev.Err()
	}

	cnt := srv.dev.Counter()
	err := srv.dev.ClearITPendingBit(stmrtc.ITSecond)
	if err != nil {
		ctx.Msg.Errorf("could not clear second flag: %+v", err)
		return fmt.Errorf("could not clear second flag: %w", err)
	}

	raw := make([]byte, 4)
	binary.LittleEndian.PutUint32(raw, cnt)
	select {
	case srv.data <- raw:
		srv.n++
	default:
		ctx.Msg.Infof("dropping tick %d: output queue full", cnt)
	}
	return nil
}
