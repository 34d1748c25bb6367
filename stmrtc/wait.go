// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stmrtc

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"github.com/go-lpc/rtc/stmrtc/internal/regs"
)

// WaitForLastTask blocks until the peripheral reports that the last write
// to its registers has been committed (CRL.RTOFF set).
//
// It must be called before any write to the RTC registers.
func (dev *Device) WaitForLastTask(ctx context.Context) error {
	err := dev.poll(ctx, regs.CRL_RTOFF)
	if err != nil {
		return fmt.Errorf("stmrtc: could not wait for last write: %w", err)
	}
	return nil
}

// WaitForSynchro clears CRL.RSF and blocks until the hardware sets it
// again, i.e. until the counter, divider and alarm registers seen by the
// CPU are synchronized with the RTC clock domain.
//
// It must be called before reading the registers after a bus reset or a
// bus clock stop.
func (dev *Device) WaitForSynchro(ctx context.Context) error {
	err := dev.ClearFlag(FlagRSF)
	if err != nil {
		return fmt.Errorf("stmrtc: could not wait for synchronization: %w", err)
	}

	err = dev.poll(ctx, regs.CRL_RSF)
	if err != nil {
		return fmt.Errorf("stmrtc: could not wait for synchronization: %w", err)
	}
	return nil
}

// poll reads CRL until bit is set.
func (dev *Device) poll(ctx context.Context, bit uint16) error {
	var (
		limit = dev.cfg.poll.limit
		sleep *backoff.Backoff
	)
	if dev.cfg.poll.min > 0 {
		sleep = &backoff.Backoff{
			Min:    dev.cfg.poll.min,
			Max:    dev.cfg.poll.max,
			Factor: 2,
			Jitter: false,
		}
	}

	for n := 1; ; n++ {
		dev.mu.Lock()
		crl := dev.regs.crl.r()
		err := dev.err
		dev.mu.Unlock()

		switch {
		case err != nil:
			return err
		case crl&bit != 0:
			return nil
		case limit > 0 && n >= limit:
			return fmt.Errorf("%w (CRL=0x%04x after %d reads)", ErrPollTimeout, crl, n)
		}

		if sleep == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			continue
		}

		timer := time.NewTimer(sleep.Duration())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
