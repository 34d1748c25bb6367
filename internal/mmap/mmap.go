// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mmap provides access to a window of physical memory,
// mapped from a memory device file such as /dev/mem.
package mmap // import "github.com/go-lpc/rtc/internal/mmap"

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

var (
	errClosed = errors.New("mmap: closed")
)

// Handle is a read/write window of size Len, starting at a physical
// address that needs not be page aligned.
type Handle struct {
	f    *os.File
	page []byte // page-aligned mapping
	data []byte // requested window, inside page
}

// Open maps the [base, base+span) region of the named memory device.
func Open(fname string, base, span int64) (*Handle, error) {
	if base < 0 || span <= 0 {
		return nil, fmt.Errorf("mmap: invalid window [0x%x, +0x%x)", base, span)
	}

	f, err := os.OpenFile(fname, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap: could not open %q: %w", fname, err)
	}

	var (
		psz   = int64(os.Getpagesize())
		start = base &^ (psz - 1)
		delta = base - start
		size  = (delta + span + psz - 1) &^ (psz - 1)
	)

	page, err := unix.Mmap(
		int(f.Fd()), start, int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED,
	)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap: could not mmap %q at 0x%x: %w", fname, start, err)
	}
	if len(page) != int(size) {
		_ = unix.Munmap(page)
		_ = f.Close()
		return nil, fmt.Errorf("mmap: invalid mmap'd data: %d", len(page))
	}

	h := &Handle{
		f:    f,
		page: page,
		data: page[delta : delta+span],
	}
	runtime.SetFinalizer(h, (*Handle).Close)
	return h, nil
}

// Close unmaps the window and closes the underlying file.
func (h *Handle) Close() error {
	if h == nil {
		return os.ErrInvalid
	}

	if h.page == nil {
		return nil
	}
	page := h.page
	h.page = nil
	h.data = nil
	runtime.SetFinalizer(h, nil)

	err := unix.Munmap(page)
	if h.f != nil {
		if e := h.f.Close(); e != nil && err == nil {
			err = e
		}
		h.f = nil
	}
	return err
}

// Len returns the size of the mapped window.
func (h *Handle) Len() int {
	return len(h.data)
}

// ReadAt implements the io.ReaderAt interface.
// Offsets are relative to the window base.
func (h *Handle) ReadAt(p []byte, off int64) (int, error) {
	if h == nil {
		return 0, os.ErrInvalid
	}

	if h.data == nil {
		return 0, errClosed
	}
	if off < 0 || int64(len(h.data)) < off {
		return 0, fmt.Errorf("mmap: invalid ReadAt offset %d", off)
	}
	n := copy(p, h.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements the io.WriterAt interface.
// Offsets are relative to the window base.
func (h *Handle) WriteAt(p []byte, off int64) (int, error) {
	if h == nil {
		return 0, os.ErrInvalid
	}

	if h.data == nil {
		return 0, errClosed
	}
	if off < 0 || int64(len(h.data)) < off {
		return 0, fmt.Errorf("mmap: invalid WriteAt offset %d", off)
	}
	n := copy(h.data[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

var (
	_ io.ReaderAt = (*Handle)(nil)
	_ io.WriterAt = (*Handle)(nil)
	_ io.Closer   = (*Handle)(nil)
)
