// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package calibdb gives access to the calibration database of the RTC
// boards: the prescaler reload measured for each board crystal and the
// history of counter/host-time synchronizations.
package calibdb // import "github.com/go-lpc/rtc/calibdb"

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const (
	host = "localhost"

	// maxPrescaler is the largest reload value of the 20-bit prescaler.
	maxPrescaler = 0xfffff
)

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"
)

// ErrNoCalib is returned when the database holds no entry for a board.
var ErrNoCalib = errors.New("calibdb: no calibration data")

// DB exposes the calibration data of the RTC boards.
type DB struct {
	db   *sql.DB
	name string
}

// Open opens a connection to the calibration database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("calibdb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		return nil, err
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("calibdb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Prescaler returns the latest calibrated prescaler reload of a board.
func (db *DB) Prescaler(ctx context.Context, board string) (uint32, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		prl   uint32
		found bool
	)
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT prescaler FROM rtc_calib WHERE board=? ORDER BY datetime DESC LIMIT 1",
		board,
	)
	if err != nil {
		return 0, fmt.Errorf("calibdb: could not query prescaler of board %q: %w", board, err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&prl)
		if err != nil {
			return 0, fmt.Errorf("calibdb: could not get prescaler value of board %q: %w", board, err)
		}
		found = true
	}

	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("calibdb: could not scan db for prescaler of board %q: %w", board, err)
	}

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("calibdb: context error while retrieving prescaler of board %q: %w", board, err)
	}

	if !found {
		return 0, fmt.Errorf("calibdb: could not find prescaler of board %q: %w", board, ErrNoCalib)
	}

	if prl > maxPrescaler {
		return 0, fmt.Errorf("calibdb: invalid prescaler 0x%x for board %q (max=0x%x)", prl, board, maxPrescaler)
	}

	return prl, nil
}

// Sync is a counter value read at a known host time.
type Sync struct {
	Counter uint32
	Time    time.Time
}

// Drift returns how much the RTC lagged behind the host clock between ref
// and cur. A negative drift means the RTC ran fast.
func Drift(cur, ref Sync) time.Duration {
	var (
		host = cur.Time.Sub(ref.Time)
		rtc  = time.Duration(cur.Counter-ref.Counter) * time.Second
	)
	return host - rtc
}

// LastSync returns the latest synchronization recorded for a board.
func (db *DB) LastSync(ctx context.Context, board string) (Sync, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		sync  Sync
		unix  int64
		found bool
	)
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT counter, unix FROM rtc_sync WHERE board=? ORDER BY datetime DESC LIMIT 1",
		board,
	)
	if err != nil {
		return sync, fmt.Errorf("calibdb: could not query last sync of board %q: %w", board, err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&sync.Counter, &unix)
		if err != nil {
			return sync, fmt.Errorf("calibdb: could not get last sync of board %q: %w", board, err)
		}
		found = true
	}

	if err := rows.Err(); err != nil {
		return sync, fmt.Errorf("calibdb: could not scan db for last sync of board %q: %w", board, err)
	}

	if err := ctx.Err(); err != nil {
		return sync, fmt.Errorf("calibdb: context error while retrieving last sync of board %q: %w", board, err)
	}

	if !found {
		return sync, fmt.Errorf("calibdb: could not find last sync of board %q: %w", board, ErrNoCalib)
	}

	sync.Time = time.Unix(unix, 0).UTC()
	return sync, nil
}

// RecordSync stores a synchronization of a board.
func (db *DB) RecordSync(ctx context.Context, board string, sync Sync) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := db.db.ExecContext(
		ctx,
		"INSERT INTO rtc_sync (board, counter, unix, datetime) VALUES (?, ?, ?, ?)",
		board, sync.Counter, sync.Time.Unix(), sync.Time.UTC(),
	)
	if err != nil {
		return fmt.Errorf("calibdb: could not record sync of board %q: %w", board, err)
	}
	return nil
}
