// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/peterh/liner"
)

func (ctl *ctl) shell(ctx context.Context, prompt string) error {
	term := liner.NewLiner()
	defer term.Close()

	term.SetCtrlCAborts(true)
	term.SetCompleter(complete)

	for {
		line, err := term.Prompt(prompt)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, liner.ErrPromptAborted):
			fmt.Fprintln(ctl.out)
			return nil
		default:
			return fmt.Errorf("could not read command: %w", err)
		}

		quit, err := ctl.eval(ctx, line)
		if err != nil {
			fmt.Fprintf(ctl.out, "error: %+v\n", err)
		}
		if strings.TrimSpace(line) != "" {
			term.AppendHistory(line)
		}
		if quit {
			return nil
		}
	}
}

// eval runs one shell line and reports whether the shell should exit.
func (ctl *ctl) eval(ctx context.Context, line string) (bool, error) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false, nil
	}

	switch args[0] {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprintf(ctl.out, "commands: %s quit\n", strings.Join(commands, " "))
		return false, nil
	}
	return false, ctl.exec(ctx, args)
}

func complete(line string) []string {
	var out []string
	for _, name := range append(commands, "help", "quit") {
		if strings.HasPrefix(name, line) {
			out = append(out, name)
		}
	}
	return out
}
