//go:build !windows

// terminal_unix.go - Raw non-blocking stdin

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/IntuitionEngine
License: GPLv3 or later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"
)

// runTerminal puts stdin in raw, non-blocking mode and pumps keys until
// ctx ends or Ctrl-C is typed. Stdin is restored on return.
func runTerminal(ctx context.Context, keys chan<- byte) error {
	fd := int(os.Stdin.Fd())
	old, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, old)

	if err := syscall.SetNonblock(fd, true); err != nil {
		return fmt.Errorf("setting nonblocking stdin: %w", err)
	}
	defer syscall.SetNonblock(fd, false)

	return pumpKeys(ctx, func(p []byte) (int, error) {
		n, err := syscall.Read(fd, p)
		if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
			return 0, errNoInput
		}
		return n, err
	}, keys)
}
