//go:build windows

package main

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/term"
)

// runTerminal puts the console in raw mode and pumps keys until ctx ends
// or Ctrl-C is typed. Console reads block, so the pump runs on its own
// goroutine and exits at the next key after ctx ends.
func runTerminal(ctx context.Context, keys chan<- byte) error {
	fd := int(os.Stdin.Fd())
	old, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, old)

	errc := make(chan error, 1)
	go func() { errc <- pumpKeys(ctx, os.Stdin.Read, keys) }()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		return err
	}
}
