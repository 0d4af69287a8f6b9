// terminal.go - Host key translation and the stdin pump

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/IntuitionEngine
License: GPLv3 or later
*/

package main

import (
	"context"
	"errors"
	"time"
)

// errNoInput is returned by a non-blocking read when no byte is waiting.
var errNoInput = errors.New("no input")

const keyPollInterval = 5 * time.Millisecond

// hostKey maps a raw terminal byte to the key the machine sees. ok is
// false for Ctrl-C, which ends the run.
func hostKey(b byte) (key byte, ok bool) {
	switch b {
	case 0x03:
		return 0, false
	case '\r': // raw mode sends CR for Enter
		return '\n', true
	case 0x7F: // DEL from the Backspace key
		return 0x08, true
	}
	return b, true
}

// pumpKeys copies translated keys from read into keys until ctx ends or
// read fails. Keys are dropped while the emulation loop is behind. Ctrl-C
// returns errInterrupted so the other host goroutines stop too.
func pumpKeys(ctx context.Context, read func([]byte) (int, error), keys chan<- byte) error {
	buf := make([]byte, 16)
	for ctx.Err() == nil {
		n, err := read(buf)
		for _, b := range buf[:max(n, 0)] {
			key, ok := hostKey(b)
			if !ok {
				return errInterrupted
			}
			select {
			case keys <- key:
			default:
			}
		}
		switch {
		case errors.Is(err, errNoInput), err == nil && n <= 0:
			time.Sleep(keyPollInterval)
		case err != nil:
			return nil
		}
	}
	return nil
}
