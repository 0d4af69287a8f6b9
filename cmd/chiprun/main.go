// main.go - chiprun: drive a demonstration machine from the terminal

/*
 ██▓ ███▄    █ ▄▄▄█████▓ █    ██  ██▓▄▄▄█████▓ ██▓ ▒█████   ███▄    █    ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████
▓██▒ ██ ▀█   █ ▓  ██▒ ▓▒ ██  ▓██▒▓██▒▓  ██▒ ▓▒▓██▒▒██▒  ██▒ ██ ▀█   █    ▓█   ▀  ██ ▀█   █  ██▒ ▀█▒▓██▒ ██ ▀█   █ ▓█   ▀
▒██▒▓██  ▀█ ██▒▒ ▓██░ ▒░▓██  ▒██░▒██▒▒ ▓██░ ▒░▒██▒▒██░  ██▒▓██  ▀█ ██▒   ▒███   ▓██  ▀█ ██▒▒██░▄▄▄░▒██▒▓██  ▀█ ██▒▒███
░██░▓██▒  ▐▌██▒░ ▓██▓ ░ ▓▓█  ░██░░██░░ ▓██▓ ░ ░██░▒██   ██░▓██▒  ▐▌██▒   ▒▓█  ▄ ▓██▒  ▐▌██▒░▓█  ██▓░██░▓██▒  ▐▌██▒▒▓█  ▄
░██░▒██░   ▓██░  ▒██▒ ░ ▒▒█████▓ ░██░  ▒██▒ ░ ░██░░ ████▓▒░▒██░   ▓██░   ░▒████▒▒██░   ▓██░░▒▓███▀▒░██░▒██░   ▓██░░▒████▒
░▓  ░ ▒░   ▒ ▒   ▒ ░░   ░▒▓▒ ▒ ▒ ░▓    ▒ ░░   ░▓  ░ ▒░▒░▒░ ░ ▒░   ▒ ▒    ░░ ▒░ ░░ ▒░   ▒ ▒  ░▒   ▒ ░▓  ░ ▒░   ▒ ▒ ░░ ▒░ ░
 ▒ ░░ ░░   ░ ▒░    ░    ░░▒░ ░ ░  ▒ ░    ░     ▒ ░  ░ ▒ ▒░ ░ ░░   ░ ▒░    ░ ░  ░░ ░░   ░ ▒░  ░   ░  ▒ ░░ ░░   ░ ▒░ ░ ░  ░
 ▒ ░   ░   ░ ░   ░       ░░░ ░ ░  ▒ ░  ░       ▒ ░░ ░ ░ ▒     ░   ░ ░       ░      ░   ░ ░ ░ ░   ░  ▒ ░   ░   ░ ░    ░
 ░           ░             ░      ░            ░      ░ ░           ░       ░  ░         ░       ░  ░           ░    ░  ░

(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/IntuitionEngine
Buy me a coffee: https://ko-fi.com/intuition/tip

License: GPLv3 or later
*/

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/intuitionamiga/chipbus/audio"
	"github.com/intuitionamiga/chipbus/vm"
)

var errInterrupted = errors.New("interrupted")

func boilerPlate() {
	fmt.Println("\nchiprun - chip-level machine core demonstrator")
	fmt.Println("(c) 2024 - 2026 Zayn Otley")
	fmt.Println("https://github.com/IntuitionAmiga/IntuitionEngine")
	fmt.Println("License: GPLv3 or later")
}

type runConfig struct {
	frames   int
	mute     bool
	raw      bool
	debug    bool
	loadPath string
	savePath string
	opts     options
}

func main() {
	var cfg runConfig
	def := vm.DefaultConfig()

	flagSet := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.IntVar(&cfg.frames, "frames", 0, "Stop after this many frames (0 = run until Ctrl-C)")
	flagSet.BoolVar(&cfg.mute, "mute", false, "Disable host audio")
	flagSet.BoolVar(&cfg.raw, "raw", false, "Read raw keys from the terminal")
	flagSet.BoolVar(&cfg.debug, "debug", false, "Print device debug output to stderr")
	flagSet.StringVar(&cfg.loadPath, "load", "", "Load a state file before running")
	flagSet.StringVar(&cfg.savePath, "save", "", "Save a state file on exit")
	flagSet.StringVar(&cfg.opts.scriptPath, "script", "", "Lua script device to attach")
	flagSet.Uint64Var(&cfg.opts.clockHz, "clock", def.CPUClock, "CPU clock in Hz")
	flagSet.Float64Var(&cfg.opts.fps, "fps", def.FramesPerSec, "Frames per second")
	flagSet.IntVar(&cfg.opts.lines, "lines", def.LinesPerFrame, "Scanlines per frame")
	flagSet.IntVar(&cfg.opts.sampleRate, "rate", 44100, "Audio sample rate in Hz")

	flagSet.Usage = func() {
		flagSet.SetOutput(os.Stdout)
		fmt.Println("Usage: ./chiprun [-raw] [-frames N] [-script file.lua] [-load file] [-save file]")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.opts.fps <= 0 || cfg.opts.lines <= 0 || cfg.opts.clockHz == 0 {
		fmt.Println("Error: clock, fps and lines must be positive")
		os.Exit(1)
	}
	if cfg.mute {
		cfg.opts.sampleRate = 0
	}

	boilerPlate()

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg runConfig) error {
	d, err := newDemo(cfg.opts)
	if err != nil {
		return fmt.Errorf("building machine: %w", err)
	}
	defer d.m.Release()

	if cfg.debug {
		d.m.SetDebugLog(func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format, args...)
		})
	}
	if cfg.loadPath != "" {
		if err := vm.LoadStateFile(d.m, cfg.loadPath); err != nil {
			return fmt.Errorf("loading %s: %w", cfg.loadPath, err)
		}
	}

	var ring *audio.Ring
	if cfg.opts.sampleRate > 0 {
		player, err := audio.NewPlayer(cfg.opts.sampleRate)
		if err != nil {
			return fmt.Errorf("opening audio: %w", err)
		}
		// Four frames of stereo samples absorb host scheduling jitter.
		ring = audio.NewRing(int(4 * 2 * float64(cfg.opts.sampleRate) / cfg.opts.fps))
		player.SetupPlayer(ring)
		player.Start()
		defer player.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	keys := make(chan byte, 64)
	g, ctx := errgroup.WithContext(ctx)
	if cfg.raw {
		g.Go(func() error { return runTerminal(ctx, keys) })
	}

	var frames int
	g.Go(func() error {
		defer cancel()
		var err error
		frames, err = emulate(ctx, d, keys, ring, cfg.frames)
		return err
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, errInterrupted) {
		return err
	}

	if cfg.savePath != "" {
		if err := vm.SaveStateFile(d.m, cfg.savePath); err != nil {
			return fmt.Errorf("saving %s: %w", cfg.savePath, err)
		}
	}
	printSummary(d, frames, ring)
	if d.lua != nil && d.lua.Err() != nil {
		return d.lua.Err()
	}
	return nil
}

// emulate paces the machine at its frame rate until ctx ends or limit
// frames have run. Keys are handed to the machine only between frames.
func emulate(ctx context.Context, d *demo, keys <-chan byte, ring *audio.Ring, limit int) (int, error) {
	s := d.m.Scheduler()
	ticker := time.NewTicker(time.Duration(float64(time.Second) / s.FramesPerSec()))
	defer ticker.Stop()

	frames := 0
	for limit == 0 || frames < limit {
		select {
		case <-ctx.Done():
			return frames, nil
		case <-ticker.C:
		}
		frames += step(d, keys, ring)
	}
	return frames, nil
}

// step runs one host tick and returns the number of frames driven. With
// audio the sound pacing decides how many frames a buffer needs. The key
// latch is one deep, so at most one queued key is handed over per tick.
func step(d *demo, keys <-chan byte, ring *audio.Ring) int {
	select {
	case b := <-keys:
		d.PressKey(b)
	default:
	}

	if ring == nil {
		d.m.Drive()
		return 1
	}
	buf, frames := d.m.Scheduler().CreateSound()
	ring.Push(buf)
	return frames
}

func printSummary(d *demo, frames int, ring *audio.Ring) {
	s := d.m.Scheduler()
	fmt.Printf("frames: %d  clock: %d  cpu: %d clocks  interrupts: %d\n",
		frames, s.CurrentClock64(), d.cpu.Total(), d.cpu.Interrupts())
	if log := d.KeyLog(); len(log) > 0 {
		fmt.Printf("keys: %q\n", log)
	}
	if ring != nil {
		dropped, starved := ring.Stats()
		fmt.Printf("audio: %d samples dropped, %d padded\n", dropped, starved)
	}
}
