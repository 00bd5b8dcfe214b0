// simdevice runs the simulated pin I/O firmware on a serial port, so the
// shell can be tried without an Arduino. With -pair it creates a linked
// pair of virtual ports with socat and serves on the first one.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"SerialShell/internal/device"
	"SerialShell/internal/parser"
	"SerialShell/internal/response"
	"SerialShell/internal/util"
)

// simOptions are the command line settings of the simulator.
type simOptions struct {
	port       string
	baud       int
	pair       string
	id         string
	heartbeat  time.Duration
	terminator string
}

func main() {
	var opts simOptions
	flag.StringVar(&opts.port, "port", "", "serial port or tcp://host:port to serve on")
	flag.IntVar(&opts.baud, "baud", 9600, "baud rate")
	flag.StringVar(&opts.pair, "pair", "", "create a socat pair left,right and serve on left")
	flag.StringVar(&opts.id, "id", "SIM01", "simulated device id")
	flag.DurationVar(&opts.heartbeat, "heartbeat", 0, "period of unsolicited heartbeat messages (0 disables)")
	flag.StringVar(&opts.terminator, "terminator", `\n`, "reply terminator, escapes allowed")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger, err := util.SetupLogger(*level, os.Stderr)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, opts, logger)
	cancel()
	if err != nil {
		log.Fatalf("simdevice: %v", err)
	}
}

// run serves the simulated firmware until ctx is cancelled. Startup
// failures are returned after anything already created is cleaned up.
func run(ctx context.Context, opts simOptions, logger *slog.Logger) error {
	terminator, err := parser.UnescapeTerminator(opts.terminator)
	if err != nil {
		return fmt.Errorf("terminator: %w", err)
	}

	target := opts.port
	if opts.pair != "" {
		left, right, ok := strings.Cut(opts.pair, ",")
		if !ok || left == "" || right == "" {
			return errors.New("-pair wants left,right")
		}
		socat := util.NewSocatManager(logger)
		defer socat.Cleanup()
		if err := socat.CreatePair(ctx, left, right); err != nil {
			return fmt.Errorf("create pair: %w", err)
		}
		util.Info("connect the shell to %s", right)
		target = left
	}
	if target == "" {
		return errors.New("-port or -pair is required")
	}

	conn, err := device.Open(target, opts.baud, 10*time.Millisecond)
	if err != nil {
		return fmt.Errorf("open %s: %w", target, err)
	}
	ch := device.NewChannel(conn, nil)
	defer func() {
		if cerr := ch.Close(); cerr != nil {
			util.Error("close %s: %v", target, cerr)
		}
	}()

	framer := response.NewSynchronizer(ch, response.GrowthStrategy{Interval: 10 * time.Millisecond}, 1000)
	sim := device.NewArduino(opts.id, logger)
	sim.Terminator = terminator
	sim.Heartbeat = opts.heartbeat
	return sim.Serve(ctx, framer, ch)
}
