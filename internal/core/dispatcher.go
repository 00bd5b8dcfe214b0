package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"SerialShell/internal/command"
	"SerialShell/internal/model"
	"SerialShell/internal/parser"
)

// Sender is the write side of the device channel.
type Sender interface {
	Send(text string) (int, error)
}

// Dispatcher turns input lines into command executions or raw writes.
//
// In async mode built-in commands run on a bounded pool of workers so the
// input loop is not held up by a command waiting for a reply. Commands in
// flight at the same time may reach the device in any order; each write is
// still a single guarded access. When every worker is busy a new command is
// rejected instead of queued.
type Dispatcher struct {
	table      *command.Table
	env        *command.Env
	dev        Sender
	out        *OutputLog
	terminator string
	async      bool
	workers    errgroup.Group
	limit      int
	inflight   atomic.Int32
	log        *slog.Logger
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Async      bool
	Workers    int
	Terminator string
}

// NewDispatcher creates a dispatcher over table. Handlers receive env.
func NewDispatcher(table *command.Table, env *command.Env, dev Sender, out *OutputLog, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		table:      table,
		env:        env,
		dev:        dev,
		out:        out,
		terminator: cfg.Terminator,
		async:      cfg.Async,
		log:        logger.With("component", "dispatcher"),
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	d.limit = workers
	d.workers.SetLimit(workers)
	return d
}

// Dispatch handles one input line. It never fails: errors are logged and
// published as error events. In async mode it never waits for a worker; a
// command that finds the pool full is reported as busy.
func (d *Dispatcher) Dispatch(ctx context.Context, line string) {
	req := parser.ParseLine(line)
	if req.Raw() == "" {
		return
	}

	cmd, ok := d.table.Resolve(req.Name)
	if !ok {
		d.passthrough(req)
		return
	}

	if cmd.Inline || !d.async {
		d.run(ctx, cmd, req.Args)
		return
	}
	d.inflight.Add(1)
	ok = d.workers.TryGo(func() error {
		defer d.inflight.Add(-1)
		d.run(ctx, cmd, req.Args)
		return nil
	})
	if !ok {
		d.inflight.Add(-1)
		d.report(cmd.Name, fmt.Errorf("busy (%d commands in flight)", d.limit))
	}
}

// InFlight reports how many commands are running on workers.
func (d *Dispatcher) InFlight() int {
	return int(d.inflight.Load())
}

// Wait blocks until every command handed to a worker has finished.
func (d *Dispatcher) Wait() {
	_ = d.workers.Wait()
}

func (d *Dispatcher) run(ctx context.Context, cmd command.Command, args []string) {
	defer func() {
		if r := recover(); r != nil {
			d.report(cmd.Name, fmt.Errorf("panic: %v", r))
		}
	}()
	d.log.Debug("run command", "name", cmd.Name, "args", args)
	if err := cmd.Handler(ctx, d.env, args); err != nil {
		d.report(cmd.Name, err)
	}
}

// passthrough writes the trimmed line to the device verbatim.
func (d *Dispatcher) passthrough(req parser.Request) {
	payload := req.Raw() + d.terminator
	d.log.Debug("raw write", "payload", payload)
	if _, err := d.dev.Send(payload); err != nil {
		d.report("raw", err)
	}
}

func (d *Dispatcher) report(source string, err error) {
	d.log.Error("command failed", "source", source, "err", err)
	d.out.Publish(model.Event{
		Kind:   model.KindError,
		Source: source,
		Text:   "Command error: " + strings.TrimSpace(err.Error()),
	})
}
