// Package core contains the runtime of a SerialShell session: the guarded
// device channel, the dispatcher, the background listener and the shared
// output log, plus the lifecycle that ties them together.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"SerialShell/internal/command"
	"SerialShell/internal/device"
	"SerialShell/internal/model"
	"SerialShell/internal/parser"
	"SerialShell/internal/response"
)

// Version is reported in the welcome message.
const Version = "0.3.0"

// Opener opens a device connection by name.
type Opener func(name string) (device.Conn, error)

// PortLister enumerates the available ports.
type PortLister func() ([]device.PortInfo, error)

// Selector asks the user to pick one port and returns its name.
type Selector interface {
	Select(ctx context.Context, ports []device.PortInfo) (string, error)
}

// Frontend is a long-running part of the session such as the console or
// the monitor server.
type Frontend func(ctx context.Context) error

// Options are the session's external collaborators. Any of them may be nil;
// the administrative commands that need a missing one report an error.
type Options struct {
	Open     Opener
	List     PortLister
	Selector Selector
	Logger   *slog.Logger
}

// Session manages the lifecycle of one connection to a device.
type Session struct {
	ID         string
	Config     *model.Config
	Channel    *device.Channel
	Sync       *response.Synchronizer
	Output     *OutputLog
	Table      *command.Table
	Dispatcher *Dispatcher
	Listener   *Listener

	open     Opener
	list     PortLister
	selector Selector
	log      *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	ctx    context.Context
}

// NewSession builds a session around conn using cfg.
func NewSession(cfg *model.Config, conn device.Conn, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	codec, err := parser.LookupCodec(cfg.Wire.Encoding)
	if err != nil {
		return nil, err
	}
	term, err := parser.UnescapeTerminator(cfg.Wire.Terminator)
	if err != nil {
		return nil, fmt.Errorf("wire.terminator: %w", err)
	}
	strategy, err := NewStrategy(cfg)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	logger = logger.With("session", id[:8])

	ch := device.NewChannel(conn, codec)
	syncer := response.NewSynchronizer(ch, strategy, cfg.Sync.MaxRead)
	out := NewOutputLog()
	table := command.NewTable(logger)

	s := &Session{
		ID:       id,
		Config:   cfg,
		Channel:  ch,
		Sync:     syncer,
		Output:   out,
		Table:    table,
		open:     opts.Open,
		list:     opts.List,
		selector: opts.Selector,
		log:      logger.With("component", "session"),
		ctx:      context.Background(),
	}

	command.RegisterPinCommands(table)
	s.registerAdmin(table)

	env := &command.Env{
		Device:     ch,
		Sync:       syncer,
		Output:     out,
		Terminator: term,
		Log:        logger,
	}
	s.Dispatcher = NewDispatcher(table, env, ch, out, DispatcherConfig{
		Async:      cfg.Dispatch.Mode != model.DispatchSync,
		Workers:    cfg.Dispatch.Workers,
		Terminator: term,
	}, logger)
	s.Listener = NewListener(ch, syncer, out, cfg.PollInterval(), logger)
	return s, nil
}

// NewStrategy builds the completion strategy selected in cfg.
func NewStrategy(cfg *model.Config) (response.Strategy, error) {
	switch cfg.Sync.Strategy {
	case "", model.StrategyGrowth:
		return response.GrowthStrategy{Interval: cfg.PollInterval(), MaxWait: cfg.MaxWait()}, nil
	case model.StrategyTerminator:
		term, err := parser.UnescapeTerminator(cfg.Sync.Terminator)
		if err != nil {
			return nil, fmt.Errorf("sync.terminator: %w", err)
		}
		return response.TerminatorStrategy{
			Terminator: []byte(term),
			Interval:   cfg.PollInterval(),
			MaxWait:    cfg.MaxWait(),
		}, nil
	default:
		return nil, fmt.Errorf("unknown sync strategy %q", cfg.Sync.Strategy)
	}
}

// Run starts the listener and the frontends and blocks until main returns,
// the exit command runs, or ctx is cancelled. Background frontends run until
// the session ends.
func (s *Session) Run(ctx context.Context, main Frontend, background ...Frontend) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.ctx = gctx
	s.mu.Unlock()

	s.Output.Publish(model.Event{
		Kind:   model.KindInfo,
		Source: model.SourceSession,
		Text:   fmt.Sprintf("SerialShell v%s\nConnected to: %s", Version, s.Channel.Identity()),
	})
	s.log.Info("session started", "device", s.Channel.Identity())

	g.Go(func() error { return s.Listener.Run(gctx) })
	for _, fe := range background {
		fe := fe
		g.Go(func() error { return fe(gctx) })
	}
	if main != nil {
		g.Go(func() error {
			defer cancel()
			return main(gctx)
		})
	}
	err := g.Wait()
	s.log.Info("session ended")
	return err
}

// Dispatch hands one input line to the dispatcher. Commands run under the
// session context so they stop when the session ends.
func (s *Session) Dispatch(ctx context.Context, line string) {
	s.mu.Lock()
	sctx := s.ctx
	s.mu.Unlock()
	if interactive(ctx) {
		sctx = WithInteractive(sctx)
	}
	s.Dispatcher.Dispatch(sctx, line)
}

// Stop ends a running session.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Status reports the current device and session state.
func (s *Session) Status() model.StatusReport {
	r := model.StatusReport{
		SessionID:  s.ID,
		Device:     s.Channel.Identity(),
		Generation: s.Channel.Generation(),
		Events:     s.Output.Len(),
		InFlight:   s.Dispatcher.InFlight(),
	}
	if err := s.Channel.Degraded(); err != nil {
		r.Degraded = err.Error()
	}
	return r
}

// Close waits for running commands and closes the device.
func (s *Session) Close() error {
	s.Dispatcher.Wait()
	return s.Channel.Close()
}

type interactiveKey struct{}

// WithInteractive marks ctx as coming from the local console, where
// administrative commands may prompt the user.
func WithInteractive(ctx context.Context) context.Context {
	return context.WithValue(ctx, interactiveKey{}, true)
}

func interactive(ctx context.Context) bool {
	v, _ := ctx.Value(interactiveKey{}).(bool)
	return v
}
