package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"SerialShell/internal/device"
	"SerialShell/internal/model"
	"SerialShell/internal/response"
)

// ListenerChannel is the channel surface the listener uses.
type ListenerChannel interface {
	BytesAvailable() (int, error)
	MarkDegraded(gen uint64, err error)
	Degraded() error
	Generation() uint64
	Identity() string
}

// Listener drains unsolicited and response data for the whole session and
// publishes it to the output log.
//
// States: idle (nothing buffered, sleep one interval) -> draining (wait for
// completion, read) -> publish -> idle. An I/O failure moves the listener to
// degraded, where it waits for the channel to be replaced.
type Listener struct {
	ch       ListenerChannel
	sync     *response.Synchronizer
	out      *OutputLog
	interval time.Duration
	log      *slog.Logger
}

// NewListener creates a listener. interval is the idle poll period.
func NewListener(ch ListenerChannel, sync *response.Synchronizer, out *OutputLog, interval time.Duration, logger *slog.Logger) *Listener {
	if interval <= 0 {
		interval = response.DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		ch:       ch,
		sync:     sync,
		out:      out,
		interval: interval,
		log:      logger.With("component", "listener"),
	}
}

// Run loops until ctx is cancelled. It always returns nil; device failures
// are surfaced as status events instead of ending the session.
func (l *Listener) Run(ctx context.Context) error {
	l.log.Info("listener started", "device", l.ch.Identity())
	defer l.log.Info("listener stopped")
	for {
		if ctx.Err() != nil {
			return nil
		}
		if l.ch.Degraded() != nil {
			if err := l.awaitRecovery(ctx); err != nil {
				return nil
			}
			continue
		}

		gen := l.ch.Generation()
		n, err := l.ch.BytesAvailable()
		if err != nil {
			l.degrade(gen, err)
			continue
		}
		if n == 0 {
			if !l.pause(ctx) {
				return nil
			}
			continue
		}
		l.drain(ctx, gen)
	}
}

func (l *Listener) drain(ctx context.Context, gen uint64) {
	text, err := l.sync.Next(ctx)
	switch {
	case ctx.Err() != nil:
		return
	case errors.Is(err, device.ErrDecode):
		l.log.Warn("undecodable device data", "err", err)
		l.out.Publish(model.Event{Kind: model.KindError, Source: model.SourceListener, Text: err.Error()})
		return
	case errors.Is(err, response.ErrMaxWait):
		l.log.Warn("device kept sending past max wait; publishing partial data")
	case err != nil:
		l.degrade(gen, err)
		return
	}
	if text != "" {
		l.out.Publish(model.Event{Kind: model.KindOutput, Source: model.SourceListener, Text: text})
	}
}

func (l *Listener) degrade(gen uint64, err error) {
	l.ch.MarkDegraded(gen, err)
	if l.ch.Degraded() == nil {
		// The channel was replaced while the failing access was in flight.
		return
	}
	l.log.Error("device read failed", "device", l.ch.Identity(), "err", err)
	l.out.Publish(model.Event{
		Kind:   model.KindStatus,
		Source: model.SourceListener,
		Text:   "device degraded: " + err.Error() + "; use chdev to reconnect",
	})
}

// awaitRecovery idles until a Replace clears the degraded state.
func (l *Listener) awaitRecovery(ctx context.Context) error {
	for l.ch.Degraded() != nil {
		if !l.pause(ctx) {
			return ctx.Err()
		}
	}
	l.log.Info("device recovered", "device", l.ch.Identity())
	l.out.Publish(model.Event{
		Kind:   model.KindStatus,
		Source: model.SourceListener,
		Text:   "device recovered: " + l.ch.Identity(),
	})
	return nil
}

func (l *Listener) pause(ctx context.Context) bool {
	t := time.NewTimer(l.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
