// Package response decides when a reply has finished arriving on a byte
// stream that has no framing, and drains it.
//
// The default GrowthStrategy watches the number of buffered bytes: while the
// count keeps increasing between polls the reply is still arriving; the
// first poll where it stops increasing ends the wait. This is a heuristic. A
// device that pauses mid-transmission is read as finished, and a device
// that never stops sending keeps the wait going unless MaxWait is set.
//
// Every probe is a separate call into the channel, so the channel guard is
// released while the strategy sleeps between polls.
package response

import (
	"context"
	"errors"
	"time"
)

// ErrMaxWait is returned when a strategy gives up after its MaxWait. Bytes
// that did arrive are still buffered and can be drained.
var ErrMaxWait = errors.New("response wait exceeded max wait")

// DefaultInterval is the poll interval used when none is configured.
const DefaultInterval = 30 * time.Millisecond

// Probe is the read-only view of the channel a strategy polls.
type Probe interface {
	BytesAvailable() (int, error)
	Peek() ([]byte, error)
}

// Channel is what a Synchronizer needs: probing plus a draining read.
type Channel interface {
	Probe
	Read(maxBytes int) (string, error)
}

// Strategy blocks until it considers the current reply complete.
type Strategy interface {
	Wait(ctx context.Context, p Probe) error
}

// Synchronizer turns a stream into discrete replies using a Strategy.
type Synchronizer struct {
	ch       Channel
	strategy Strategy
	maxBytes int
}

// NewSynchronizer creates a synchronizer over ch. A nil strategy selects
// GrowthStrategy with the default interval.
func NewSynchronizer(ch Channel, strategy Strategy, maxBytes int) *Synchronizer {
	if strategy == nil {
		strategy = GrowthStrategy{Interval: DefaultInterval}
	}
	if maxBytes <= 0 {
		maxBytes = 1000
	}
	return &Synchronizer{ch: ch, strategy: strategy, maxBytes: maxBytes}
}

// WaitForCompletion blocks until the strategy declares the reply complete.
func (s *Synchronizer) WaitForCompletion(ctx context.Context) error {
	return s.strategy.Wait(ctx, s.ch)
}

// DrainOne reads and decodes the buffered reply.
func (s *Synchronizer) DrainOne() (string, error) {
	return s.ch.Read(s.maxBytes)
}

// Next waits for completion and drains one reply. When the wait hits
// MaxWait the partial reply is still drained and returned together with
// ErrMaxWait.
func (s *Synchronizer) Next(ctx context.Context) (string, error) {
	werr := s.WaitForCompletion(ctx)
	if werr != nil && !errors.Is(werr, ErrMaxWait) {
		return "", werr
	}
	text, err := s.DrainOne()
	if err != nil {
		return text, err
	}
	return text, werr
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// deadline tracks an optional upper bound on a wait.
type deadline struct {
	at time.Time
}

func newDeadline(maxWait time.Duration) deadline {
	if maxWait <= 0 {
		return deadline{}
	}
	return deadline{at: time.Now().Add(maxWait)}
}

func (d deadline) passed() bool {
	return !d.at.IsZero() && !time.Now().Before(d.at)
}
