package response

import (
	"bytes"
	"context"
	"errors"
	"time"
)

// GrowthStrategy ends the wait on the first poll where the buffered byte
// count has not grown since the previous sample.
type GrowthStrategy struct {
	Interval time.Duration // sleep between probes
	MaxWait  time.Duration // 0 waits forever
}

// Wait implements Strategy.
//
// The baseline is sampled first. While nothing is buffered the strategy
// keeps polling. Once bytes are present it samples again after every
// interval and stops as soon as a sample is not larger than the previous
// one, which includes a count that was already non-zero and stable.
func (g GrowthStrategy) Wait(ctx context.Context, p Probe) error {
	interval := g.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	limit := newDeadline(g.MaxWait)

	prev, err := p.BytesAvailable()
	if err != nil {
		return err
	}

	for {
		n, err := p.BytesAvailable()
		if err != nil {
			return err
		}
		if n > 0 {
			break
		}
		if limit.passed() {
			return ErrMaxWait
		}
		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}

	for {
		if err := sleep(ctx, interval); err != nil {
			return err
		}
		cur, err := p.BytesAvailable()
		if err != nil {
			return err
		}
		if cur <= prev {
			return nil
		}
		prev = cur
		if limit.passed() {
			return ErrMaxWait
		}
	}
}

// TerminatorStrategy ends the wait once the buffered bytes contain
// Terminator. It suits devices that end every reply with a known sequence.
type TerminatorStrategy struct {
	Terminator []byte
	Interval   time.Duration
	MaxWait    time.Duration
}

// Wait implements Strategy.
func (t TerminatorStrategy) Wait(ctx context.Context, p Probe) error {
	if len(t.Terminator) == 0 {
		return errors.New("terminator strategy needs a terminator")
	}
	interval := t.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	limit := newDeadline(t.MaxWait)
	for {
		buf, err := p.Peek()
		if err != nil {
			return err
		}
		if bytes.Contains(buf, t.Terminator) {
			return nil
		}
		if limit.passed() {
			return ErrMaxWait
		}
		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}
}
