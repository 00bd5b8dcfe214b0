package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Pin protocol codes.
const (
	CodeReadAnalog   = 0
	CodeReadDigital  = 1
	CodeWriteAnalog  = 2
	CodeWriteDigital = 3
)

// Framer yields one complete inbound request.
type Framer interface {
	Next(ctx context.Context) (string, error)
}

// Sender writes one reply to the peer.
type Sender interface {
	Send(text string) (int, error)
}

// Arduino simulates the pin I/O firmware on the device side of the line. It
// answers the numeric protocol (codes 0-3) so the shell can be exercised
// without hardware.
type Arduino struct {
	ID         string
	Terminator string        // appended to replies and used to split requests
	Heartbeat  time.Duration // unsolicited message period, 0 disables

	mu      sync.Mutex
	digital map[int]int
	analog  map[int]int
	sample  func(pin int) int
	started time.Time
	log     *slog.Logger
}

// NewArduino creates a simulated firmware with all pins low.
func NewArduino(id string, logger *slog.Logger) *Arduino {
	if logger == nil {
		logger = slog.Default()
	}
	return &Arduino{
		ID:      id,
		digital: map[int]int{},
		analog:  map[int]int{},
		sample:  func(int) int { return rand.Intn(1024) },
		started: time.Now(),
		log:     logger.With("component", "arduino", "id", id),
	}
}

// SetAnalog fixes the value returned by analog reads of pin.
func (a *Arduino) SetAnalog(pin, value int) {
	a.mu.Lock()
	a.analog[pin] = value
	a.mu.Unlock()
}

// Digital returns the current level of pin.
func (a *Arduino) Digital(pin int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.digital[pin]
}

// Handle executes one request and returns the reply, if the request has one.
// Writes are silent; reads answer with the pin value.
func (a *Arduino) Handle(msg string) (string, bool) {
	fields := strings.Fields(msg)
	if len(fields) == 0 {
		return "", false
	}
	code, err := strconv.Atoi(fields[0])
	if err != nil {
		return "ERR unknown command", true
	}
	args, err := atoiAll(fields[1:])
	if err != nil {
		return "ERR " + err.Error(), true
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	switch code {
	case CodeWriteDigital:
		if len(args) != 2 || args[1] < 0 || args[1] > 1 {
			return "ERR usage: 3 <pin> <0|1>", true
		}
		a.digital[args[0]] = args[1]
		return "", false
	case CodeWriteAnalog:
		if len(args) != 2 || args[1] < 0 || args[1] > 255 {
			return "ERR usage: 2 <pin> <0-255>", true
		}
		a.analog[args[0]] = args[1]
		return "", false
	case CodeReadDigital:
		if len(args) != 1 {
			return "ERR usage: 1 <pin>", true
		}
		return strconv.Itoa(a.digital[args[0]]), true
	case CodeReadAnalog:
		if len(args) != 1 {
			return "ERR usage: 0 <pin>", true
		}
		v, ok := a.analog[args[0]]
		if !ok {
			v = a.sample(args[0])
		}
		return strconv.Itoa(v), true
	default:
		return "ERR unknown command", true
	}
}

// Serve answers requests read from in until ctx is cancelled or the
// connection fails. Undecodable requests are logged and skipped.
func (a *Arduino) Serve(ctx context.Context, in Framer, out Sender) error {
	a.log.Info("simulator started", "heartbeat", a.Heartbeat)
	if a.Heartbeat > 0 {
		go a.heartbeat(ctx, out)
	}
	for {
		chunk, err := in.Next(ctx)
		if ctx.Err() != nil {
			a.log.Info("simulation stopped")
			return nil
		}
		if err != nil {
			if errors.Is(err, ErrDecode) {
				a.log.Warn("skip undecodable request", "err", err)
				continue
			}
			if errors.Is(err, ErrIO) {
				return err
			}
			a.log.Warn("request wait", "err", err)
		}
		for _, msg := range a.split(chunk) {
			reply, ok := a.Handle(msg)
			a.log.Debug("request", "msg", msg, "reply", reply)
			if !ok {
				continue
			}
			if _, err := out.Send(reply + a.Terminator); err != nil {
				return fmt.Errorf("send reply: %w", err)
			}
		}
	}
}

func (a *Arduino) heartbeat(ctx context.Context, out Sender) {
	ticker := time.NewTicker(a.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg := fmt.Sprintf("HB %s %ds", a.ID, int(time.Since(a.started).Seconds()))
			if _, err := out.Send(msg + a.Terminator); err != nil {
				a.log.Warn("heartbeat write", "err", err)
			}
		}
	}
}

// split breaks a framed chunk into requests on the terminator and newlines.
func (a *Arduino) split(chunk string) []string {
	if a.Terminator != "" {
		chunk = strings.ReplaceAll(chunk, a.Terminator, "\n")
	}
	var out []string
	for _, line := range strings.Split(chunk, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func atoiAll(fields []string) ([]int, error) {
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", f)
		}
		out[i] = v
	}
	return out, nil
}
