// Package devicetest provides an in-memory device.Conn for tests.
package devicetest

import (
	"bytes"
	"sync"

	"SerialShell/internal/device"
)

// Conn is a scripted device connection. Inbound data is injected with Feed;
// writes are recorded. Buffered reports the inbound length unless a script
// of counts was set with ScriptBuffered.
type Conn struct {
	mu       sync.Mutex
	name     string
	inbound  bytes.Buffer
	script   []int
	probes   int
	writes   [][]byte
	writeErr error
	readErr  error
	closed   bool

	// OnWrite, when set, is called after every successful write with the
	// written bytes. It runs without the fake's lock held, so it may Feed.
	OnWrite func(c *Conn, p []byte)
}

var _ device.Conn = (*Conn)(nil)

// New creates an empty connection called name.
func New(name string) *Conn {
	return &Conn{name: name}
}

// Feed appends s to the inbound data.
func (c *Conn) Feed(s string) {
	c.mu.Lock()
	c.inbound.WriteString(s)
	c.mu.Unlock()
}

// FeedBytes appends raw bytes to the inbound data.
func (c *Conn) FeedBytes(b []byte) {
	c.mu.Lock()
	c.inbound.Write(b)
	c.mu.Unlock()
}

// ScriptBuffered makes the next Buffered calls return counts in order.
func (c *Conn) ScriptBuffered(counts ...int) {
	c.mu.Lock()
	c.script = append(c.script, counts...)
	c.mu.Unlock()
}

// FailWrites makes every later Write fail with err.
func (c *Conn) FailWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

// FailReads makes every later Buffered, Peek and Read fail with err.
func (c *Conn) FailReads(err error) {
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
}

// Writes returns the recorded writes as strings.
func (c *Conn) Writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.writes))
	for i, w := range c.writes {
		out[i] = string(w)
	}
	return out
}

// Probes returns how many times Buffered was called.
func (c *Conn) Probes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.probes
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Write implements device.Conn.
func (c *Conn) Write(p []byte) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, device.ErrClosed
	}
	if c.writeErr != nil {
		err := c.writeErr
		c.mu.Unlock()
		return 0, err
	}
	c.writes = append(c.writes, bytes.Clone(p))
	hook := c.OnWrite
	c.mu.Unlock()

	if hook != nil {
		hook(c, p)
	}
	return len(p), nil
}

// Buffered implements device.Conn.
func (c *Conn) Buffered() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failure(); err != nil {
		return 0, err
	}
	c.probes++
	if len(c.script) > 0 {
		n := c.script[0]
		c.script = c.script[1:]
		return n, nil
	}
	return c.inbound.Len(), nil
}

// Peek implements device.Conn.
func (c *Conn) Peek() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failure(); err != nil {
		return nil, err
	}
	return bytes.Clone(c.inbound.Bytes()), nil
}

// Read implements device.Conn. It never waits: with nothing buffered it
// returns (0, nil) as an expired read timeout would.
func (c *Conn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failure(); err != nil {
		return 0, err
	}
	if c.inbound.Len() == 0 {
		return 0, nil
	}
	return c.inbound.Read(p)
}

// Name implements device.Conn.
func (c *Conn) Name() string { return c.name }

// Close implements device.Conn.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Conn) failure() error {
	if c.closed {
		return device.ErrClosed
	}
	return c.readErr
}
