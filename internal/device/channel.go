package device

import (
	"errors"
	"fmt"
	"sync"

	"SerialShell/internal/parser"
)

// noDevice is reported by Identity when no connection is attached.
const noDevice = "<none>"

// Channel is the single guarded path to the device. Every method takes the
// guard for exactly one access to the connection and releases it before
// returning; callers that poll must sleep outside of Channel methods.
type Channel struct {
	mu       sync.Mutex
	conn     Conn
	codec    parser.Codec
	degraded error
	gen      uint64
}

// NewChannel creates a channel over conn. A nil codec means strict utf-8.
// conn may be nil; operations then fail until Replace attaches one.
func NewChannel(conn Conn, codec parser.Codec) *Channel {
	if codec == nil {
		codec = parser.UTF8Codec{}
	}
	c := &Channel{conn: conn, codec: codec}
	if conn != nil {
		c.gen = 1
	}
	return c
}

// Write sends p as one write while holding the guard, so concurrent writers
// never interleave their bytes.
func (c *Channel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return 0, &IOError{Op: "write", Device: noDevice, Err: ErrClosed}
	}
	n, err := c.conn.Write(p)
	if err != nil {
		return n, ioErr("write", c.conn.Name(), err)
	}
	return n, nil
}

// Send encodes text with the channel codec and writes it in one access.
func (c *Channel) Send(text string) (int, error) {
	c.mu.Lock()
	codec := c.codec
	c.mu.Unlock()

	b, err := codec.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return c.Write(b)
}

// BytesAvailable reports how many inbound bytes are buffered. It never
// blocks; zero with a nil error means nothing has arrived yet.
func (c *Channel) BytesAvailable() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return 0, &IOError{Op: "probe", Device: noDevice, Err: ErrClosed}
	}
	n, err := c.conn.Buffered()
	if err != nil {
		return 0, ioErr("probe", c.conn.Name(), err)
	}
	return n, nil
}

// Peek returns a copy of the buffered inbound bytes.
func (c *Channel) Peek() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, &IOError{Op: "peek", Device: noDevice, Err: ErrClosed}
	}
	b, err := c.conn.Peek()
	if err != nil {
		return nil, ioErr("peek", c.conn.Name(), err)
	}
	return b, nil
}

// Read reads up to maxBytes and decodes them. An expired read timeout
// returns an empty string and no error. Bytes that do not decode are
// returned inside a *DecodeError.
func (c *Channel) Read(maxBytes int) (string, error) {
	if maxBytes <= 0 {
		return "", nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return "", &IOError{Op: "read", Device: noDevice, Err: ErrClosed}
	}
	buf := make([]byte, maxBytes)
	n, err := c.conn.Read(buf)
	if err != nil {
		return "", ioErr("read", c.conn.Name(), err)
	}
	if n == 0 {
		return "", nil
	}
	text, err := c.codec.Decode(buf[:n])
	if err != nil {
		return "", &DecodeError{Encoding: c.codec.Name(), Raw: buf[:n], Err: err}
	}
	return text, nil
}

// Replace makes conn the active connection and closes the previous one.
// The swap happens under the guard, so every other operation sees either
// the old handle or the new one, never a mix. Replace also clears a
// degraded state.
func (c *Channel) Replace(conn Conn) error {
	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.degraded = nil
	c.gen++
	c.mu.Unlock()

	if old == nil || old == conn {
		return nil
	}
	if err := old.Close(); err != nil && !errors.Is(err, ErrClosed) {
		return fmt.Errorf("close previous device %s: %w", old.Name(), err)
	}
	return nil
}

// SetCodec switches the text encoding used by Send and Read.
func (c *Channel) SetCodec(codec parser.Codec) {
	if codec == nil {
		return
	}
	c.mu.Lock()
	c.codec = codec
	c.mu.Unlock()
}

// Encoding returns the name of the active codec.
func (c *Channel) Encoding() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codec.Name()
}

// Identity returns the name of the active connection.
func (c *Channel) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return noDevice
	}
	return c.conn.Name()
}

// MarkDegraded records that the connection of generation gen failed. It
// stays degraded until Replace. A failure reported against an older
// generation is ignored, as is any cause after the first.
func (c *Channel) MarkDegraded(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.degraded != nil {
		return
	}
	c.degraded = err
}

// Degraded returns the recorded failure, or nil when the channel is healthy.
func (c *Channel) Degraded() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// Generation increases by one on every Replace.
func (c *Channel) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Close closes the active connection and detaches it.
func (c *Channel) Close() error {
	c.mu.Lock()
	old := c.conn
	c.conn = nil
	c.mu.Unlock()
	if old == nil {
		return nil
	}
	return old.Close()
}
