// Package device owns the connection to the external byte-stream device.
//
// A Conn is one open connection handle (a serial port or a TCP-exposed
// serial line). A Channel holds the single active Conn behind one mutex so
// the background listener and dispatched commands never touch the handle
// concurrently.
package device

// Conn is an open byte-stream connection to a device.
//
// Implementations buffer inbound bytes so the amount available can be
// probed without blocking. Conn methods are not required to be safe for
// concurrent use; Channel serializes every call.
type Conn interface {
	// Write sends p and returns the number of bytes accepted.
	Write(p []byte) (int, error)

	// Buffered reports how many inbound bytes are ready to read.
	// It never blocks.
	Buffered() (int, error)

	// Peek returns a copy of the buffered inbound bytes without consuming
	// them.
	Peek() ([]byte, error)

	// Read copies up to len(p) buffered bytes into p. When nothing is
	// buffered it waits at most the connection's read timeout and returns
	// (0, nil) if the timeout expires.
	Read(p []byte) (int, error)

	// Name returns a human readable identifier such as /dev/ttyUSB0.
	Name() string

	// Close releases the underlying resources.
	Close() error
}
