package device

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	serial "go.bug.st/serial"
)

const (
	// pumpChunk is the size of a single read from the underlying stream.
	pumpChunk = 1024
	// portWakeup bounds how long a serial read may block inside the pump.
	portWakeup = 250 * time.Millisecond
	// dialTimeout bounds TCP connection setup.
	dialTimeout = 5 * time.Second
)

// StreamConn implements Conn on top of an io.ReadWriteCloser. A pump
// goroutine moves inbound bytes into memory as they arrive; Buffered and
// Peek look at that buffer and Read drains it.
type StreamConn struct {
	rw          io.ReadWriteCloser
	name        string
	readTimeout time.Duration

	mu     sync.Mutex
	buf    bytes.Buffer
	err    error         // terminal error reported by the pump
	notify chan struct{} // signalled when buf grows or err is set

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewStreamConn wraps rw and starts the pump goroutine. readTimeout is the
// longest Read waits for data before returning empty.
func NewStreamConn(name string, rw io.ReadWriteCloser, readTimeout time.Duration) *StreamConn {
	s := &StreamConn{
		rw:          rw,
		name:        name,
		readTimeout: readTimeout,
		notify:      make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	go s.pump()
	return s
}

// OpenSerial opens a serial port with the given path and baudrate.
func OpenSerial(name string, baud int, readTimeout time.Duration) (*StreamConn, error) {
	p, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, ioErr("open", name, err)
	}
	if err := p.SetReadTimeout(portWakeup); err != nil {
		_ = p.Close()
		return nil, ioErr("open", name, fmt.Errorf("set read timeout: %w", err))
	}
	return NewStreamConn(name, p, readTimeout), nil
}

// Dial connects to a serial line exposed over TCP (e.g. ser2net).
// target has the form tcp://host:port.
func Dial(target string, readTimeout time.Duration) (*StreamConn, error) {
	addr := strings.TrimPrefix(target, "tcp://")
	c, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, ioErr("open", target, err)
	}
	return NewStreamConn(target, c, readTimeout), nil
}

// Open opens target as a TCP stream when it starts with tcp:// and as a
// serial port otherwise.
func Open(target string, baud int, readTimeout time.Duration) (Conn, error) {
	if strings.HasPrefix(target, "tcp://") {
		return Dial(target, readTimeout)
	}
	return OpenSerial(target, baud, readTimeout)
}

// pump copies inbound bytes into buf until the stream fails or is closed.
func (s *StreamConn) pump() {
	chunk := make([]byte, pumpChunk)
	for {
		n, err := s.rw.Read(chunk)
		if n > 0 {
			s.mu.Lock()
			s.buf.Write(chunk[:n])
			s.mu.Unlock()
			s.signal()
		}
		if err != nil {
			if s.isClosed() {
				err = ErrClosed
			}
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			s.signal()
			return
		}
		if s.isClosed() {
			return
		}
	}
}

func (s *StreamConn) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *StreamConn) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Write implements Conn.
func (s *StreamConn) Write(p []byte) (int, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}
	return s.rw.Write(p)
}

// Buffered implements Conn. A pump failure is reported once the buffered
// bytes have been consumed.
func (s *StreamConn) Buffered() (int, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf.Len() == 0 && s.err != nil {
		return 0, s.err
	}
	return s.buf.Len(), nil
}

// Peek implements Conn.
func (s *StreamConn) Peek() ([]byte, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf.Len() == 0 && s.err != nil {
		return nil, s.err
	}
	return bytes.Clone(s.buf.Bytes()), nil
}

// Read implements Conn.
func (s *StreamConn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	var timer *time.Timer
	for {
		if s.isClosed() {
			return 0, ErrClosed
		}
		s.mu.Lock()
		if s.buf.Len() > 0 {
			n, _ := s.buf.Read(p)
			s.mu.Unlock()
			return n, nil
		}
		err := s.err
		s.mu.Unlock()
		if err != nil {
			return 0, err
		}

		if timer == nil {
			timer = time.NewTimer(s.readTimeout)
			defer timer.Stop()
		}
		select {
		case <-s.notify:
		case <-timer.C:
			return 0, nil
		case <-s.done:
			return 0, ErrClosed
		}
	}
}

// Name implements Conn.
func (s *StreamConn) Name() string { return s.name }

// Close implements Conn. It is safe to call more than once.
func (s *StreamConn) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.rw.Close()
	})
	return s.closeErr
}
