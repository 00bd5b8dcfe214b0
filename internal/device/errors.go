package device

import (
	"errors"
	"fmt"
	"strconv"
)

// Error kinds. Use errors.Is to classify a returned error.
var (
	// ErrIO is a transport-level open, write or read failure.
	ErrIO = errors.New("device i/o failure")
	// ErrDecode marks received bytes that are not valid text in the
	// configured encoding.
	ErrDecode = errors.New("device decode failure")
	// ErrEncode marks console text that cannot be represented in the
	// configured encoding.
	ErrEncode = errors.New("device encode failure")
	// ErrNoDevice is returned when enumeration finds no serial ports.
	ErrNoDevice = errors.New("no serial devices found")
	// ErrClosed is returned by operations on a closed connection.
	ErrClosed = errors.New("device closed")
)

// IOError describes a failed operation on a device connection.
type IOError struct {
	Op     string // open, write, read, probe
	Device string
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Device, e.Err)
}

// Unwrap returns the underlying cause.
func (e *IOError) Unwrap() error { return e.Err }

// Is reports true for ErrIO so callers can match the kind.
func (e *IOError) Is(target error) bool { return target == ErrIO }

// DecodeError keeps the bytes that failed to decode so they can still be
// shown to the user.
type DecodeError struct {
	Encoding string
	Raw      []byte
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %d bytes as %s: %v (raw %s)", len(e.Raw), e.Encoding, e.Err, strconv.Quote(string(e.Raw)))
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error { return e.Err }

// Is reports true for ErrDecode.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

func ioErr(op, dev string, err error) error {
	if err == nil {
		return nil
	}
	var ioe *IOError
	if errors.As(err, &ioe) {
		return err
	}
	return &IOError{Op: op, Device: dev, Err: err}
}
