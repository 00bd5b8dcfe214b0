package parser

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Codec converts between console text and device bytes.
type Codec interface {
	// Name returns the registry name of the codec (e.g. "utf-8").
	Name() string
	// Encode converts text typed by the user into bytes for the device.
	Encode(s string) ([]byte, error)
	// Decode converts bytes received from the device into text.
	Decode(b []byte) (string, error)
}

// ErrInvalidUTF8 is returned by the utf-8 codec for malformed input.
var ErrInvalidUTF8 = errors.New("invalid utf-8 sequence")

// UTF8Codec is strict: malformed device bytes are an error, never replaced.
type UTF8Codec struct{}

// Name implements Codec.
func (UTF8Codec) Name() string { return "utf-8" }

// Encode implements Codec.
func (UTF8Codec) Encode(s string) ([]byte, error) { return []byte(s), nil }

// Decode implements Codec.
func (UTF8Codec) Decode(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

// CharmapCodec wraps a single-byte character map from golang.org/x/text.
type CharmapCodec struct {
	name string
	cm   *charmap.Charmap
}

// Name implements Codec.
func (c CharmapCodec) Name() string { return c.name }

// Encode implements Codec. Runes outside the charmap are an error.
func (c CharmapCodec) Encode(s string) ([]byte, error) {
	out, err := c.cm.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("%s encode: %w", c.name, err)
	}
	return out, nil
}

// Decode implements Codec.
func (c CharmapCodec) Decode(b []byte) (string, error) {
	out, err := c.cm.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("%s decode: %w", c.name, err)
	}
	return string(out), nil
}

// ASCIICodec accepts only 7-bit bytes in both directions.
type ASCIICodec struct{}

// Name implements Codec.
func (ASCIICodec) Name() string { return "ascii" }

// Encode implements Codec.
func (ASCIICodec) Encode(s string) ([]byte, error) {
	for i, r := range s {
		if r >= utf8.RuneSelf {
			return nil, fmt.Errorf("ascii encode: rune %q at offset %d is not 7-bit", r, i)
		}
	}
	return []byte(s), nil
}

// Decode implements Codec.
func (ASCIICodec) Decode(b []byte) (string, error) {
	for i, c := range b {
		if c >= utf8.RuneSelf {
			return "", fmt.Errorf("ascii decode: byte 0x%02x at offset %d", c, i)
		}
	}
	return string(b), nil
}

var codecs = map[string]Codec{
	"utf-8":        UTF8Codec{},
	"ascii":        ASCIICodec{},
	"latin1":       CharmapCodec{name: "latin1", cm: charmap.ISO8859_1},
	"windows-1252": CharmapCodec{name: "windows-1252", cm: charmap.Windows1252},
}

// LookupCodec returns the codec registered under name. Names are case
// insensitive and "utf8"/"" map to utf-8.
func LookupCodec(name string) (Codec, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "", "utf8":
		key = "utf-8"
	case "iso-8859-1":
		key = "latin1"
	}
	c, ok := codecs[key]
	if !ok {
		return nil, fmt.Errorf("unknown encoding %q (available: %s)", name, strings.Join(CodecNames(), ", "))
	}
	return c, nil
}

// CodecNames lists the registered codec names in sorted order.
func CodecNames() []string {
	names := make([]string, 0, len(codecs))
	for n := range codecs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
