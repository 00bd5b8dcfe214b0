package console

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SerialShell/internal/device"
	"SerialShell/internal/model"
)

func TestRunDispatchesLines(t *testing.T) {
	var out, errOut bytes.Buffer
	c := NewLineMode(strings.NewReader("write-digital 1 1\n\n   \nfoo bar\n"), &out, &errOut)

	var lines []string
	err := c.Run(context.Background(), func(_ context.Context, line string) {
		lines = append(lines, line)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"write-digital 1 1", "foo bar"}, lines)
}

func TestRunStopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	c := NewLineMode(pr, io.Discard, io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx, func(ctx context.Context, line string) {
			if line == "exit" {
				cancel()
			}
		})
	}()
	_, err := pw.Write([]byte("exit\n"))
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("console did not stop")
	}
}

func TestPrint(t *testing.T) {
	var out, errOut bytes.Buffer
	c := NewLineMode(strings.NewReader(""), &out, &errOut)

	c.Print(model.Event{Kind: model.KindOutput, Text: "512\r\n"})
	c.Print(model.Event{Kind: model.KindInfo, Text: "Connected to: /dev/ttyACM0"})
	c.Print(model.Event{Kind: model.KindError, Text: "Command error: boom"})

	assert.Equal(t, "512\r\nConnected to: /dev/ttyACM0\n", out.String())
	assert.Equal(t, "Command error: boom\n", errOut.String())
}

func TestSelect(t *testing.T) {
	var out, errOut bytes.Buffer
	c := NewLineMode(strings.NewReader("9\nabc\n2\n"), &out, &errOut)
	ports := []device.PortInfo{{Name: "/dev/ttyUSB0"}, {Name: "/dev/ttyUSB1"}}

	name, err := c.Select(context.Background(), ports)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB1", name)
	assert.Equal(t, 3, strings.Count(out.String(), "Select a port: "))
	assert.Equal(t, 2, strings.Count(errOut.String(), "Invalid selection, enter 1-2"))

	_, err = c.Select(context.Background(), nil)
	assert.ErrorIs(t, err, device.ErrNoDevice)
}

func TestSelectEndOfInput(t *testing.T) {
	c := NewLineMode(strings.NewReader("7\n"), io.Discard, io.Discard)
	_, err := c.Select(context.Background(), []device.PortInfo{{Name: "/dev/ttyS0"}})
	assert.ErrorIs(t, err, ErrClosed)
}
