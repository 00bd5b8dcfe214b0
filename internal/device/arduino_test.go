package device_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SerialShell/internal/device"
	"SerialShell/internal/device/devicetest"
	"SerialShell/internal/response"
)

func TestArduinoHandle(t *testing.T) {
	a := device.NewArduino("SIM", nil)
	a.SetAnalog(2, 512)

	tests := []struct {
		msg   string
		reply string
		ok    bool
	}{
		{"3 1 1", "", false},
		{"1 1", "1", true},
		{"1 7", "0", true},
		{"2 9 200", "", false},
		{"0 9", "200", true},
		{"0 2", "512", true},
		{"3 1 5", "ERR usage: 3 <pin> <0|1>", true},
		{"2 1 300", "ERR usage: 2 <pin> <0-255>", true},
		{"1", "ERR usage: 1 <pin>", true},
		{"0 1 2", "ERR usage: 0 <pin>", true},
		{"9 1", "ERR unknown command", true},
		{"hello", "ERR unknown command", true},
		{"3 x 1", `ERR invalid number "x"`, true},
		{"   ", "", false},
	}
	for _, tt := range tests {
		reply, ok := a.Handle(tt.msg)
		assert.Equal(t, tt.ok, ok, tt.msg)
		assert.Equal(t, tt.reply, reply, tt.msg)
	}
	assert.Equal(t, 1, a.Digital(1))
}

func TestArduinoServe(t *testing.T) {
	conn := devicetest.New("sim")
	ch := device.NewChannel(conn, nil)
	framer := response.NewSynchronizer(ch, response.GrowthStrategy{Interval: time.Millisecond}, 1000)

	a := device.NewArduino("SIM", nil)
	a.Terminator = "\n"
	a.SetAnalog(2, 77)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var serveErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		serveErr = a.Serve(ctx, framer, ch)
	}()

	conn.Feed("3 4 1\n0 2\n1 4\n")
	assert.Eventually(t, func() bool {
		return strings.Join(conn.Writes(), "") == "77\n1\n"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, a.Digital(4))

	cancel()
	wg.Wait()
	require.NoError(t, serveErr)
}

func TestArduinoHeartbeat(t *testing.T) {
	conn := devicetest.New("sim")
	ch := device.NewChannel(conn, nil)
	framer := response.NewSynchronizer(ch, response.GrowthStrategy{Interval: time.Millisecond}, 1000)

	a := device.NewArduino("SIM", nil)
	a.Terminator = ";"
	a.Heartbeat = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a.Serve(ctx, framer, ch) }()

	assert.Eventually(t, func() bool {
		w := conn.Writes()
		return len(w) > 0 && strings.HasPrefix(w[0], "HB SIM ") && strings.HasSuffix(w[0], "s;")
	}, time.Second, 5*time.Millisecond)
}
