package main

import (
	"bufio"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SerialShell/internal/util"
)

func testOptions() simOptions {
	return simOptions{baud: 9600, id: "SIM01", terminator: `\n`}
}

func TestRunFailsWhenPortCannotOpen(t *testing.T) {
	logger, err := util.SetupLogger("error", io.Discard)
	require.NoError(t, err)

	opts := testOptions()
	opts.port = "/nonexistent/ttySIM0"
	err = run(context.Background(), opts, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open /nonexistent/ttySIM0")
}

func TestRunRejectsBadSettings(t *testing.T) {
	logger, err := util.SetupLogger("error", io.Discard)
	require.NoError(t, err)

	err = run(context.Background(), testOptions(), logger)
	assert.EqualError(t, err, "-port or -pair is required")

	opts := testOptions()
	opts.pair = "only-one"
	assert.EqualError(t, run(context.Background(), opts, logger), "-pair wants left,right")

	opts = testOptions()
	opts.port = "/dev/null"
	opts.terminator = `\q`
	assert.ErrorContains(t, run(context.Background(), opts, logger), "terminator")
}

func TestRunServesOverTCP(t *testing.T) {
	logger, err := util.SetupLogger("error", io.Discard)
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	opts := testOptions()
	opts.port = "tcp://" + ln.Addr().String()
	done := make(chan error, 1)
	go func() { done <- run(ctx, opts, logger) }()

	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("3 4 1\n1 4\n"))
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	reply, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "1\n", reply)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("simulator did not stop")
	}
}
