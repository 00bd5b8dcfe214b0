package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"SerialShell/internal/device"
	"SerialShell/internal/device/devicetest"
	"SerialShell/internal/model"
)

func testConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.Sync.PollIntervalMs = 1
	cfg.Device.ReadTimeoutMs = 1
	return &cfg
}

// newTestSession builds a session over a fake device named fake0.
func newTestSession(t *testing.T, cfg *model.Config, opts Options) (*Session, *devicetest.Conn) {
	t.Helper()
	conn := devicetest.New("fake0")
	if cfg == nil {
		cfg = testConfig()
	}
	s, err := NewSession(cfg, conn, opts)
	require.NoError(t, err)
	return s, conn
}

// texts returns the text of every event of kind.
func texts(out *OutputLog, kind model.EventKind) []string {
	var res []string
	for _, ev := range out.Events() {
		if ev.Kind == kind {
			res = append(res, ev.Text)
		}
	}
	return res
}

func hasEvent(out *OutputLog, kind model.EventKind, substr string) bool {
	for _, t := range texts(out, kind) {
		if strings.Contains(t, substr) {
			return true
		}
	}
	return false
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 2*time.Millisecond, msg)
}

type fakeSelector struct {
	choice string
	calls  int
}

func (f *fakeSelector) Select(_ context.Context, ports []device.PortInfo) (string, error) {
	f.calls++
	return f.choice, nil
}
