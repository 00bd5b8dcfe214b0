package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SerialShell/internal/core"
	"SerialShell/internal/model"
)

type fakeSession struct {
	mu    sync.Mutex
	lines []string
}

func (f *fakeSession) Dispatch(_ context.Context, line string) {
	f.mu.Lock()
	f.lines = append(f.lines, line)
	f.mu.Unlock()
}

func (f *fakeSession) Status() model.StatusReport {
	return model.StatusReport{SessionID: "abc", Device: "/dev/ttyACM0", Generation: 1, Events: 2}
}

func (f *fakeSession) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeSession, *core.OutputLog, *App) {
	t.Helper()
	sess := &fakeSession{}
	out := core.NewOutputLog()
	a := NewApp(sess, out, nil)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		a.Stop()
		srv.Close()
	})
	return srv, sess, out, a
}

func getEvents(t *testing.T, url string) []model.Event {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var events []model.Event
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&events))
	return events
}

func TestEventsEndpoint(t *testing.T) {
	srv, _, out, _ := newTestServer(t)

	events := getEvents(t, srv.URL+"/api/events")
	assert.NotNil(t, events)
	assert.Empty(t, events)

	for _, s := range []string{"a", "b", "c"} {
		out.Publish(model.Event{Kind: model.KindOutput, Source: model.SourceListener, Text: s})
	}
	events = getEvents(t, srv.URL+"/api/events")
	require.Len(t, events, 3)

	events = getEvents(t, srv.URL+"/api/events?since=1")
	require.Len(t, events, 2)
	assert.Equal(t, uint64(2), events[0].Seq)
	assert.Equal(t, "b", events[0].Text)

	resp, err := http.Get(srv.URL + "/api/events?since=x")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInputEndpoint(t *testing.T) {
	srv, sess, _, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/input", "text/plain", strings.NewReader("write-digital 1 1\n"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{"write-digital 1 1"}, sess.Lines())

	resp, err = http.Post(srv.URL+"/api/input", "text/plain", strings.NewReader("  \n"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/input", "text/plain", strings.NewReader(strings.Repeat("x", maxInputBytes+1)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/input")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Len(t, sess.Lines(), 1)
}

func TestStatusEndpoint(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	var st model.StatusReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "abc", st.SessionID)
	assert.Equal(t, "/dev/ttyACM0", st.Device)
	assert.Empty(t, st.Degraded)
}

func TestWebsocketBacklogStreamAndInput(t *testing.T) {
	srv, sess, out, _ := newTestServer(t)
	out.Publish(model.Event{Kind: model.KindInfo, Text: "welcome"})
	out.Publish(model.Event{Kind: model.KindOutput, Text: "HB 1"})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var ev model.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, uint64(1), ev.Seq)
	assert.Equal(t, "welcome", ev.Text)
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, uint64(2), ev.Seq)

	out.Publish(model.Event{Kind: model.KindOutput, Text: "HB 2"})
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, uint64(3), ev.Seq)
	assert.Equal(t, "HB 2", ev.Text)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("read-analog 2")))
	assert.Eventually(t, func() bool {
		lines := sess.Lines()
		return len(lines) == 1 && lines[0] == "read-analog 2"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWebsocketClientsDetachOnStop(t *testing.T) {
	srv, _, out, a := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Eventually(t, func() bool {
		a.hub.mu.Lock()
		defer a.hub.mu.Unlock()
		return len(a.hub.clients) == 1
	}, 2*time.Second, 5*time.Millisecond)

	a.Stop()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)

	// publishing after stop must not block
	out.Publish(model.Event{Text: "late"})
}

func TestForeignOriginsRejected(t *testing.T) {
	srv, sess, _, _ := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	for _, origin := range []string{srv.URL, "http://localhost:3000", "http://[::1]:8080"} {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {origin}})
		require.NoError(t, err, origin)
		conn.Close()
	}

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/input", strings.NewReader("exit"))
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, sess.Lines())
}

func TestRunStopsWithContext(t *testing.T) {
	a := NewApp(&fakeSession{}, core.NewOutputLog(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, "127.0.0.1:0") }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("monitor did not stop")
	}
	assert.NoError(t, a.Run(context.Background(), ""))
}
