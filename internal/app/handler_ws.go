package app

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"SerialShell/internal/model"
)

const (
	clientQueue  = 256
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{CheckOrigin: allowedOrigin}

// allowedOrigin accepts requests without an Origin header (non-browser
// clients), from the page's own host, or from a loopback host. Any other web
// page the user has open must not be able to drive the device.
func allowedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// client is one websocket viewer. last is the highest sequence already
// queued for it, so the backlog and the live stream never overlap.
type client struct {
	conn *websocket.Conn
	send chan model.Event
	last uint64
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// hub fans output events out to websocket clients.
type hub struct {
	mu      sync.Mutex
	clients map[*client]bool
	log     *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	return &hub{clients: map[*client]bool{}, log: logger}
}

// join registers c and returns the backlog it must be sent first.
func (h *hub) join(c *client, feed Feed) []model.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	backlog := feed.Events()
	if n := len(backlog); n > 0 {
		c.last = backlog[n-1].Seq
	}
	h.clients[c] = true
	return backlog
}

func (h *hub) leave(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// broadcast queues ev for every client. It runs inside the output log's
// notification and must not block, so a client whose queue is full is
// dropped.
func (h *hub) broadcast(ev model.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if ev.Seq <= c.last {
			continue
		}
		select {
		case c.send <- ev:
			c.last = ev.Seq
		default:
			h.log.Warn("dropping slow websocket client", "remote", c.conn.RemoteAddr())
			delete(h.clients, c)
			c.close()
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
		_ = c.conn.Close()
	}
}

// handleWS upgrades to a websocket, replays the backlog and then streams
// new events. Text frames from the client are dispatched as input lines.
func (a *App) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn("websocket upgrade", "err", err)
		return
	}
	c := &client{conn: conn, send: make(chan model.Event, clientQueue)}
	backlog := a.hub.join(c, a.Feed)
	a.log.Info("websocket client connected", "remote", conn.RemoteAddr(), "backlog", len(backlog))

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.writeLoop(c, backlog)
	}()

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if mt != websocket.TextMessage {
			continue
		}
		a.Session.Dispatch(r.Context(), string(msg))
	}

	a.hub.leave(c)
	<-done
	if err := conn.Close(); err != nil {
		a.log.Debug("close websocket", "err", err)
	}
	a.log.Info("websocket client disconnected", "remote", conn.RemoteAddr())
}

func (a *App) writeLoop(c *client, backlog []model.Event) {
	write := func(ev model.Event) bool {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(ev); err != nil {
			a.log.Debug("websocket write", "err", err)
			return false
		}
		return true
	}
	for _, ev := range backlog {
		if !write(ev) {
			_ = c.conn.Close()
			return
		}
	}
	for ev := range c.send {
		if !write(ev) {
			_ = c.conn.Close()
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
