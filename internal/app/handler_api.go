package app

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"SerialShell/internal/model"
)

const maxInputBytes = 4096

// handleEvents returns the output log, or the part after ?since=N.
func (a *App) handleEvents(w http.ResponseWriter, r *http.Request) {
	var events []model.Event
	if s := r.URL.Query().Get("since"); s != "" {
		seq, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		events = a.Feed.Since(seq)
	} else {
		events = a.Feed.Events()
	}
	if events == nil {
		events = []model.Event{}
	}
	a.writeJSON(w, events)
}

// handleStatus reports the device and session state.
func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, a.Session.Status())
}

// handleInput dispatches the request body as one input line.
func (a *App) handleInput(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if cerr := r.Body.Close(); cerr != nil {
			a.log.Warn("close input body", "err", cerr)
		}
	}()

	if !allowedOrigin(r) {
		a.log.Warn("rejected input from foreign origin", "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxInputBytes+1))
	if err != nil {
		http.Error(w, "failed to read input", http.StatusBadRequest)
		return
	}
	if len(body) > maxInputBytes {
		http.Error(w, "input too long", http.StatusRequestEntityTooLarge)
		return
	}
	line := strings.TrimRight(string(body), "\r\n")
	if strings.TrimSpace(line) == "" {
		http.Error(w, "empty input", http.StatusBadRequest)
		return
	}

	a.log.Info("remote input", "line", line, "remote", r.RemoteAddr)
	a.Session.Dispatch(r.Context(), line)
	w.WriteHeader(http.StatusAccepted)
}

func (a *App) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Warn("write response", "err", err)
	}
}
