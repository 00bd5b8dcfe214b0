package app

// registerRoutes sets up all HTTP handlers for the monitor.
func (a *App) registerRoutes() {
	a.Mux.HandleFunc("GET /ws", a.handleWS)

	a.Mux.HandleFunc("GET /api/events", a.handleEvents)
	a.Mux.HandleFunc("GET /api/status", a.handleStatus)
	a.Mux.HandleFunc("POST /api/input", a.handleInput)
}
