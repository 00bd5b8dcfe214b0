// Package command defines the table of built-in commands and the handlers
// for the device pin commands.
package command

import (
	"context"
	"log/slog"
	"sync"

	"SerialShell/internal/model"
)

// Device is the guarded device access a handler gets. It is satisfied by
// *device.Channel.
type Device interface {
	Send(text string) (int, error)
	Identity() string
}

// Responder waits for and drains one reply. It is satisfied by
// *response.Synchronizer.
type Responder interface {
	WaitForCompletion(ctx context.Context) error
	DrainOne() (string, error)
}

// Publisher appends events to the session output.
type Publisher interface {
	Publish(ev model.Event) model.Event
}

// Env is everything a handler may touch.
type Env struct {
	Device     Device
	Sync       Responder
	Output     Publisher
	Terminator string // appended to every payload
	Log        *slog.Logger
}

// Handler runs one command with the arguments that followed its name.
type Handler func(ctx context.Context, env *Env, args []string) error

// Command is one named built-in.
type Command struct {
	Name    string
	Usage   string
	Handler Handler
	// Inline commands always run on the dispatching goroutine, even when
	// the dispatcher hands other commands to workers.
	Inline bool
}

// Table is an ordered list of commands. Lookup returns the first entry
// with a matching name, so a later duplicate is never reachable.
type Table struct {
	mu      sync.RWMutex
	entries []Command
	log     *slog.Logger
}

// NewTable creates an empty table.
func NewTable(logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{log: logger.With("component", "commands")}
}

// Register appends cmd. A duplicate name is kept but shadowed by the
// earlier entry.
func (t *Table) Register(cmd Command) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.Name == cmd.Name {
			t.log.Warn("duplicate command name is shadowed", "name", cmd.Name)
			break
		}
	}
	t.entries = append(t.entries, cmd)
}

// Add registers a command from its parts.
func (t *Table) Add(name, usage string, h Handler) {
	t.Register(Command{Name: name, Usage: usage, Handler: h})
}

// Resolve looks up name with a case-sensitive exact match.
func (t *Table) Resolve(name string) (Command, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, e := range t.entries {
		if e.Name == name {
			return e, true
		}
	}
	return Command{}, false
}

// Commands returns the entries in registration order.
func (t *Table) Commands() []Command {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Command, len(t.entries))
	copy(out, t.entries)
	return out
}
