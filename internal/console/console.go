// Package console is the foreground line editor of the shell. In a terminal
// it uses readline with history; otherwise it reads plain lines, so input
// can be piped in.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"golang.org/x/term"

	"SerialShell/internal/device"
	"SerialShell/internal/model"
)

// ErrClosed is returned by reads after input ended.
var ErrClosed = errors.New("console input closed")

// Console reads input lines and prints output events.
type Console struct {
	rl     *readline.Instance
	prompt string

	// line mode
	lines   chan string
	start   sync.Once
	scanner *bufio.Scanner

	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
}

// New creates a console on the process terminal. When stdin is not a
// terminal it falls back to line mode.
func New(prompt, historyFile string) (*Console, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return NewLineMode(os.Stdin, os.Stdout, os.Stderr), nil
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl, prompt: prompt, out: rl.Stdout(), errOut: rl.Stderr()}, nil
}

// NewLineMode creates a console that reads plain lines from in.
func NewLineMode(in io.Reader, out, errOut io.Writer) *Console {
	return &Console{
		scanner: bufio.NewScanner(in),
		out:     out,
		errOut:  errOut,
	}
}

// Stdout returns a writer that coordinates with the input prompt. Use it
// for log output so log lines do not clobber the prompt.
func (c *Console) Stdout() io.Writer { return c.out }

// Stderr is the error counterpart of Stdout.
func (c *Console) Stderr() io.Writer { return c.errOut }

// Run reads lines until input ends or ctx is cancelled and hands each one
// to dispatch. It returns nil on a normal end of input.
func (c *Console) Run(ctx context.Context, dispatch func(ctx context.Context, line string)) error {
	if c.rl != nil {
		stop := context.AfterFunc(ctx, func() { _ = c.rl.Close() })
		defer stop()
		defer c.rl.Close()
	}
	for {
		line, err := c.readLine(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		dispatch(ctx, line)
		if ctx.Err() != nil {
			return nil
		}
	}
}

// readLine returns the next input line. An interrupt on an empty line ends
// input the same way EOF does.
func (c *Console) readLine(ctx context.Context) (string, error) {
	if c.rl == nil {
		return c.scanLine(ctx)
	}
	for {
		line, err := c.rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if line == "" {
				return "", ErrClosed
			}
			continue
		case errors.Is(err, io.EOF):
			return "", ErrClosed
		case err != nil:
			return "", err
		}
		return line, nil
	}
}

func (c *Console) scanLine(ctx context.Context) (string, error) {
	c.start.Do(func() {
		c.lines = make(chan string)
		go func() {
			defer close(c.lines)
			for c.scanner.Scan() {
				c.lines <- c.scanner.Text()
			}
		}()
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			return "", ErrClosed
		}
		return line, nil
	}
}

// Print writes one output event. Errors go to Stderr.
func (c *Console) Print(ev model.Event) {
	text := ev.Text
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.out
	if ev.Kind == model.KindError {
		w = c.errOut
	}
	_, _ = io.WriteString(w, text)
}

// Select prompts until the user enters a valid 1-based index into ports and
// returns the chosen port name.
func (c *Console) Select(ctx context.Context, ports []device.PortInfo) (string, error) {
	if len(ports) == 0 {
		return "", device.ErrNoDevice
	}
	if c.rl != nil {
		c.rl.SetPrompt("Select a port: ")
		defer c.rl.SetPrompt(c.prompt)
	}
	for {
		if c.rl == nil {
			c.mu.Lock()
			_, _ = io.WriteString(c.out, "Select a port: ")
			c.mu.Unlock()
		}
		line, err := c.readLine(ctx)
		if err != nil {
			return "", err
		}
		i, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil || i < 1 || i > len(ports) {
			c.Print(model.Event{Kind: model.KindError, Text: fmt.Sprintf("Invalid selection, enter 1-%d", len(ports))})
			continue
		}
		return ports[i-1].Name, nil
	}
}

// Close releases the terminal.
func (c *Console) Close() error {
	if c.rl != nil {
		return c.rl.Close()
	}
	return nil
}
