// Package parser converts console input lines into dispatch requests and
// formats the outbound wire payloads of the built-in pin commands.
//
// Input line format (one dispatch per line):
//
//	NAME ARG1 ARG2 ...
//
// Tokens are separated by a single ASCII space. There is no quoting, so an
// argument can never contain a space, and consecutive spaces produce empty
// tokens which are kept in order.
//
// Pin command wire format (console -> device):
//
//	CODE ARGS
//
// where CODE is a single digit and ARGS are the command arguments joined by
// spaces. No terminator is added here; the dispatcher appends the configured
// one, if any.
package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// Request is one parsed input line.
type Request struct {
	Name string   // first token, trimmed
	Args []string // remaining tokens in original order, never nil
	Line string   // the line without its trailing newline
}

// Raw returns the payload used when the request is not a built-in command:
// the whole line, trimmed.
func (r Request) Raw() string {
	return strings.TrimSpace(r.Line)
}

// ParseLine splits line on single spaces. The first token becomes the
// command name; the rest are the arguments.
func ParseLine(line string) Request {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, " ")
	req := Request{
		Name: strings.TrimSpace(fields[0]),
		Args: []string{},
		Line: line,
	}
	if len(fields) > 1 {
		req.Args = fields[1:]
	}
	return req
}

// FormatCommand builds the wire payload for a numeric-coded command.
// Format: CODE ARGS (for example "3 1 3").
func FormatCommand(code int, args []string) string {
	return fmt.Sprintf("%d %s", code, strings.TrimSpace(strings.Join(args, " ")))
}

// UnescapeTerminator turns a configured terminator such as `\r\n` into the
// bytes it stands for. An empty string means no terminator.
func UnescapeTerminator(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	out, err := strconv.Unquote(`"` + strings.ReplaceAll(s, `"`, `\"`) + `"`)
	if err != nil {
		return "", fmt.Errorf("invalid terminator %q: %w", s, err)
	}
	return out, nil
}
