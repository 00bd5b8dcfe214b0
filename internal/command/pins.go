package command

import (
	"context"
	"errors"
	"fmt"

	"SerialShell/internal/device"
	"SerialShell/internal/model"
	"SerialShell/internal/parser"
	"SerialShell/internal/response"
)

// RegisterPinCommands adds the numeric-coded device commands.
func RegisterPinCommands(t *Table) {
	t.Add("write-digital", "write-digital <pin> <0|1>", sendCode(device.CodeWriteDigital))
	t.Add("write-analog", "write-analog <pin> <0-255>", sendCode(device.CodeWriteAnalog))
	t.Add("read-digital", "read-digital <pin>", requestCode("read-digital", device.CodeReadDigital))
	t.Add("read-analog", "read-analog <pin>", requestCode("read-analog", device.CodeReadAnalog))
}

// Send formats the coded payload and writes it as one message.
func (e *Env) Send(code int, args []string) error {
	payload := parser.FormatCommand(code, args) + e.Terminator
	if _, err := e.Device.Send(payload); err != nil {
		return fmt.Errorf("write %q: %w", payload, err)
	}
	return nil
}

func sendCode(code int) Handler {
	return func(_ context.Context, env *Env, args []string) error {
		return env.Send(code, args)
	}
}

// requestCode writes the request, then blocks until the reply has arrived
// and publishes it.
func requestCode(name string, code int) Handler {
	return func(ctx context.Context, env *Env, args []string) error {
		if err := env.Send(code, args); err != nil {
			return err
		}
		werr := env.Sync.WaitForCompletion(ctx)
		if werr != nil && !errors.Is(werr, response.ErrMaxWait) {
			return fmt.Errorf("wait for reply: %w", werr)
		}
		text, err := env.Sync.DrainOne()
		if err != nil {
			return fmt.Errorf("read reply: %w", err)
		}
		if text == "" {
			if werr != nil {
				return fmt.Errorf("no reply from %s: %w", env.Device.Identity(), werr)
			}
			// The listener drained the reply first.
			return nil
		}
		env.Output.Publish(model.Event{Kind: model.KindOutput, Source: name, Text: text})
		return nil
	}
}
