package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"SerialShell/internal/command"
	"SerialShell/internal/device"
	"SerialShell/internal/model"
	"SerialShell/internal/parser"
)

// registerAdmin adds the commands that manage the session rather than talk
// to the device. They run inline because chdev may prompt on the console.
func (s *Session) registerAdmin(t *command.Table) {
	t.Register(command.Command{Name: "lsdev", Usage: "lsdev", Handler: s.cmdListDevices, Inline: true})
	t.Register(command.Command{Name: "chdev", Usage: "chdev [port]", Handler: s.cmdChangeDevice, Inline: true})
	t.Register(command.Command{Name: "status", Usage: "status", Handler: s.cmdStatus, Inline: true})
	t.Register(command.Command{Name: "clear", Usage: "clear", Handler: s.cmdClear, Inline: true})
	t.Register(command.Command{Name: "help", Usage: "help", Handler: s.cmdHelp, Inline: true})
	t.Register(command.Command{Name: "encoding", Usage: "encoding [name]", Handler: s.cmdEncoding, Inline: true})
	t.Register(command.Command{Name: "exit", Usage: "exit", Handler: s.cmdExit, Inline: true})
}

func (s *Session) info(source, text string) {
	s.Output.Publish(model.Event{Kind: model.KindInfo, Source: source, Text: text})
}

func (s *Session) ports() ([]device.PortInfo, error) {
	if s.list == nil {
		return nil, errors.New("port listing is not available")
	}
	return s.list()
}

func (s *Session) cmdListDevices(_ context.Context, _ *command.Env, _ []string) error {
	ports, err := s.ports()
	if err != nil {
		return err
	}
	s.info("lsdev", formatPorts(ports))
	return nil
}

func (s *Session) cmdChangeDevice(ctx context.Context, _ *command.Env, args []string) error {
	if s.open == nil {
		return errors.New("changing device is not available")
	}
	name := ""
	if len(args) > 0 {
		name = strings.TrimSpace(args[0])
	}
	if name == "" {
		if s.selector == nil || !interactive(ctx) {
			return errors.New("usage: chdev <port>")
		}
		ports, err := s.ports()
		if err != nil {
			return err
		}
		s.info("chdev", formatPorts(ports))
		name, err = s.selector.Select(ctx, ports)
		if err != nil {
			return fmt.Errorf("select port: %w", err)
		}
	}

	conn, err := s.open(name)
	if err != nil {
		return fmt.Errorf("error connecting: %w", err)
	}
	if err := s.Channel.Replace(conn); err != nil {
		s.log.Warn("close previous device", "err", err)
	}
	s.log.Info("device changed", "device", name)
	s.Output.Publish(model.Event{Kind: model.KindStatus, Source: "chdev", Text: "Connected to: " + conn.Name()})
	return nil
}

func (s *Session) cmdStatus(_ context.Context, _ *command.Env, _ []string) error {
	st := s.Status()
	health := "ok"
	if st.Degraded != "" {
		health = "degraded (" + st.Degraded + ")"
	}
	s.info("status", fmt.Sprintf("session %s\ndevice %s (generation %d)\nhealth %s\nevents %d\ncommands in flight %d",
		st.SessionID, st.Device, st.Generation, health, st.Events, st.InFlight))
	return nil
}

func (s *Session) cmdClear(_ context.Context, _ *command.Env, _ []string) error {
	s.Output.Reset()
	return nil
}

func (s *Session) cmdHelp(_ context.Context, _ *command.Env, _ []string) error {
	var b strings.Builder
	b.WriteString("Commands:")
	for _, c := range s.Table.Commands() {
		b.WriteString("\n  " + c.Usage)
	}
	b.WriteString("\nAnything else is written to the device as typed.")
	s.info("help", b.String())
	return nil
}

func (s *Session) cmdEncoding(_ context.Context, _ *command.Env, args []string) error {
	if len(args) == 0 {
		s.info("encoding", "Encoding: "+s.Channel.Encoding()+" (available: "+strings.Join(parser.CodecNames(), ", ")+")")
		return nil
	}
	codec, err := parser.LookupCodec(args[0])
	if err != nil {
		return err
	}
	s.Channel.SetCodec(codec)
	s.log.Info("encoding changed", "encoding", codec.Name())
	s.info("encoding", "Encoding: "+codec.Name())
	return nil
}

func (s *Session) cmdExit(_ context.Context, _ *command.Env, _ []string) error {
	s.info("exit", "Exiting...")
	s.Stop()
	return nil
}

func formatPorts(ports []device.PortInfo) string {
	var b strings.Builder
	b.WriteString("Serial Ports found:")
	for i, p := range ports {
		fmt.Fprintf(&b, "\n%d: %s", i+1, p)
	}
	return b.String()
}
