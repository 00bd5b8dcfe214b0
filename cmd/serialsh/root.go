package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"SerialShell/internal/app"
	"SerialShell/internal/console"
	"SerialShell/internal/core"
	"SerialShell/internal/device"
	"SerialShell/internal/model"
	"SerialShell/internal/store"
	"SerialShell/internal/util"
)

// shellFlags are the command line overrides of the config file.
type shellFlags struct {
	config     string
	port       string
	baud       int
	terminator string
	encoding   string
	sync       bool
	monitor    string
	transcript string
	logLevel   string
}

func (f *shellFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.config, "config", "c", "", "YAML config file")
	cmd.Flags().StringVarP(&f.port, "port", "p", "", "serial port or tcp://host:port (prompts when empty)")
	cmd.Flags().IntVarP(&f.baud, "baud", "b", 0, "baud rate")
	cmd.Flags().StringVar(&f.terminator, "terminator", "", `terminator appended to every write, e.g. "\n"`)
	cmd.Flags().StringVar(&f.encoding, "encoding", "", "text encoding (utf-8, ascii, latin1, windows-1252)")
	cmd.Flags().BoolVar(&f.sync, "sync", false, "run commands on the input loop instead of workers")
	cmd.Flags().StringVar(&f.monitor, "monitor", "", "serve the HTTP/websocket monitor on this address; anyone who can reach it can send input, so prefer a loopback address")
	cmd.Flags().StringVar(&f.transcript, "transcript", "", "record the session to this bbolt file")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// load reads the config file and applies the flags that were set.
func (f *shellFlags) load(cmd *cobra.Command) (*model.Config, error) {
	cfg, err := model.Load(f.config)
	if err != nil {
		return nil, err
	}
	changed := cmd.Flags().Changed
	if changed("port") {
		cfg.Device.Port = f.port
	}
	if changed("baud") {
		cfg.Device.Baud = f.baud
	}
	if changed("terminator") {
		cfg.Wire.Terminator = f.terminator
	}
	if changed("encoding") {
		cfg.Wire.Encoding = f.encoding
	}
	if f.sync {
		cfg.Dispatch.Mode = model.DispatchSync
	}
	if changed("monitor") {
		cfg.Monitor.Addr = f.monitor
	}
	if changed("transcript") {
		cfg.Transcript.Path = f.transcript
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	return cfg, cfg.Validate()
}

func newRootCmd() *cobra.Command {
	var flags shellFlags
	cmd := &cobra.Command{
		Use:           "serialsh",
		Short:         "Interactive terminal for serial devices",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runShell(ctx, cfg)
		},
	}
	flags.bind(cmd)
	cmd.AddCommand(newPortsCmd())
	cmd.AddCommand(newTranscriptCmd())
	return cmd
}

func runShell(ctx context.Context, cfg *model.Config) error {
	con, err := console.New(cfg.Console.Prompt, cfg.Console.HistoryFile)
	if err != nil {
		return err
	}
	defer con.Close()

	logOut := con.Stderr()
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	logger, err := util.SetupLogger(cfg.Log.Level, logOut)
	if err != nil {
		return err
	}

	port, err := choosePort(ctx, cfg, con)
	if err != nil {
		return err
	}
	open := func(name string) (device.Conn, error) {
		return device.Open(name, cfg.Device.Baud, cfg.ReadTimeout())
	}
	conn, err := open(port)
	if err != nil {
		return fmt.Errorf("error connecting to %s: %w", port, err)
	}

	sess, closeSession, err := startSession(cfg, conn, core.Options{
		Open:     open,
		List:     device.ListPorts,
		Selector: con,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer closeSession()
	sess.Output.OnEvent(con.Print)

	var background []core.Frontend
	if cfg.Monitor.Addr != "" {
		mon := app.NewApp(sess, sess.Output, logger)
		background = append(background, func(ctx context.Context) error {
			return mon.Run(ctx, cfg.Monitor.Addr)
		})
	}

	input := func(ctx context.Context) error {
		return con.Run(ctx, func(ctx context.Context, line string) {
			sess.Dispatch(core.WithInteractive(ctx), line)
		})
	}
	return sess.Run(ctx, input, background...)
}

// startSession builds the session over conn and attaches the transcript
// when one is configured. The returned func waits for running commands and
// closes the device before it closes the transcript, so events published by
// late commands are still recorded.
func startSession(cfg *model.Config, conn device.Conn, opts core.Options) (*core.Session, func(), error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var tr *store.Transcript
	if cfg.Transcript.Path != "" {
		var err error
		if tr, err = store.Open(cfg.Transcript.Path, logger); err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
	}

	sess, err := core.NewSession(cfg, conn, opts)
	if err != nil {
		_ = conn.Close()
		if tr != nil {
			_ = tr.Close()
		}
		return nil, nil, err
	}
	if tr != nil {
		sess.Output.OnEvent(tr.Record)
	}

	closeAll := func() {
		if err := sess.Close(); err != nil {
			logger.Warn("close device", "err", err)
		}
		if tr != nil {
			if err := tr.Close(); err != nil {
				logger.Warn("close transcript", "err", err)
			}
		}
	}
	return sess, closeAll, nil
}

// choosePort returns the configured port, the only available port, or the
// port the user selects.
func choosePort(ctx context.Context, cfg *model.Config, con *console.Console) (string, error) {
	if cfg.Device.Port != "" {
		return cfg.Device.Port, nil
	}
	ports, err := device.ListPorts()
	if err != nil {
		return "", err
	}
	if len(ports) == 1 {
		return ports[0].Name, nil
	}
	printPorts(con.Stdout(), ports)
	return con.Select(ctx, ports)
}

func printPorts(w io.Writer, ports []device.PortInfo) {
	fmt.Fprintln(w, "Serial Ports found:")
	for i, p := range ports {
		fmt.Fprintf(w, "%d: %s\n", i+1, p)
	}
}

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List available serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := device.ListPorts()
			if err != nil {
				return err
			}
			printPorts(cmd.OutOrStdout(), ports)
			return nil
		},
	}
}

func newTranscriptCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "transcript <file>",
		Short: "Print a recorded session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := store.Open(args[0], slog.Default())
			if err != nil {
				return err
			}
			defer tr.Close()
			events, err := tr.Load()
			if err != nil {
				return err
			}
			return printTranscript(cmd.OutOrStdout(), events, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON lines")
	return cmd
}
