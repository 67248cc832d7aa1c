// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ffutop/modbus-holding-register/internal/config"
	"github.com/ffutop/modbus-holding-register/internal/master"
	"github.com/ffutop/modbus-holding-register/internal/simulator"
	"github.com/ffutop/modbus-holding-register/transport"
	"github.com/ffutop/modbus-holding-register/transport/local"
	"github.com/ffutop/modbus-holding-register/transport/rtu"
	rtuovertcp "github.com/ffutop/modbus-holding-register/transport/rtu-over-tcp"
)

// app carries what the commands share.
type app struct {
	v          *viper.Viper
	configFile string

	open   transport.Opener
	out    io.Writer
	cfg    *config.Config
	logger *slog.Logger
}

func newApp() *app {
	a := &app{
		v:   config.New(),
		out: os.Stdout,
	}
	a.open = a.openDevice
	return a
}

// openDevice picks the transport from the device name.
func (a *app) openDevice(ctx context.Context, cfg config.SerialConfig) (transport.Port, error) {
	switch {
	case local.IsAddress(cfg.Device):
		return a.openLocal()
	case rtuovertcp.IsAddress(cfg.Device):
		return rtuovertcp.OpenPort(ctx, cfg)
	default:
		return rtu.OpenPort(ctx, cfg)
	}
}

// openLocal connects to a simulator living in this process, which makes the
// register image of a stopped simulator readable.
func (a *app) openLocal() (transport.Port, error) {
	storage, err := simulator.NewStorage(a.cfg.Simulator, a.logger)
	if err != nil {
		return nil, &transport.Error{Op: transport.OpOpen, Device: local.Scheme, Err: err}
	}
	slave, err := simulator.NewSlave(a.cfg.Simulator.Unit, storage, a.logger)
	if err != nil {
		storage.Close()
		return nil, &transport.Error{Op: transport.OpOpen, Device: local.Scheme, Err: err}
	}
	return local.NewPort(slave.Handle, storage), nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "mbhr",
		Short: "Read and write Modbus RTU holding registers",
		Long: `mbhr talks to a single Modbus RTU unit on a serial line. It reads holding
registers (function 03) and writes a single holding register (function 06).

DEVICE is a serial device, tcp://HOST:PORT for a serial device server
that forwards RTU frames over TCP, or local:// for the register image of
the simulator (see serve). Numbers may be given in decimal or
hexadecimal (0x prefix).`,
		Example: `  # Read 2 holding registers from unit 1 starting at 0x0010
  mbhr read /dev/ttyUSB0 1 0x0010 2

  # Write 0x00FF to register 5 of unit 1
  mbhr write /dev/ttyUSB0 1 5 0x00FF

  # Simulate unit 1 on a serial line
  mbhr serve /dev/ttyUSB1 --unit 1`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "config file (default: /etc/mbhr/config.yaml, $HOME/.mbhr/config.yaml or ./config.yaml)")
	flags.IntP("baud", "b", config.DefaultBaudRate, "serial line speed")
	flags.StringP("parity", "p", "N", "parity: N, E or O")
	flags.DurationP("timeout", "t", 0, "response timeout (0 derives it from the baud rate)")
	flags.BoolP("debug", "d", false, "dump frames and session states")
	flags.String("log-level", "info", "log verbosity level (debug, info, warn, error)")
	flags.String("log-file", "", "log file name ('-' for STDERR)")

	bindFlags(a.v, flags, map[string]string{
		"serial.baud_rate": "baud",
		"serial.parity":    "parity",
		"serial.timeout":   "timeout",
		"master.debug":     "debug",
		"log.level":        "log-level",
		"log.file":         "log-file",
	})

	root.AddCommand(newReadCmd(a))
	root.AddCommand(newWriteCmd(a))
	root.AddCommand(newServeCmd(a))
	return root
}

// bindFlags binds each config key to the flag of the given name.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %q: %v", name, err))
		}
	}
}

// setup loads the configuration for device and installs the logger.
func (a *app) setup(device string) error {
	a.v.Set("serial.device", device)
	cfg, err := config.LoadConfig(a.v, a.configFile)
	if err != nil {
		return &usageError{err}
	}
	if cfg.Master.Debug {
		cfg.Log.Level = "debug"
	}
	a.cfg = cfg
	a.logger = setupLogger(cfg.Log)
	return nil
}

func (a *app) session() *master.Session {
	return master.New(a.cfg.Serial,
		master.WithLogger(a.logger),
		master.WithDebug(a.cfg.Master.Debug),
		master.WithOpener(a.open),
	)
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	// Register values go to stdout, so logs default to stderr.
	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file, falling back to stderr: %v\n", err)
			handler = slog.NewTextHandler(os.Stderr, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// usageError marks bad command line input.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func parseUnit(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, &usageError{fmt.Errorf("invalid unit %q: %w", s, err)}
	}
	return byte(v), nil
}

func parseUint16(name, s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, &usageError{fmt.Errorf("invalid %s %q: %w", name, s, err)}
	}
	return uint16(v), nil
}
