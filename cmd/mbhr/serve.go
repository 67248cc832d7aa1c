// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ffutop/modbus-holding-register/internal/simulator"
	"github.com/ffutop/modbus-holding-register/transport"
	"github.com/ffutop/modbus-holding-register/transport/local"
	"github.com/ffutop/modbus-holding-register/transport/rtu"
	rtuovertcp "github.com/ffutop/modbus-holding-register/transport/rtu-over-tcp"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve DEVICE",
		Short: "Simulate a holding register unit on a serial line",
		Long: `Answer read holding registers (03) and write single register (06) requests
for one unit id on a serial line, or on tcp://HOST:PORT. Registers live in
memory, or in a file mapped with --storage mmap.`,
		Example: `  mbhr serve /dev/ttyUSB1 --unit 1 --storage mmap --path registers.bin`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if local.IsAddress(args[0]) {
				return &usageError{fmt.Errorf("cannot serve on %s", args[0])}
			}
			if err := a.setup(args[0]); err != nil {
				return err
			}

			storage, err := simulator.NewStorage(a.cfg.Simulator, a.logger)
			if err != nil {
				return &usageError{err}
			}
			defer storage.Close()

			slave, err := simulator.NewSlave(a.cfg.Simulator.Unit, storage, a.logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a.logger.Info("Starting holding register simulator...", "device", a.cfg.Serial.Device, "unit", a.cfg.Simulator.Unit, "storage", a.cfg.Simulator.Storage)
			var server transport.Server
			if rtuovertcp.IsAddress(a.cfg.Serial.Device) {
				server = rtuovertcp.NewServer(a.cfg.Serial.Device, a.logger)
			} else {
				server = rtu.NewServer(a.cfg.Serial, a.logger)
			}
			if err := server.Start(ctx, slave.Handle); err != nil {
				return err
			}
			a.logger.Info("Goodbye.")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Uint8P("unit", "u", 1, "unit id to answer")
	flags.String("storage", "memory", "register storage: memory, file or mmap")
	flags.String("path", "", "register image file for file and mmap storage")
	bindFlags(a.v, flags, map[string]string{
		"simulator.unit":    "unit",
		"simulator.storage": "storage",
		"simulator.path":    "path",
	})
	return cmd
}
