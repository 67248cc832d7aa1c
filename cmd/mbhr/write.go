// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ffutop/modbus-holding-register/internal/master"
)

func newWriteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "write DEVICE UNIT ADDRESS VALUE",
		Short: "Write a single holding register (FC06)",
		Long: `Write VALUE to the holding register at ADDRESS using function code 06.
Unit 0 broadcasts the write to every unit on the line; no reply is awaited.`,
		Example: `  mbhr write /dev/ttyUSB0 1 5 0x00FF`,
		Args:    cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			unit, err := parseUnit(args[1])
			if err != nil {
				return err
			}
			address, err := parseUint16("address", args[2])
			if err != nil {
				return err
			}
			value, err := parseUint16("value", args[3])
			if err != nil {
				return err
			}
			if err := a.setup(args[0]); err != nil {
				return err
			}

			if _, err := a.session().Execute(cmd.Context(), master.NewWriteSingleRequest(unit, address, value)); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Holding register written [address = 0x%04x] = 0x%04x\n", address, value)
			return nil
		},
	}
}
