// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ffutop/modbus-holding-register/internal/master"
)

func newReadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read DEVICE UNIT ADDRESS [RANGE]",
		Short: "Read holding registers (FC03)",
		Long: `Read RANGE holding registers starting at ADDRESS using function code 03.
RANGE defaults to 1 and may not exceed 125.`,
		Example: `  mbhr read /dev/ttyUSB0 1 0x0010 2`,
		Args:    cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			unit, err := parseUnit(args[1])
			if err != nil {
				return err
			}
			address, err := parseUint16("address", args[2])
			if err != nil {
				return err
			}
			count := uint16(1)
			if len(args) == 4 {
				if count, err = parseUint16("range", args[3]); err != nil {
					return err
				}
			}
			if err := a.setup(args[0]); err != nil {
				return err
			}

			resp, err := a.session().Execute(cmd.Context(), master.NewReadRequest(unit, address, count))
			if err != nil {
				return err
			}
			for i, value := range resp.Registers {
				fmt.Fprintf(a.out, "Holding register value [address = 0x%04x] = 0x%04x\n", resp.Address+uint16(i), value)
			}
			return nil
		},
	}
}
