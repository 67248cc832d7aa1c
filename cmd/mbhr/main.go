// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Command mbhr reads and writes holding registers of a Modbus RTU unit.
package main

import (
	"fmt"
	"os"
)

func main() {
	cmd := newRootCmd(newApp())
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(exitCode(err))
	}
}
