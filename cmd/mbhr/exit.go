// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"errors"
	"fmt"

	"github.com/ffutop/modbus-holding-register/internal/master"
	"github.com/ffutop/modbus-holding-register/modbus"
	"github.com/ffutop/modbus-holding-register/transport"
)

const (
	exitOK        = 0
	exitFailure   = 1
	exitInvalid   = 2
	exitTransport = 3
	exitTimeout   = 4
	exitProtocol  = 5
)

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var usage *usageError
	if errors.As(err, &usage) {
		return exitInvalid
	}
	switch master.KindOf(err) {
	case master.KindInvalidRequest:
		return exitInvalid
	case master.KindTransport:
		return exitTransport
	case master.KindTimeout:
		return exitTimeout
	case master.KindProtocol:
		return exitProtocol
	}
	var terr *transport.Error
	if errors.As(err, &terr) {
		return exitTransport
	}
	return exitFailure
}

// describe renders err as the single line printed before exiting.
func describe(err error) string {
	var usage *usageError
	if errors.As(err, &usage) {
		return fmt.Sprintf("Invalid arguments: %v", usage.err)
	}

	var exc *modbus.ExceptionError
	switch {
	case errors.As(err, &exc):
		return fmt.Sprintf("Unit answered with exception 0x%02x (%s)", exc.ExceptionCode, modbus.ExceptionName(exc.ExceptionCode))
	case errors.Is(err, modbus.ErrCRCMismatch):
		return fmt.Sprintf("Response failed CRC check: %v", err)
	case errors.Is(err, modbus.ErrShortFrame), errors.Is(err, modbus.ErrInvalidLength):
		return fmt.Sprintf("Malformed response: %v", err)
	case errors.Is(err, modbus.ErrFunctionMismatch), errors.Is(err, modbus.ErrUnitMismatch):
		return fmt.Sprintf("Response does not belong to the request: %v", err)
	case errors.Is(err, modbus.ErrUnexpectedEcho):
		return fmt.Sprintf("Write was not confirmed: %v", err)
	}

	switch master.KindOf(err) {
	case master.KindInvalidRequest:
		return fmt.Sprintf("Invalid request: %v", err)
	case master.KindTimeout:
		return fmt.Sprintf("No response from unit: %v", err)
	case master.KindTransport:
		var terr *transport.Error
		if errors.As(err, &terr) && terr.Op == transport.OpOpen {
			return fmt.Sprintf("Cannot open serial device: %v", terr.Err)
		}
		return fmt.Sprintf("Serial line failure: %v", err)
	}
	return fmt.Sprintf("Error: %v", err)
}
