// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package modbus holds the protocol vocabulary shared by the frame codec,
// the serial transport and the master session.
package modbus

import "fmt"

// Function codes.
const (
	FuncCodeReadCoils              = 0x01
	FuncCodeReadDiscreteInputs     = 0x02
	FuncCodeReadHoldingRegisters   = 0x03
	FuncCodeReadInputRegisters     = 0x04
	FuncCodeWriteSingleCoil        = 0x05
	FuncCodeWriteSingleRegister    = 0x06
	FuncCodeWriteMultipleCoils     = 0x0F
	FuncCodeWriteMultipleRegisters = 0x10
	FuncCodeMaskWriteRegister      = 0x16

	// ExceptionBit is set in the function code of an exception response.
	ExceptionBit = 0x80
)

// Exception codes.
const (
	ExceptionCodeIllegalFunction                    = 0x01
	ExceptionCodeIllegalDataAddress                 = 0x02
	ExceptionCodeIllegalDataValue                   = 0x03
	ExceptionCodeServerDeviceFailure                = 0x04
	ExceptionCodeAcknowledge                        = 0x05
	ExceptionCodeServerDeviceBusy                   = 0x06
	ExceptionCodeMemoryParityError                  = 0x08
	ExceptionCodeGatewayPathUnavailable             = 0x0A
	ExceptionCodeGatewayTargetDeviceFailedToRespond = 0x0B
)

// Addressing limits on a serial line.
const (
	BroadcastUnit = 0
	MaxUnit       = 247

	// MaxReadRegisters is the largest quantity a 0x03 request may ask for.
	MaxReadRegisters = 125
)

// ProtocolDataUnit (PDU) is independent of the underlying communication layer.
type ProtocolDataUnit struct {
	FunctionCode byte
	Data         []byte
}

func (pdu ProtocolDataUnit) String() string {
	return fmt.Sprintf("fc=0x%02X data=% X", pdu.FunctionCode, pdu.Data)
}

// IsException reports whether fc is the exception form of a function code.
func IsException(fc byte) bool {
	return fc&ExceptionBit != 0
}

// ExceptionName returns a human-readable name of an exception code.
func ExceptionName(code byte) string {
	switch code {
	case ExceptionCodeIllegalFunction:
		return "illegal function"
	case ExceptionCodeIllegalDataAddress:
		return "illegal data address"
	case ExceptionCodeIllegalDataValue:
		return "illegal data value"
	case ExceptionCodeServerDeviceFailure:
		return "server device failure"
	case ExceptionCodeAcknowledge:
		return "acknowledge"
	case ExceptionCodeServerDeviceBusy:
		return "server device busy"
	case ExceptionCodeMemoryParityError:
		return "memory parity error"
	case ExceptionCodeGatewayPathUnavailable:
		return "gateway path unavailable"
	case ExceptionCodeGatewayTargetDeviceFailedToRespond:
		return "gateway target device failed to respond"
	default:
		return fmt.Sprintf("unknown exception (0x%02X)", code)
	}
}
