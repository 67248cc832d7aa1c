// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/binary"
	"fmt"

	"github.com/ffutop/modbus-holding-register/modbus"
)

// ResponseLength returns the expected length of the response ADU to a
// read holding registers or write single register request, or 0 for any
// other request.
func ResponseLength(adu []byte) int {
	if len(adu) < 6 {
		return 0
	}
	switch adu[1] {
	case modbus.FuncCodeReadHoldingRegisters:
		count := int(binary.BigEndian.Uint16(adu[4:]))
		return readResponseOverhead + count*2
	case modbus.FuncCodeWriteSingleRegister:
		return FixedSize
	default:
		return 0
	}
}

// ExpectedLength refines want once the function code of a response is
// known: an exception response is always ExceptionSize bytes.
func ExpectedLength(partial []byte, want int) int {
	if len(partial) >= 2 && modbus.IsException(partial[1]) {
		return ExceptionSize
	}
	return want
}

// RequestLength returns the expected total length of a request RTU ADU based on the header.
func RequestLength(funcCode byte, header []byte) (int, error) {
	// Header should be at least 7 bytes to cover ByteCount for 0x0F/0x10.
	// [SlaveID, Func, Appd1, Appd2, Appd3, Appd4/ByteCount]

	switch funcCode {
	case modbus.FuncCodeReadCoils,
		modbus.FuncCodeReadDiscreteInputs,
		modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeReadInputRegisters,
		modbus.FuncCodeWriteSingleCoil,
		modbus.FuncCodeWriteSingleRegister:
		// Fixed 8 bytes: [SlaveID, Func, Addr(2), Val(2), CRC(2)]
		return FixedSize, nil
	case modbus.FuncCodeWriteMultipleCoils,
		modbus.FuncCodeWriteMultipleRegisters:
		// Req: [SlaveID, Func, Addr(2), Quant(2), ByteCount(1), Data(N), CRC(2)]
		if len(header) < 7 {
			return 0, fmt.Errorf("need 7 bytes to determine length for 0x%02X, got %d", funcCode, len(header))
		}
		byteCount := int(header[6])
		return 7 + byteCount + 2, nil
	case modbus.FuncCodeMaskWriteRegister:
		// [SlaveID, Func, Addr(2), AndMask(2), OrMask(2), CRC(2)]
		return 10, nil
	default:
		return 0, fmt.Errorf("unsupported function code: 0x%02X", funcCode)
	}
}
