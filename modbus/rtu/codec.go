// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/binary"
	"fmt"

	"github.com/ffutop/modbus-holding-register/modbus"
	"github.com/ffutop/modbus-holding-register/modbus/crc"
)

// EncodeReadHoldingRegisters builds a 0x03 request:
//
//	[unit, 0x03, addr_hi, addr_lo, count_hi, count_lo, crc_lo, crc_hi]
func EncodeReadHoldingRegisters(unit byte, address, quantity uint16) ([]byte, error) {
	if unit == modbus.BroadcastUnit || unit > modbus.MaxUnit {
		return nil, fmt.Errorf("%w: unit '%v' must be between '%v' and '%v'", modbus.ErrInvalidArgument, unit, 1, modbus.MaxUnit)
	}
	if quantity < 1 || quantity > modbus.MaxReadRegisters {
		return nil, fmt.Errorf("%w: quantity '%v' must be between '%v' and '%v'", modbus.ErrInvalidArgument, quantity, 1, modbus.MaxReadRegisters)
	}
	if int(address)+int(quantity) > 0x10000 {
		return nil, fmt.Errorf("%w: address '%v' plus quantity '%v' overflows the register space", modbus.ErrInvalidArgument, address, quantity)
	}
	return encodeFixed(unit, modbus.FuncCodeReadHoldingRegisters, address, quantity), nil
}

// EncodeWriteSingleRegister builds a 0x06 request:
//
//	[unit, 0x06, addr_hi, addr_lo, value_hi, value_lo, crc_lo, crc_hi]
//
// Unit 0 addresses every device on the line; no device answers it.
func EncodeWriteSingleRegister(unit byte, address, value uint16) ([]byte, error) {
	if unit > modbus.MaxUnit {
		return nil, fmt.Errorf("%w: unit '%v' must be between '%v' and '%v'", modbus.ErrInvalidArgument, unit, 0, modbus.MaxUnit)
	}
	return encodeFixed(unit, modbus.FuncCodeWriteSingleRegister, address, value), nil
}

func encodeFixed(unit, fc byte, a, b uint16) []byte {
	raw := make([]byte, 6, FixedSize)
	raw[0] = unit
	raw[1] = fc
	binary.BigEndian.PutUint16(raw[2:], a)
	binary.BigEndian.PutUint16(raw[4:], b)
	return crc.Append(raw)
}

// DecodeReadResponse validates a 0x03 response from unit and returns its
// quantity register values in wire order.
func DecodeReadResponse(raw []byte, unit byte, quantity uint16) ([]uint16, error) {
	if err := checkHeader(raw, unit, modbus.FuncCodeReadHoldingRegisters); err != nil {
		return nil, err
	}

	want := readResponseOverhead + 2*int(quantity)
	if err := checkLength(raw, want); err != nil {
		return nil, err
	}
	if err := checkCRC(raw); err != nil {
		return nil, err
	}
	if count := int(raw[2]); count != 2*int(quantity) {
		return nil, fmt.Errorf("%w: response byte count '%v' does not match expected '%v'", modbus.ErrInvalidLength, count, 2*int(quantity))
	}

	values := make([]uint16, quantity)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(raw[3+2*i:])
	}
	return values, nil
}

// DecodeWriteResponse validates that raw is the exact echo of a 0x06 request
// for address and value.
func DecodeWriteResponse(raw []byte, unit byte, address, value uint16) error {
	if err := checkHeader(raw, unit, modbus.FuncCodeWriteSingleRegister); err != nil {
		return err
	}
	if err := checkLength(raw, FixedSize); err != nil {
		return err
	}
	if err := checkCRC(raw); err != nil {
		return err
	}

	gotAddress := binary.BigEndian.Uint16(raw[2:])
	gotValue := binary.BigEndian.Uint16(raw[4:])
	if gotAddress != address || gotValue != value {
		return fmt.Errorf("%w: response address '%v' value '%v' does not match request address '%v' value '%v'",
			modbus.ErrUnexpectedEcho, gotAddress, gotValue, address, value)
	}
	return nil
}

// checkHeader validates unit and function code. An exception response is
// CRC-checked and returned as *modbus.ExceptionError.
func checkHeader(raw []byte, unit, fc byte) error {
	if len(raw) < ExceptionSize {
		return fmt.Errorf("%w: response length '%v' does not meet minimum '%v'", modbus.ErrShortFrame, len(raw), ExceptionSize)
	}
	if raw[0] != unit {
		return fmt.Errorf("%w: response slave id '%v' does not match request '%v'", modbus.ErrUnitMismatch, raw[0], unit)
	}
	switch raw[1] {
	case fc:
		return nil
	case fc | modbus.ExceptionBit:
		if err := checkLength(raw, ExceptionSize); err != nil {
			return err
		}
		if err := checkCRC(raw); err != nil {
			return err
		}
		return &modbus.ExceptionError{FunctionCode: raw[1], ExceptionCode: raw[2]}
	default:
		return fmt.Errorf("%w: response function code '%v' does not match request '%v'", modbus.ErrFunctionMismatch, raw[1], fc)
	}
}

func checkLength(raw []byte, want int) error {
	switch n := len(raw); {
	case n < want:
		return fmt.Errorf("%w: response length '%v' does not meet expected '%v'", modbus.ErrShortFrame, n, want)
	case n > want:
		return fmt.Errorf("%w: response length '%v' exceeds expected '%v'", modbus.ErrInvalidLength, n, want)
	}
	return nil
}
