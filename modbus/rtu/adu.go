// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"fmt"

	"github.com/ffutop/modbus-holding-register/modbus"
	"github.com/ffutop/modbus-holding-register/modbus/crc"
)

// ApplicationDataUnit is a PDU addressed to a unit on the serial line.
type ApplicationDataUnit struct {
	SlaveID byte
	Pdu     modbus.ProtocolDataUnit
}

// Decode splits a raw RTU frame after checking its length and CRC.
// Pdu.Data aliases raw.
func Decode(raw []byte) (adu *ApplicationDataUnit, err error) {
	length := len(raw)
	// Minimum size (including address, function and CRC)
	if length < MinSize {
		err = fmt.Errorf("%w: frame length '%v' does not meet minimum '%v'", modbus.ErrShortFrame, length, MinSize)
		return
	}
	if length > MaxSize {
		err = fmt.Errorf("%w: frame length '%v' exceeds maximum '%v'", modbus.ErrInvalidLength, length, MaxSize)
		return
	}
	if err = checkCRC(raw); err != nil {
		return
	}
	adu = &ApplicationDataUnit{}
	adu.SlaveID = raw[0]
	adu.Pdu.FunctionCode = raw[1]
	adu.Pdu.Data = raw[2 : length-2]
	return
}

// Encode encodes PDU in an RTU frame:
//
//	Slave Address   : 1 byte
//	Function        : 1 byte
//	Data            : 0 up to 252 bytes
//	CRC             : 2 bytes
func (adu *ApplicationDataUnit) Encode() (raw []byte, err error) {
	length := len(adu.Pdu.Data) + 4
	if length > MaxSize {
		err = fmt.Errorf("%w: length of data '%v' must not be bigger than '%v'", modbus.ErrInvalidArgument, length, MaxSize)
		return
	}
	raw = make([]byte, 2, length)
	raw[0] = adu.SlaveID
	raw[1] = adu.Pdu.FunctionCode
	raw = append(raw, adu.Pdu.Data...)
	raw = crc.Append(raw)
	return
}

// Verify checks that resp answers req: same unit and same function,
// with or without the exception bit.
func (req *ApplicationDataUnit) Verify(resp *ApplicationDataUnit) error {
	if req.SlaveID != resp.SlaveID {
		return fmt.Errorf("%w: response slave id '%v' does not match request '%v'", modbus.ErrUnitMismatch, resp.SlaveID, req.SlaveID)
	}
	if resp.Pdu.FunctionCode&^modbus.ExceptionBit != req.Pdu.FunctionCode {
		return fmt.Errorf("%w: response function code '%v' does not match request '%v'", modbus.ErrFunctionMismatch, resp.Pdu.FunctionCode, req.Pdu.FunctionCode)
	}
	return nil
}

func checkCRC(raw []byte) error {
	n := len(raw)
	var c crc.CRC
	c.Reset().PushBytes(raw[:n-2])
	checksum := uint16(raw[n-1])<<8 | uint16(raw[n-2])
	if checksum != c.Value() {
		return fmt.Errorf("%w: response crc '%04X' does not match expected '%04X'", modbus.ErrCRCMismatch, checksum, c.Value())
	}
	return nil
}
