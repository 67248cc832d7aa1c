// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package master

import (
	"fmt"

	"github.com/ffutop/modbus-holding-register/modbus"
)

// Operation selects the Modbus function a Request performs.
type Operation int

const (
	OpRead Operation = iota
	OpWriteSingle
)

func (op Operation) String() string {
	switch op {
	case OpRead:
		return "read"
	case OpWriteSingle:
		return "write"
	default:
		return fmt.Sprintf("operation(%d)", int(op))
	}
}

// FunctionCode returns the function code sent on the wire for op.
func (op Operation) FunctionCode() byte {
	switch op {
	case OpRead:
		return modbus.FuncCodeReadHoldingRegisters
	case OpWriteSingle:
		return modbus.FuncCodeWriteSingleRegister
	default:
		return 0
	}
}

// Request is one exchange with one unit.
type Request struct {
	Unit    byte
	Op      Operation
	Address uint16
	// Count is the number of registers to read. Only used by OpRead.
	Count uint16
	// Value is the register value to write. Only used by OpWriteSingle.
	Value uint16
}

func NewReadRequest(unit byte, address, count uint16) Request {
	return Request{Unit: unit, Op: OpRead, Address: address, Count: count}
}

func NewWriteSingleRequest(unit byte, address, value uint16) Request {
	return Request{Unit: unit, Op: OpWriteSingle, Address: address, Value: value}
}

func (r Request) String() string {
	switch r.Op {
	case OpRead:
		return fmt.Sprintf("read unit=%d address=0x%04x count=%d", r.Unit, r.Address, r.Count)
	case OpWriteSingle:
		return fmt.Sprintf("write unit=%d address=0x%04x value=0x%04x", r.Unit, r.Address, r.Value)
	default:
		return r.Op.String()
	}
}

// ResponseKind tells which fields of a Response are meaningful.
type ResponseKind int

const (
	// ResponseRegisters carries the values of a read.
	ResponseRegisters ResponseKind = iota
	// ResponseAck confirms a write.
	ResponseAck
)

func (k ResponseKind) String() string {
	if k == ResponseAck {
		return "ack"
	}
	return "registers"
}

// Response is the result of a successful exchange.
type Response struct {
	Kind      ResponseKind
	Unit      byte
	Address   uint16
	Registers []uint16
}
