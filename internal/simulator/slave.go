// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package simulator implements a holding register slave that answers read
// holding registers (0x03) and write single register (0x06).
package simulator

import (
	"context"
	"encoding/binary"
	"log/slog"

	"github.com/ffutop/modbus-holding-register/modbus"
)

// Slave answers requests addressed to its unit id from a register table.
type Slave struct {
	unit      byte
	registers *Registers
	storage   Storage
	logger    *slog.Logger
}

// NewSlave loads the register table from storage.
func NewSlave(unit byte, storage Storage, logger *slog.Logger) (*Slave, error) {
	registers, err := storage.Load()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Slave{unit: unit, registers: registers, storage: storage, logger: logger}, nil
}

// Registers exposes the register table, e.g. to preset values.
func (s *Slave) Registers() *Registers {
	return s.registers
}

// Handle serves one request. Requests for other units yield no response;
// broadcast writes are applied without a response.
func (s *Slave) Handle(ctx context.Context, slaveID byte, req modbus.ProtocolDataUnit) (*modbus.ProtocolDataUnit, error) {
	broadcast := slaveID == modbus.BroadcastUnit
	if slaveID != s.unit && !broadcast {
		return nil, nil
	}

	var resp modbus.ProtocolDataUnit
	switch req.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters:
		if broadcast {
			return nil, nil
		}
		resp = s.handleReadHoldingRegisters(req)
	case modbus.FuncCodeWriteSingleRegister:
		resp = s.handleWriteSingleRegister(req)
	default:
		resp = exception(req.FunctionCode, modbus.ExceptionCodeIllegalFunction)
	}

	if modbus.IsException(resp.FunctionCode) {
		s.logger.Debug("exception response", "slave_id", slaveID, "func", req.FunctionCode, "code", resp.Data[0])
	}
	if broadcast {
		return nil, nil
	}
	return &resp, nil
}

func (s *Slave) handleReadHoldingRegisters(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity < 1 || quantity > modbus.MaxReadRegisters {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}

	data, err := s.registers.ReadBytes(address, quantity)
	if err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}

	respData := make([]byte, 1+len(data))
	respData[0] = byte(len(data))
	copy(respData[1:], data)

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}
}

func (s *Slave) handleWriteSingleRegister(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	s.registers.Write(address, value)
	s.storage.OnWrite(address, 1)

	// The response echoes the request.
	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         append([]byte(nil), req.Data...),
	}
}

func exception(funcCode byte, code byte) modbus.ProtocolDataUnit {
	return modbus.ProtocolDataUnit{
		FunctionCode: funcCode | modbus.ExceptionBit,
		Data:         []byte{code},
	}
}
