// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package simulator

import (
	"bytes"
	"context"
	"encoding/binary"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ffutop/modbus-holding-register/internal/config"
	"github.com/ffutop/modbus-holding-register/modbus"
)

func newTestSlave(t *testing.T) *Slave {
	t.Helper()
	s, err := NewSlave(1, NewMemoryStorage(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSlaveReadHoldingRegisters(t *testing.T) {
	s := newTestSlave(t)
	s.Registers().Write(0x0010, 0x002A)
	s.Registers().Write(0x0011, 0x002B)

	resp, err := s.Handle(context.Background(), 1, modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeReadHoldingRegisters,
		Data:         []byte{0x00, 0x10, 0x00, 0x02},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp == nil {
		t.Fatal("expected a response")
	}
	if resp.FunctionCode != modbus.FuncCodeReadHoldingRegisters {
		t.Fatalf("function code: expected 0x03, actual 0x%02x", resp.FunctionCode)
	}
	expected := []byte{0x04, 0x00, 0x2A, 0x00, 0x2B}
	if !bytes.Equal(expected, resp.Data) {
		t.Fatalf("data: expected % x, actual % x", expected, resp.Data)
	}
}

func TestSlaveWriteSingleRegister(t *testing.T) {
	s := newTestSlave(t)
	req := modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeWriteSingleRegister,
		Data:         []byte{0x00, 0x05, 0x00, 0xFF},
	}
	resp, err := s.Handle(context.Background(), 1, req)
	if err != nil {
		t.Fatal(err)
	}
	if resp == nil || resp.FunctionCode != req.FunctionCode || !bytes.Equal(req.Data, resp.Data) {
		t.Fatalf("expected echo of %v, actual %v", req, resp)
	}
	values, err := s.Registers().Read(5, 1)
	if err != nil {
		t.Fatal(err)
	}
	if values[0] != 0x00FF {
		t.Fatalf("register 5: expected 0x00ff, actual 0x%04x", values[0])
	}
}

func TestSlaveExceptions(t *testing.T) {
	tests := []struct {
		name string
		pdu  modbus.ProtocolDataUnit
		code byte
	}{
		{"zero quantity", modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x00, 0x00, 0x00}}, modbus.ExceptionCodeIllegalDataValue},
		{"quantity over 125", modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x00, 0x00, 0x7E}}, modbus.ExceptionCodeIllegalDataValue},
		{"range overflow", modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0xFF, 0xFF, 0x00, 0x02}}, modbus.ExceptionCodeIllegalDataAddress},
		{"short read pdu", modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00}}, modbus.ExceptionCodeIllegalDataValue},
		{"short write pdu", modbus.ProtocolDataUnit{FunctionCode: 0x06, Data: []byte{0x00, 0x01, 0x00}}, modbus.ExceptionCodeIllegalDataValue},
		{"input registers", modbus.ProtocolDataUnit{FunctionCode: 0x04, Data: []byte{0x00, 0x00, 0x00, 0x01}}, modbus.ExceptionCodeIllegalFunction},
		{"multiple registers", modbus.ProtocolDataUnit{FunctionCode: 0x10, Data: []byte{0x00, 0x00, 0x00, 0x01, 0x02, 0x00, 0x01}}, modbus.ExceptionCodeIllegalFunction},
	}

	s := newTestSlave(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.Handle(context.Background(), 1, tt.pdu)
			if err != nil {
				t.Fatal(err)
			}
			if resp == nil {
				t.Fatal("expected an exception response")
			}
			if resp.FunctionCode != tt.pdu.FunctionCode|modbus.ExceptionBit {
				t.Fatalf("function code: expected 0x%02x, actual 0x%02x", tt.pdu.FunctionCode|modbus.ExceptionBit, resp.FunctionCode)
			}
			if len(resp.Data) != 1 || resp.Data[0] != tt.code {
				t.Fatalf("exception: expected 0x%02x, actual % x", tt.code, resp.Data)
			}
		})
	}
}

func TestSlaveIgnoresOtherUnits(t *testing.T) {
	s := newTestSlave(t)
	resp, err := s.Handle(context.Background(), 2, modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeWriteSingleRegister,
		Data:         []byte{0x00, 0x05, 0x00, 0xFF},
	})
	if err != nil || resp != nil {
		t.Fatalf("expected no response, actual %v, %v", resp, err)
	}
	values, _ := s.Registers().Read(5, 1)
	if values[0] != 0 {
		t.Fatalf("register 5 changed to 0x%04x", values[0])
	}
}

func TestSlaveBroadcastWrite(t *testing.T) {
	s := newTestSlave(t)
	resp, err := s.Handle(context.Background(), modbus.BroadcastUnit, modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeWriteSingleRegister,
		Data:         []byte{0x01, 0x00, 0x12, 0x34},
	})
	if err != nil || resp != nil {
		t.Fatalf("expected no response, actual %v, %v", resp, err)
	}
	values, _ := s.Registers().Read(0x0100, 1)
	if values[0] != 0x1234 {
		t.Fatalf("register 0x0100: expected 0x1234, actual 0x%04x", values[0])
	}

	resp, err = s.Handle(context.Background(), modbus.BroadcastUnit, modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeReadHoldingRegisters,
		Data:         []byte{0x01, 0x00, 0x00, 0x01},
	})
	if err != nil || resp != nil {
		t.Fatalf("broadcast read: expected no response, actual %v, %v", resp, err)
	}
}

func TestRegistersRange(t *testing.T) {
	r := NewRegisters()
	tests := []struct {
		address, quantity uint16
		ok                bool
	}{
		{0, 1, true},
		{0, 125, true},
		{65535, 1, true},
		{65535, 2, false},
		{65400, 136, true},
		{65400, 137, false},
		{0, 0, false},
	}
	for _, tt := range tests {
		_, err := r.Read(tt.address, tt.quantity)
		if (err == nil) != tt.ok {
			t.Errorf("Read(%d, %d): expected ok=%v, actual err=%v", tt.address, tt.quantity, tt.ok, err)
		}
	}
}

func TestNewRegistersOverSize(t *testing.T) {
	if _, err := NewRegistersOver(make([]byte, 16)); err == nil {
		t.Fatal("expected an error for a short image")
	}
}

func TestStoragePersists(t *testing.T) {
	for _, kind := range []string{"file", "mmap"} {
		t.Run(kind, func(t *testing.T) {
			testStoragePersists(t, kind)
		})
	}
}

func testStoragePersists(t *testing.T, kind string) {
	path := filepath.Join(t.TempDir(), "registers.bin")
	cfg := config.SimulatorConfig{Storage: kind, Path: path}

	storage, err := NewStorage(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSlave(1, storage, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Handle(context.Background(), 1, modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeWriteSingleRegister,
		Data:         []byte{0x00, 0x07, 0xBE, 0xEF},
	}); err != nil {
		t.Fatal(err)
	}
	if err := storage.Close(); err != nil {
		t.Fatal(err)
	}

	storage, err = NewStorage(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer storage.Close()
	r, err := storage.Load()
	if err != nil {
		t.Fatal(err)
	}
	values, err := r.Read(7, 1)
	if err != nil {
		t.Fatal(err)
	}
	if values[0] != 0xBEEF {
		t.Fatalf("register 7: expected 0xbeef, actual 0x%04x", values[0])
	}
}

func TestNewStorage(t *testing.T) {
	tests := []struct {
		cfg config.SimulatorConfig
		ok  bool
	}{
		{config.SimulatorConfig{}, true},
		{config.SimulatorConfig{Storage: "memory"}, true},
		{config.SimulatorConfig{Storage: "mmap"}, false},
		{config.SimulatorConfig{Storage: "file"}, false},
		{config.SimulatorConfig{Storage: "file", Path: "registers.bin"}, true},
		{config.SimulatorConfig{Storage: "sql"}, false},
	}
	for _, tt := range tests {
		_, err := NewStorage(tt.cfg, nil)
		if (err == nil) != tt.ok {
			t.Errorf("NewStorage(%+v): expected ok=%v, actual err=%v", tt.cfg, tt.ok, err)
		}
	}
}

func TestStorageConcurrentWrites(t *testing.T) {
	for _, kind := range []string{"memory", "file", "mmap"} {
		t.Run(kind, func(t *testing.T) {
			cfg := config.SimulatorConfig{Storage: kind, Path: filepath.Join(t.TempDir(), "registers.bin")}
			storage, err := NewStorage(cfg, nil)
			if err != nil {
				t.Fatal(err)
			}
			defer storage.Close()
			s, err := NewSlave(1, storage, nil)
			if err != nil {
				t.Fatal(err)
			}

			const writes = 200
			var wg sync.WaitGroup
			for client := 0; client < 2; client++ {
				wg.Add(1)
				go func(address uint16) {
					defer wg.Done()
					data := make([]byte, 4)
					binary.BigEndian.PutUint16(data, address)
					for i := 1; i <= writes; i++ {
						binary.BigEndian.PutUint16(data[2:], uint16(i))
						if _, err := s.Handle(context.Background(), 1, modbus.ProtocolDataUnit{
							FunctionCode: modbus.FuncCodeWriteSingleRegister,
							Data:         data,
						}); err != nil {
							t.Error(err)
							return
						}
					}
				}(uint16(client) + 0x20)
			}
			wg.Wait()

			values, err := s.Registers().Read(0x20, 2)
			if err != nil {
				t.Fatal(err)
			}
			if values[0] != writes || values[1] != writes {
				t.Fatalf("registers 0x20..0x21: expected %d, actual %v", writes, values)
			}
			if kind == "memory" {
				return
			}
			image, err := os.ReadFile(cfg.Path)
			if err != nil {
				t.Fatal(err)
			}
			for _, address := range []int{0x20, 0x21} {
				if v := binary.BigEndian.Uint16(image[address*2:]); v != writes {
					t.Errorf("image register 0x%04x: expected %d, actual %d", address, writes, v)
				}
			}
		})
	}
}

func TestFileStorageLogsThroughLogger(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	storage, err := NewStorage(config.SimulatorConfig{Storage: "file", Path: filepath.Join(t.TempDir(), "registers.bin")}, logger)
	if err != nil {
		t.Fatal(err)
	}
	fs := storage.(*FileStorage)
	if _, err := fs.Load(); err != nil {
		t.Fatal(err)
	}
	// Pull the file out from under the storage so the write-through fails.
	fs.file.Close()
	fs.OnWrite(3, 1)

	if !strings.Contains(logs.String(), "Failed to write register image") {
		t.Fatalf("expected the failure on the injected logger, actual %q", logs.String())
	}
}
