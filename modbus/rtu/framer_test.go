// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import "testing"

func TestRequestLength(t *testing.T) {
	tests := []struct {
		name     string
		funcCode byte
		header   []byte
		want     int
		wantErr  bool
	}{
		{"ReadHoldingRegisters", 0x03, []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}, 8, false},
		{"WriteSingleRegister", 0x06, []byte{0x01, 0x06, 0x00, 0x00, 0xAA, 0xBB}, 8, false},
		{"WriteMultipleRegisters_ShortHeader", 0x10, []byte{0x01, 0x10, 0x00, 0x01, 0x00, 0x01}, 0, true},
		{"WriteMultipleRegisters_Valid", 0x10, []byte{0x01, 0x10, 0x00, 0x01, 0x00, 0x01, 0x02}, 7 + 2 + 2, false},
		{"MaskWriteRegister", 0x16, []byte{0x01, 0x16}, 10, false},
		{"UnknownFunction", 0x99, []byte{0x01, 0x99}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RequestLength(tt.funcCode, tt.header)
			if (err != nil) != tt.wantErr {
				t.Errorf("RequestLength() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("RequestLength() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResponseLength(t *testing.T) {
	tests := []struct {
		name    string
		request []byte
		want    int
	}{
		{"ReadHolding_1", []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01, 0x84, 0x0A}, 7},
		{"ReadHolding_125", []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x7D, 0x00, 0x00}, 255},
		{"ReadInput", []byte{0x01, 0x04, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00}, 0},
		{"ReadCoils", []byte{0x01, 0x01, 0x00, 0x00, 0x00, 0x09, 0x00, 0x00}, 0},
		{"WriteSingle", []byte{0x01, 0x06, 0x00, 0x05, 0x00, 0xFF, 0xD9, 0x8B}, 8},
		{"WriteMultiple", []byte{0x01, 0x10, 0x00, 0x01, 0x00, 0x01, 0x02, 0x00, 0x0A, 0x00, 0x00}, 0},
		{"Truncated", []byte{0x01, 0x03, 0x00}, 0},
		{"Unknown", []byte{0x01, 0x2B, 0x0E, 0x01, 0x00}, 0},
		{"Empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResponseLength(tt.request); got != tt.want {
				t.Errorf("ResponseLength() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExpectedLength(t *testing.T) {
	if got := ExpectedLength([]byte{0x01}, 9); got != 9 {
		t.Errorf("one byte: got %d, want 9", got)
	}
	if got := ExpectedLength([]byte{0x01, 0x03}, 9); got != 9 {
		t.Errorf("normal function: got %d, want 9", got)
	}
	if got := ExpectedLength([]byte{0x01, 0x83}, 9); got != ExceptionSize {
		t.Errorf("exception function: got %d, want %d", got, ExceptionSize)
	}
}
