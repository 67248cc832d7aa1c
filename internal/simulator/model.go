// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package simulator

import (
	"encoding/binary"
	"fmt"
	"sync"
)

const (
	MaxAddress = 65535

	// ImageSize is the size of a holding register image: 65536 registers,
	// two bytes each, big-endian as on the wire.
	ImageSize = (MaxAddress + 1) * 2
)

// Registers holds the holding register table of one simulated unit.
// The table lives in a flat big-endian image so that a storage backend can
// map it straight onto a file.
type Registers struct {
	mu    sync.RWMutex
	image []byte
}

// NewRegisters creates a register table initialized to zero.
func NewRegisters() *Registers {
	return &Registers{image: make([]byte, ImageSize)}
}

// NewRegistersOver creates a register table backed by image, which must be
// exactly ImageSize bytes.
func NewRegistersOver(image []byte) (*Registers, error) {
	if len(image) != ImageSize {
		return nil, fmt.Errorf("register image is %d bytes, want %d", len(image), ImageSize)
	}
	return &Registers{image: image}, nil
}

// Read returns quantity registers starting at address.
func (r *Registers) Read(address, quantity uint16) ([]uint16, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := validateRange(address, quantity); err != nil {
		return nil, err
	}
	values := make([]uint16, quantity)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(r.image[(int(address)+i)*2:])
	}
	return values, nil
}

// ReadBytes returns quantity registers starting at address as big-endian bytes.
func (r *Registers) ReadBytes(address, quantity uint16) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := validateRange(address, quantity); err != nil {
		return nil, err
	}
	start := int(address) * 2
	return append([]byte(nil), r.image[start:start+int(quantity)*2]...), nil
}

// Write sets a single register.
func (r *Registers) Write(address, value uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()

	binary.BigEndian.PutUint16(r.image[int(address)*2:], value)
}

func validateRange(address, quantity uint16) error {
	if quantity == 0 {
		return fmt.Errorf("quantity must be greater than 0")
	}
	// address is 0-based.
	if int(address)+int(quantity) > MaxAddress+1 {
		return fmt.Errorf("address range out of bounds")
	}
	return nil
}
