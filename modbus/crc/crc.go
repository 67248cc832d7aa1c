// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package crc implements the CRC16 used by Modbus RTU
// (reflected polynomial 0xA001, initial register 0xFFFF).
package crc

const (
	initial    = 0xFFFF
	polynomial = 0xA001
)

// CRC is a running Modbus CRC16. The zero value must be Reset before use.
type CRC struct {
	value uint16
}

func (crc *CRC) Reset() *CRC {
	crc.value = initial
	return crc
}

// PushBytes folds bs into the register one bit at a time.
func (crc *CRC) PushBytes(bs []byte) *CRC {
	v := crc.value
	for _, b := range bs {
		v ^= uint16(b)
		for i := 0; i < 8; i++ {
			if v&0x0001 != 0 {
				v = (v >> 1) ^ polynomial
			} else {
				v >>= 1
			}
		}
	}
	crc.value = v
	return crc
}

func (crc *CRC) Value() uint16 {
	return crc.value
}

// Checksum returns the CRC16 of bs.
func Checksum(bs []byte) uint16 {
	var crc CRC
	return crc.Reset().PushBytes(bs).Value()
}

// Append appends the checksum of frame to it, low byte first.
func Append(frame []byte) []byte {
	sum := Checksum(frame)
	return append(frame, byte(sum), byte(sum>>8))
}

// Valid reports whether the last two bytes of frame are the little-endian
// checksum of the bytes before them.
func Valid(frame []byte) bool {
	n := len(frame)
	if n < 3 {
		return false
	}
	return Checksum(frame[:n-2]) == uint16(frame[n-1])<<8|uint16(frame[n-2])
}
