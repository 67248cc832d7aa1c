// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

const (
	MinSize = 4
	MaxSize = 256

	ExceptionSize = 5

	// Both 0x03 requests and 0x06 requests/responses are fixed size:
	// [Unit, Func, Addr(2), Quantity|Value(2), CRC(2)]
	FixedSize = 8

	// Read response overhead: [Unit, Func, ByteCount, ..., CRC(2)]
	readResponseOverhead = 5
)
