// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned before any I/O when a request parameter
	// is outside the protocol-legal range.
	ErrInvalidArgument = errors.New("modbus: invalid argument")

	// ErrShortFrame indicates a response shorter than its minimum length.
	ErrShortFrame = errors.New("modbus: short frame")

	// ErrInvalidLength indicates a response longer than expected or a byte
	// count that disagrees with the request.
	ErrInvalidLength = errors.New("modbus: invalid length")

	// ErrCRCMismatch indicates the trailing CRC does not match the frame.
	ErrCRCMismatch = errors.New("modbus: crc mismatch")

	// ErrFunctionMismatch indicates the response function code differs from
	// the request, ignoring the exception bit.
	ErrFunctionMismatch = errors.New("modbus: function code mismatch")

	// ErrUnitMismatch indicates the response came from another unit.
	ErrUnitMismatch = errors.New("modbus: unit id mismatch")

	// ErrUnexpectedEcho indicates a write response that does not echo the
	// request address and value.
	ErrUnexpectedEcho = errors.New("modbus: unexpected echo")
)

// ExceptionError is a decoded exception response.
type ExceptionError struct {
	FunctionCode  byte
	ExceptionCode byte
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus: exception '%v' (%s), function '%v'",
		e.ExceptionCode, ExceptionName(e.ExceptionCode), e.FunctionCode&^ExceptionBit)
}

// Is matches another *ExceptionError carrying the same exception code.
func (e *ExceptionError) Is(target error) bool {
	t, ok := target.(*ExceptionError)
	if !ok {
		return false
	}
	return e.ExceptionCode == t.ExceptionCode
}

// IsExceptionCode reports whether err carries a Modbus exception with the given code.
func IsExceptionCode(err error, code byte) bool {
	var exc *ExceptionError
	if errors.As(err, &exc) {
		return exc.ExceptionCode == code
	}
	return false
}
