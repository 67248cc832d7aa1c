// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package transport defines the byte-level line used by a master session
// and the errors it reports.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ffutop/modbus-holding-register/internal/config"
	"github.com/ffutop/modbus-holding-register/modbus"
)

// ErrTimeout is returned by Recv when the line stays silent for the whole
// timeout before the expected number of bytes arrived.
var ErrTimeout = errors.New("transport: timeout")

// ErrClosed is returned by operations on a closed port.
var ErrClosed = errors.New("transport: port closed")

// Op names the transport operation that failed.
type Op string

const (
	OpOpen  Op = "open"
	OpWrite Op = "write"
	OpRead  Op = "read"
)

// Error is an OS or line level failure.
type Error struct {
	Op     Op
	Device string
	Err    error
}

func (e *Error) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.Device, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Port is an open line owned by exactly one exchange at a time.
type Port interface {
	// Send writes the whole frame.
	Send(ctx context.Context, frame []byte) error
	// Recv accumulates bytes until expectedLen bytes arrived or the line was
	// silent for timeout. On timeout the partial bytes are returned together
	// with an error wrapping ErrTimeout.
	Recv(ctx context.Context, expectedLen int, timeout time.Duration) ([]byte, error)
	Close() error
}

// Opener opens a Port for the given line settings.
type Opener func(ctx context.Context, cfg config.SerialConfig) (Port, error)

// RequestHandler serves one request PDU addressed to slaveID. A nil response
// means nothing is sent back.
type RequestHandler func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (*modbus.ProtocolDataUnit, error)

// Server answers requests from a remote master until ctx is done.
type Server interface {
	Start(ctx context.Context, handler RequestHandler) error
}
