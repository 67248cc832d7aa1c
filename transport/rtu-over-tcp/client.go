// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package rtuovertcp carries RTU frames over a TCP stream, as offered by
// serial device servers that bridge a serial line to a TCP port.
package rtuovertcp

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/ffutop/modbus-holding-register/internal/config"
	"github.com/ffutop/modbus-holding-register/transport"
	"github.com/ffutop/modbus-holding-register/transport/rtu"
)

const (
	// Scheme prefixes a device name that is a TCP address, e.g. tcp://10.0.0.7:4001.
	Scheme = "tcp://"

	dialTimeout = 10 * time.Second
)

// IsAddress reports whether device names a TCP endpoint instead of a serial device.
func IsAddress(device string) bool {
	return strings.HasPrefix(device, Scheme)
}

// Address strips Scheme from device.
func Address(device string) string {
	return strings.TrimPrefix(device, Scheme)
}

// OpenPort dials the TCP endpoint named by cfg.Device. Frames are sent and
// received exactly as on a serial line. It satisfies transport.Opener.
func OpenPort(ctx context.Context, cfg config.SerialConfig) (transport.Port, error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", Address(cfg.Device))
	if err != nil {
		return nil, &transport.Error{Op: transport.OpOpen, Device: cfg.Device, Err: err}
	}
	return rtu.NewPort(conn, cfg), nil
}
