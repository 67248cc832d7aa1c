// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package local connects a master to an in-process slave without a line.
// Frames still go through RTU encoding and decoding in both directions.
package local

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	rtupacket "github.com/ffutop/modbus-holding-register/modbus/rtu"
	"github.com/ffutop/modbus-holding-register/transport"
)

// Scheme names the in-process device, e.g. local://.
const Scheme = "local://"

// IsAddress reports whether device names the in-process slave.
func IsAddress(device string) bool {
	return strings.HasPrefix(device, Scheme)
}

// Port implements transport.Port on top of a RequestHandler.
type Port struct {
	handler transport.RequestHandler
	closer  io.Closer
	pending []byte
	closed  bool
}

// NewPort creates a Port answering through handler. closer, if not nil, is
// closed together with the port.
func NewPort(handler transport.RequestHandler, closer io.Closer) *Port {
	return &Port{handler: handler, closer: closer}
}

// Send decodes frame and hands it to the slave. Frames the slave would drop
// on a real line are dropped here as well.
func (p *Port) Send(ctx context.Context, frame []byte) error {
	if p.closed {
		return &transport.Error{Op: transport.OpWrite, Device: Scheme, Err: transport.ErrClosed}
	}
	p.pending = nil

	req, err := rtupacket.Decode(frame)
	if err != nil {
		return nil
	}
	pdu, err := p.handler(ctx, req.SlaveID, req.Pdu)
	if err != nil {
		return &transport.Error{Op: transport.OpWrite, Device: Scheme, Err: err}
	}
	if pdu == nil {
		return nil
	}
	resp := &rtupacket.ApplicationDataUnit{SlaveID: req.SlaveID, Pdu: *pdu}
	p.pending, err = resp.Encode()
	if err != nil {
		return &transport.Error{Op: transport.OpWrite, Device: Scheme, Err: err}
	}
	return nil
}

// Recv returns the response to the last frame sent. Without one it reports
// a timeout immediately; nothing could arrive later.
func (p *Port) Recv(ctx context.Context, expectedLen int, timeout time.Duration) ([]byte, error) {
	if p.closed {
		return nil, &transport.Error{Op: transport.OpRead, Device: Scheme, Err: transport.ErrClosed}
	}
	resp := p.pending
	p.pending = nil
	want := rtupacket.ExpectedLength(resp, expectedLen)
	if len(resp) < want {
		return resp, fmt.Errorf("%w: received %d of %d bytes", transport.ErrTimeout, len(resp), want)
	}
	return resp[:want], nil
}

func (p *Port) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if p.closer != nil {
		return p.closer.Close()
	}
	return nil
}
