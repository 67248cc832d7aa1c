// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/grid-x/serial"

	"github.com/ffutop/modbus-holding-register/internal/config"
	rtupacket "github.com/ffutop/modbus-holding-register/modbus/rtu"
	"github.com/ffutop/modbus-holding-register/transport"
)

// readPollInterval bounds a single blocking read so that silence can be
// measured. It is the per-read timeout handed to the serial driver.
const readPollInterval = 10 * time.Millisecond

// Port is an open serial line speaking Modbus RTU. It is not safe for
// concurrent use.
type Port struct {
	// Serial port configuration.
	serial.Config

	// port is platform-dependent data structure for serial port.
	port         io.ReadWriteCloser
	lastActivity time.Time
}

// Open opens and configures the serial device in raw mode with the
// configured baud rate and framing (8N1 unless configured otherwise).
func Open(ctx context.Context, cfg config.SerialConfig) (*Port, error) {
	select {
	case <-ctx.Done():
		return nil, &transport.Error{Op: transport.OpOpen, Device: cfg.Device, Err: ctx.Err()}
	default:
	}

	p := &Port{Config: serialConfig(cfg)}
	port, err := serial.Open(&p.Config)
	if err != nil {
		return nil, &transport.Error{Op: transport.OpOpen, Device: cfg.Device, Err: fmt.Errorf("could not open %s: %w", cfg.Device, err)}
	}
	p.port = port
	return p, nil
}

// NewPort wraps an already open line, such as one end of a pipe.
func NewPort(rwc io.ReadWriteCloser, cfg config.SerialConfig) *Port {
	return &Port{Config: serialConfig(cfg), port: rwc}
}

func serialConfig(cfg config.SerialConfig) serial.Config {
	return serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  readPollInterval,
		RS485: serial.RS485Config{
			Enabled:            cfg.RS485.Enabled,
			DelayRtsBeforeSend: cfg.RS485.DelayRtsBeforeSend,
			DelayRtsAfterSend:  cfg.RS485.DelayRtsAfterSend,
			RtsHighDuringSend:  cfg.RS485.RtsHighDuringSend,
			RtsHighAfterSend:   cfg.RS485.RtsHighAfterSend,
			RxDuringTx:         cfg.RS485.RxDuringTx,
		},
	}
}

// Send waits out the inter-frame gap, then writes frame completely,
// retrying short writes. Once writing has begun ctx is no longer observed.
func (p *Port) Send(ctx context.Context, frame []byte) error {
	if p.port == nil {
		return p.opError(transport.OpWrite, transport.ErrClosed)
	}
	if gap := p.frameDelay() - time.Since(p.lastActivity); gap > 0 {
		timer := time.NewTimer(gap)
		select {
		case <-ctx.Done():
			timer.Stop()
			return p.opError(transport.OpWrite, ctx.Err())
		case <-timer.C:
		}
	}

	written := 0
	for written < len(frame) {
		n, err := p.port.Write(frame[written:])
		written += n
		if err != nil {
			return p.opError(transport.OpWrite, fmt.Errorf("write failed after %d of %d bytes: %w", written, len(frame), err))
		}
		if n == 0 {
			return p.opError(transport.OpWrite, fmt.Errorf("write made no progress after %d of %d bytes: %w", written, len(frame), io.ErrShortWrite))
		}
	}
	p.lastActivity = time.Now()
	return nil
}

// Recv accumulates a response frame. It returns as soon as expectedLen
// bytes arrived, or ExceptionSize bytes when the second byte carries the
// exception bit. If the line stays silent for timeout, the bytes received so
// far are returned with an error wrapping transport.ErrTimeout.
func (p *Port) Recv(ctx context.Context, expectedLen int, timeout time.Duration) ([]byte, error) {
	if p.port == nil {
		return nil, p.opError(transport.OpRead, transport.ErrClosed)
	}
	if expectedLen < rtupacket.MinSize || expectedLen > rtupacket.MaxSize {
		return nil, p.opError(transport.OpRead, fmt.Errorf("expected length %d outside %d..%d", expectedLen, rtupacket.MinSize, rtupacket.MaxSize))
	}

	buf := make([]byte, 0, expectedLen)
	chunk := make([]byte, expectedLen)
	last := time.Now()
	for {
		want := rtupacket.ExpectedLength(buf, expectedLen)
		if len(buf) >= want {
			p.lastActivity = time.Now()
			return buf, nil
		}
		if err := ctx.Err(); err != nil {
			return buf, p.opError(transport.OpRead, err)
		}

		n, err := p.read(chunk[:want-len(buf)])
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			last = time.Now()
		}
		if err != nil && !isSilence(err) {
			return buf, p.opError(transport.OpRead, err)
		}
		if n > 0 {
			continue
		}

		if silent := time.Since(last); silent >= timeout {
			p.lastActivity = time.Now()
			return buf, fmt.Errorf("%w: received %d of %d bytes, line silent for %v", transport.ErrTimeout, len(buf), want, silent)
		}
		if err == nil || errors.Is(err, io.EOF) {
			// The reader does not block; back off instead of spinning.
			time.Sleep(min(readPollInterval, timeout))
		}
	}
}

// readFrame blocks until bytes were received and then followed by at least
// gap of silence, which delimits an RTU frame.
func (p *Port) readFrame(ctx context.Context, gap time.Duration) ([]byte, error) {
	if p.port == nil {
		return nil, p.opError(transport.OpRead, transport.ErrClosed)
	}
	buf := make([]byte, 0, rtupacket.MaxSize)
	chunk := make([]byte, rtupacket.MaxSize)
	var last time.Time
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := p.read(chunk[:rtupacket.MaxSize-len(buf)])
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			last = time.Now()
		}
		if err != nil && !isSilence(err) {
			return nil, p.opError(transport.OpRead, err)
		}
		if len(buf) == rtupacket.MaxSize || len(buf) > 0 && n == 0 && time.Since(last) >= gap {
			p.lastActivity = time.Now()
			return buf, nil
		}
		if n == 0 && (err == nil || errors.Is(err, io.EOF)) {
			time.Sleep(readPollInterval)
		}
	}
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// read performs one bounded read. Lines without a driver timeout but with
// deadline support (net.Conn) get a deadline of readPollInterval.
func (p *Port) read(b []byte) (int, error) {
	if d, ok := p.port.(readDeadliner); ok {
		if err := d.SetReadDeadline(time.Now().Add(readPollInterval)); err != nil {
			return 0, err
		}
	}
	return p.port.Read(b)
}

// Close releases the line. Closing a closed port is a no-op.
func (p *Port) Close() (err error) {
	if p.port != nil {
		err = p.port.Close()
		p.port = nil
	}
	return
}

func (p *Port) opError(op transport.Op, err error) error {
	return &transport.Error{Op: op, Device: p.Address, Err: err}
}

// isSilence reports whether err only means that no byte arrived in time.
func isSilence(err error) bool {
	if errors.Is(err, serial.ErrTimeout) || errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
