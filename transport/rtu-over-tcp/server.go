// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtuovertcp

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/ffutop/modbus-holding-register/modbus"
	rtupacket "github.com/ffutop/modbus-holding-register/modbus/rtu"
	"github.com/ffutop/modbus-holding-register/transport"
)

// headerSize covers the byte count field of multiple write requests.
const headerSize = 7

// Server implements a Modbus RTU over TCP Server.
// It listens on a TCP port and handles incoming connections as Modbus RTU streams.
type Server struct {
	Address string
	Logger  *slog.Logger
}

// NewServer creates a new RTU over TCP Server. address may carry Scheme.
func NewServer(address string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Address: Address(address),
		Logger:  logger,
	}
}

// Start listens on Address and serves until ctx is done.
func (s *Server) Start(ctx context.Context, handler transport.RequestHandler) error {
	listener, err := net.Listen("tcp", s.Address)
	if err != nil {
		return &transport.Error{Op: transport.OpOpen, Device: s.Address, Err: err}
	}
	s.Logger.Info("RTU over TCP server listening", "addr", listener.Addr())
	return s.Serve(ctx, listener, handler)
}

// Serve accepts connections on listener until ctx is done. The listener is
// closed on return.
func (s *Server) Serve(ctx context.Context, listener net.Listener, handler transport.RequestHandler) error {
	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer func() {
		if stop() {
			listener.Close()
		}
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.Logger.Error("Failed to accept connection", "err", err)
			continue
		}
		go s.handleConnection(ctx, conn, handler)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn, handler transport.RequestHandler) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stop()
		conn.Close()
	}()
	s.Logger.Info("New RTU over TCP client connected", "addr", conn.RemoteAddr())

	buf := make([]byte, rtupacket.MaxSize)
	for {
		raw, err := readRequest(conn, buf)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.Logger.Warn("Closing RTU over TCP connection", "addr", conn.RemoteAddr(), "err", err)
			}
			return
		}

		req, err := rtupacket.Decode(raw)
		if err != nil {
			s.Logger.Debug("drop invalid frame", "frame", hex.EncodeToString(raw), "err", err)
			continue
		}
		s.Logger.Debug("recv from modbus master", "request", hex.EncodeToString(raw))

		pdu, err := handler(ctx, req.SlaveID, req.Pdu)
		if err != nil {
			s.Logger.Error("Handler failed", "err", err)
			pdu = &modbus.ProtocolDataUnit{
				FunctionCode: req.Pdu.FunctionCode | modbus.ExceptionBit,
				Data:         []byte{modbus.ExceptionCodeServerDeviceFailure},
			}
		}
		if pdu == nil {
			continue
		}

		resp := &rtupacket.ApplicationDataUnit{SlaveID: req.SlaveID, Pdu: *pdu}
		respRaw, err := resp.Encode()
		if err != nil {
			s.Logger.Error("Failed to encode response", "err", err)
			continue
		}
		s.Logger.Debug("send to modbus master", "response", hex.EncodeToString(respRaw))
		if _, err := conn.Write(respRaw); err != nil {
			s.Logger.Error("Failed to write response", "err", err)
			return
		}
	}
}

// readRequest reads one request frame from a stream. A TCP stream has no
// silent intervals, so the frame length comes from the function code.
func readRequest(r io.Reader, buf []byte) ([]byte, error) {
	if _, err := io.ReadFull(r, buf[:headerSize]); err != nil {
		return nil, err
	}
	n, err := rtupacket.RequestLength(buf[1], buf[:headerSize])
	if err != nil {
		// The stream cannot be resynchronized.
		return nil, err
	}
	if n > len(buf) {
		return nil, fmt.Errorf("%w: request of %d bytes", modbus.ErrInvalidLength, n)
	}
	if _, err := io.ReadFull(r, buf[headerSize:n]); err != nil {
		return nil, err
	}
	return buf[:n], nil
}
