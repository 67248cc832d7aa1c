// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ffutop/modbus-holding-register/internal/config"
	rtupacket "github.com/ffutop/modbus-holding-register/modbus/rtu"
	"github.com/ffutop/modbus-holding-register/transport"
)

// Server implements a Modbus RTU slave loop.
// It waits for requests from an external master on a serial line and
// answers them one at a time through a RequestHandler.
type Server struct {
	Config config.SerialConfig
	Logger *slog.Logger
}

// NewServer creates a new RTU Server.
func NewServer(cfg config.SerialConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Config: cfg,
		Logger: logger,
	}
}

// Start opens the serial line and serves until ctx is done.
func (s *Server) Start(ctx context.Context, handler transport.RequestHandler) error {
	port, err := Open(ctx, s.Config)
	if err != nil {
		return err
	}
	rwc := port.port
	// Closing the line unblocks a pending read on shutdown.
	stop := context.AfterFunc(ctx, func() { rwc.Close() })
	defer func() {
		if stop() {
			port.Close()
		}
	}()
	s.Logger.Info("RTU server listening", "device", s.Config.Device, "baud_rate", s.Config.BaudRate)

	return s.Serve(ctx, rwc, handler)
}

// Serve answers requests arriving on rwc until ctx is done or the line fails.
func (s *Server) Serve(ctx context.Context, rwc io.ReadWriteCloser, handler transport.RequestHandler) error {
	port := NewPort(rwc, s.Config)
	gap := max(port.frameDelay(), readPollInterval)

	for {
		raw, err := port.readFrame(ctx, gap)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}

		req, err := rtupacket.Decode(raw)
		if err != nil {
			s.Logger.Debug("drop invalid frame", "frame", hex.EncodeToString(raw), "err", err)
			continue
		}
		s.Logger.Debug("recv from modbus master", "request", hex.EncodeToString(raw))

		pdu, err := handler(ctx, req.SlaveID, req.Pdu)
		if err != nil {
			s.Logger.Error("request handler failed", "slave_id", req.SlaveID, "func", req.Pdu.FunctionCode, "err", err)
			continue
		}
		if pdu == nil {
			continue
		}

		resp := &rtupacket.ApplicationDataUnit{SlaveID: req.SlaveID, Pdu: *pdu}
		respBytes, err := resp.Encode()
		if err != nil {
			s.Logger.Error("failed to encode response", "err", err)
			continue
		}
		s.Logger.Debug("send to modbus master", "response", hex.EncodeToString(respBytes))
		if err := port.Send(ctx, respBytes); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to send response: %w", err)
		}
	}
}
