// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package master drives single request/response exchanges with a Modbus
// RTU unit over a serial line.
package master

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ffutop/modbus-holding-register/internal/config"
	"github.com/ffutop/modbus-holding-register/modbus"
	rtupacket "github.com/ffutop/modbus-holding-register/modbus/rtu"
	"github.com/ffutop/modbus-holding-register/transport"
	"github.com/ffutop/modbus-holding-register/transport/rtu"
)

// State is the progress of an exchange.
type State int

const (
	StateIdle State = iota
	StateFrameBuilt
	StateSent
	StateAwaitingResponse
	StateDecoded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFrameBuilt:
		return "frame-built"
	case StateSent:
		return "sent"
	case StateAwaitingResponse:
		return "awaiting-response"
	case StateDecoded:
		return "decoded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session performs exchanges on one serial line. Each Execute opens the
// line, performs exactly one attempt and closes the line again. A Session
// is not safe for concurrent use.
type Session struct {
	config config.SerialConfig
	open   transport.Opener
	logger *slog.Logger
	debug  bool

	state State
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithDebug logs every frame and state transition at debug level.
func WithDebug(debug bool) Option {
	return func(s *Session) {
		s.debug = debug
	}
}

// WithOpener replaces the serial port opener, e.g. with a stub in tests.
func WithOpener(open transport.Opener) Option {
	return func(s *Session) {
		s.open = open
	}
}

// New creates a Session for the line described by cfg.
func New(cfg config.SerialConfig, opts ...Option) *Session {
	s := &Session{
		config: cfg,
		open:   rtu.OpenPort,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the state the last exchange ended in.
func (s *Session) State() State {
	return s.state
}

// Execute performs req. Writes to the broadcast unit are sent without
// waiting for a response and yield an Ack.
func (s *Session) Execute(ctx context.Context, req Request) (resp Response, err error) {
	s.state = StateIdle
	if s.debug {
		s.logger.Debug("execute", "request", req.String(), "func", req.Op.FunctionCode())
	}

	frame, err := s.encode(req)
	if err != nil {
		return Response{}, s.fail(KindInvalidRequest, err)
	}
	s.transition(StateFrameBuilt)
	s.dump("send", frame)

	port, err := s.open(ctx, s.config)
	if err != nil {
		return Response{}, s.fail(KindTransport, err)
	}
	defer func() {
		if cerr := port.Close(); cerr != nil {
			s.logger.Warn("Failed to close serial port", "device", s.config.Device, "err", cerr)
		}
	}()

	if err := port.Send(ctx, frame); err != nil {
		return Response{}, s.fail(classify(err), err)
	}
	s.transition(StateSent)

	if req.Unit == modbus.BroadcastUnit {
		s.transition(StateDecoded)
		return Response{Kind: ResponseAck, Unit: req.Unit, Address: req.Address}, nil
	}

	s.transition(StateAwaitingResponse)
	expected := rtupacket.ResponseLength(frame)
	raw, err := port.Recv(ctx, expected, rtu.ResponseTimeout(s.config, len(frame)+expected))
	if len(raw) > 0 {
		s.dump("recv", raw)
	}
	if err != nil && !isPartialFrame(ctx, raw, err) {
		return Response{}, s.fail(classify(err), err)
	}

	// A unit that answered with a frame of the wrong length is a protocol
	// failure; the codec decides what is wrong with it.
	resp, err = s.decode(req, raw)
	if err != nil {
		return Response{}, s.fail(KindProtocol, err)
	}
	s.transition(StateDecoded)
	return resp, nil
}

func (s *Session) encode(req Request) ([]byte, error) {
	switch req.Op {
	case OpRead:
		return rtupacket.EncodeReadHoldingRegisters(req.Unit, req.Address, req.Count)
	case OpWriteSingle:
		return rtupacket.EncodeWriteSingleRegister(req.Unit, req.Address, req.Value)
	default:
		return nil, fmt.Errorf("%w: unsupported operation %v", modbus.ErrInvalidArgument, req.Op)
	}
}

func (s *Session) decode(req Request, raw []byte) (Response, error) {
	switch req.Op {
	case OpRead:
		values, err := rtupacket.DecodeReadResponse(raw, req.Unit, req.Count)
		if err != nil {
			return Response{}, err
		}
		return Response{Kind: ResponseRegisters, Unit: req.Unit, Address: req.Address, Registers: values}, nil
	default:
		if err := rtupacket.DecodeWriteResponse(raw, req.Unit, req.Address, req.Value); err != nil {
			return Response{}, err
		}
		return Response{Kind: ResponseAck, Unit: req.Unit, Address: req.Address}, nil
	}
}

// isPartialFrame reports whether Recv gave up on silence after the unit
// had started to answer.
func isPartialFrame(ctx context.Context, raw []byte, err error) bool {
	return len(raw) > 0 && ctx.Err() == nil && errors.Is(err, transport.ErrTimeout)
}

// classify maps a transport error onto a Kind.
func classify(err error) Kind {
	if errors.Is(err, transport.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindTransport
}

func (s *Session) fail(kind Kind, err error) error {
	e := &Error{Kind: kind, State: s.state, Err: err}
	s.transition(StateFailed)
	return e
}

func (s *Session) transition(next State) {
	if s.debug {
		s.logger.Debug("session state", "from", s.state, "to", next)
	}
	s.state = next
}

func (s *Session) dump(direction string, frame []byte) {
	if s.debug {
		s.logger.Debug(direction+" frame", "device", s.config.Device, "frame", hex.EncodeToString(frame))
	}
}
