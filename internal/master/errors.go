// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package master

import (
	"errors"
	"fmt"
)

// Kind classifies why an exchange failed.
type Kind int

const (
	// KindInvalidRequest: the request violates protocol limits. No I/O happened.
	KindInvalidRequest Kind = iota + 1
	// KindTransport: opening, writing or reading the line failed.
	KindTransport
	// KindTimeout: the unit did not deliver a complete response in time.
	KindTimeout
	// KindProtocol: a response arrived but failed validation, or carried a
	// Modbus exception.
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid request"
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindProtocol:
		return "protocol"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned by Session.Execute. State is the last state the
// exchange reached before failing.
type Error struct {
	Kind  Kind
	State State
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error in state %s: %v", e.Kind, e.State, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or 0 if err did not come from a Session.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
