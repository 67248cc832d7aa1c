// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"time"

	"github.com/ffutop/modbus-holding-register/internal/config"
	"github.com/ffutop/modbus-holding-register/transport"
)

// OpenPort opens a serial Port as a transport.Port. It satisfies transport.Opener.
func OpenPort(ctx context.Context, cfg config.SerialConfig) (transport.Port, error) {
	p, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ResponseTimeout returns the silence a master tolerates while waiting for
// a response. A configured timeout wins; otherwise the slave gets
// config.DefaultTurnaround plus the transmission time of chars characters.
func ResponseTimeout(cfg config.SerialConfig, chars int) time.Duration {
	if cfg.Timeout > 0 {
		return cfg.Timeout
	}
	return config.DefaultTurnaround + calculateDelay(cfg.BaudRate, chars)
}

// calculateDelay calculates the time needed to transmit chars characters,
// each budgeted at the 1.5 character inter-byte limit, followed by the 3.5
// character inter-frame gap. Above 19200 baud fixed values apply.
func calculateDelay(baudRate, chars int) time.Duration {
	var characterDelay, frameDelay int

	if baudRate <= 0 || baudRate > 19200 {
		characterDelay = 750
		frameDelay = 1750
	} else {
		characterDelay = 15000000 / baudRate
		frameDelay = 35000000 / baudRate
	}
	return time.Duration(characterDelay*chars+frameDelay) * time.Microsecond
}

// frameDelay is the 3.5 character silence separating two frames.
func (p *Port) frameDelay() time.Duration {
	return calculateDelay(p.BaudRate, 0)
}
