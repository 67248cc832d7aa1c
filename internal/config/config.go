// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultBaudRate is the line speed the holding register tool was built for.
	DefaultBaudRate = 57600

	// DefaultTurnaround is the time a slave is given to start answering,
	// on top of the transmission time of request and response.
	DefaultTurnaround = 500 * time.Millisecond

	envPrefix = "MBHR"
)

// Config defines the global configuration structure
type Config struct {
	Serial    SerialConfig    `mapstructure:"serial"`
	Master    MasterConfig    `mapstructure:"master"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Log       LogConfig       `mapstructure:"log"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// MasterConfig defines the behaviour of a master session.
type MasterConfig struct {
	// Debug dumps every frame and state transition to the logger.
	Debug bool `mapstructure:"debug"`
}

// SimulatorConfig defines the local holding register slave.
type SimulatorConfig struct {
	Unit    byte   `mapstructure:"unit"`
	Storage string `mapstructure:"storage"` // "memory", "file", "mmap"
	Path    string `mapstructure:"path"`    // register image for "file" and "mmap"
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Device   string `mapstructure:"device"`
	BaudRate int    `mapstructure:"baud_rate"`
	DataBits int    `mapstructure:"data_bits"`
	Parity   string `mapstructure:"parity"`
	StopBits int    `mapstructure:"stop_bits"`
	// Timeout bounds the silence accepted while waiting for a response.
	// Zero derives it from the baud rate and frame sizes.
	Timeout time.Duration `mapstructure:"timeout"`

	RS485 RS485Config `mapstructure:"rs485"`
}

// RS485Config defines RTS control for half-duplex adapters.
type RS485Config struct {
	Enabled            bool          `mapstructure:"enabled"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// New returns a viper instance carrying every default.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("serial.device", "")
	v.SetDefault("serial.baud_rate", DefaultBaudRate)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.timeout", time.Duration(0))
	v.SetDefault("master.debug", false)
	v.SetDefault("simulator.unit", 1)
	v.SetDefault("simulator.storage", "memory")
	v.SetDefault("simulator.path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// LoadConfig loads configuration from file into v. A missing file is not an
// error; every key may come from flags or MBHR_* environment variables.
func LoadConfig(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/mbhr/")
		v.AddConfigPath("$HOME/.mbhr")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	fixupSerial(&config.Serial)
	if err := config.Serial.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.Parity == "" {
		s.Parity = "N"
	}
	if s.BaudRate == 0 {
		s.BaudRate = DefaultBaudRate
	}
	if s.DataBits == 0 {
		s.DataBits = 8
	}
	if s.StopBits == 0 {
		s.StopBits = 1
	}
}

// Validate rejects line settings grid-x/serial cannot apply.
func (s *SerialConfig) Validate() error {
	if s.BaudRate < 0 {
		return fmt.Errorf("invalid baud rate: %d", s.BaudRate)
	}
	switch s.Parity {
	case "N", "E", "O":
	default:
		return fmt.Errorf("invalid parity: %q", s.Parity)
	}
	if s.DataBits < 5 || s.DataBits > 8 {
		return fmt.Errorf("invalid data bits: %d", s.DataBits)
	}
	if s.StopBits != 1 && s.StopBits != 2 {
		return fmt.Errorf("invalid stop bits: %d", s.StopBits)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("invalid timeout: %v", s.Timeout)
	}
	return nil
}
