// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package simulator

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/ffutop/modbus-holding-register/internal/config"
)

// Storage provides the register table of a simulated unit.
type Storage interface {
	// Load returns the register table, creating an empty one if needed.
	Load() (*Registers, error)

	// OnWrite is called after a register was modified.
	OnWrite(address, quantity uint16)

	Close() error
}

// NewStorage selects a backend from the simulator configuration. A nil
// logger means slog.Default().
func NewStorage(cfg config.SimulatorConfig, logger *slog.Logger) (Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Storage {
	case "", "memory":
		return NewMemoryStorage(), nil
	case "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("file storage requires a path")
		}
		return NewFileStorage(cfg.Path, logger), nil
	case "mmap":
		if cfg.Path == "" {
			return nil, fmt.Errorf("mmap storage requires a path")
		}
		return NewMmapStorage(cfg.Path, logger), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %q", cfg.Storage)
	}
}

// MemoryStorage keeps registers in memory only.
type MemoryStorage struct{}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (ms *MemoryStorage) Load() (*Registers, error) {
	return NewRegisters(), nil
}

func (ms *MemoryStorage) OnWrite(address, quantity uint16) {}

func (ms *MemoryStorage) Close() error {
	return nil
}

// FileStorage keeps a copy of the register image in memory and writes the
// changed registers back to the file on every write.
type FileStorage struct {
	path      string
	logger    *slog.Logger
	file      *os.File
	registers *Registers
}

// NewFileStorage creates a new FileStorage.
func NewFileStorage(path string, logger *slog.Logger) *FileStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStorage{
		path:   path,
		logger: logger,
	}
}

// Load reads the image file, creating and sizing it if necessary.
func (fs *FileStorage) Load() (*Registers, error) {
	f, err := os.OpenFile(fs.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != ImageSize {
		if err := f.Truncate(ImageSize); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resize file: %w", err)
		}
	}

	data, err := io.ReadAll(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	registers, err := NewRegistersOver(data)
	if err != nil {
		f.Close()
		return nil, err
	}
	fs.file = f
	fs.registers = registers
	return registers, nil
}

// OnWrite writes the modified registers through to disk.
func (fs *FileStorage) OnWrite(address, quantity uint16) {
	if fs.file == nil {
		return
	}
	// Copy under the register lock; another connection may be writing.
	data, err := fs.registers.ReadBytes(address, quantity)
	if err != nil {
		fs.logger.Error("Failed to snapshot registers", "path", fs.path, "address", address, "err", err)
		return
	}
	if _, err := fs.file.WriteAt(data, int64(address)*2); err != nil {
		fs.logger.Error("Failed to write register image", "path", fs.path, "err", err)
		return
	}
	if err := fs.file.Sync(); err != nil {
		fs.logger.Error("Failed to sync register image", "path", fs.path, "err", err)
	}
}

// Close the file.
func (fs *FileStorage) Close() error {
	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file = nil
	return err
}

// MmapStorage maps the register image onto a file, so register values
// survive a restart of the simulator.
type MmapStorage struct {
	path   string
	logger *slog.Logger
	file   *os.File
	data   mmap.MMap
}

// NewMmapStorage creates a new MmapStorage.
func NewMmapStorage(path string, logger *slog.Logger) *MmapStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &MmapStorage{
		path:   path,
		logger: logger,
	}
}

// Load maps the image file, creating and sizing it if necessary.
func (ms *MmapStorage) Load() (*Registers, error) {
	f, err := os.OpenFile(ms.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open mmap file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != ImageSize {
		if err := f.Truncate(ImageSize); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resize mmap file: %w", err)
		}
	}

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	ms.file = f
	ms.data = data

	return NewRegistersOver(data)
}

// OnWrite flushes the mapping to disk.
func (ms *MmapStorage) OnWrite(address, quantity uint16) {
	if ms.data == nil {
		return
	}
	if err := ms.data.Flush(); err != nil {
		ms.logger.Error("Failed to flush mmap", "path", ms.path, "err", err)
	}
}

// Close unmaps and closes the file.
func (ms *MmapStorage) Close() error {
	var err error
	if ms.data != nil {
		if e := ms.data.Unmap(); e != nil {
			err = e
		}
		ms.data = nil
	}
	if ms.file != nil {
		if e := ms.file.Close(); e != nil {
			err = e
		}
		ms.file = nil
	}
	return err
}
