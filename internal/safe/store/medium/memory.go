package medium

import (
	"context"
	"sync"
)

// Memory is a volatile medium backed by a byte slice.
type Memory struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemory returns a zeroed medium of size bytes.
func NewMemory(size int) (*Memory, error) {
	if err := validateSize(size); err != nil {
		return nil, err
	}
	return &Memory{data: make([]byte, size)}, nil
}

// NewMemoryFrom returns a medium preloaded with a copy of image.
func NewMemoryFrom(image []byte) (*Memory, error) {
	if err := validateSize(len(image)); err != nil {
		return nil, err
	}
	data := make([]byte, len(image))
	copy(data, image)
	return &Memory{data: data}, nil
}

func (m *Memory) Read(_ context.Context, addr uint16) (byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := checkAddr(addr, len(m.data)); err != nil {
		return 0, err
	}
	return m.data[addr], nil
}

func (m *Memory) Write(_ context.Context, addr uint16, value byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkAddr(addr, len(m.data)); err != nil {
		return err
	}
	m.data[addr] = value
	return nil
}

func (m *Memory) Size() int {
	return len(m.data)
}

// Snapshot returns a copy of the whole image.
func (m *Memory) Snapshot() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}
