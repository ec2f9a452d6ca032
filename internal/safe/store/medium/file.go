package medium

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"digisafe/pkg/platform/sentinel"
)

// File is a medium persisted as a fixed-size image file. Each write is
// synced before Write returns.
type File struct {
	mu   sync.Mutex
	f    *os.File
	size int
}

// OpenFile opens or creates the image at path. A shorter existing image is
// zero-extended to size; a longer one is rejected.
func OpenFile(path string, size int) (*File, error) {
	if err := validateSize(size); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open medium image: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat medium image: %w", err)
	}
	if info.Size() > int64(size) {
		_ = f.Close()
		return nil, fmt.Errorf("medium image %s is %d bytes, larger than %d", path, info.Size(), size)
	}
	if info.Size() < int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("extend medium image: %w", err)
		}
	}
	return &File{f: f, size: size}, nil
}

func (m *File) Read(_ context.Context, addr uint16) (byte, error) {
	if err := checkAddr(addr, m.size); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var buf [1]byte
	if _, err := m.f.ReadAt(buf[:], int64(addr)); err != nil {
		return 0, fmt.Errorf("read medium image: %w: %w", sentinel.ErrUnavailable, err)
	}
	return buf[0], nil
}

func (m *File) Write(_ context.Context, addr uint16, value byte) error {
	if err := checkAddr(addr, m.size); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.f.WriteAt([]byte{value}, int64(addr)); err != nil {
		return fmt.Errorf("write medium image: %w: %w", sentinel.ErrUnavailable, err)
	}
	if err := m.f.Sync(); err != nil {
		return fmt.Errorf("sync medium image: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (m *File) Size() int { return m.size }

func (m *File) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.f.Close()
}
