// Package medium provides byte-addressable stores that stand in for the
// safe's EEPROM. Every backend serializes its own I/O and reports addresses
// beyond its size as sentinel.ErrOutOfBounds.
package medium

import (
	"fmt"

	"digisafe/pkg/platform/sentinel"
)

// MaxSize is the largest medium reachable with 16-bit addresses.
const MaxSize = 1 << 16

// DefaultSize matches the 1 KiB EEPROM of the safe board.
const DefaultSize = 1024

func validateSize(size int) error {
	if size <= 0 || size > MaxSize {
		return fmt.Errorf("medium size %d outside 1..%d", size, MaxSize)
	}
	return nil
}

func checkAddr(addr uint16, size int) error {
	if int(addr) >= size {
		return fmt.Errorf("address %d beyond medium of %d bytes: %w", addr, size, sentinel.ErrOutOfBounds)
	}
	return nil
}
