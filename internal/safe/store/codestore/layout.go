package codestore

import "digisafe/internal/safe/models"

// On-medium layout, compatible with the device firmware:
//
//	0..3    magic signature
//	4..23   five slot records {active, length, headHi, headLo}
//	24..    cell heap, 4-byte cells {marker, digit, nextHi, nextLo}
const (
	MagicSize      = 4
	SlotRecordSize = 4
	HeaderSize     = MagicSize + models.SlotCount*SlotRecordSize
	CellSize       = 4

	// MarkerOccupied flags a claimed cell. Any other marker is free.
	MarkerOccupied byte = 0xCC
	// MarkerFree is written when a cell is reclaimed.
	MarkerFree byte = 0x00
)

// Magic identifies an initialized medium.
var Magic = [MagicSize]byte{0x6A, 0x6F, 0x73, 0x68}

// slotRecord is the header entry for one slot.
type slotRecord struct {
	active bool
	length int
	head   uint16
}

func recordAddr(slot models.SlotID) uint16 {
	return MagicSize + uint16(slot)*SlotRecordSize
}

func cellAddr(index int) uint16 {
	return uint16(HeaderSize + index*CellSize)
}

func splitPtr(p uint16) (hi, lo byte) {
	return byte(p >> 8), byte(p)
}

func joinPtr(hi, lo byte) uint16 {
	return uint16(hi)<<8 | uint16(lo)
}
