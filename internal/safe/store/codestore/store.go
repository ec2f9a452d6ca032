// Package codestore persists the five slot codes on a byte-addressable
// medium as linked chains of 4-byte cells.
//
// Allocation is a first-fit scan from the heap base with no free list.
// Chains carry no terminator: a slot's length decides how many cells are
// followed.
package codestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"digisafe/internal/safe/models"
	"digisafe/internal/safe/ports"
	"digisafe/pkg/platform/sentinel"
)

var (
	// ErrStorageExhausted means the heap has fewer free cells than the code
	// has digits. Nothing is written when it is returned.
	ErrStorageExhausted = errors.New("cell heap exhausted")
	// ErrCorrupt means a slot record and the heap disagree: a pointer outside
	// the heap, an impossible length, a free cell inside a chain, or a cycle.
	ErrCorrupt = errors.New("code chain corrupt")
	// ErrInvalidSlot is returned for a slot ID outside the five known slots.
	ErrInvalidSlot = errors.New("invalid slot")
)

// maxMediumSize is the largest medium whose cells 16-bit pointers can reach.
const maxMediumSize = 1 << 16

// Stats summarizes heap occupancy.
type Stats struct {
	Cells    int
	Occupied int
	Free     int
}

type Store struct {
	medium ports.Medium
	cells  int
	logger *slog.Logger
	tracer trace.Tracer
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Store) {
		s.tracer = tracer
	}
}

func New(medium ports.Medium, opts ...Option) (*Store, error) {
	if medium == nil {
		return nil, errors.New("medium is required")
	}
	size := medium.Size()
	if size < HeaderSize+CellSize {
		return nil, fmt.Errorf("medium of %d bytes cannot hold header and one cell", size)
	}
	if size > maxMediumSize {
		return nil, fmt.Errorf("medium of %d bytes exceeds 16-bit addressing", size)
	}

	s := &Store{
		medium: medium,
		cells:  (size - HeaderSize) / CellSize,
		logger: slog.Default(),
		tracer: otel.Tracer("digisafe/codestore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Cells is the number of heap cells on the medium.
func (s *Store) Cells() int { return s.cells }

// Initialize checks the magic signature. When it is missing the signature is
// written and every slot record is zeroed. It reports whether the medium
// already held valid state.
func (s *Store) Initialize(ctx context.Context) (valid bool, err error) {
	ctx, span := s.tracer.Start(ctx, "codestore.Initialize")
	defer func() { endSpan(span, err) }()

	valid = true
	for i, want := range Magic {
		got, err := s.medium.Read(ctx, uint16(i))
		if err != nil {
			return false, fmt.Errorf("read magic: %w", err)
		}
		if got != want {
			valid = false
			break
		}
	}
	span.SetAttributes(attribute.Bool("valid", valid))
	if valid {
		return true, nil
	}

	for i, b := range Magic {
		if err := s.medium.Write(ctx, uint16(i), b); err != nil {
			return false, fmt.Errorf("write magic: %w", err)
		}
	}
	if err := s.ResetRecords(ctx); err != nil {
		return false, err
	}
	s.logger.InfoContext(ctx, "medium formatted", "cells", s.cells)
	return false, nil
}

// ResetRecords marks every slot inactive. Heap cells are left as they are.
func (s *Store) ResetRecords(ctx context.Context) error {
	for slot := models.SlotID(0); slot < models.SlotCount; slot++ {
		if err := s.writeRecord(ctx, slot, slotRecord{}); err != nil {
			return err
		}
	}
	return nil
}

// Load reconstructs the code held by slot. An inactive slot yields an Empty
// code.
func (s *Store) Load(ctx context.Context, slot models.SlotID) (code models.Code, err error) {
	ctx, span := s.tracer.Start(ctx, "codestore.Load", trace.WithAttributes(attribute.String("slot", slot.String())))
	defer func() { endSpan(span, err) }()

	rec, err := s.readRecord(ctx, slot)
	if err != nil {
		return models.Code{}, err
	}
	if !rec.active {
		return models.Code{}, nil
	}

	chain, digits, err := s.walk(ctx, slot, rec)
	if err != nil {
		return models.Code{}, err
	}
	code, err = models.NewCode(digits)
	if err != nil {
		return models.Code{}, fmt.Errorf("%s: %w: %w", slot, ErrCorrupt, err)
	}
	s.logger.DebugContext(ctx, "slot loaded", "slot", slot.String(), "length", len(chain))
	return code, nil
}

// Store persists code into slot and frees the slot's previous chain.
//
// The new chain is placed in cells that were free before the call, so an
// interrupted Store leaves the previous code loadable until the record is
// switched. Only when free cells run out are the previous chain's cells
// reused; the record is then invalidated before any of them is written. Either
// way a torn write loads as the old code, the new code, or ErrCorrupt, never
// as some other code.
func (s *Store) Store(ctx context.Context, slot models.SlotID, code models.Code) (err error) {
	ctx, span := s.tracer.Start(ctx, "codestore.Store", trace.WithAttributes(
		attribute.String("slot", slot.String()),
		attribute.Int("length", code.Len()),
	))
	defer func() { endSpan(span, err) }()

	if !code.Active() || code.Len() < models.MinLen || code.Len() > models.MaxLen {
		return fmt.Errorf("store %s: code must be complete with %d..%d digits: %w",
			slot, models.MinLen, models.MaxLen, sentinel.ErrInvalidState)
	}
	digits := code.Digits()

	rec, err := s.readRecord(ctx, slot)
	if err != nil {
		return err
	}
	var old []int
	if rec.active {
		if old, _, err = s.walk(ctx, slot, rec); err != nil {
			return err
		}
	}

	claimed, overwrites, err := s.firstFit(ctx, len(digits), old)
	if err != nil {
		return fmt.Errorf("store %s: %w", slot, err)
	}

	// Overwriting the live chain invalidates the old code up front.
	if rec.active && overwrites {
		if err := s.invalidateRecord(ctx, slot); err != nil {
			return err
		}
	}

	for i, idx := range claimed {
		var next uint16
		if i+1 < len(claimed) {
			next = cellAddr(claimed[i+1])
		}
		if err := s.writeCell(ctx, idx, digits[i], next); err != nil {
			return err
		}
	}

	if err := s.commitRecord(ctx, slot, rec.active && !overwrites, slotRecord{
		active: true,
		length: len(digits),
		head:   cellAddr(claimed[0]),
	}); err != nil {
		return err
	}

	claimedSet := make(map[int]struct{}, len(claimed))
	for _, idx := range claimed {
		claimedSet[idx] = struct{}{}
	}
	for _, idx := range old {
		if _, reused := claimedSet[idx]; reused {
			continue
		}
		if err := s.medium.Write(ctx, cellAddr(idx), MarkerFree); err != nil {
			return fmt.Errorf("free cell %d: %w", idx, err)
		}
	}

	s.logger.DebugContext(ctx, "slot stored",
		"slot", slot.String(),
		"length", len(digits),
		"head", cellAddr(claimed[0]),
		"reclaimed", len(old),
	)
	return nil
}

// Erase frees the cells of slot's chain and marks the slot inactive.
func (s *Store) Erase(ctx context.Context, slot models.SlotID) (err error) {
	ctx, span := s.tracer.Start(ctx, "codestore.Erase", trace.WithAttributes(attribute.String("slot", slot.String())))
	defer func() { endSpan(span, err) }()

	rec, err := s.readRecord(ctx, slot)
	if err != nil {
		return err
	}
	if rec.active {
		chain, _, err := s.walk(ctx, slot, rec)
		if err != nil {
			return err
		}
		for _, idx := range chain {
			if err := s.medium.Write(ctx, cellAddr(idx), MarkerFree); err != nil {
				return fmt.Errorf("free cell %d: %w", idx, err)
			}
		}
	}
	return s.writeRecord(ctx, slot, slotRecord{})
}

// Stats scans the heap markers.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Cells: s.cells}
	for i := 0; i < s.cells; i++ {
		marker, err := s.medium.Read(ctx, cellAddr(i))
		if err != nil {
			return Stats{}, fmt.Errorf("read cell %d: %w", i, err)
		}
		if marker == MarkerOccupied {
			st.Occupied++
		}
	}
	st.Free = st.Cells - st.Occupied
	return st, nil
}

// firstFit picks the n lowest-addressed free cells. When there are not
// enough, the lowest cells of reclaim make up the difference and overwrites
// reports that the live chain will be written over. The scan is bounded by
// the heap size.
func (s *Store) firstFit(ctx context.Context, n int, reclaim []int) (claimed []int, overwrites bool, err error) {
	reclaimable := make(map[int]struct{}, len(reclaim))
	for _, idx := range reclaim {
		reclaimable[idx] = struct{}{}
	}

	claimed = make([]int, 0, n)
	for i := 0; i < s.cells && len(claimed) < n; i++ {
		if _, ok := reclaimable[i]; ok {
			continue
		}
		marker, err := s.medium.Read(ctx, cellAddr(i))
		if err != nil {
			return nil, false, fmt.Errorf("read cell %d: %w", i, err)
		}
		if marker != MarkerOccupied {
			claimed = append(claimed, i)
		}
	}
	if len(claimed) < n {
		sorted := slices.Sorted(maps.Keys(reclaimable))
		for _, idx := range sorted {
			if len(claimed) == n {
				break
			}
			claimed = append(claimed, idx)
			overwrites = true
		}
		slices.Sort(claimed)
	}
	if len(claimed) < n {
		s.logger.WarnContext(ctx, "cell heap exhausted", "needed", n, "available", len(claimed), "cells", s.cells)
		return nil, false, ErrStorageExhausted
	}
	return claimed, overwrites, nil
}

// walk follows rec's chain for exactly rec.length cells and returns the cell
// indices and digits in order.
func (s *Store) walk(ctx context.Context, slot models.SlotID, rec slotRecord) ([]int, []uint8, error) {
	if rec.length < models.MinLen || rec.length > models.MaxLen {
		return nil, nil, fmt.Errorf("%s length %d: %w", slot, rec.length, ErrCorrupt)
	}

	chain := make([]int, 0, rec.length)
	digits := make([]uint8, 0, rec.length)
	visited := make(map[int]struct{}, rec.length)

	ptr := rec.head
	for i := 0; i < rec.length; i++ {
		idx, ok := s.cellIndex(ptr)
		if !ok {
			return nil, nil, fmt.Errorf("%s cell %d pointer %#04x: %w", slot, i, ptr, ErrCorrupt)
		}
		if _, seen := visited[idx]; seen {
			return nil, nil, fmt.Errorf("%s cell %d revisits %#04x: %w", slot, i, ptr, ErrCorrupt)
		}
		visited[idx] = struct{}{}

		var cell [CellSize]byte
		for j := range cell {
			b, err := s.medium.Read(ctx, ptr+uint16(j))
			if err != nil {
				return nil, nil, fmt.Errorf("read cell %d: %w", idx, err)
			}
			cell[j] = b
		}
		if cell[0] != MarkerOccupied {
			return nil, nil, fmt.Errorf("%s cell %d at %#04x is not occupied: %w", slot, i, ptr, ErrCorrupt)
		}
		if cell[1] > 9 {
			return nil, nil, fmt.Errorf("%s cell %d digit %d: %w", slot, i, cell[1], ErrCorrupt)
		}

		chain = append(chain, idx)
		digits = append(digits, cell[1])
		ptr = joinPtr(cell[2], cell[3])
	}
	return chain, digits, nil
}

// cellIndex converts a stored pointer to a heap index, rejecting anything
// that does not address the start of a cell.
func (s *Store) cellIndex(ptr uint16) (int, bool) {
	if ptr < HeaderSize {
		return 0, false
	}
	off := int(ptr) - HeaderSize
	if off%CellSize != 0 {
		return 0, false
	}
	idx := off / CellSize
	if idx >= s.cells {
		return 0, false
	}
	return idx, true
}

func (s *Store) readRecord(ctx context.Context, slot models.SlotID) (slotRecord, error) {
	if !slot.IsValid() {
		return slotRecord{}, fmt.Errorf("%s: %w", slot, ErrInvalidSlot)
	}
	base := recordAddr(slot)
	var raw [SlotRecordSize]byte
	for i := range raw {
		b, err := s.medium.Read(ctx, base+uint16(i))
		if err != nil {
			return slotRecord{}, fmt.Errorf("read %s record: %w", slot, err)
		}
		raw[i] = b
	}
	return slotRecord{
		active: raw[0] == 1,
		length: int(raw[1]),
		head:   joinPtr(raw[2], raw[3]),
	}, nil
}

func (s *Store) writeRecord(ctx context.Context, slot models.SlotID, rec slotRecord) error {
	if !slot.IsValid() {
		return fmt.Errorf("%s: %w", slot, ErrInvalidSlot)
	}
	var active byte
	if rec.active {
		active = 1
	}
	hi, lo := splitPtr(rec.head)
	raw := [SlotRecordSize]byte{active, byte(rec.length), hi, lo}

	base := recordAddr(slot)
	for i, b := range raw {
		if err := s.medium.Write(ctx, base+uint16(i), b); err != nil {
			return fmt.Errorf("write %s record: %w", slot, err)
		}
	}
	return nil
}

// invalidateRecord zeroes the length byte of an active record. An active
// record of length 0 fails validation, so the slot loads as ErrCorrupt until
// commitRecord finishes.
func (s *Store) invalidateRecord(ctx context.Context, slot models.SlotID) error {
	if err := s.medium.Write(ctx, recordAddr(slot)+1, 0); err != nil {
		return fmt.Errorf("invalidate %s record: %w", slot, err)
	}
	return nil
}

// commitRecord points slot at rec, which must be active. With invalidate set
// the length byte is zeroed first. The head goes in before the length and the
// active flag last, so every prefix of the writes is inactive, invalid, or
// rec itself.
func (s *Store) commitRecord(ctx context.Context, slot models.SlotID, invalidate bool, rec slotRecord) error {
	if invalidate {
		if err := s.invalidateRecord(ctx, slot); err != nil {
			return err
		}
	}
	base := recordAddr(slot)
	hi, lo := splitPtr(rec.head)
	writes := [...]struct {
		off   uint16
		value byte
	}{{2, hi}, {3, lo}, {1, byte(rec.length)}, {0, 1}}
	for _, w := range writes {
		if err := s.medium.Write(ctx, base+w.off, w.value); err != nil {
			return fmt.Errorf("write %s record: %w", slot, err)
		}
	}
	return nil
}

func (s *Store) writeCell(ctx context.Context, idx int, digit uint8, next uint16) error {
	hi, lo := splitPtr(next)
	raw := [CellSize]byte{MarkerOccupied, digit, hi, lo}
	base := cellAddr(idx)
	for i, b := range raw {
		if err := s.medium.Write(ctx, base+uint16(i), b); err != nil {
			return fmt.Errorf("write cell %d: %w", idx, err)
		}
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
