package bank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"digisafe/internal/safe/metrics"
	"digisafe/internal/safe/models"
	"digisafe/internal/safe/ports"
	"digisafe/internal/safe/store/codestore"
	"digisafe/pkg/platform/audit"
	"digisafe/pkg/platform/sentinel"
)

// LockoutThreshold is the number of consecutive mismatches against one slot
// that triggers a lockout.
const LockoutThreshold = 3

// ErrOutOfRange is returned when selecting a compartment outside 0..3. It can
// only come from a programming error, never from keypad input.
var ErrOutOfRange = errors.New("compartment index out of range")

// CodeStore is the persistence the bank writes through.
type CodeStore interface {
	Initialize(ctx context.Context) (bool, error)
	Load(ctx context.Context, slot models.SlotID) (models.Code, error)
	Store(ctx context.Context, slot models.SlotID, code models.Code) error
	Erase(ctx context.Context, slot models.SlotID) error
}

// heapStatter is implemented by stores that can report heap occupancy.
type heapStatter interface {
	Stats(ctx context.Context) (codestore.Stats, error)
}

// Bank owns every in-memory code and is the only writer of the code store.
// It is not safe for concurrent use.
type Bank struct {
	store CodeStore

	admin        models.Code
	compartments [models.CompartmentCount]models.Code
	scratch      models.Code
	selected     int

	failures    int
	failureSlot models.SlotID
	hasFailures bool

	logger         *slog.Logger
	auditPublisher ports.AuditPublisher
	metrics        *metrics.Metrics
}

type Option func(*Bank)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bank) {
		b.logger = logger
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(b *Bank) {
		b.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bank) {
		b.metrics = m
	}
}

func New(store CodeStore, opts ...Option) (*Bank, error) {
	if store == nil {
		return nil, errors.New("code store is required")
	}
	b := &Bank{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Initialize validates the medium. When the header was intact every slot is
// loaded; otherwise the store has just been formatted and all slots start
// empty.
func (b *Bank) Initialize(ctx context.Context) (bool, error) {
	valid, err := b.store.Initialize(ctx)
	if err != nil {
		return false, fmt.Errorf("initialize code store: %w", err)
	}

	b.admin = models.Code{}
	b.compartments = [models.CompartmentCount]models.Code{}
	b.scratch = models.Code{}
	b.resetFailures()

	if !valid {
		ports.LogAudit(ctx, b.logger, b.auditPublisher, audit.EventMediumInitialized, "medium")
		b.refreshHeapGauge(ctx)
		return false, nil
	}

	for slot := models.SlotID(0); slot < models.SlotCount; slot++ {
		code, err := b.store.Load(ctx, slot)
		if err != nil {
			return true, fmt.Errorf("load %s: %w", slot, err)
		}
		*b.slotCode(slot) = code
	}
	b.logger.InfoContext(ctx, "codes loaded",
		"admin_active", b.admin.Active(),
		"active_compartments", b.activeCompartments(),
	)
	b.refreshHeapGauge(ctx)
	return true, nil
}

// Select makes compartment i the target of TargetSelected.
func (b *Bank) Select(i int) error {
	if _, ok := models.CompartmentSlot(i); !ok {
		return fmt.Errorf("select %d: %w", i, ErrOutOfRange)
	}
	b.selected = i
	return nil
}

func (b *Bank) Selected() int { return b.selected }

// Scratch is the code currently being typed.
func (b *Bank) Scratch() *models.Code { return &b.scratch }

// Code returns the in-memory code of slot.
func (b *Bank) Code(slot models.SlotID) *models.Code { return b.slotCode(slot) }

// IsActive reports whether target currently holds a code.
func (b *Bank) IsActive(target models.Target) bool {
	return b.slotCode(b.resolve(target)).Active()
}

func (b *Bank) FailureCount() int { return b.failures }

// ClearScratch discards whatever has been typed.
func (b *Bank) ClearScratch() {
	b.scratch.BeginEntry()
}

// AttemptCompare checks the scratch code against target. The scratch code is
// consumed by every attempt. The third consecutive mismatch against the same
// slot resets the counter and reports LockedOut.
func (b *Bank) AttemptCompare(ctx context.Context, target models.Target) models.Outcome {
	slot := b.resolve(target)
	if !b.hasFailures || b.failureSlot != slot {
		b.failures = 0
		b.failureSlot = slot
		b.hasFailures = true
	}

	if b.slotCode(slot).Compare(&b.scratch) {
		b.failures = 0
		ports.LogAudit(ctx, b.logger, b.auditPublisher, audit.EventCodeMatched, slot.String())
		return models.Matched
	}

	b.failures++
	b.metrics.IncrementAuthFailures()
	ports.LogAudit(ctx, b.logger, b.auditPublisher, audit.EventCodeMismatched, slot.String(),
		"failure_count", b.failures,
	)

	if b.failures >= LockoutThreshold {
		b.failures = 0
		b.metrics.IncrementAuthLockouts()
		ports.LogAudit(ctx, b.logger, b.auditPublisher, audit.EventAuthLockoutTrigger, slot.String())
		return models.LockedOut
	}
	return models.Mismatched
}

// Commit persists the scratch code into target and then makes it the
// target's in-memory code. The scratch code is left Empty.
func (b *Bank) Commit(ctx context.Context, target models.Target) error {
	slot := b.resolve(target)
	if !b.scratch.Active() {
		return fmt.Errorf("commit to %s: scratch code is %s: %w", slot, b.scratch.Status(), sentinel.ErrInvalidState)
	}

	if err := b.store.Store(ctx, slot, b.scratch); err != nil {
		return fmt.Errorf("commit to %s: %w", slot, err)
	}
	b.slotCode(slot).Adopt(&b.scratch)

	b.metrics.IncrementCodeCommits(slot.Kind())
	event := audit.EventCompartmentCodeSet
	if slot.IsAdmin() {
		event = audit.EventAdminCodeSet
	}
	ports.LogAudit(ctx, b.logger, b.auditPublisher, event, slot.String())
	b.refreshHeapGauge(ctx)
	return nil
}

// Release erases the selected compartment's code so the compartment can be
// claimed again.
func (b *Bank) Release(ctx context.Context) error {
	slot := b.resolve(models.TargetSelected)
	if err := b.store.Erase(ctx, slot); err != nil {
		return fmt.Errorf("release %s: %w", slot, err)
	}
	b.slotCode(slot).BeginEntry()

	b.metrics.IncrementReleases()
	ports.LogAudit(ctx, b.logger, b.auditPublisher, audit.EventCompartmentReleased, slot.String())
	b.refreshHeapGauge(ctx)
	return nil
}

func (b *Bank) resolve(target models.Target) models.SlotID {
	if target == models.TargetAdmin {
		return models.SlotAdmin
	}
	slot, _ := models.CompartmentSlot(b.selected)
	return slot
}

func (b *Bank) slotCode(slot models.SlotID) *models.Code {
	if slot.IsAdmin() {
		return &b.admin
	}
	return &b.compartments[slot.Compartment()]
}

func (b *Bank) resetFailures() {
	b.failures = 0
	b.hasFailures = false
}

func (b *Bank) activeCompartments() int {
	n := 0
	for i := range b.compartments {
		if b.compartments[i].Active() {
			n++
		}
	}
	return n
}

func (b *Bank) refreshHeapGauge(ctx context.Context) {
	if b.metrics == nil {
		return
	}
	statter, ok := b.store.(heapStatter)
	if !ok {
		return
	}
	stats, err := statter.Stats(ctx)
	if err != nil {
		b.logger.WarnContext(ctx, "failed to read heap stats", "error", err)
		return
	}
	b.metrics.SetOccupiedCells(stats.Occupied)
}
