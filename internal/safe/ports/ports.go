// Package ports defines the collaborators the safe core is driven through.
// Hardware and infrastructure adapters implement these; the bank and the
// state machine only ever see the interfaces.
package ports

import (
	"context"
	"log/slog"
	"time"

	"digisafe/internal/safe/models"
	"digisafe/pkg/platform/audit"
)

// Medium is byte-addressable non-volatile storage. Calls are synchronous:
// a write has completed when Write returns.
type Medium interface {
	// Read returns the byte at addr.
	Read(ctx context.Context, addr uint16) (byte, error)

	// Write stores value at addr.
	Write(ctx context.Context, addr uint16, value byte) error

	// Size is the number of addressable bytes.
	Size() int
}

// KeyInput is a non-blocking keypad scan.
type KeyInput interface {
	// Poll returns the pending key, or ok=false when none is pressed.
	Poll(ctx context.Context) (key models.Key, ok bool, err error)
}

// Indicator renders device status to the operator.
type Indicator interface {
	// SetStateCode shows the current state value (0..7).
	SetStateCode(code uint8)

	// SignalError shows the soft error pattern.
	SignalError()

	// SignalLockout shows the extended lockout pattern.
	SignalLockout()
}

// Delayer blocks the caller. The delays block the whole device.
type Delayer interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// AuditPublisher emits audit events for security-relevant operations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// LogAudit logs an audit event and forwards it to the publisher if one is
// configured. A publisher failure is logged, never returned.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher AuditPublisher, event audit.AuditEvent, subject string, attrs ...any) {
	args := append(attrs, "event", string(event), "subject", subject, "log_type", "audit")

	if logger != nil {
		logger.InfoContext(ctx, string(event), args...)
	}

	if publisher == nil {
		return
	}
	err := publisher.Emit(ctx, audit.Event{
		Category:  event.Category(),
		Timestamp: time.Now(),
		Subject:   subject,
		Action:    string(event),
	})
	if err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", string(event), "error", err)
	}
}
