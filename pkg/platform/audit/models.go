package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategorySecurity covers authentication outcomes: mismatches, lockouts
	// and code changes.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine device activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from the safe core to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string
	Category  EventCategory
	Timestamp time.Time
	// Subject is the slot the action applied to ("admin", "compartment2").
	Subject string
	Action  string
	Reason  string
}

type AuditEvent string

const (
	EventMediumInitialized   AuditEvent = "medium_initialized"
	EventAdminCodeSet        AuditEvent = "admin_code_set"
	EventCompartmentCodeSet  AuditEvent = "compartment_code_set"
	EventCodeMatched         AuditEvent = "code_matched"
	EventCodeMismatched      AuditEvent = "code_mismatched"
	EventAuthLockoutTrigger  AuditEvent = "auth_lockout_triggered"
	EventCompartmentReleased AuditEvent = "compartment_released"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventAdminCodeSet:        CategorySecurity,
	EventCompartmentCodeSet:  CategorySecurity,
	EventCodeMismatched:      CategorySecurity,
	EventAuthLockoutTrigger:  CategorySecurity,
	EventCompartmentReleased: CategorySecurity,

	EventMediumInitialized: CategoryOperations,
	EventCodeMatched:       CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListAll(ctx context.Context) ([]Event, error)
}
