package models

import "fmt"

// SlotID names one of the five persistent code holders.
type SlotID uint8

const (
	SlotAdmin SlotID = iota
	SlotCompartment0
	SlotCompartment1
	SlotCompartment2
	SlotCompartment3
)

// SlotCount is the number of persistent slots, admin included.
const SlotCount = 5

// CompartmentCount is the number of user compartments.
const CompartmentCount = 4

// CompartmentSlot maps a compartment index 0..3 to its slot.
func CompartmentSlot(i int) (SlotID, bool) {
	if i < 0 || i >= CompartmentCount {
		return 0, false
	}
	return SlotCompartment0 + SlotID(i), true
}

// IsValid checks that the slot is one of the five known slots.
func (s SlotID) IsValid() bool {
	return s < SlotCount
}

// IsAdmin reports whether the slot holds the administrator code.
func (s SlotID) IsAdmin() bool { return s == SlotAdmin }

// Compartment returns the compartment index of a compartment slot.
func (s SlotID) Compartment() int {
	return int(s) - int(SlotCompartment0)
}

// Kind is the metric/audit label for the slot.
func (s SlotID) Kind() string {
	if s.IsAdmin() {
		return "admin"
	}
	return "compartment"
}

func (s SlotID) String() string {
	if s.IsAdmin() {
		return "admin"
	}
	if !s.IsValid() {
		return fmt.Sprintf("slot(%d)", uint8(s))
	}
	return fmt.Sprintf("compartment%d", s.Compartment())
}

// Target selects which slot a comparison or commit applies to.
type Target uint8

const (
	TargetAdmin Target = iota
	TargetSelected
)

func (t Target) String() string {
	if t == TargetAdmin {
		return "admin"
	}
	return "selected"
}

// Outcome is the result of comparing the scratch code against a slot.
type Outcome uint8

const (
	Matched Outcome = iota
	Mismatched
	LockedOut
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case Mismatched:
		return "mismatched"
	case LockedOut:
		return "locked_out"
	}
	return "unknown"
}
