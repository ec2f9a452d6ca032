package models

import "errors"

const (
	// MinLen is the shortest code accepted on confirm.
	MinLen = 5
	// MaxLen is the longest code a Code can hold.
	MaxLen = 50
)

// Soft input errors. The operator may keep typing after any of these.
var (
	ErrOverflow     = errors.New("code is at maximum length")
	ErrTooShort     = errors.New("code is shorter than minimum length")
	ErrInvalidDigit = errors.New("digit must be between 0 and 9")
)

// CodeStatus tracks where a Code is in its entry lifecycle.
type CodeStatus uint8

const (
	StatusEmpty CodeStatus = iota
	StatusBuilding
	StatusComplete
	StatusCancelled
)

func (s CodeStatus) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusBuilding:
		return "building"
	case StatusComplete:
		return "complete"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Code is one numeric code being typed, held in a slot, or compared.
// The zero value is an Empty code.
type Code struct {
	digits [MaxLen]uint8
	length int
	status CodeStatus
}

// NewCode builds a Complete code from digits. It is used when a code is
// reconstructed from storage, so the minimum length is not enforced here.
func NewCode(digits []uint8) (Code, error) {
	var c Code
	if len(digits) > MaxLen {
		return Code{}, ErrOverflow
	}
	for _, d := range digits {
		if d > 9 {
			return Code{}, ErrInvalidDigit
		}
	}
	c.length = copy(c.digits[:], digits)
	c.status = StatusComplete
	return c, nil
}

// BeginEntry discards any digits and readies the code for new input.
func (c *Code) BeginEntry() {
	c.reset()
}

// AppendDigit adds one digit to the end of the code.
func (c *Code) AppendDigit(d uint8) error {
	if d > 9 {
		return ErrInvalidDigit
	}
	if c.status == StatusComplete || c.status == StatusCancelled {
		c.reset()
	}
	if c.length == MaxLen {
		return ErrOverflow
	}
	c.digits[c.length] = d
	c.length++
	c.status = StatusBuilding
	return nil
}

// Confirm marks the code Complete. A code shorter than MinLen is left
// untouched and ErrTooShort is returned.
func (c *Code) Confirm() error {
	if c.length < MinLen {
		return ErrTooShort
	}
	c.status = StatusComplete
	return nil
}

// Cancel abandons entry.
func (c *Code) Cancel() {
	c.length = 0
	c.status = StatusCancelled
}

// Compare reports whether other holds the same digits as c. Comparisons are
// single-use: other is reset to Empty whatever the outcome.
func (c *Code) Compare(other *Code) bool {
	defer other.reset()
	if c.length != other.length {
		return false
	}
	for i := 0; i < c.length; i++ {
		if c.digits[i] != other.digits[i] {
			return false
		}
	}
	return true
}

// Consume hands out the digits and resets the code to Empty.
func (c *Code) Consume() []uint8 {
	out := c.Digits()
	c.reset()
	return out
}

// Adopt takes over the digits of src and marks c Complete. src is consumed.
func (c *Code) Adopt(src *Code) {
	c.length = copy(c.digits[:], src.Consume())
	c.status = StatusComplete
}

// Digits returns a copy of the entered digits in order.
func (c *Code) Digits() []uint8 {
	out := make([]uint8, c.length)
	copy(out, c.digits[:c.length])
	return out
}

func (c *Code) Len() int { return c.length }

func (c *Code) Status() CodeStatus { return c.status }

// Active reports whether the code is assigned to its slot.
func (c *Code) Active() bool { return c.status == StatusComplete }

func (c *Code) reset() {
	c.digits = [MaxLen]uint8{}
	c.length = 0
	c.status = StatusEmpty
}
