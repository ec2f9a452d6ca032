package models

// Key is a keypad code in 0..15.
type Key uint8

const (
	KeyCancel  Key = 10
	KeyConfirm Key = 11
	// KeySelect0 is the first of four compartment select keys (12..15).
	KeySelect0 Key = 12
	KeySelect3 Key = 15

	// Digit keys double as actions once a code has been accepted.
	KeyLock    Key = 1
	KeyRelease Key = 2
	KeyEdit    Key = 3
)

func (k Key) IsDigit() bool { return k <= 9 }

func (k Key) IsSelect() bool { return k >= KeySelect0 && k <= KeySelect3 }

// Compartment returns the compartment index for a select key.
func (k Key) Compartment() int { return int(k - KeySelect0) }

// IsValid reports whether the key is within the keypad alphabet.
func (k Key) IsValid() bool { return k <= KeySelect3 }
