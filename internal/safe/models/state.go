package models

// State is an authentication state. The numeric value is what the
// indicator displays.
type State uint8

const (
	StateInit State = iota
	StateUserLocked
	StateAdminLocked
	StateAdminUnlocked
	StateSafeSelect
	StateUserUnlocked
	StateEditCode
	StateLockout
)

var stateNames = [...]string{
	StateInit:          "init",
	StateUserLocked:    "user_locked",
	StateAdminLocked:   "admin_locked",
	StateAdminUnlocked: "admin_unlocked",
	StateSafeSelect:    "safe_select",
	StateUserUnlocked:  "user_unlocked",
	StateEditCode:      "edit_code",
	StateLockout:       "lockout",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Code is the value shown on the state indicator.
func (s State) Code() uint8 { return uint8(s) }
