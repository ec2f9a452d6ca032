package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Media and stores return these
// (optionally wrapped) so the safe core can classify failures with errors.Is.
//
// - ErrOutOfBounds: an address lies outside the medium
// - ErrUnavailable: the backing device or service could not be reached
// - ErrInvalidState: a component was used in a state that forbids the call
var (
	ErrOutOfBounds  = errors.New("out of bounds")
	ErrUnavailable  = errors.New("unavailable")
	ErrInvalidState = errors.New("invalid state")
)
