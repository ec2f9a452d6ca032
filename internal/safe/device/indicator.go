package device

import (
	"log/slog"
	"sync"

	"digisafe/internal/safe/models"
)

// LogIndicator renders the indicator as log lines.
type LogIndicator struct {
	logger *slog.Logger
}

func NewLogIndicator(logger *slog.Logger) *LogIndicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogIndicator{logger: logger}
}

func (i *LogIndicator) SetStateCode(code uint8) {
	i.logger.Info("indicator", "state_code", code, "state", models.State(code).String())
}

func (i *LogIndicator) SignalError() {
	i.logger.Warn("indicator error flash")
}

func (i *LogIndicator) SignalLockout() {
	i.logger.Warn("indicator lockout pattern")
}

// RecordingIndicator keeps everything it is asked to show.
type RecordingIndicator struct {
	mu       sync.Mutex
	codes    []uint8
	errors   int
	lockouts int
}

func (i *RecordingIndicator) SetStateCode(code uint8) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.codes = append(i.codes, code)
}

func (i *RecordingIndicator) SignalError() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.errors++
}

func (i *RecordingIndicator) SignalLockout() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.lockouts++
}

// Codes returns every state code shown, in order.
func (i *RecordingIndicator) Codes() []uint8 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]uint8(nil), i.codes...)
}

// Last returns the most recent state code, or false if none was shown.
func (i *RecordingIndicator) Last() (uint8, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.codes) == 0 {
		return 0, false
	}
	return i.codes[len(i.codes)-1], true
}

func (i *RecordingIndicator) Errors() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.errors
}

func (i *RecordingIndicator) Lockouts() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lockouts
}
