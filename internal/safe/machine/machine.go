package machine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"digisafe/internal/safe/metrics"
	"digisafe/internal/safe/models"
	"digisafe/internal/safe/ports"
)

// ErrInvalidTransition marks a state combination the machine can never reach
// from keypad input.
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrKeypadClosed is returned by Step once the keypad reports io.EOF. It
// wraps io.EOF and does not halt the machine.
var ErrKeypadClosed = errors.New("keypad closed")

// Bank is the code holder the machine drives.
type Bank interface {
	Initialize(ctx context.Context) (bool, error)
	Select(i int) error
	Scratch() *models.Code
	ClearScratch()
	IsActive(target models.Target) bool
	AttemptCompare(ctx context.Context, target models.Target) models.Outcome
	Commit(ctx context.Context, target models.Target) error
	Release(ctx context.Context) error
}

// Config holds the machine's timing. A flash is one on and one off period
// of FlashInterval each.
type Config struct {
	ErrorFlashes   int
	LockoutFlashes int
	FlashInterval  time.Duration
	PollInterval   time.Duration
}

func DefaultConfig() Config {
	return Config{
		ErrorFlashes:   3,
		LockoutFlashes: 10,
		FlashInterval:  200 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
	}
}

// Machine is the authentication state machine. It keeps the current state
// and the one before it; back swaps the two. It is not safe for concurrent
// use.
type Machine struct {
	bank      Bank
	keys      ports.KeyInput
	indicator ports.Indicator
	delayer   ports.Delayer

	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	current models.State
	last    models.State
	halted  error
}

type Option func(*Machine)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Machine) {
		m.metrics = mt
	}
}

func WithConfig(cfg Config) Option {
	return func(m *Machine) {
		m.cfg = cfg
	}
}

func New(bank Bank, keys ports.KeyInput, indicator ports.Indicator, delayer ports.Delayer, opts ...Option) (*Machine, error) {
	if bank == nil {
		return nil, errors.New("bank is required")
	}
	if keys == nil {
		return nil, errors.New("key input is required")
	}
	if indicator == nil {
		return nil, errors.New("indicator is required")
	}
	if delayer == nil {
		return nil, errors.New("delayer is required")
	}

	m := &Machine{
		bank:      bank,
		keys:      keys,
		indicator: indicator,
		delayer:   delayer,
		cfg:       DefaultConfig(),
		logger:    slog.Default(),
		current:   models.StateInit,
		last:      models.StateInit,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cfg.ErrorFlashes < 0 || m.cfg.LockoutFlashes < 0 || m.cfg.FlashInterval < 0 || m.cfg.PollInterval < 0 {
		return nil, errors.New("machine timings must not be negative")
	}
	return m, nil
}

func (m *Machine) State() models.State { return m.current }

func (m *Machine) Last() models.State { return m.last }

// Halted returns the fatal error that stopped the machine, if any.
func (m *Machine) Halted() error { return m.halted }

// Step handles at most one key and performs at most one transition. Init and
// Lockout run their entry behavior without reading the keypad.
//
// Any error other than context cancellation or ErrKeypadClosed is fatal: the
// machine halts and every later Step returns the same error.
func (m *Machine) Step(ctx context.Context) error {
	if m.halted != nil {
		return m.halted
	}
	err := m.step(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrKeypadClosed) {
		return err
	}
	m.halted = fmt.Errorf("machine halted in %s: %w", m.current, err)
	m.logger.ErrorContext(ctx, "machine halted", "state", m.current.String(), "error", err)
	return m.halted
}

// Run steps the machine until ctx ends or a fatal error halts it.
func (m *Machine) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "machine running", "state", m.current.String())
	for {
		if err := m.Step(ctx); err != nil {
			return err
		}
		if err := m.delayer.Sleep(ctx, m.cfg.PollInterval); err != nil {
			return err
		}
	}
}

func (m *Machine) step(ctx context.Context) error {
	switch m.current {
	case models.StateInit:
		return m.enterInit(ctx)
	case models.StateLockout:
		return m.enterLockout(ctx)
	}

	key, ok, err := m.keys.Poll(ctx)
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", ErrKeypadClosed, err)
	}
	if err != nil {
		return fmt.Errorf("poll keypad: %w", err)
	}
	if !ok {
		return nil
	}
	if !key.IsValid() {
		return m.softError(ctx, "unknown key")
	}

	switch m.current {
	case models.StateUserLocked:
		return m.userLocked(ctx, key)
	case models.StateAdminLocked:
		return m.adminLocked(ctx, key)
	case models.StateAdminUnlocked:
		return m.adminUnlocked(ctx, key)
	case models.StateSafeSelect:
		return m.safeSelect(ctx, key)
	case models.StateUserUnlocked:
		return m.userUnlocked(ctx, key)
	case models.StateEditCode:
		return m.editCode(ctx, key)
	}
	return fmt.Errorf("state %d: %w", m.current, ErrInvalidTransition)
}

func (m *Machine) enterInit(ctx context.Context) error {
	valid, err := m.bank.Initialize(ctx)
	if err != nil {
		return err
	}
	if valid {
		m.setState(ctx, models.StateUserLocked)
	} else {
		m.setState(ctx, models.StateAdminLocked)
	}
	return nil
}

// enterLockout blocks for the penalty and then returns to the state the
// failed comparison was made from.
func (m *Machine) enterLockout(ctx context.Context) error {
	m.logger.WarnContext(ctx, "lockout penalty", "return_to", m.last.String(), "flashes", m.cfg.LockoutFlashes)
	m.indicator.SignalLockout()
	if err := m.flash(ctx, m.cfg.LockoutFlashes); err != nil {
		return err
	}
	m.back(ctx)
	return nil
}

func (m *Machine) userLocked(ctx context.Context, key models.Key) error {
	switch {
	case key == models.KeyCancel:
		m.setState(ctx, models.StateAdminLocked)
	case key.IsSelect():
		if err := m.bank.Select(key.Compartment()); err != nil {
			return err
		}
		m.setState(ctx, models.StateSafeSelect)
	default:
		return m.softError(ctx, "select a compartment")
	}
	return nil
}

func (m *Machine) adminLocked(ctx context.Context, key models.Key) error {
	res, err := m.codeEntry(ctx, key)
	if err != nil || res == entryPending {
		return err
	}

	if res == entryCancelled {
		m.bank.ClearScratch()
		if m.bank.IsActive(models.TargetAdmin) {
			m.setState(ctx, models.StateUserLocked)
		}
		return nil
	}

	if !m.bank.IsActive(models.TargetAdmin) {
		if err := m.bank.Commit(ctx, models.TargetAdmin); err != nil {
			return err
		}
		m.setState(ctx, models.StateAdminUnlocked)
		return nil
	}
	return m.compare(ctx, models.TargetAdmin, models.StateAdminUnlocked)
}

func (m *Machine) adminUnlocked(ctx context.Context, key models.Key) error {
	switch {
	case key == models.KeyCancel:
		m.setState(ctx, models.StateAdminLocked)
	case key == models.KeyLock:
		m.setState(ctx, models.StateUserLocked)
	case key == models.KeyRelease:
		// Reserved for a system reset; the key is accepted and does nothing.
		m.logger.DebugContext(ctx, "reserved key ignored", "state", m.current.String(), "key", uint8(key))
	case key == models.KeyEdit:
		m.setState(ctx, models.StateEditCode)
	case key.IsSelect():
		if err := m.bank.Select(key.Compartment()); err != nil {
			return err
		}
		m.setState(ctx, models.StateUserUnlocked)
	default:
		return m.softError(ctx, "not an admin action")
	}
	return nil
}

func (m *Machine) safeSelect(ctx context.Context, key models.Key) error {
	res, err := m.codeEntry(ctx, key)
	if err != nil || res == entryPending {
		return err
	}

	if res == entryCancelled {
		m.bank.ClearScratch()
		m.setState(ctx, models.StateUserLocked)
		return nil
	}

	if !m.bank.IsActive(models.TargetSelected) {
		if err := m.bank.Commit(ctx, models.TargetSelected); err != nil {
			return err
		}
		m.setState(ctx, models.StateUserUnlocked)
		return nil
	}
	return m.compare(ctx, models.TargetSelected, models.StateUserUnlocked)
}

func (m *Machine) userUnlocked(ctx context.Context, key models.Key) error {
	switch key {
	case models.KeyCancel:
		m.back(ctx)
	case models.KeyLock:
		m.setState(ctx, models.StateUserLocked)
	case models.KeyRelease:
		if err := m.bank.Release(ctx); err != nil {
			return err
		}
		m.setState(ctx, models.StateUserLocked)
	case models.KeyEdit:
		m.setState(ctx, models.StateEditCode)
	default:
		return m.softError(ctx, "not a compartment action")
	}
	return nil
}

func (m *Machine) editCode(ctx context.Context, key models.Key) error {
	res, err := m.codeEntry(ctx, key)
	if err != nil || res == entryPending {
		return err
	}

	if res == entryCancelled {
		m.bank.ClearScratch()
		m.back(ctx)
		return nil
	}

	var target models.Target
	switch m.last {
	case models.StateAdminUnlocked:
		target = models.TargetAdmin
	case models.StateUserUnlocked:
		target = models.TargetSelected
	default:
		return fmt.Errorf("edit code entered from %s: %w", m.last, ErrInvalidTransition)
	}
	if err := m.bank.Commit(ctx, target); err != nil {
		return err
	}
	m.back(ctx)
	return nil
}

// compare checks the scratch code against target and moves to unlocked on a
// match.
func (m *Machine) compare(ctx context.Context, target models.Target, unlocked models.State) error {
	switch m.bank.AttemptCompare(ctx, target) {
	case models.Matched:
		m.setState(ctx, unlocked)
	case models.LockedOut:
		m.setState(ctx, models.StateLockout)
	default:
		return m.softError(ctx, "code mismatch")
	}
	return nil
}

type entryResult int

const (
	entryPending entryResult = iota
	entryComplete
	entryCancelled
)

// codeEntry feeds key into the scratch code.
func (m *Machine) codeEntry(ctx context.Context, key models.Key) (entryResult, error) {
	scratch := m.bank.Scratch()
	switch {
	case key == models.KeyCancel:
		scratch.Cancel()
		return entryCancelled, nil
	case key == models.KeyConfirm:
		if err := scratch.Confirm(); err != nil {
			return entryPending, m.softError(ctx, err.Error())
		}
		return entryComplete, nil
	case key.IsDigit():
		if err := scratch.AppendDigit(uint8(key)); err != nil {
			return entryPending, m.softError(ctx, err.Error())
		}
		return entryPending, nil
	}
	return entryPending, m.softError(ctx, "expected a digit")
}

// softError flashes the error pattern and leaves the state unchanged.
func (m *Machine) softError(ctx context.Context, reason string) error {
	m.logger.DebugContext(ctx, "soft error", "state", m.current.String(), "reason", reason)
	m.metrics.IncrementSoftErrors()
	m.indicator.SignalError()
	if err := m.flash(ctx, m.cfg.ErrorFlashes); err != nil {
		return err
	}
	m.indicator.SetStateCode(m.current.Code())
	return nil
}

func (m *Machine) flash(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := m.delayer.Sleep(ctx, 2*m.cfg.FlashInterval); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) setState(ctx context.Context, next models.State) {
	m.last, m.current = m.current, next
	m.entered(ctx)
}

func (m *Machine) back(ctx context.Context) {
	m.last, m.current = m.current, m.last
	m.entered(ctx)
}

func (m *Machine) entered(ctx context.Context) {
	switch m.current {
	case models.StateAdminLocked, models.StateSafeSelect, models.StateEditCode:
		m.bank.ClearScratch()
	}
	m.indicator.SetStateCode(m.current.Code())
	m.metrics.ObserveTransition(m.current.String())
	m.logger.DebugContext(ctx, "state transition", "from", m.last.String(), "to", m.current.String())
}
