package bank

//go:generate mockgen -source=bank.go -destination=mocks/mocks.go -package=mocks -exclude_interfaces=heapStatter
//go:generate mockgen -destination=mocks/audit_mocks.go -package=mocks digisafe/internal/safe/ports AuditPublisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"digisafe/internal/safe/bank/mocks"
	"digisafe/internal/safe/metrics"
	"digisafe/internal/safe/models"
	"digisafe/internal/safe/ports"
	"digisafe/internal/safe/store/codestore"
	"digisafe/internal/safe/store/medium"
	"digisafe/pkg/platform/audit"
	"digisafe/pkg/platform/sentinel"
)

// =============================================================================
// Bank Test Suite (mocked store)
// =============================================================================
// Justification for unit tests: the bank owns the failure counter and the
// ordering between persistence and in-memory state. Mocks let the tests pin
// which store calls happen and what is left behind when they fail.

var (
	_ CodeStore            = (*mocks.MockCodeStore)(nil)
	_ ports.AuditPublisher = (*mocks.MockAuditPublisher)(nil)
)

type BankSuite struct {
	suite.Suite
	ctx                context.Context
	ctrl               *gomock.Controller
	mockStore          *mocks.MockCodeStore
	mockAuditPublisher *mocks.MockAuditPublisher
	logger             *slog.Logger
	bank               *Bank
}

func TestBankSuite(t *testing.T) {
	suite.Run(t, new(BankSuite))
}

func (s *BankSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.mockStore = mocks.NewMockCodeStore(s.ctrl)
	s.mockAuditPublisher = mocks.NewMockAuditPublisher(s.ctrl)
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.bank, _ = New(s.mockStore, WithLogger(s.logger))
}

func (s *BankSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *BankSuite) code(digits ...uint8) models.Code {
	c, err := models.NewCode(digits)
	s.Require().NoError(err)
	return c
}

// enter types digits into the scratch code and confirms it.
func (s *BankSuite) enter(digits ...uint8) {
	enterDigits(s.T(), s.bank, digits...)
}

func enterDigits(t *testing.T, b *Bank, digits ...uint8) {
	t.Helper()
	sc := b.Scratch()
	sc.BeginEntry()
	for _, d := range digits {
		if err := sc.AppendDigit(d); err != nil {
			t.Fatalf("append %d: %v", d, err)
		}
	}
	if err := sc.Confirm(); err != nil {
		t.Fatalf("confirm: %v", err)
	}
}

// withAdmin loads the bank from a store holding only an admin code.
func (s *BankSuite) withAdmin(digits ...uint8) {
	admin := s.code(digits...)
	s.mockStore.EXPECT().Initialize(gomock.Any()).Return(true, nil)
	s.mockStore.EXPECT().Load(gomock.Any(), models.SlotAdmin).Return(admin, nil)
	s.mockStore.EXPECT().Load(gomock.Any(), gomock.Any()).Return(models.Code{}, nil).Times(4)
	valid, err := s.bank.Initialize(s.ctx)
	s.Require().NoError(err)
	s.Require().True(valid)
}

func (s *BankSuite) TestNew() {
	s.Run("nil code store returns error", func() {
		_, err := New(nil)
		s.Error(err)
		s.Contains(err.Error(), "code store is required")
	})

	s.Run("with options applies options", func() {
		m := metrics.New(prometheus.NewRegistry())
		b, err := New(s.mockStore,
			WithLogger(s.logger),
			WithAuditPublisher(s.mockAuditPublisher),
			WithMetrics(m),
		)
		s.NoError(err)
		s.Equal(s.logger, b.logger)
		s.Equal(s.mockAuditPublisher, b.auditPublisher)
		s.Equal(m, b.metrics)
		s.Equal(0, b.Selected())
	})
}

func (s *BankSuite) TestInitialize() {
	s.Run("fresh medium skips loading and audits the format", func() {
		b, _ := New(s.mockStore, WithLogger(s.logger), WithAuditPublisher(s.mockAuditPublisher))
		s.mockStore.EXPECT().Initialize(gomock.Any()).Return(false, nil)
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, e audit.Event) error {
				s.Equal(string(audit.EventMediumInitialized), e.Action)
				s.Equal(audit.CategoryOperations, e.Category)
				return nil
			})

		valid, err := b.Initialize(s.ctx)
		s.NoError(err)
		s.False(valid)
		s.False(b.IsActive(models.TargetAdmin))
	})

	s.Run("valid medium loads every slot", func() {
		s.withAdmin(1, 2, 3, 4, 5)
		s.True(s.bank.IsActive(models.TargetAdmin))
		s.Equal([]uint8{1, 2, 3, 4, 5}, s.bank.Code(models.SlotAdmin).Digits())
		s.False(s.bank.IsActive(models.TargetSelected))
	})

	s.Run("store failure is returned", func() {
		s.mockStore.EXPECT().Initialize(gomock.Any()).Return(false, sentinel.ErrUnavailable)
		_, err := s.bank.Initialize(s.ctx)
		s.ErrorIs(err, sentinel.ErrUnavailable)
	})

	s.Run("load failure is returned", func() {
		s.mockStore.EXPECT().Initialize(gomock.Any()).Return(true, nil)
		s.mockStore.EXPECT().Load(gomock.Any(), models.SlotAdmin).Return(models.Code{}, codestore.ErrCorrupt)
		_, err := s.bank.Initialize(s.ctx)
		s.ErrorIs(err, codestore.ErrCorrupt)
	})
}

func (s *BankSuite) TestSelect() {
	for i := 0; i < models.CompartmentCount; i++ {
		s.NoError(s.bank.Select(i))
		s.Equal(i, s.bank.Selected())
	}

	for _, i := range []int{-1, 4, 12} {
		err := s.bank.Select(i)
		s.ErrorIs(err, ErrOutOfRange)
	}
	s.Equal(3, s.bank.Selected(), "rejected select leaves selection unchanged")
}

func (s *BankSuite) TestAttemptCompare() {
	s.Run("match resets scratch and returns Matched", func() {
		s.withAdmin(1, 2, 3, 4, 5)
		s.enter(1, 2, 3, 4, 5)

		s.Equal(models.Matched, s.bank.AttemptCompare(s.ctx, models.TargetAdmin))
		s.Equal(models.StatusEmpty, s.bank.Scratch().Status())
		s.Equal(0, s.bank.FailureCount())
	})

	s.Run("mismatch resets scratch and counts", func() {
		s.withAdmin(1, 2, 3, 4, 5)
		s.enter(1, 2, 3, 4, 6)

		s.Equal(models.Mismatched, s.bank.AttemptCompare(s.ctx, models.TargetAdmin))
		s.Equal(models.StatusEmpty, s.bank.Scratch().Status())
		s.Equal(1, s.bank.FailureCount())
	})

	s.Run("prefix of the stored code does not match", func() {
		s.withAdmin(1, 2, 3, 4, 5, 6)
		s.enter(1, 2, 3, 4, 5)
		s.Equal(models.Mismatched, s.bank.AttemptCompare(s.ctx, models.TargetAdmin))
	})

	s.Run("third consecutive mismatch locks out", func() {
		s.withAdmin(1, 2, 3, 4, 5)
		for i := 1; i <= 2; i++ {
			s.enter(9, 9, 9, 9, 9)
			s.Equal(models.Mismatched, s.bank.AttemptCompare(s.ctx, models.TargetAdmin))
			s.Equal(i, s.bank.FailureCount())
		}
		s.enter(9, 9, 9, 9, 9)
		s.Equal(models.LockedOut, s.bank.AttemptCompare(s.ctx, models.TargetAdmin))
		s.Equal(0, s.bank.FailureCount())
	})

	s.Run("match between mismatches resets the count", func() {
		s.withAdmin(1, 2, 3, 4, 5)
		s.enter(9, 9, 9, 9, 9)
		s.bank.AttemptCompare(s.ctx, models.TargetAdmin)
		s.enter(9, 9, 9, 9, 9)
		s.bank.AttemptCompare(s.ctx, models.TargetAdmin)
		s.enter(1, 2, 3, 4, 5)
		s.Equal(models.Matched, s.bank.AttemptCompare(s.ctx, models.TargetAdmin))
		s.enter(9, 9, 9, 9, 9)
		s.Equal(models.Mismatched, s.bank.AttemptCompare(s.ctx, models.TargetAdmin))
		s.Equal(1, s.bank.FailureCount())
	})

	s.Run("changing target resets the count", func() {
		s.withAdmin(1, 2, 3, 4, 5)
		s.enter(9, 9, 9, 9, 9)
		s.bank.AttemptCompare(s.ctx, models.TargetAdmin)
		s.enter(9, 9, 9, 9, 9)
		s.bank.AttemptCompare(s.ctx, models.TargetAdmin)
		s.Equal(2, s.bank.FailureCount())

		s.enter(9, 9, 9, 9, 9)
		s.Equal(models.Mismatched, s.bank.AttemptCompare(s.ctx, models.TargetSelected))
		s.Equal(1, s.bank.FailureCount())
	})

	s.Run("audit events carry slot and category", func() {
		var events []audit.Event
		b, _ := New(s.mockStore, WithLogger(s.logger), WithAuditPublisher(s.mockAuditPublisher))
		s.mockStore.EXPECT().Initialize(gomock.Any()).Return(true, nil)
		s.mockStore.EXPECT().Load(gomock.Any(), models.SlotAdmin).Return(s.code(1, 2, 3, 4, 5), nil)
		s.mockStore.EXPECT().Load(gomock.Any(), gomock.Any()).Return(models.Code{}, nil).Times(4)
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, e audit.Event) error {
				events = append(events, e)
				return nil
			}).AnyTimes()
		_, err := b.Initialize(s.ctx)
		s.Require().NoError(err)

		for range 3 {
			enterDigits(s.T(), b, 0, 0, 0, 0, 0)
			b.AttemptCompare(s.ctx, models.TargetAdmin)
		}

		actions := make([]string, 0, len(events))
		for _, e := range events {
			s.Equal("admin", e.Subject)
			s.Equal(audit.CategorySecurity, e.Category)
			actions = append(actions, e.Action)
		}
		s.Equal([]string{
			string(audit.EventCodeMismatched),
			string(audit.EventCodeMismatched),
			string(audit.EventCodeMismatched),
			string(audit.EventAuthLockoutTrigger),
		}, actions)
	})

	s.Run("audit publisher failure does not change outcome", func() {
		b, _ := New(s.mockStore, WithLogger(s.logger), WithAuditPublisher(s.mockAuditPublisher))
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("sink down"))
		enterDigits(s.T(), b, 1, 2, 3, 4, 5)
		s.Equal(models.Mismatched, b.AttemptCompare(s.ctx, models.TargetAdmin))
	})
}

func (s *BankSuite) TestCommit() {
	s.Run("persists before updating memory", func() {
		s.Require().NoError(s.bank.Select(2))
		s.enter(4, 4, 4, 4, 4)
		s.mockStore.EXPECT().Store(gomock.Any(), models.SlotCompartment2, s.code(4, 4, 4, 4, 4)).Return(nil)

		s.NoError(s.bank.Commit(s.ctx, models.TargetSelected))
		s.True(s.bank.IsActive(models.TargetSelected))
		s.Equal([]uint8{4, 4, 4, 4, 4}, s.bank.Code(models.SlotCompartment2).Digits())
		s.Equal(models.StatusEmpty, s.bank.Scratch().Status())
	})

	s.Run("admin target writes the admin slot", func() {
		s.enter(1, 2, 3, 4, 5)
		s.mockStore.EXPECT().Store(gomock.Any(), models.SlotAdmin, gomock.Any()).Return(nil)
		s.NoError(s.bank.Commit(s.ctx, models.TargetAdmin))
		s.True(s.bank.IsActive(models.TargetAdmin))
	})

	s.Run("store failure leaves memory untouched", func() {
		b, _ := New(s.mockStore, WithLogger(s.logger))
		enterDigits(s.T(), b, 1, 2, 3, 4, 5)
		s.mockStore.EXPECT().Store(gomock.Any(), models.SlotAdmin, gomock.Any()).Return(codestore.ErrStorageExhausted)

		err := b.Commit(s.ctx, models.TargetAdmin)
		s.ErrorIs(err, codestore.ErrStorageExhausted)
		s.False(b.IsActive(models.TargetAdmin))
	})

	s.Run("incomplete scratch is rejected without a write", func() {
		b, _ := New(s.mockStore, WithLogger(s.logger))
		s.Require().NoError(b.Scratch().AppendDigit(1))
		err := b.Commit(s.ctx, models.TargetAdmin)
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})
}

func (s *BankSuite) TestRelease() {
	s.Run("erases the selected compartment", func() {
		s.Require().NoError(s.bank.Select(1))
		s.enter(5, 5, 5, 5, 5)
		s.mockStore.EXPECT().Store(gomock.Any(), models.SlotCompartment1, gomock.Any()).Return(nil)
		s.Require().NoError(s.bank.Commit(s.ctx, models.TargetSelected))

		s.mockStore.EXPECT().Erase(gomock.Any(), models.SlotCompartment1).Return(nil)
		s.NoError(s.bank.Release(s.ctx))
		s.False(s.bank.IsActive(models.TargetSelected))
	})

	s.Run("erase failure is returned", func() {
		s.mockStore.EXPECT().Erase(gomock.Any(), gomock.Any()).Return(sentinel.ErrUnavailable)
		s.ErrorIs(s.bank.Release(s.ctx), sentinel.ErrUnavailable)
	})
}

func (s *BankSuite) TestClearScratch() {
	s.Require().NoError(s.bank.Scratch().AppendDigit(7))
	s.bank.ClearScratch()
	s.Equal(models.StatusEmpty, s.bank.Scratch().Status())
	s.Equal(0, s.bank.Scratch().Len())
}

// =============================================================================
// Bank over a real code store
// =============================================================================
// Justification: persistence round trips and heap accounting only make sense
// against the real layout.

type BankStoreSuite struct {
	suite.Suite
	ctx      context.Context
	medium   *medium.Memory
	store    *codestore.Store
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	bank     *Bank
}

func TestBankStoreSuite(t *testing.T) {
	suite.Run(t, new(BankStoreSuite))
}

func (s *BankStoreSuite) SetupTest() {
	s.ctx = context.Background()
	m, err := medium.NewMemory(medium.DefaultSize)
	s.Require().NoError(err)
	s.medium = m
	s.registry = prometheus.NewRegistry()
	s.metrics = metrics.New(s.registry)
	s.bank = s.open()
}

func (s *BankStoreSuite) open() *Bank {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := codestore.New(s.medium, codestore.WithLogger(logger))
	s.Require().NoError(err)
	s.store = st
	b, err := New(st, WithLogger(logger), WithMetrics(s.metrics))
	s.Require().NoError(err)
	_, err = b.Initialize(s.ctx)
	s.Require().NoError(err)
	return b
}

func (s *BankStoreSuite) TestCodesSurviveRestart() {
	enterDigits(s.T(), s.bank, 1, 2, 3, 4, 5)
	s.Require().NoError(s.bank.Commit(s.ctx, models.TargetAdmin))
	s.Require().NoError(s.bank.Select(3))
	enterDigits(s.T(), s.bank, 9, 8, 7, 6, 5, 4)
	s.Require().NoError(s.bank.Commit(s.ctx, models.TargetSelected))

	reopened := s.open()
	s.Equal([]uint8{1, 2, 3, 4, 5}, reopened.Code(models.SlotAdmin).Digits())
	s.Equal([]uint8{9, 8, 7, 6, 5, 4}, reopened.Code(models.SlotCompartment3).Digits())
	s.False(reopened.Code(models.SlotCompartment0).Active())

	s.Require().NoError(reopened.Select(3))
	enterDigits(s.T(), reopened, 9, 8, 7, 6, 5, 4)
	s.Equal(models.Matched, reopened.AttemptCompare(s.ctx, models.TargetSelected))
}

func (s *BankStoreSuite) TestReleaseFreesCells() {
	enterDigits(s.T(), s.bank, 1, 2, 3, 4, 5)
	s.Require().NoError(s.bank.Commit(s.ctx, models.TargetAdmin))
	enterDigits(s.T(), s.bank, 6, 6, 6, 6, 6, 6, 6)
	s.Require().NoError(s.bank.Commit(s.ctx, models.TargetSelected))
	s.Equal(12.0, promtestutil.ToFloat64(s.metrics.OccupiedCells))

	s.Require().NoError(s.bank.Release(s.ctx))
	stats, err := s.store.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(5, stats.Occupied)
	s.Equal(5.0, promtestutil.ToFloat64(s.metrics.OccupiedCells))
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.CompartmentRelease))

	reopened := s.open()
	s.False(reopened.Code(models.SlotCompartment0).Active())
}

func (s *BankStoreSuite) TestMetrics() {
	enterDigits(s.T(), s.bank, 1, 2, 3, 4, 5)
	s.Require().NoError(s.bank.Commit(s.ctx, models.TargetAdmin))
	for range 3 {
		enterDigits(s.T(), s.bank, 0, 0, 0, 0, 0)
		s.bank.AttemptCompare(s.ctx, models.TargetAdmin)
	}

	s.Equal(3.0, promtestutil.ToFloat64(s.metrics.AuthFailures))
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.AuthLockoutsTotal))
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.CodeCommits.WithLabelValues("admin")))
}
