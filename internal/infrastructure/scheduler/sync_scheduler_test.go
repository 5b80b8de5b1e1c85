package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	ledgerapp "github.com/varejo/backend/internal/application/ledger"
	"github.com/varejo/backend/internal/domain/ledger"
	"github.com/varejo/backend/internal/domain/shared"
	"github.com/varejo/backend/internal/domain/shared/valueobject"
	"github.com/varejo/backend/internal/infrastructure/cache"
)

// ============================================================================
// Mock Repositories
// ============================================================================

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Order), args.Error(1)
}

func (m *MockOrderRepository) FindAll(ctx context.Context) ([]ledger.Order, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.Order), args.Error(1)
}

type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.FinancialTransaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.FinancialTransaction), args.Error(1)
}

func (m *MockTransactionRepository) FindAll(ctx context.Context) ([]ledger.FinancialTransaction, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.FinancialTransaction), args.Error(1)
}

func (m *MockTransactionRepository) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]ledger.FinancialTransaction, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.FinancialTransaction), args.Error(1)
}

func (m *MockTransactionRepository) FindByCreditAccount(ctx context.Context, accountID uuid.UUID) ([]ledger.FinancialTransaction, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.FinancialTransaction), args.Error(1)
}

func (m *MockTransactionRepository) Create(ctx context.Context, tx *ledger.FinancialTransaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockTransactionRepository) Update(ctx context.Context, tx *ledger.FinancialTransaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

type MockCreditAccountRepository struct {
	mock.Mock
}

func (m *MockCreditAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.CreditAccount, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.CreditAccount), args.Error(1)
}

func (m *MockCreditAccountRepository) FindAll(ctx context.Context) ([]ledger.CreditAccount, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.CreditAccount), args.Error(1)
}

func (m *MockCreditAccountRepository) Update(ctx context.Context, account *ledger.CreditAccount) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

// ============================================================================
// Fake Clock
// ============================================================================

type fakeTicker struct {
	ch chan time.Time
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               {}

// fakeClock hands out a single shared ticker so tests can fire ticks
// on demand
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	ticker *fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		ticker: &fakeTicker{ch: make(chan time.Time, 1)},
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker { return c.ticker }

func (c *fakeClock) tick() {
	c.mu.Lock()
	c.now = c.now.Add(time.Minute)
	now := c.now
	c.mu.Unlock()
	c.ticker.ch <- now
}

// ============================================================================
// Fixtures
// ============================================================================

type schedulerFixture struct {
	orders       *MockOrderRepository
	transactions *MockTransactionRepository
	accounts     *MockCreditAccountRepository
	clock        *fakeClock
	scheduler    *ReconciliationScheduler
}

func newSchedulerFixture(t *testing.T, config ReconciliationSchedulerConfig) *schedulerFixture {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	f := &schedulerFixture{
		orders:       new(MockOrderRepository),
		transactions: new(MockTransactionRepository),
		accounts:     new(MockCreditAccountRepository),
		clock:        newFakeClock(),
	}

	processor := ledgerapp.NewEventProcessor(f.orders, f.transactions, f.accounts, cache.NewInMemoryCorrelationLocker(), logger)
	scanner := ledgerapp.NewDriftScanner(f.orders, f.transactions, f.accounts, logger)
	remediator := ledgerapp.NewRemediator(processor, f.accounts, logger)

	f.scheduler, err = NewReconciliationScheduler(config, scanner, processor, remediator, f.clock, logger)
	require.NoError(t, err)
	return f
}

func (f *schedulerFixture) expectEmptyDataset() {
	f.orders.On("FindAll", mock.Anything).Return([]ledger.Order{}, nil)
	f.transactions.On("FindAll", mock.Anything).Return([]ledger.FinancialTransaction{}, nil)
	f.accounts.On("FindAll", mock.Anything).Return([]ledger.CreditAccount{}, nil)
}

func testConfig() ReconciliationSchedulerConfig {
	return ReconciliationSchedulerConfig{
		Enabled:    true,
		Interval:   time.Minute,
		JobTimeout: 10 * time.Second,
	}
}

// ============================================================================
// Configuration
// ============================================================================

func TestReconciliationSchedulerConfig_Validate(t *testing.T) {
	valid := DefaultReconciliationSchedulerConfig()
	assert.NoError(t, valid.Validate())

	noInterval := testConfig()
	noInterval.Interval = 0
	assert.ErrorIs(t, noInterval.Validate(), ErrInvalidConfig)

	noTimeout := testConfig()
	noTimeout.JobTimeout = 0
	assert.ErrorIs(t, noTimeout.Validate(), ErrInvalidConfig)
}

func TestNewReconciliationScheduler_RejectsInvalidConfig(t *testing.T) {
	logger := zap.NewNop()
	_, err := NewReconciliationScheduler(ReconciliationSchedulerConfig{}, nil, nil, nil, nil, logger)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// ============================================================================
// RunSyncJob
// ============================================================================

func TestReconciliationScheduler_RunSyncJob(t *testing.T) {
	t.Run("clean dataset reports success", func(t *testing.T) {
		f := newSchedulerFixture(t, testConfig())
		f.expectEmptyDataset()

		result := f.scheduler.RunSyncJob(context.Background())

		assert.True(t, result.Success)
		assert.Equal(t, 0, result.InconsistenciesFound)
		assert.Equal(t, 0, result.OrdersSynced)
		assert.Equal(t, 0, result.FixesApplied)
		assert.Empty(t, result.Errors)
		assert.NotEmpty(t, result.JobID)
		assert.False(t, result.EndTime.Before(result.StartTime))
		assert.Equal(t, result.EndTime.Sub(result.StartTime), result.Duration)
	})

	t.Run("full cycle backfills and remediates", func(t *testing.T) {
		f := newSchedulerFixture(t, testConfig())

		order := ledger.Order{
			BaseEntity:    shared.NewBaseEntity(),
			OrderNumber:   "PED-001",
			CustomerID:    uuid.New(),
			Status:        ledger.OrderStatusConfirmed,
			PaymentMethod: ledger.PaymentMethodPix,
			Total:         valueobject.NewMoneyBRLFromFloat(100),
		}

		f.orders.On("FindAll", mock.Anything).Return([]ledger.Order{order}, nil)
		f.transactions.On("FindAll", mock.Anything).Return([]ledger.FinancialTransaction{}, nil)
		f.accounts.On("FindAll", mock.Anything).Return([]ledger.CreditAccount{}, nil)
		f.orders.On("FindByID", mock.Anything, order.ID).Return(&order, nil)
		f.transactions.On("Create", mock.Anything, mock.Anything).Return(nil)

		// The backfill sees no correlated entry and creates one; the
		// remediation of the stale missing-transaction finding then
		// finds it and is a no-op.
		backfilled := ledger.NewFinancialTransaction(
			ledger.TransactionTypeIncome,
			ledger.TransactionCategorySale,
			"Venda",
			order.Total,
			ledger.TransactionStatusCompleted,
		)
		backfilled.CorrelateOrder(order.ID, order.PaymentMethod, "historical_sync")
		f.transactions.On("FindByOrder", mock.Anything, order.ID).Return([]ledger.FinancialTransaction{}, nil).Twice()
		f.transactions.On("FindByOrder", mock.Anything, order.ID).Return([]ledger.FinancialTransaction{*backfilled}, nil)

		result := f.scheduler.RunSyncJob(context.Background())

		assert.True(t, result.Success)
		assert.Equal(t, 1, result.InconsistenciesFound)
		assert.Equal(t, 1, result.OrdersSynced)
		assert.Empty(t, result.Errors)
		f.transactions.AssertNumberOfCalls(t, "Create", 1)
	})

	t.Run("failed scan aborts the run", func(t *testing.T) {
		f := newSchedulerFixture(t, testConfig())
		f.orders.On("FindAll", mock.Anything).Return(nil, errors.New("connection reset"))

		result := f.scheduler.RunSyncJob(context.Background())

		assert.False(t, result.Success)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "drift scan failed")
		assert.Contains(t, result.Message, "aborted")
	})

	t.Run("backfill errors are collected without failing the run", func(t *testing.T) {
		f := newSchedulerFixture(t, testConfig())

		order := ledger.Order{
			BaseEntity:    shared.NewBaseEntity(),
			OrderNumber:   "PED-002",
			CustomerID:    uuid.New(),
			Status:        ledger.OrderStatusConfirmed,
			PaymentMethod: ledger.PaymentMethodPix,
			Total:         valueobject.NewMoneyBRLFromFloat(100),
		}

		f.orders.On("FindAll", mock.Anything).Return([]ledger.Order{order}, nil)
		f.transactions.On("FindAll", mock.Anything).Return([]ledger.FinancialTransaction{}, nil)
		f.accounts.On("FindAll", mock.Anything).Return([]ledger.CreditAccount{}, nil)
		f.transactions.On("FindByOrder", mock.Anything, order.ID).Return(nil, errors.New("connection reset"))
		f.orders.On("FindByID", mock.Anything, order.ID).Return(nil, errors.New("connection reset"))

		result := f.scheduler.RunSyncJob(context.Background())

		assert.True(t, result.Success)
		assert.NotEmpty(t, result.Errors)
		assert.Equal(t, 0, result.OrdersSynced)
	})

	t.Run("a panicking run is recovered and recorded", func(t *testing.T) {
		f := newSchedulerFixture(t, testConfig())
		// No expectations registered: the first repository call panics
		// inside the scan.

		result := f.scheduler.RunSyncJob(context.Background())

		assert.False(t, result.Success)
		assert.Contains(t, result.Message, "aborted")
		require.NotEmpty(t, result.Errors)
		assert.Contains(t, result.Errors[0], "panic during sync run")

		status := f.scheduler.GetStatus()
		require.NotNil(t, status.LastJobResult)
		assert.Equal(t, result.JobID, status.LastJobResult.JobID)
	})
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestReconciliationScheduler_Lifecycle(t *testing.T) {
	t.Run("runs immediately and on every tick", func(t *testing.T) {
		f := newSchedulerFixture(t, testConfig())

		runs := make(chan struct{}, 4)
		f.orders.On("FindAll", mock.Anything).Run(func(mock.Arguments) {
			runs <- struct{}{}
		}).Return([]ledger.Order{}, nil)
		f.transactions.On("FindAll", mock.Anything).Return([]ledger.FinancialTransaction{}, nil)
		f.accounts.On("FindAll", mock.Anything).Return([]ledger.CreditAccount{}, nil)

		require.NoError(t, f.scheduler.Start(context.Background()))
		defer f.scheduler.Stop(context.Background())

		waitForRun := func() {
			select {
			case <-runs:
			case <-time.After(2 * time.Second):
				t.Fatal("timed out waiting for sync run")
			}
		}

		// FindAll is called twice per run (scan + backfill)
		waitForRun()
		waitForRun()

		f.clock.tick()
		waitForRun()
		waitForRun()

		status := f.scheduler.GetStatus()
		assert.True(t, status.IsRunning)
		require.NotNil(t, status.LastJobResult)
		assert.True(t, status.LastJobResult.Success)
	})

	t.Run("disabled config makes start a no-op", func(t *testing.T) {
		config := testConfig()
		config.Enabled = false
		f := newSchedulerFixture(t, config)

		require.NoError(t, f.scheduler.Start(context.Background()))
		defer f.scheduler.Stop(context.Background())

		assert.False(t, f.scheduler.GetStatus().IsRunning)
		f.orders.AssertNotCalled(t, "FindAll", mock.Anything)
	})

	t.Run("start is idempotent and stop is clean", func(t *testing.T) {
		f := newSchedulerFixture(t, testConfig())
		f.expectEmptyDataset()

		require.NoError(t, f.scheduler.Start(context.Background()))
		require.NoError(t, f.scheduler.Start(context.Background()))

		require.NoError(t, f.scheduler.Stop(context.Background()))
		assert.False(t, f.scheduler.GetStatus().IsRunning)

		// Stopping again is a no-op
		require.NoError(t, f.scheduler.Stop(context.Background()))
	})
}

// ============================================================================
// Stats
// ============================================================================

func TestReconciliationScheduler_GetDetailedStats(t *testing.T) {
	f := newSchedulerFixture(t, testConfig())

	order := ledger.Order{
		BaseEntity:    shared.NewBaseEntity(),
		OrderNumber:   "PED-001",
		CustomerID:    uuid.New(),
		Status:        ledger.OrderStatusConfirmed,
		PaymentMethod: ledger.PaymentMethodPix,
		Total:         valueobject.NewMoneyBRLFromFloat(100),
	}
	account := ledger.CreditAccount{
		BaseEntity:      shared.NewBaseEntity(),
		AccountNumber:   "CRED-001",
		TotalAmount:     valueobject.NewMoneyBRLFromFloat(500),
		PaidAmount:      valueobject.NewMoneyBRLFromFloat(500),
		RemainingAmount: valueobject.ZeroBRL(),
		Status:          ledger.CreditAccountStatusActive,
	}

	f.orders.On("FindAll", mock.Anything).Return([]ledger.Order{order}, nil)
	f.transactions.On("FindAll", mock.Anything).Return([]ledger.FinancialTransaction{}, nil)
	f.accounts.On("FindAll", mock.Anything).Return([]ledger.CreditAccount{account}, nil)

	stats, err := f.scheduler.GetDetailedStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalInconsistencies)
	assert.Equal(t, 1, stats.BySeverity[ledger.SeverityHigh])
	assert.Equal(t, 1, stats.BySeverity[ledger.SeverityLow])
	assert.Equal(t, 1, stats.ByType[ledger.InconsistencyMissingTransaction])
	assert.Equal(t, 1, stats.ByType[ledger.InconsistencyStatusMismatch])
	assert.Equal(t, f.clock.Now(), stats.GeneratedAt)
}
