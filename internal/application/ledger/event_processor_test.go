package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/varejo/backend/internal/domain/ledger"
	"github.com/varejo/backend/internal/domain/shared"
	"github.com/varejo/backend/internal/domain/shared/valueobject"
)

// ============================================================================
// Mock Repositories
// ============================================================================

// MockOrderRepository is a mock implementation of OrderRepository
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

// MockTransactionRepository is a mock implementation of TransactionRepository
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

// MockCreditAccountRepository is a mock implementation of CreditAccountRepository
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

// noopLocker serializes nothing; per-key locking has its own tests
type noopLocker struct{}

func (noopLocker) Lock(ctx context.Context, key string) (func(), error) {
	return func() {}, nil
}

// ============================================================================
// Fixtures
// ============================================================================

type processorFixture struct {
	orders       *MockOrderRepository
	transactions *MockTransactionRepository
	accounts     *MockCreditAccountRepository
	processor    *EventProcessor
}

func newProcessorFixture(t *testing.T) *processorFixture {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	f := &processorFixture{
		orders:       new(MockOrderRepository),
		transactions: new(MockTransactionRepository),
		accounts:     new(MockCreditAccountRepository),
	}
	f.processor = NewEventProcessor(f.orders, f.transactions, f.accounts, noopLocker{}, logger)
	return f
}

func confirmedOrder(method ledger.PaymentMethod, total float64) *ledger.Order {
	return &ledger.Order{
		BaseEntity:    shared.NewBaseEntity(),
		OrderNumber:   "PED-100",
		CustomerID:    uuid.New(),
		Status:        ledger.OrderStatusConfirmed,
		PaymentMethod: method,
		Total:         valueobject.NewMoneyBRLFromFloat(total),
	}
}

// ============================================================================
// ProcessOrderConfirmation
// ============================================================================

func TestEventProcessor_ProcessOrderConfirmation(t *testing.T) {
	t.Run("cash sale creates completed SALE entry", func(t *testing.T) {
		f := newProcessorFixture(t)
		order := confirmedOrder(ledger.PaymentMethodCash, 150.00)

		f.orders.On("FindByID", mock.Anything, order.ID).Return(order, nil)
		f.transactions.On("FindByOrder", mock.Anything, order.ID).Return([]ledger.FinancialTransaction{}, nil)

		var created *ledger.FinancialTransaction
		f.transactions.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			created = args.Get(1).(*ledger.FinancialTransaction)
		}).Return(nil)

		result, err := f.processor.ProcessOrderConfirmation(context.Background(), order.ID)
		require.NoError(t, err)

		assert.False(t, result.AlreadySynced)
		require.NotNil(t, created)
		assert.Equal(t, ledger.TransactionTypeIncome, created.Type)
		assert.Equal(t, ledger.TransactionCategorySale, created.Category)
		assert.Equal(t, ledger.TransactionStatusCompleted, created.Status)
		assert.True(t, created.Amount.Equals(order.Total))
		assert.Equal(t, "webhook", created.Metadata[ledger.MetadataKeySource])

		orderID, ok := created.OrderID()
		require.True(t, ok)
		assert.Equal(t, order.ID, orderID)
	})

	t.Run("crediario sale creates pending INSTALLMENT entry", func(t *testing.T) {
		f := newProcessorFixture(t)
		order := confirmedOrder(ledger.PaymentMethodCredit, 900.00)

		f.orders.On("FindByID", mock.Anything, order.ID).Return(order, nil)
		f.transactions.On("FindByOrder", mock.Anything, order.ID).Return([]ledger.FinancialTransaction{}, nil)

		var created *ledger.FinancialTransaction
		f.transactions.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			created = args.Get(1).(*ledger.FinancialTransaction)
		}).Return(nil)

		result, err := f.processor.ProcessOrderConfirmation(context.Background(), order.ID)
		require.NoError(t, err)

		assert.Equal(t, ledger.TransactionCategoryInstallment, result.Synced.Category)
		require.NotNil(t, created)
		assert.Equal(t, ledger.TransactionStatusPending, created.Status)
	})

	t.Run("existing correlated entry short-circuits", func(t *testing.T) {
		f := newProcessorFixture(t)
		order := confirmedOrder(ledger.PaymentMethodPix, 80.00)

		existing := *ledger.NewFinancialTransaction(
			ledger.TransactionTypeIncome,
			ledger.TransactionCategorySale,
			"Venda",
			order.Total,
			ledger.TransactionStatusCompleted,
		)

		f.orders.On("FindByID", mock.Anything, order.ID).Return(order, nil)
		f.transactions.On("FindByOrder", mock.Anything, order.ID).Return([]ledger.FinancialTransaction{existing}, nil)

		result, err := f.processor.ProcessOrderConfirmation(context.Background(), order.ID)
		require.NoError(t, err)

		assert.True(t, result.AlreadySynced)
		assert.Equal(t, existing.ID, result.TransactionID)
		f.transactions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("cancelled correlated entry still counts for idempotency", func(t *testing.T) {
		f := newProcessorFixture(t)
		order := confirmedOrder(ledger.PaymentMethodPix, 80.00)

		cancelled := *ledger.NewFinancialTransaction(
			ledger.TransactionTypeIncome,
			ledger.TransactionCategorySale,
			"Venda",
			order.Total,
			ledger.TransactionStatusCancelled,
		)

		f.orders.On("FindByID", mock.Anything, order.ID).Return(order, nil)
		f.transactions.On("FindByOrder", mock.Anything, order.ID).Return([]ledger.FinancialTransaction{cancelled}, nil)

		result, err := f.processor.ProcessOrderConfirmation(context.Background(), order.ID)
		require.NoError(t, err)

		assert.True(t, result.AlreadySynced)
		f.transactions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("unknown order returns not found", func(t *testing.T) {
		f := newProcessorFixture(t)
		orderID := uuid.New()

		f.orders.On("FindByID", mock.Anything, orderID).Return(nil, shared.ErrNotFound)

		_, err := f.processor.ProcessOrderConfirmation(context.Background(), orderID)
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})
}

// ============================================================================
// ProcessOrderCancellation
// ============================================================================

func TestEventProcessor_ProcessOrderCancellation(t *testing.T) {
	t.Run("soft-cancels the active correlated entry", func(t *testing.T) {
		f := newProcessorFixture(t)
		orderID := uuid.New()

		active := *ledger.NewFinancialTransaction(
			ledger.TransactionTypeIncome,
			ledger.TransactionCategorySale,
			"Venda",
			valueobject.NewMoneyBRLFromFloat(50),
			ledger.TransactionStatusCompleted,
		)

		f.transactions.On("FindByOrder", mock.Anything, orderID).Return([]ledger.FinancialTransaction{active}, nil)

		var updated *ledger.FinancialTransaction
		f.transactions.On("Update", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			updated = args.Get(1).(*ledger.FinancialTransaction)
		}).Return(nil)

		result, err := f.processor.ProcessOrderCancellation(context.Background(), orderID)
		require.NoError(t, err)

		assert.True(t, result.Cancelled)
		require.NotNil(t, updated)
		assert.True(t, updated.IsCancelled())
		assert.NotEmpty(t, updated.Metadata[ledger.MetadataKeyCancellationReason])
	})

	t.Run("no correlated entry is a successful no-op", func(t *testing.T) {
		f := newProcessorFixture(t)
		orderID := uuid.New()

		f.transactions.On("FindByOrder", mock.Anything, orderID).Return([]ledger.FinancialTransaction{}, nil)

		result, err := f.processor.ProcessOrderCancellation(context.Background(), orderID)
		require.NoError(t, err)

		assert.False(t, result.Cancelled)
		f.transactions.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("already cancelled entry is left alone", func(t *testing.T) {
		f := newProcessorFixture(t)
		orderID := uuid.New()

		cancelled := *ledger.NewFinancialTransaction(
			ledger.TransactionTypeIncome,
			ledger.TransactionCategorySale,
			"Venda",
			valueobject.NewMoneyBRLFromFloat(50),
			ledger.TransactionStatusCancelled,
		)

		f.transactions.On("FindByOrder", mock.Anything, orderID).Return([]ledger.FinancialTransaction{cancelled}, nil)

		result, err := f.processor.ProcessOrderCancellation(context.Background(), orderID)
		require.NoError(t, err)

		assert.False(t, result.Cancelled)
		f.transactions.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})
}

// ============================================================================
// ProcessCreditPayment
// ============================================================================

func TestEventProcessor_ProcessCreditPayment(t *testing.T) {
	t.Run("each delivery creates its own entry", func(t *testing.T) {
		f := newProcessorFixture(t)
		account := &ledger.CreditAccount{
			BaseEntity:    shared.NewBaseEntity(),
			AccountNumber: "CRED-007",
			TotalAmount:   valueobject.NewMoneyBRLFromFloat(1200),
			PaidAmount:    valueobject.NewMoneyBRLFromFloat(200),
			Status:        ledger.CreditAccountStatusActive,
		}
		amount := valueobject.NewMoneyBRLFromFloat(100)

		f.accounts.On("FindByID", mock.Anything, account.ID).Return(account, nil)
		f.transactions.On("Create", mock.Anything, mock.Anything).Return(nil)

		first, err := f.processor.ProcessCreditPayment(context.Background(), account.ID, amount)
		require.NoError(t, err)
		second, err := f.processor.ProcessCreditPayment(context.Background(), account.ID, amount)
		require.NoError(t, err)

		// Duplicate deliveries duplicate the ledger entry; the drift
		// scanner is the safety net, not this handler.
		assert.NotEqual(t, first.TransactionID, second.TransactionID)
		f.transactions.AssertNumberOfCalls(t, "Create", 2)
	})

	t.Run("unknown account returns not found", func(t *testing.T) {
		f := newProcessorFixture(t)
		accountID := uuid.New()

		f.accounts.On("FindByID", mock.Anything, accountID).Return(nil, shared.ErrNotFound)

		_, err := f.processor.ProcessCreditPayment(context.Background(), accountID, valueobject.NewMoneyBRLFromFloat(10))
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})
}

// ============================================================================
// SyncHistoricalData
// ============================================================================

func TestEventProcessor_SyncHistoricalData(t *testing.T) {
	t.Run("backfills confirmed orders without entries", func(t *testing.T) {
		f := newProcessorFixture(t)

		synced := confirmedOrder(ledger.PaymentMethodCard, 100)
		skippedPending := &ledger.Order{
			BaseEntity:    shared.NewBaseEntity(),
			OrderNumber:   "PED-101",
			Status:        ledger.OrderStatusPending,
			PaymentMethod: ledger.PaymentMethodCard,
			Total:         valueobject.NewMoneyBRLFromFloat(10),
		}

		f.orders.On("FindAll", mock.Anything).Return([]ledger.Order{*synced, *skippedPending}, nil)
		f.orders.On("FindByID", mock.Anything, synced.ID).Return(synced, nil)
		f.transactions.On("FindByOrder", mock.Anything, synced.ID).Return([]ledger.FinancialTransaction{}, nil)
		f.accounts.On("FindAll", mock.Anything).Return([]ledger.CreditAccount{}, nil)

		var created *ledger.FinancialTransaction
		f.transactions.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			created = args.Get(1).(*ledger.FinancialTransaction)
		}).Return(nil)

		report, err := f.processor.SyncHistoricalData(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, report.OrdersSynced)
		assert.Empty(t, report.Errors)
		require.NotNil(t, created)
		assert.Equal(t, "historical_sync", created.Metadata[ledger.MetadataKeySource])
	})

	t.Run("cancelled correlated entry blocks backfill", func(t *testing.T) {
		f := newProcessorFixture(t)

		order := confirmedOrder(ledger.PaymentMethodCash, 80)
		cancelled := *ledger.NewFinancialTransaction(
			ledger.TransactionTypeIncome,
			ledger.TransactionCategorySale,
			"Venda #PED-100",
			valueobject.NewMoneyBRLFromFloat(80),
			ledger.TransactionStatusCancelled,
		)
		cancelled.CorrelateOrder(order.ID, order.PaymentMethod, "webhook")

		f.orders.On("FindAll", mock.Anything).Return([]ledger.Order{*order}, nil)
		f.transactions.On("FindByOrder", mock.Anything, order.ID).Return([]ledger.FinancialTransaction{cancelled}, nil)
		f.accounts.On("FindAll", mock.Anything).Return([]ledger.CreditAccount{}, nil)

		report, err := f.processor.SyncHistoricalData(context.Background())
		require.NoError(t, err)

		// The cancelled entry is the order's audit trail; the backfill
		// never recreates it.
		assert.Equal(t, 0, report.OrdersSynced)
		assert.Empty(t, report.Errors)
		f.transactions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("records shortfall payment for active accounts", func(t *testing.T) {
		f := newProcessorFixture(t)

		account := ledger.CreditAccount{
			BaseEntity:    shared.NewBaseEntity(),
			AccountNumber: "CRED-010",
			TotalAmount:   valueobject.NewMoneyBRLFromFloat(1000),
			PaidAmount:    valueobject.NewMoneyBRLFromFloat(300),
			Status:        ledger.CreditAccountStatusActive,
		}

		recorded := *ledger.NewFinancialTransaction(
			ledger.TransactionTypeIncome,
			ledger.TransactionCategoryInstallment,
			"Parcela",
			valueobject.NewMoneyBRLFromFloat(100),
			ledger.TransactionStatusCompleted,
		)

		f.orders.On("FindAll", mock.Anything).Return([]ledger.Order{}, nil)
		f.accounts.On("FindAll", mock.Anything).Return([]ledger.CreditAccount{account}, nil)
		f.accounts.On("FindByID", mock.Anything, account.ID).Return(&account, nil)
		f.transactions.On("FindByCreditAccount", mock.Anything, account.ID).Return([]ledger.FinancialTransaction{recorded}, nil)

		var created *ledger.FinancialTransaction
		f.transactions.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			created = args.Get(1).(*ledger.FinancialTransaction)
		}).Return(nil)

		report, err := f.processor.SyncHistoricalData(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, report.PaymentsSynced)
		require.NotNil(t, created)
		// Shortfall = paid 300 - recorded 100
		assert.True(t, created.Amount.Equals(valueobject.NewMoneyBRLFromFloat(200)))
	})

	t.Run("one failing entity does not abort the pass", func(t *testing.T) {
		f := newProcessorFixture(t)

		bad := confirmedOrder(ledger.PaymentMethodCash, 10)
		good := confirmedOrder(ledger.PaymentMethodCash, 20)
		good.OrderNumber = "PED-102"

		f.orders.On("FindAll", mock.Anything).Return([]ledger.Order{*bad, *good}, nil)
		f.transactions.On("FindByOrder", mock.Anything, bad.ID).Return(nil, errors.New("connection reset"))
		f.orders.On("FindByID", mock.Anything, good.ID).Return(good, nil)
		f.transactions.On("FindByOrder", mock.Anything, good.ID).Return([]ledger.FinancialTransaction{}, nil)
		f.transactions.On("Create", mock.Anything, mock.Anything).Return(nil)
		f.accounts.On("FindAll", mock.Anything).Return([]ledger.CreditAccount{}, nil)

		report, err := f.processor.SyncHistoricalData(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, report.OrdersSynced)
		require.Len(t, report.Errors, 1)
		assert.Contains(t, report.Errors[0], bad.ID.String())
	})
}

// ============================================================================
// TriggerWebhook
// ============================================================================

func TestEventProcessor_TriggerWebhook(t *testing.T) {
	t.Run("dispatches by event type", func(t *testing.T) {
		f := newProcessorFixture(t)
		order := confirmedOrder(ledger.PaymentMethodPix, 30)

		f.orders.On("FindByID", mock.Anything, order.ID).Return(order, nil)
		f.transactions.On("FindByOrder", mock.Anything, order.ID).Return([]ledger.FinancialTransaction{}, nil)
		f.transactions.On("Create", mock.Anything, mock.Anything).Return(nil)

		txID, err := f.processor.TriggerWebhook(context.Background(), WebhookEvent{
			Type:    EventTypeOrderConfirmed,
			OrderID: order.ID,
		})
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, txID)
	})

	t.Run("unsupported type is rejected", func(t *testing.T) {
		f := newProcessorFixture(t)

		_, err := f.processor.TriggerWebhook(context.Background(), WebhookEvent{
			Type:    "order_shipped",
			OrderID: uuid.New(),
		})
		assert.True(t, errors.Is(err, shared.ErrUnsupportedEventType))
	})
}
