package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/varejo/backend/internal/domain/ledger"
	"github.com/varejo/backend/internal/domain/shared"
	"github.com/varejo/backend/internal/domain/shared/valueobject"
)

// Webhook event types accepted by the dispatcher
const (
	EventTypeOrderConfirmed = "order_confirmed"
	EventTypeOrderCancelled = "order_cancelled"
	EventTypeCreditPayment  = "credit_payment"
)

// Values stamped into transaction metadata under the "source" key
const (
	sourceWebhook        = "webhook"
	sourceHistoricalSync = "historical_sync"
)

// WebhookEvent is a business event delivered by the surrounding system
type WebhookEvent struct {
	Type            string            `json:"type"`
	OrderID         uuid.UUID         `json:"order_id"`
	CreditAccountID uuid.UUID         `json:"credit_account_id"`
	Amount          valueobject.Money `json:"amount"`
}

// OrderSyncData summarizes the ledger entry a confirmation produced
type OrderSyncData struct {
	OrderID       uuid.UUID                  `json:"order_id"`
	Amount        valueobject.Money          `json:"amount"`
	Category      ledger.TransactionCategory `json:"category"`
	Status        ledger.TransactionStatus   `json:"status"`
	PaymentMethod ledger.PaymentMethod       `json:"payment_method"`
}

// ConfirmationResult is returned by ProcessOrderConfirmation
type ConfirmationResult struct {
	TransactionID uuid.UUID     `json:"transaction_id"`
	AlreadySynced bool          `json:"already_synced"`
	Synced        OrderSyncData `json:"synced_data"`
}

// CancellationResult is returned by ProcessOrderCancellation
type CancellationResult struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Cancelled     bool      `json:"cancelled"`
}

// PaymentResult is returned by ProcessCreditPayment
type PaymentResult struct {
	TransactionID uuid.UUID         `json:"transaction_id"`
	Amount        valueobject.Money `json:"amount"`
}

// BackfillReport summarizes a full historical sync pass
type BackfillReport struct {
	OrdersSynced   int      `json:"orders_synced"`
	PaymentsSynced int      `json:"payments_synced"`
	Errors         []string `json:"errors"`
}

// EventProcessor translates business events into ledger mutations. All
// writes go through the correlation locker so that concurrent webhook
// deliveries and scheduler ticks for the same entity are serialized;
// the read-then-write idempotency check in ProcessOrderConfirmation is
// only safe under that lock.
type EventProcessor struct {
	orders       ledger.OrderRepository
	transactions ledger.TransactionRepository
	accounts     ledger.CreditAccountRepository
	locker       shared.CorrelationLocker
	logger       *zap.Logger
}

// NewEventProcessor creates a new event processor
func NewEventProcessor(
	orders ledger.OrderRepository,
	transactions ledger.TransactionRepository,
	accounts ledger.CreditAccountRepository,
	locker shared.CorrelationLocker,
	logger *zap.Logger,
) *EventProcessor {
	return &EventProcessor{
		orders:       orders,
		transactions: transactions,
		accounts:     accounts,
		locker:       locker,
		logger:       logger,
	}
}

// ProcessOrderConfirmation records the income transaction for a
// confirmed order. Idempotent: if a transaction correlated to the order
// already exists, it is returned without creating a duplicate.
func (p *EventProcessor) ProcessOrderConfirmation(ctx context.Context, orderID uuid.UUID) (*ConfirmationResult, error) {
	return p.processOrderConfirmation(ctx, orderID, sourceWebhook)
}

func (p *EventProcessor) processOrderConfirmation(ctx context.Context, orderID uuid.UUID, source string) (*ConfirmationResult, error) {
	release, err := p.locker.Lock(ctx, orderLockKey(orderID))
	if err != nil {
		return nil, fmt.Errorf("failed to acquire order lock: %w", err)
	}
	defer release()

	order, err := p.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("order %s: %w", orderID, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}

	existing, err := p.transactions.FindByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing transactions for order %s: %w", orderID, err)
	}
	if len(existing) > 0 {
		p.logger.Info("transaction already exists for order, skipping",
			zap.String("order_id", orderID.String()),
			zap.String("transaction_id", existing[0].ID.String()),
		)
		return &ConfirmationResult{
			TransactionID: existing[0].ID,
			AlreadySynced: true,
			Synced: OrderSyncData{
				OrderID:       orderID,
				Amount:        existing[0].Amount,
				Category:      existing[0].Category,
				Status:        existing[0].Status,
				PaymentMethod: order.PaymentMethod,
			},
		}, nil
	}

	category := ledger.TransactionCategorySale
	status := ledger.TransactionStatusCompleted
	description := fmt.Sprintf("Sale - order %s", order.OrderNumber)
	if order.PaymentMethod.IsInstallment() {
		// Crediario sales settle over time; the entry stays pending
		// until the installments are collected.
		category = ledger.TransactionCategoryInstallment
		status = ledger.TransactionStatusPending
		description = fmt.Sprintf("Crediario sale - order %s", order.OrderNumber)
	}

	tx := ledger.NewFinancialTransaction(
		ledger.TransactionTypeIncome,
		category,
		description,
		order.Total,
		status,
	)
	tx.CorrelateOrder(orderID, order.PaymentMethod, source)

	if err := p.transactions.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to create transaction for order %s: %w", orderID, err)
	}

	p.logger.Info("order confirmation recorded in ledger",
		zap.String("order_id", orderID.String()),
		zap.String("transaction_id", tx.ID.String()),
		zap.String("amount", tx.Amount.String()),
		zap.String("category", string(category)),
		zap.String("status", string(status)),
		zap.String("source", source),
	)

	return &ConfirmationResult{
		TransactionID: tx.ID,
		Synced: OrderSyncData{
			OrderID:       orderID,
			Amount:        tx.Amount,
			Category:      category,
			Status:        status,
			PaymentMethod: order.PaymentMethod,
		},
	}, nil
}

// ProcessOrderCancellation soft-cancels the transaction correlated to
// the order, preserving the ledger entry as an audit trail. Succeeds as
// a no-op when no correlated transaction exists.
func (p *EventProcessor) ProcessOrderCancellation(ctx context.Context, orderID uuid.UUID) (*CancellationResult, error) {
	release, err := p.locker.Lock(ctx, orderLockKey(orderID))
	if err != nil {
		return nil, fmt.Errorf("failed to acquire order lock: %w", err)
	}
	defer release()

	existing, err := p.transactions.FindByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up transactions for order %s: %w", orderID, err)
	}

	for i := range existing {
		tx := &existing[i]
		if tx.IsCancelled() {
			continue
		}
		if err := tx.Cancel(fmt.Sprintf("order %s cancelled", orderID)); err != nil {
			return nil, fmt.Errorf("failed to cancel transaction %s: %w", tx.ID, err)
		}
		if err := p.transactions.Update(ctx, tx); err != nil {
			return nil, fmt.Errorf("failed to update transaction %s: %w", tx.ID, err)
		}
		p.logger.Info("transaction cancelled for order",
			zap.String("order_id", orderID.String()),
			zap.String("transaction_id", tx.ID.String()),
		)
		return &CancellationResult{TransactionID: tx.ID, Cancelled: true}, nil
	}

	p.logger.Info("no active transaction for cancelled order, nothing to do",
		zap.String("order_id", orderID.String()),
	)
	return &CancellationResult{}, nil
}

// ProcessCreditPayment records an installment payment against a
// crediario account. Not idempotent: every invocation creates one
// transaction, so callers own at-most-once delivery of payment events.
func (p *EventProcessor) ProcessCreditPayment(ctx context.Context, accountID uuid.UUID, amount valueobject.Money) (*PaymentResult, error) {
	return p.processCreditPayment(ctx, accountID, amount, sourceWebhook)
}

func (p *EventProcessor) processCreditPayment(ctx context.Context, accountID uuid.UUID, amount valueobject.Money, source string) (*PaymentResult, error) {
	release, err := p.locker.Lock(ctx, accountLockKey(accountID))
	if err != nil {
		return nil, fmt.Errorf("failed to acquire credit account lock: %w", err)
	}
	defer release()

	account, err := p.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("credit account %s: %w", accountID, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load credit account %s: %w", accountID, err)
	}

	tx := ledger.NewFinancialTransaction(
		ledger.TransactionTypeIncome,
		ledger.TransactionCategoryInstallment,
		fmt.Sprintf("Crediario payment - account %s", account.AccountNumber),
		amount,
		ledger.TransactionStatusCompleted,
	)
	tx.CorrelateCreditAccount(accountID, source)

	if err := p.transactions.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to create payment transaction for account %s: %w", accountID, err)
	}

	p.logger.Info("credit payment recorded in ledger",
		zap.String("credit_account_id", accountID.String()),
		zap.String("transaction_id", tx.ID.String()),
		zap.String("amount", amount.String()),
		zap.String("source", source),
	)

	return &PaymentResult{TransactionID: tx.ID, Amount: amount}, nil
}

// SyncHistoricalData runs the full backfill pass: creates the missing
// ledger entries for confirmed orders, and a corrective payment entry
// for each active account whose recorded payments fall short of its
// paid amount. A single entity's failure never aborts the pass; errors
// are collected per entity.
func (p *EventProcessor) SyncHistoricalData(ctx context.Context) (*BackfillReport, error) {
	report := &BackfillReport{Errors: []string{}}

	orders, err := p.orders.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load orders for backfill: %w", err)
	}

	for i := range orders {
		order := &orders[i]
		if !order.Status.RequiresTransaction() {
			continue
		}
		existing, err := p.transactions.FindByOrder(ctx, order.ID)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("order %s: %v", order.ID, err))
			continue
		}
		if len(existing) > 0 {
			continue
		}
		if _, err := p.processOrderConfirmation(ctx, order.ID, sourceHistoricalSync); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("order %s: %v", order.ID, err))
			continue
		}
		report.OrdersSynced++
	}

	accounts, err := p.accounts.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load credit accounts for backfill: %w", err)
	}

	for i := range accounts {
		account := &accounts[i]
		if account.Status != ledger.CreditAccountStatusActive || !account.PaidAmount.IsPositive() {
			continue
		}
		payments, err := p.transactions.FindByCreditAccount(ctx, account.ID)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("credit account %s: %v", account.ID, err))
			continue
		}
		recorded := ledger.SumActiveAmounts(payments)
		shortfall := account.PaidAmount.Subtract(recorded)
		if !shortfall.IsPositive() {
			continue
		}
		if _, err := p.processCreditPayment(ctx, account.ID, shortfall, sourceHistoricalSync); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("credit account %s: %v", account.ID, err))
			continue
		}
		report.PaymentsSynced++
	}

	p.logger.Info("historical sync completed",
		zap.Int("orders_synced", report.OrdersSynced),
		zap.Int("payments_synced", report.PaymentsSynced),
		zap.Int("errors", len(report.Errors)),
	)
	return report, nil
}

// TriggerWebhook is the single dispatch point for incoming business
// events, keyed by event type.
func (p *EventProcessor) TriggerWebhook(ctx context.Context, event WebhookEvent) (uuid.UUID, error) {
	switch event.Type {
	case EventTypeOrderConfirmed:
		result, err := p.ProcessOrderConfirmation(ctx, event.OrderID)
		if err != nil {
			return uuid.Nil, err
		}
		return result.TransactionID, nil
	case EventTypeOrderCancelled:
		result, err := p.ProcessOrderCancellation(ctx, event.OrderID)
		if err != nil {
			return uuid.Nil, err
		}
		return result.TransactionID, nil
	case EventTypeCreditPayment:
		result, err := p.ProcessCreditPayment(ctx, event.CreditAccountID, event.Amount)
		if err != nil {
			return uuid.Nil, err
		}
		return result.TransactionID, nil
	default:
		return uuid.Nil, fmt.Errorf("event type %q: %w", event.Type, shared.ErrUnsupportedEventType)
	}
}

func orderLockKey(orderID uuid.UUID) string {
	return "order:" + orderID.String()
}

func accountLockKey(accountID uuid.UUID) string {
	return "credit_account:" + accountID.String()
}
