package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/varejo/backend/internal/domain/ledger"
)

// Snapshot is a point-in-time view of the full dataset. The whole
// dataset is loaded at once; incremental scanning is a known scale
// limitation.
type Snapshot struct {
	Orders         []ledger.Order
	Transactions   []ledger.FinancialTransaction
	CreditAccounts []ledger.CreditAccount
}

// DriftScanner detects divergence between the invariant-derived
// expected state of the dataset and its stored state.
type DriftScanner struct {
	orders       ledger.OrderRepository
	transactions ledger.TransactionRepository
	accounts     ledger.CreditAccountRepository
	logger       *zap.Logger
}

// NewDriftScanner creates a new drift scanner
func NewDriftScanner(
	orders ledger.OrderRepository,
	transactions ledger.TransactionRepository,
	accounts ledger.CreditAccountRepository,
	logger *zap.Logger,
) *DriftScanner {
	return &DriftScanner{
		orders:       orders,
		transactions: transactions,
		accounts:     accounts,
		logger:       logger,
	}
}

// LoadSnapshot reads the full dataset from storage
func (s *DriftScanner) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	orders, err := s.orders.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}
	transactions, err := s.transactions.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	accounts, err := s.accounts.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load credit accounts: %w", err)
	}
	return &Snapshot{
		Orders:         orders,
		Transactions:   transactions,
		CreditAccounts: accounts,
	}, nil
}

// DetectInconsistencies loads a fresh snapshot and scans it
func (s *DriftScanner) DetectInconsistencies(ctx context.Context) ([]ledger.Inconsistency, error) {
	snapshot, err := s.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	inconsistencies := Detect(snapshot)
	s.logger.Info("drift scan completed",
		zap.Int("orders", len(snapshot.Orders)),
		zap.Int("transactions", len(snapshot.Transactions)),
		zap.Int("credit_accounts", len(snapshot.CreditAccounts)),
		zap.Int("inconsistencies", len(inconsistencies)),
	)
	return inconsistencies, nil
}

// Detect is a pure function over a snapshot. All rules are evaluated
// independently; an identical snapshot always yields an identical,
// order-stable result list.
func Detect(snapshot *Snapshot) []ledger.Inconsistency {
	result := []ledger.Inconsistency{}

	// Group transactions by order correlation key, preserving
	// first-encounter order so the output is stable.
	byOrder := make(map[uuid.UUID][]*ledger.FinancialTransaction)
	orderKeys := []uuid.UUID{}
	for i := range snapshot.Transactions {
		tx := &snapshot.Transactions[i]
		orderID, ok := tx.OrderID()
		if !ok {
			continue
		}
		if _, seen := byOrder[orderID]; !seen {
			orderKeys = append(orderKeys, orderID)
		}
		byOrder[orderID] = append(byOrder[orderID], tx)
	}

	// Rule: confirmed or completed orders must have a correlated
	// transaction, with a matching amount.
	for i := range snapshot.Orders {
		order := &snapshot.Orders[i]
		if !order.Status.RequiresTransaction() {
			continue
		}
		correlated := byOrder[order.ID]
		if len(correlated) == 0 {
			result = append(result, ledger.Inconsistency{
				Type:          ledger.InconsistencyMissingTransaction,
				EntityType:    ledger.EntityTypeOrder,
				EntityID:      order.ID,
				Description:   fmt.Sprintf("%s order %s has no correlated transaction", order.Status, order.OrderNumber),
				ExpectedValue: "1 correlated transaction",
				ActualValue:   "0",
				Severity:      ledger.SeverityHigh,
			})
			continue
		}
		for _, tx := range correlated {
			if tx.IsCancelled() {
				continue
			}
			if !order.Total.EqualsWithinTolerance(tx.Amount) {
				result = append(result, ledger.Inconsistency{
					Type:          ledger.InconsistencyAmountMismatch,
					EntityType:    ledger.EntityTypeOrder,
					EntityID:      order.ID,
					Description:   fmt.Sprintf("transaction %s amount diverges from order %s total", tx.ID, order.OrderNumber),
					ExpectedValue: order.Total.String(),
					ActualValue:   tx.Amount.String(),
					Severity:      ledger.SeverityHigh,
				})
			}
			break
		}
	}

	// Rule: a correlation key maps to at most one transaction
	for _, orderID := range orderKeys {
		correlated := byOrder[orderID]
		if len(correlated) <= 1 {
			continue
		}
		ids := make([]string, len(correlated))
		for i, tx := range correlated {
			ids[i] = tx.ID.String()
		}
		result = append(result, ledger.Inconsistency{
			Type:          ledger.InconsistencyDuplicateTransaction,
			EntityType:    ledger.EntityTypeOrder,
			EntityID:      orderID,
			Description:   fmt.Sprintf("order correlation key maps to %d transactions: %v", len(correlated), ids),
			ExpectedValue: "1",
			ActualValue:   fmt.Sprintf("%d", len(correlated)),
			Severity:      ledger.SeverityMedium,
		})
	}

	// Rules: credit account running totals and derived status
	for i := range snapshot.CreditAccounts {
		account := &snapshot.CreditAccounts[i]
		if account.HasRemainingDrift() {
			result = append(result, ledger.Inconsistency{
				Type:          ledger.InconsistencyAmountMismatch,
				EntityType:    ledger.EntityTypeCreditAccount,
				EntityID:      account.ID,
				Description:   fmt.Sprintf("credit account %s remaining amount diverges from total-paid", account.AccountNumber),
				ExpectedValue: account.ExpectedRemainingAmount().String(),
				ActualValue:   account.RemainingAmount.String(),
				Severity:      ledger.SeverityMedium,
			})
		}
		if account.HasStatusDrift() {
			result = append(result, ledger.Inconsistency{
				Type:          ledger.InconsistencyStatusMismatch,
				EntityType:    ledger.EntityTypeCreditAccount,
				EntityID:      account.ID,
				Description:   fmt.Sprintf("credit account %s status does not match its balance", account.AccountNumber),
				ExpectedValue: string(account.ExpectedStatus()),
				ActualValue:   string(account.Status),
				Severity:      ledger.SeverityLow,
			})
		}
	}

	return result
}
