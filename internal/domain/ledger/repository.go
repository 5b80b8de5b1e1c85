package ledger

import (
	"context"

	"github.com/google/uuid"
)

// OrderRepository is the read side of the order store. Orders are owned
// by the CRUD layer; the reconciliation engine never writes them.
type OrderRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)
	FindAll(ctx context.Context) ([]Order, error)
}

// TransactionRepository provides CRUD over the financial ledger.
// Correlation lookups query the metadata bag; they are grouping
// conveniences, not foreign keys.
type TransactionRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*FinancialTransaction, error)
	FindAll(ctx context.Context) ([]FinancialTransaction, error)
	FindByOrder(ctx context.Context, orderID uuid.UUID) ([]FinancialTransaction, error)
	FindByCreditAccount(ctx context.Context, accountID uuid.UUID) ([]FinancialTransaction, error)
	Create(ctx context.Context, tx *FinancialTransaction) error
	Update(ctx context.Context, tx *FinancialTransaction) error
}

// CreditAccountRepository provides CRUD over crediario accounts
type CreditAccountRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*CreditAccount, error)
	FindAll(ctx context.Context) ([]CreditAccount, error)
	Update(ctx context.Context, account *CreditAccount) error
}
