package ledger

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/varejo/backend/internal/domain/shared"
	"github.com/varejo/backend/internal/domain/shared/valueobject"
)

// TransactionType represents the direction of a financial transaction
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "INCOME"
	TransactionTypeExpense TransactionType = "EXPENSE"
)

// IsValid checks if the transaction type is valid
func (t TransactionType) IsValid() bool {
	return t == TransactionTypeIncome || t == TransactionTypeExpense
}

// TransactionStatus represents the status of a financial transaction
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusCancelled TransactionStatus = "CANCELLED"
)

// IsValid checks if the status is a valid TransactionStatus
func (s TransactionStatus) IsValid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusCompleted, TransactionStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of TransactionStatus
func (s TransactionStatus) String() string {
	return string(s)
}

// IsTerminal returns true if no further transitions are allowed
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCancelled
}

// CanTransitionTo validates the transaction status state machine:
// PENDING -> COMPLETED (settlement, owned by the payment layer) and
// {PENDING, COMPLETED} -> CANCELLED. CANCELLED is terminal.
func (s TransactionStatus) CanTransitionTo(target TransactionStatus) bool {
	switch s {
	case TransactionStatusPending:
		return target == TransactionStatusCompleted || target == TransactionStatusCancelled
	case TransactionStatusCompleted:
		return target == TransactionStatusCancelled
	}
	return false
}

// TransactionCategory classifies ledger entries
type TransactionCategory string

const (
	TransactionCategorySale        TransactionCategory = "SALE"
	TransactionCategoryInstallment TransactionCategory = "INSTALLMENT"
)

// Metadata keys used by the reconciliation engine. The order and
// credit-account ids are correlation keys: lookup values only, never
// enforced as foreign keys by the store.
const (
	MetadataKeyOrderID            = "order_id"
	MetadataKeyCreditAccountID    = "credit_account_id"
	MetadataKeyPaymentMethod      = "payment_method"
	MetadataKeySource             = "source"
	MetadataKeySyncedAt           = "synced_at"
	MetadataKeyCancelledAt        = "cancelled_at"
	MetadataKeyCancellationReason = "cancellation_reason"
)

// TransactionMetadata is a free-form bag stored as JSONB
type TransactionMetadata map[string]string

// Value implements driver.Valuer for JSONB storage
func (m TransactionMetadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONB retrieval
func (m *TransactionMetadata) Scan(value any) error {
	if value == nil {
		*m = TransactionMetadata{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan TransactionMetadata: unsupported type")
	}

	if len(bytes) == 0 {
		*m = TransactionMetadata{}
		return nil
	}

	return json.Unmarshal(bytes, m)
}

// FinancialTransaction is an append-only ledger entry. Entries are
// created by the event processor and mutated only to change status or
// annotate metadata, never deleted.
type FinancialTransaction struct {
	shared.BaseEntity
	Type        TransactionType
	Category    TransactionCategory
	Description string
	Amount      valueobject.Money
	Status      TransactionStatus
	Date        time.Time
	Metadata    TransactionMetadata
}

// NewFinancialTransaction creates a ledger entry with generated id and
// an empty metadata bag.
func NewFinancialTransaction(
	txType TransactionType,
	category TransactionCategory,
	description string,
	amount valueobject.Money,
	status TransactionStatus,
) *FinancialTransaction {
	return &FinancialTransaction{
		BaseEntity:  shared.NewBaseEntity(),
		Type:        txType,
		Category:    category,
		Description: description,
		Amount:      amount,
		Status:      status,
		Date:        time.Now(),
		Metadata:    TransactionMetadata{},
	}
}

// CorrelateOrder stamps the order correlation key plus sync context
func (t *FinancialTransaction) CorrelateOrder(orderID uuid.UUID, method PaymentMethod, source string) {
	t.Metadata[MetadataKeyOrderID] = orderID.String()
	t.Metadata[MetadataKeyPaymentMethod] = string(method)
	t.Metadata[MetadataKeySource] = source
	t.Metadata[MetadataKeySyncedAt] = time.Now().UTC().Format(time.RFC3339)
}

// CorrelateCreditAccount stamps the credit-account correlation key plus
// sync context
func (t *FinancialTransaction) CorrelateCreditAccount(accountID uuid.UUID, source string) {
	t.Metadata[MetadataKeyCreditAccountID] = accountID.String()
	t.Metadata[MetadataKeySource] = source
	t.Metadata[MetadataKeySyncedAt] = time.Now().UTC().Format(time.RFC3339)
}

// OrderID returns the order correlation key, if present
func (t *FinancialTransaction) OrderID() (uuid.UUID, bool) {
	raw, ok := t.Metadata[MetadataKeyOrderID]
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// CreditAccountID returns the credit-account correlation key, if present
func (t *FinancialTransaction) CreditAccountID() (uuid.UUID, bool) {
	raw, ok := t.Metadata[MetadataKeyCreditAccountID]
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// IsCancelled returns true if the transaction has been cancelled
func (t *FinancialTransaction) IsCancelled() bool {
	return t.Status == TransactionStatusCancelled
}

// Cancel soft-cancels the transaction, preserving the entry and its
// metadata as an audit trail.
func (t *FinancialTransaction) Cancel(reason string) error {
	if !t.Status.CanTransitionTo(TransactionStatusCancelled) {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot cancel transaction in %s status", t.Status))
	}
	t.Status = TransactionStatusCancelled
	if t.Metadata == nil {
		t.Metadata = TransactionMetadata{}
	}
	t.Metadata[MetadataKeyCancelledAt] = time.Now().UTC().Format(time.RFC3339)
	t.Metadata[MetadataKeyCancellationReason] = reason
	t.UpdatedAt = time.Now()
	return nil
}

// Complete settles a pending transaction
func (t *FinancialTransaction) Complete() error {
	if !t.Status.CanTransitionTo(TransactionStatusCompleted) {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot complete transaction in %s status", t.Status))
	}
	t.Status = TransactionStatusCompleted
	t.UpdatedAt = time.Now()
	return nil
}

// SumActiveAmounts totals the amounts of all non-cancelled transactions
func SumActiveAmounts(transactions []FinancialTransaction) valueobject.Money {
	total := valueobject.ZeroBRL()
	for i := range transactions {
		if !transactions[i].IsCancelled() {
			total = total.Add(transactions[i].Amount)
		}
	}
	return total
}
