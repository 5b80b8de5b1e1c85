package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/varejo/backend/internal/domain/shared"
	"github.com/varejo/backend/internal/domain/shared/valueobject"
)

// CreditAccountStatus represents the status of a crediario account
type CreditAccountStatus string

const (
	CreditAccountStatusActive    CreditAccountStatus = "ACTIVE"
	CreditAccountStatusPaid      CreditAccountStatus = "PAID"
	CreditAccountStatusClosed    CreditAccountStatus = "CLOSED"
	CreditAccountStatusSuspended CreditAccountStatus = "SUSPENDED"
)

// IsValid checks if the status is a valid CreditAccountStatus
func (s CreditAccountStatus) IsValid() bool {
	switch s {
	case CreditAccountStatusActive, CreditAccountStatusPaid,
		CreditAccountStatusClosed, CreditAccountStatusSuspended:
		return true
	}
	return false
}

// String returns the string representation of CreditAccountStatus
func (s CreditAccountStatus) String() string {
	return string(s)
}

// CreditAccount is a crediario installment-credit account with running
// totals. Target invariants (drift from them is what the scanner
// detects): RemainingAmount == max(0, TotalAmount - PaidAmount) within
// tolerance, and status PAID iff nothing remains, unless CLOSED.
type CreditAccount struct {
	shared.BaseEntity
	CustomerID      uuid.UUID
	AccountNumber   string
	TotalAmount     valueobject.Money
	PaidAmount      valueobject.Money
	RemainingAmount valueobject.Money
	Status          CreditAccountStatus
	NextPaymentDate *time.Time
}

// ExpectedRemainingAmount derives the remaining amount from the running
// totals: max(0, total - paid).
func (a *CreditAccount) ExpectedRemainingAmount() valueobject.Money {
	expected := a.TotalAmount.Subtract(a.PaidAmount)
	if expected.IsNegative() {
		return valueobject.ZeroBRL()
	}
	return expected
}

// HasRemainingDrift returns true if the stored remaining amount differs
// from the derived one by more than the business tolerance.
func (a *CreditAccount) HasRemainingDrift() bool {
	return !a.RemainingAmount.EqualsWithinTolerance(a.ExpectedRemainingAmount())
}

// ExpectedStatus derives the status from the remaining amount: PAID when
// nothing remains, ACTIVE otherwise. CLOSED accounts keep their status.
func (a *CreditAccount) ExpectedStatus() CreditAccountStatus {
	if a.Status == CreditAccountStatusClosed {
		return CreditAccountStatusClosed
	}
	if a.RemainingAmount.IsSettled() {
		return CreditAccountStatusPaid
	}
	return CreditAccountStatusActive
}

// HasStatusDrift returns true if the stored status differs from the
// derived one. CLOSED is an explicit operator decision and never drifts.
func (a *CreditAccount) HasStatusDrift() bool {
	if a.Status == CreditAccountStatusClosed {
		return false
	}
	return a.Status != a.ExpectedStatus()
}
