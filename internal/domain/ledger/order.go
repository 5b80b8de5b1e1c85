package ledger

import (
	"github.com/google/uuid"

	"github.com/varejo/backend/internal/domain/shared"
	"github.com/varejo/backend/internal/domain/shared/valueobject"
)

// OrderStatus represents the status of a sales order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// IsValid checks if the status is a valid OrderStatus
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of OrderStatus
func (s OrderStatus) String() string {
	return string(s)
}

// RequiresTransaction returns true if an order in this status must have
// a correlated financial transaction in the ledger.
func (s OrderStatus) RequiresTransaction() bool {
	return s == OrderStatusConfirmed || s == OrderStatusCompleted
}

// PaymentMethod represents how an order is paid
type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "CASH"
	PaymentMethodCard   PaymentMethod = "CARD"
	PaymentMethodPix    PaymentMethod = "PIX"
	PaymentMethodCredit PaymentMethod = "CREDIT" // crediario installment credit
)

// IsValid checks if the payment method is valid
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodPix, PaymentMethodCredit:
		return true
	}
	return false
}

// IsInstallment returns true for crediario orders, which settle over
// time rather than at confirmation.
func (m PaymentMethod) IsInstallment() bool {
	return m == PaymentMethodCredit
}

// Order is a sales order. It is owned and mutated by the CRUD layer;
// the reconciliation engine only reads it.
type Order struct {
	shared.BaseEntity
	OrderNumber   string
	CustomerID    uuid.UUID
	Status        OrderStatus
	PaymentMethod PaymentMethod
	Total         valueobject.Money
}
