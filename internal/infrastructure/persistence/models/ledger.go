package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/varejo/backend/internal/domain/ledger"
	"github.com/varejo/backend/internal/domain/shared/valueobject"
)

// OrderModel maps sales orders to the orders table
type OrderModel struct {
	BaseModel
	OrderNumber   string            `gorm:"type:varchar(50);not null;uniqueIndex"`
	CustomerID    uuid.UUID         `gorm:"type:uuid;not null;index"`
	Status        string            `gorm:"type:varchar(20);not null;index"`
	PaymentMethod string            `gorm:"type:varchar(20);not null"`
	Total         valueobject.Money `gorm:"type:decimal(18,4);not null"`
}

// TableName returns the table name for OrderModel
func (OrderModel) TableName() string {
	return "orders"
}

// ToDomain converts OrderModel to a domain Order
func (m *OrderModel) ToDomain() *ledger.Order {
	return &ledger.Order{
		BaseEntity:    m.BaseModel.ToDomain(),
		OrderNumber:   m.OrderNumber,
		CustomerID:    m.CustomerID,
		Status:        ledger.OrderStatus(m.Status),
		PaymentMethod: ledger.PaymentMethod(m.PaymentMethod),
		Total:         m.Total,
	}
}

// FromDomain populates OrderModel from a domain Order
func (m *OrderModel) FromDomain(o *ledger.Order) {
	m.FromDomainBaseEntity(o.BaseEntity)
	m.OrderNumber = o.OrderNumber
	m.CustomerID = o.CustomerID
	m.Status = string(o.Status)
	m.PaymentMethod = string(o.PaymentMethod)
	m.Total = o.Total
}

// FinancialTransactionModel maps ledger entries to the
// financial_transactions table. Correlation keys live inside the JSONB
// metadata column, deliberately without foreign key constraints.
type FinancialTransactionModel struct {
	BaseModel
	Type        string                     `gorm:"type:varchar(10);not null"`
	Category    string                     `gorm:"type:varchar(20);not null;index"`
	Description string                     `gorm:"type:varchar(255);not null"`
	Amount      valueobject.Money          `gorm:"type:decimal(18,4);not null"`
	Status      string                     `gorm:"type:varchar(20);not null;index"`
	Date        time.Time                  `gorm:"not null;index"`
	Metadata    ledger.TransactionMetadata `gorm:"type:jsonb;not null;default:'{}'"`
}

// TableName returns the table name for FinancialTransactionModel
func (FinancialTransactionModel) TableName() string {
	return "financial_transactions"
}

// ToDomain converts FinancialTransactionModel to a domain FinancialTransaction
func (m *FinancialTransactionModel) ToDomain() *ledger.FinancialTransaction {
	return &ledger.FinancialTransaction{
		BaseEntity:  m.BaseModel.ToDomain(),
		Type:        ledger.TransactionType(m.Type),
		Category:    ledger.TransactionCategory(m.Category),
		Description: m.Description,
		Amount:      m.Amount,
		Status:      ledger.TransactionStatus(m.Status),
		Date:        m.Date,
		Metadata:    m.Metadata,
	}
}

// FromDomain populates FinancialTransactionModel from a domain FinancialTransaction
func (m *FinancialTransactionModel) FromDomain(t *ledger.FinancialTransaction) {
	m.FromDomainBaseEntity(t.BaseEntity)
	m.Type = string(t.Type)
	m.Category = string(t.Category)
	m.Description = t.Description
	m.Amount = t.Amount
	m.Status = string(t.Status)
	m.Date = t.Date
	m.Metadata = t.Metadata
}

// CreditAccountModel maps crediario accounts to the credit_accounts table
type CreditAccountModel struct {
	BaseModel
	CustomerID      uuid.UUID         `gorm:"type:uuid;not null;index"`
	AccountNumber   string            `gorm:"type:varchar(50);not null;uniqueIndex"`
	TotalAmount     valueobject.Money `gorm:"type:decimal(18,4);not null"`
	PaidAmount      valueobject.Money `gorm:"type:decimal(18,4);not null"`
	RemainingAmount valueobject.Money `gorm:"type:decimal(18,4);not null"`
	Status          string            `gorm:"type:varchar(20);not null;index"`
	NextPaymentDate *time.Time
}

// TableName returns the table name for CreditAccountModel
func (CreditAccountModel) TableName() string {
	return "credit_accounts"
}

// ToDomain converts CreditAccountModel to a domain CreditAccount
func (m *CreditAccountModel) ToDomain() *ledger.CreditAccount {
	return &ledger.CreditAccount{
		BaseEntity:      m.BaseModel.ToDomain(),
		CustomerID:      m.CustomerID,
		AccountNumber:   m.AccountNumber,
		TotalAmount:     m.TotalAmount,
		PaidAmount:      m.PaidAmount,
		RemainingAmount: m.RemainingAmount,
		Status:          ledger.CreditAccountStatus(m.Status),
		NextPaymentDate: m.NextPaymentDate,
	}
}

// FromDomain populates CreditAccountModel from a domain CreditAccount
func (m *CreditAccountModel) FromDomain(a *ledger.CreditAccount) {
	m.FromDomainBaseEntity(a.BaseEntity)
	m.CustomerID = a.CustomerID
	m.AccountNumber = a.AccountNumber
	m.TotalAmount = a.TotalAmount
	m.PaidAmount = a.PaidAmount
	m.RemainingAmount = a.RemainingAmount
	m.Status = string(a.Status)
	m.NextPaymentDate = a.NextPaymentDate
}
