package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/varejo/backend/internal/domain/ledger"
	"github.com/varejo/backend/internal/domain/shared"
	"github.com/varejo/backend/internal/infrastructure/persistence/models"
)

// GormTransactionRepository implements TransactionRepository using GORM.
// Correlation lookups go through the JSONB metadata column.
type GormTransactionRepository struct {
	db *gorm.DB
}

// NewGormTransactionRepository creates a new GormTransactionRepository
func NewGormTransactionRepository(db *gorm.DB) *GormTransactionRepository {
	return &GormTransactionRepository{db: db}
}

// FindByID finds a financial transaction by its ID
func (r *GormTransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.FinancialTransaction, error) {
	var model models.FinancialTransactionModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll returns all financial transactions ordered by creation time
func (r *GormTransactionRepository) FindAll(ctx context.Context) ([]ledger.FinancialTransaction, error) {
	var txModels []models.FinancialTransactionModel
	if err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&txModels).Error; err != nil {
		return nil, err
	}
	return toDomainTransactions(txModels), nil
}

// FindByOrder returns all transactions correlated to an order, including
// cancelled ones
func (r *GormTransactionRepository) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]ledger.FinancialTransaction, error) {
	var txModels []models.FinancialTransactionModel
	if err := r.db.WithContext(ctx).
		Where("metadata->>'order_id' = ?", orderID.String()).
		Order("created_at ASC").
		Find(&txModels).Error; err != nil {
		return nil, err
	}
	return toDomainTransactions(txModels), nil
}

// FindByCreditAccount returns all transactions correlated to a credit
// account, including cancelled ones
func (r *GormTransactionRepository) FindByCreditAccount(ctx context.Context, accountID uuid.UUID) ([]ledger.FinancialTransaction, error) {
	var txModels []models.FinancialTransactionModel
	if err := r.db.WithContext(ctx).
		Where("metadata->>'credit_account_id' = ?", accountID.String()).
		Order("created_at ASC").
		Find(&txModels).Error; err != nil {
		return nil, err
	}
	return toDomainTransactions(txModels), nil
}

// Create persists a new financial transaction
func (r *GormTransactionRepository) Create(ctx context.Context, tx *ledger.FinancialTransaction) error {
	var model models.FinancialTransactionModel
	model.FromDomain(tx)
	return r.db.WithContext(ctx).Create(&model).Error
}

// Update persists changes to an existing financial transaction
func (r *GormTransactionRepository) Update(ctx context.Context, tx *ledger.FinancialTransaction) error {
	var model models.FinancialTransactionModel
	model.FromDomain(tx)
	result := r.db.WithContext(ctx).Save(&model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func toDomainTransactions(txModels []models.FinancialTransactionModel) []ledger.FinancialTransaction {
	transactions := make([]ledger.FinancialTransaction, len(txModels))
	for i, model := range txModels {
		transactions[i] = *model.ToDomain()
	}
	return transactions
}
