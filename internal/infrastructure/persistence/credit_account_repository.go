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

// GormCreditAccountRepository implements CreditAccountRepository using GORM
type GormCreditAccountRepository struct {
	db *gorm.DB
}

// NewGormCreditAccountRepository creates a new GormCreditAccountRepository
func NewGormCreditAccountRepository(db *gorm.DB) *GormCreditAccountRepository {
	return &GormCreditAccountRepository{db: db}
}

// FindByID finds a credit account by its ID
func (r *GormCreditAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.CreditAccount, error) {
	var model models.CreditAccountModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll returns all credit accounts ordered by creation time
func (r *GormCreditAccountRepository) FindAll(ctx context.Context) ([]ledger.CreditAccount, error) {
	var accountModels []models.CreditAccountModel
	if err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&accountModels).Error; err != nil {
		return nil, err
	}
	accounts := make([]ledger.CreditAccount, len(accountModels))
	for i, model := range accountModels {
		accounts[i] = *model.ToDomain()
	}
	return accounts, nil
}

// Update persists changes to an existing credit account
func (r *GormCreditAccountRepository) Update(ctx context.Context, account *ledger.CreditAccount) error {
	var model models.CreditAccountModel
	model.FromDomain(account)
	result := r.db.WithContext(ctx).Save(&model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}
