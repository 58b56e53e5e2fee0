package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarkPereverzov/Memberly/internal/domain"
)

// AccountRepository implements domain.AccountRepository using PostgreSQL
type AccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new PostgreSQL account repository
func NewAccountRepository(db *gorm.DB) domain.AccountRepository {
	return &AccountRepository{db: db}
}

// List retrieves all persisted accounts
func (r *AccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	var models []AccountModel
	if err := r.db.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	accounts := make([]domain.Account, len(models))
	for i, model := range models {
		accounts[i] = *model.ToEntity()
	}
	return accounts, nil
}

// Save upserts an account keyed by phone number
func (r *AccountRepository) Save(ctx context.Context, account *domain.Account) error {
	model := &AccountModel{
		Phone:           account.Phone,
		SessionName:     account.SessionName,
		IsActive:        account.IsActive,
		AssignedTargets: formatTargetIDs(account.AssignedTargets),
		LastUsed:        account.LastUsed,
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "phone"}},
			DoUpdates: clause.AssignmentColumns([]string{"session_name", "is_active", "assigned_targets", "last_used", "updated_at"}),
		}).
		Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to save account: %w", result.Error)
	}

	return nil
}

// Deactivate permanently marks an account inactive with the failure reason
func (r *AccountRepository) Deactivate(ctx context.Context, phone string, reason string) error {
	result := r.db.WithContext(ctx).
		Model(&AccountModel{}).
		Where("phone = ?", phone).
		Updates(map[string]interface{}{
			"is_active":       false,
			"deactivated_for": reason,
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate account: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return errors.New("account not found")
	}

	return nil
}
