package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarkPereverzov/Memberly/internal/domain"
)

// AccessRepository implements domain.AccessRepository using PostgreSQL
type AccessRepository struct {
	db *gorm.DB
}

// NewAccessRepository creates a new PostgreSQL access repository
func NewAccessRepository(db *gorm.DB) domain.AccessRepository {
	return &AccessRepository{db: db}
}

// GetWhitelist retrieves the whitelist entry for a user, nil when absent
func (r *AccessRepository) GetWhitelist(ctx context.Context, userID int64) (*domain.WhitelistEntry, error) {
	var model WhitelistModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get whitelist entry: %w", err)
	}
	return model.ToEntity(), nil
}

// PutWhitelist upserts a whitelist entry
func (r *AccessRepository) PutWhitelist(ctx context.Context, entry *domain.WhitelistEntry) error {
	model := &WhitelistModel{
		UserID:    entry.UserID,
		Username:  entry.Username,
		AddedBy:   entry.AddedBy,
		ExpiresAt: entry.ExpiresAt,
		IsActive:  entry.IsActive,
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "added_by", "expires_at", "is_active", "updated_at"}),
		}).
		Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to put whitelist entry: %w", result.Error)
	}

	return nil
}

// DeleteWhitelist removes the whitelist entry for a user
func (r *AccessRepository) DeleteWhitelist(ctx context.Context, userID int64) error {
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&WhitelistModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete whitelist entry: %w", result.Error)
	}
	return nil
}

// ListWhitelist retrieves all whitelist entries
func (r *AccessRepository) ListWhitelist(ctx context.Context) ([]domain.WhitelistEntry, error) {
	var models []WhitelistModel
	if err := r.db.WithContext(ctx).Order("user_id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list whitelist: %w", err)
	}

	entries := make([]domain.WhitelistEntry, len(models))
	for i, model := range models {
		entries[i] = *model.ToEntity()
	}
	return entries, nil
}

// GetBlacklist retrieves the blacklist entry for a user, nil when absent
func (r *AccessRepository) GetBlacklist(ctx context.Context, userID int64) (*domain.BlacklistEntry, error) {
	var model BlacklistModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get blacklist entry: %w", err)
	}
	return model.ToEntity(), nil
}

// PutBlacklist upserts a blacklist entry
func (r *AccessRepository) PutBlacklist(ctx context.Context, entry *domain.BlacklistEntry) error {
	model := &BlacklistModel{
		UserID:   entry.UserID,
		Username: entry.Username,
		Reason:   entry.Reason,
		AddedBy:  entry.AddedBy,
		IsActive: entry.IsActive,
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "reason", "added_by", "is_active", "updated_at"}),
		}).
		Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to put blacklist entry: %w", result.Error)
	}

	return nil
}

// DeleteBlacklist removes the blacklist entry for a user
func (r *AccessRepository) DeleteBlacklist(ctx context.Context, userID int64) error {
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&BlacklistModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete blacklist entry: %w", result.Error)
	}
	return nil
}

// ListBlacklist retrieves all blacklist entries
func (r *AccessRepository) ListBlacklist(ctx context.Context) ([]domain.BlacklistEntry, error) {
	var models []BlacklistModel
	if err := r.db.WithContext(ctx).Order("user_id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list blacklist: %w", err)
	}

	entries := make([]domain.BlacklistEntry, len(models))
	for i, model := range models {
		entries[i] = *model.ToEntity()
	}
	return entries, nil
}
