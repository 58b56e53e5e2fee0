package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarkPereverzov/Memberly/internal/domain"
)

// TargetRepository implements domain.TargetRepository using PostgreSQL
type TargetRepository struct {
	db *gorm.DB
}

// NewTargetRepository creates a new PostgreSQL target repository
func NewTargetRepository(db *gorm.DB) domain.TargetRepository {
	return &TargetRepository{db: db}
}

// List retrieves all persisted targets
func (r *TargetRepository) List(ctx context.Context) ([]domain.Target, error) {
	var models []TargetModel
	if err := r.db.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}

	targets := make([]domain.Target, len(models))
	for i, model := range models {
		targets[i] = *model.ToEntity()
	}
	return targets, nil
}

// Save upserts a target
func (r *TargetRepository) Save(ctx context.Context, target *domain.Target) error {
	model := &TargetModel{
		ID:          target.ID,
		Name:        target.Name,
		InviteRef:   target.InviteRef,
		IsActive:    target.IsActive,
		MemberCount: target.MemberCount,
		RefreshedAt: target.RefreshedAt,
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "invite_ref", "is_active", "member_count", "refreshed_at", "updated_at"}),
		}).
		Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to save target: %w", result.Error)
	}

	return nil
}

// Delete removes a target
func (r *TargetRepository) Delete(ctx context.Context, targetID int64) error {
	result := r.db.WithContext(ctx).
		Where("id = ?", targetID).
		Delete(&TargetModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete target: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return domain.ErrTargetNotFound
	}

	return nil
}

// UpdateMemberCount persists a fresh member count with its refresh timestamp
func (r *TargetRepository) UpdateMemberCount(ctx context.Context, targetID int64, count int, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&TargetModel{}).
		Where("id = ?", targetID).
		Updates(map[string]interface{}{
			"member_count": count,
			"refreshed_at": at,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update member count: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return domain.ErrTargetNotFound
	}

	return nil
}
