package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/MarkPereverzov/Memberly/internal/domain"
)

// AttemptRepository implements domain.AttemptRepository using PostgreSQL.
// The table is append-only; rows are never updated or deleted.
type AttemptRepository struct {
	db *gorm.DB
}

// NewAttemptRepository creates a new PostgreSQL attempt repository
func NewAttemptRepository(db *gorm.DB) domain.AttemptRepository {
	return &AttemptRepository{db: db}
}

// Append writes one audit record
func (r *AttemptRepository) Append(ctx context.Context, attempt *domain.InvitationAttempt) error {
	model := &AttemptModel{
		UserID:       attempt.UserID,
		TargetID:     attempt.TargetID,
		TargetName:   attempt.TargetName,
		AccountPhone: attempt.AccountPhone,
		Outcome:      string(attempt.Outcome),
		Detail:       attempt.Detail,
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to append invitation attempt: %w", err)
	}

	return nil
}

// RecentForUser retrieves the user's most recent attempts, newest first
func (r *AttemptRepository) RecentForUser(ctx context.Context, userID int64, limit int) ([]domain.InvitationAttempt, error) {
	var models []AttemptModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list invitation attempts: %w", err)
	}

	attempts := make([]domain.InvitationAttempt, len(models))
	for i, model := range models {
		attempts[i] = *model.ToEntity()
	}
	return attempts, nil
}
