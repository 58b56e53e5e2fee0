package access

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/MarkPereverzov/Memberly/config"
	"github.com/MarkPereverzov/Memberly/internal/domain"
)

// Service is the whitelist/blacklist gate in front of the invite flow.
// Blacklist wins over whitelist; admins bypass both.
type Service struct {
	repo     domain.AccessRepository
	adminIDs map[int64]struct{}
	logger   zerolog.Logger

	now func() time.Time
}

// NewService creates the access control service
func NewService(cfg *config.BotConfig, repo domain.AccessRepository, logger zerolog.Logger) *Service {
	admins := make(map[int64]struct{}, len(cfg.AdminUserIDs))
	for _, id := range cfg.AdminUserIDs {
		admins[id] = struct{}{}
	}
	return &Service{
		repo:     repo,
		adminIDs: admins,
		logger:   logger.With().Str("component", "access").Logger(),
		now:      time.Now,
	}
}

// IsAdmin reports whether the user is a configured administrator
func (s *Service) IsAdmin(userID int64) bool {
	_, ok := s.adminIDs[userID]
	return ok
}

// CanAccess reports whether the user may use the invite flow. Admins always
// may; blacklisted users never may; everyone else needs a live whitelist
// entry.
func (s *Service) CanAccess(ctx context.Context, userID int64) (bool, string) {
	if s.IsAdmin(userID) {
		return true, ""
	}

	black, err := s.repo.GetBlacklist(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("blacklist lookup failed")
		return false, "access check unavailable, try again later"
	}
	if black != nil && black.IsActive {
		return false, "you are not allowed to use this service"
	}

	white, err := s.repo.GetWhitelist(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("whitelist lookup failed")
		return false, "access check unavailable, try again later"
	}
	if white == nil || !white.IsActive {
		return false, "you are not whitelisted, contact an administrator"
	}
	if white.Expired(s.now()) {
		return false, "your access has expired, contact an administrator"
	}

	return true, ""
}

// AddToWhitelist grants the user access for the given number of days; zero
// days means no expiry. Re-adding extends from now. The user is removed from
// the blacklist first so the two lists stay mutually exclusive.
func (s *Service) AddToWhitelist(ctx context.Context, userID int64, username string, days int, addedBy int64) error {
	if err := s.repo.DeleteBlacklist(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear blacklist entry: %w", err)
	}

	var expires time.Time
	if days > 0 {
		expires = s.now().AddDate(0, 0, days)
	}

	entry := &domain.WhitelistEntry{
		UserID:    userID,
		Username:  username,
		AddedBy:   addedBy,
		ExpiresAt: expires,
		CreatedAt: s.now(),
		IsActive:  true,
	}
	if err := s.repo.PutWhitelist(ctx, entry); err != nil {
		return fmt.Errorf("failed to store whitelist entry: %w", err)
	}

	s.logger.Info().
		Int64("user_id", userID).
		Int64("added_by", addedBy).
		Int("days", days).
		Msg("user whitelisted")
	return nil
}

// RemoveFromWhitelist revokes the user's whitelist entry
func (s *Service) RemoveFromWhitelist(ctx context.Context, userID int64) error {
	if err := s.repo.DeleteWhitelist(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete whitelist entry: %w", err)
	}
	s.logger.Info().Int64("user_id", userID).Msg("user removed from whitelist")
	return nil
}

// AddToBlacklist bars the user permanently and removes any whitelist entry,
// keeping the two lists mutually exclusive.
func (s *Service) AddToBlacklist(ctx context.Context, userID int64, username, reason string, addedBy int64) error {
	if err := s.repo.DeleteWhitelist(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear whitelist entry: %w", err)
	}

	entry := &domain.BlacklistEntry{
		UserID:    userID,
		Username:  username,
		Reason:    reason,
		AddedBy:   addedBy,
		CreatedAt: s.now(),
		IsActive:  true,
	}
	if err := s.repo.PutBlacklist(ctx, entry); err != nil {
		return fmt.Errorf("failed to store blacklist entry: %w", err)
	}

	s.logger.Info().
		Int64("user_id", userID).
		Int64("added_by", addedBy).
		Str("reason", reason).
		Msg("user blacklisted")
	return nil
}

// RemoveFromBlacklist clears the user's blacklist entry
func (s *Service) RemoveFromBlacklist(ctx context.Context, userID int64) error {
	if err := s.repo.DeleteBlacklist(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete blacklist entry: %w", err)
	}
	s.logger.Info().Int64("user_id", userID).Msg("user removed from blacklist")
	return nil
}

// Whitelisted lists the active whitelist entries
func (s *Service) Whitelisted(ctx context.Context) ([]domain.WhitelistEntry, error) {
	return s.repo.ListWhitelist(ctx)
}

// Blacklisted lists the active blacklist entries
func (s *Service) Blacklisted(ctx context.Context) ([]domain.BlacklistEntry, error) {
	return s.repo.ListBlacklist(ctx)
}

// Ensure Service implements domain.AccessControl interface
var _ domain.AccessControl = (*Service)(nil)
