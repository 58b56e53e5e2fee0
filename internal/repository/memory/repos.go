// Package memory provides in-memory repository implementations. They back the
// package tests and ad hoc runs without a database.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/MarkPereverzov/Memberly/internal/domain"
)

// AccountRepository is an in-memory domain.AccountRepository
type AccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
}

// NewAccountRepository creates an empty in-memory account repository
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{accounts: make(map[string]domain.Account)}
}

// List returns all accounts ordered by phone
func (r *AccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phone < out[j].Phone })
	return out, nil
}

// Save upserts an account keyed by phone
func (r *AccountRepository) Save(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[account.Phone] = *account
	return nil
}

// Deactivate marks an account inactive
func (r *AccountRepository) Deactivate(ctx context.Context, phone string, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[phone]
	if !ok {
		return errors.New("account not found")
	}
	a.IsActive = false
	r.accounts[phone] = a
	return nil
}

// TargetRepository is an in-memory domain.TargetRepository
type TargetRepository struct {
	mu      sync.RWMutex
	targets map[int64]domain.Target
}

// NewTargetRepository creates an empty in-memory target repository
func NewTargetRepository() *TargetRepository {
	return &TargetRepository{targets: make(map[int64]domain.Target)}
}

// List returns all targets ordered by id
func (r *TargetRepository) List(ctx context.Context) ([]domain.Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Target, 0, len(r.targets))
	for _, t := range r.targets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Save upserts a target
func (r *TargetRepository) Save(ctx context.Context, target *domain.Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[target.ID] = *target
	return nil
}

// Delete removes a target
func (r *TargetRepository) Delete(ctx context.Context, targetID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.targets[targetID]; !ok {
		return domain.ErrTargetNotFound
	}
	delete(r.targets, targetID)
	return nil
}

// UpdateMemberCount stores a fresh member count
func (r *TargetRepository) UpdateMemberCount(ctx context.Context, targetID int64, count int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.targets[targetID]
	if !ok {
		return domain.ErrTargetNotFound
	}
	t.MemberCount = count
	t.RefreshedAt = at
	r.targets[targetID] = t
	return nil
}

// AccessRepository is an in-memory domain.AccessRepository
type AccessRepository struct {
	mu        sync.RWMutex
	whitelist map[int64]domain.WhitelistEntry
	blacklist map[int64]domain.BlacklistEntry
}

// NewAccessRepository creates an empty in-memory access repository
func NewAccessRepository() *AccessRepository {
	return &AccessRepository{
		whitelist: make(map[int64]domain.WhitelistEntry),
		blacklist: make(map[int64]domain.BlacklistEntry),
	}
}

// GetWhitelist returns the entry for a user, nil when absent
func (r *AccessRepository) GetWhitelist(ctx context.Context, userID int64) (*domain.WhitelistEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.whitelist[userID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// PutWhitelist upserts an entry
func (r *AccessRepository) PutWhitelist(ctx context.Context, entry *domain.WhitelistEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.whitelist[entry.UserID] = *entry
	return nil
}

// DeleteWhitelist removes an entry
func (r *AccessRepository) DeleteWhitelist(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.whitelist, userID)
	return nil
}

// ListWhitelist returns all entries
func (r *AccessRepository) ListWhitelist(ctx context.Context) ([]domain.WhitelistEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.WhitelistEntry, 0, len(r.whitelist))
	for _, e := range r.whitelist {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// GetBlacklist returns the entry for a user, nil when absent
func (r *AccessRepository) GetBlacklist(ctx context.Context, userID int64) (*domain.BlacklistEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.blacklist[userID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// PutBlacklist upserts an entry
func (r *AccessRepository) PutBlacklist(ctx context.Context, entry *domain.BlacklistEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blacklist[entry.UserID] = *entry
	return nil
}

// DeleteBlacklist removes an entry
func (r *AccessRepository) DeleteBlacklist(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.blacklist, userID)
	return nil
}

// ListBlacklist returns all entries
func (r *AccessRepository) ListBlacklist(ctx context.Context) ([]domain.BlacklistEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.BlacklistEntry, 0, len(r.blacklist))
	for _, e := range r.blacklist {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// AttemptRepository is an in-memory domain.AttemptRepository
type AttemptRepository struct {
	mu       sync.RWMutex
	attempts []domain.InvitationAttempt
}

// NewAttemptRepository creates an empty in-memory attempt repository
func NewAttemptRepository() *AttemptRepository {
	return &AttemptRepository{}
}

// Append stores one audit record
func (r *AttemptRepository) Append(ctx context.Context, attempt *domain.InvitationAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := *attempt
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	r.attempts = append(r.attempts, a)
	return nil
}

// RecentForUser returns the user's most recent attempts, newest first
func (r *AttemptRepository) RecentForUser(ctx context.Context, userID int64, limit int) ([]domain.InvitationAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.InvitationAttempt
	for i := len(r.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		if r.attempts[i].UserID == userID {
			out = append(out, r.attempts[i])
		}
	}
	return out, nil
}

// All returns every stored attempt in insertion order
func (r *AttemptRepository) All() []domain.InvitationAttempt {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.InvitationAttempt, len(r.attempts))
	copy(out, r.attempts)
	return out
}
