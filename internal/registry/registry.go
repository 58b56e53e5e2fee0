package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MarkPereverzov/Memberly/internal/domain"
	"github.com/MarkPereverzov/Memberly/internal/infrastructure/metrics"
)

// Registry tracks invitation targets with a write-through in-memory cache
// over the repository. Reads on the hot invite path never touch storage.
type Registry struct {
	repo    domain.TargetRepository
	pool    domain.AccountPool
	logger  zerolog.Logger
	metrics *metrics.Metrics

	now func() time.Time

	mu      sync.RWMutex
	targets map[int64]domain.Target
}

// NewRegistry creates a target registry
func NewRegistry(
	repo domain.TargetRepository,
	pool domain.AccountPool,
	logger zerolog.Logger,
	m *metrics.Metrics,
) *Registry {
	return &Registry{
		repo:    repo,
		pool:    pool,
		logger:  logger.With().Str("component", "target_registry").Logger(),
		metrics: m,
		now:     time.Now,
		targets: make(map[int64]domain.Target),
	}
}

// Initialize loads persisted targets into the cache
func (r *Registry) Initialize(ctx context.Context) error {
	targets, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load targets: %w", err)
	}

	r.mu.Lock()
	for _, t := range targets {
		r.targets[t.ID] = t
	}
	r.mu.Unlock()

	r.updateGauge()
	r.logger.Info().Int("targets", len(targets)).Msg("target registry initialized")
	return nil
}

// ActiveTargets returns the active targets in stable id order.
func (r *Registry) ActiveTargets() []domain.Target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Target, 0, len(r.targets))
	for _, t := range r.targets {
		if t.IsActive {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the target by id, ErrTargetNotFound when unknown
func (r *Registry) Get(targetID int64) (*domain.Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.targets[targetID]
	if !ok {
		return nil, domain.ErrTargetNotFound
	}
	return &t, nil
}

// AddTarget registers a target by invite ref. The canonical id comes from
// joining with one available account; AddTargetWithAutoJoin additionally
// joins with every account. Registration fails when the ref cannot be
// resolved at all.
func (r *Registry) AddTarget(ctx context.Context, ref, name string) (*domain.Target, error) {
	id, title, err := r.pool.JoinTarget(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve target ref: %w", err)
	}
	return r.register(ctx, id, title, ref, name)
}

// AddTargetWithAutoJoin registers a target and joins it with every connected
// account. Partial account-join failure is tolerated as long as registration
// itself succeeds; the member count is refreshed best-effort afterwards.
func (r *Registry) AddTargetWithAutoJoin(ctx context.Context, ref, name string) (*domain.Target, error) {
	id, title, err := r.pool.JoinTarget(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to join target: %w", err)
	}

	joined := r.pool.JoinAll(ctx, ref)
	r.logger.Info().Int64("target_id", id).Int("accounts_joined", joined).Msg("auto-join completed")

	target, err := r.register(ctx, id, title, ref, name)
	if err != nil {
		return nil, err
	}

	if count, cerr := r.pool.ReadMemberCount(ctx, target); cerr == nil {
		r.storeMemberCount(ctx, target.ID, count)
		target.MemberCount = count
	} else {
		r.logger.Warn().Err(cerr).Int64("target_id", id).Msg("initial member count read failed")
	}

	return target, nil
}

// register persists the target and installs it in the cache.
func (r *Registry) register(ctx context.Context, id int64, title, ref, name string) (*domain.Target, error) {
	if name == "" {
		name = title
	}

	r.mu.RLock()
	_, exists := r.targets[id]
	r.mu.RUnlock()
	if exists {
		return nil, domain.ErrTargetExists
	}

	target := domain.Target{
		ID:        id,
		Name:      name,
		InviteRef: ref,
		IsActive:  true,
	}

	if err := r.repo.Save(ctx, &target); err != nil {
		return nil, fmt.Errorf("failed to persist target: %w", err)
	}

	r.mu.Lock()
	r.targets[id] = target
	r.mu.Unlock()

	r.updateGauge()
	r.logger.Info().Int64("target_id", id).Str("name", name).Msg("target registered")
	return &target, nil
}

// RemoveTarget deletes the target and cascades the in-memory bookkeeping
func (r *Registry) RemoveTarget(ctx context.Context, targetID int64) error {
	r.mu.RLock()
	_, ok := r.targets[targetID]
	r.mu.RUnlock()
	if !ok {
		return domain.ErrTargetNotFound
	}

	if err := r.repo.Delete(ctx, targetID); err != nil {
		return fmt.Errorf("failed to delete target: %w", err)
	}

	r.mu.Lock()
	delete(r.targets, targetID)
	r.mu.Unlock()

	r.updateGauge()
	r.logger.Info().Int64("target_id", targetID).Msg("target removed")
	return nil
}

// RefreshMemberCounts reads the member count of every active target through
// the pool and persists it with a refresh timestamp. Per-target failure is
// counted, not fatal.
func (r *Registry) RefreshMemberCounts(ctx context.Context) domain.RefreshReport {
	var report domain.RefreshReport

	for _, target := range r.ActiveTargets() {
		target := target
		count, err := r.pool.ReadMemberCount(ctx, &target)
		if err != nil {
			report.Failed++
			if r.metrics != nil {
				r.metrics.MemberRefreshErrors.Inc()
			}
			r.logger.Warn().Err(err).Int64("target_id", target.ID).Msg("member count refresh failed")
			continue
		}

		r.storeMemberCount(ctx, target.ID, count)
		report.Refreshed++
	}

	r.logger.Info().
		Int("refreshed", report.Refreshed).
		Int("failed", report.Failed).
		Msg("member count refresh sweep finished")
	return report
}

// storeMemberCount persists the count and updates the cache.
func (r *Registry) storeMemberCount(ctx context.Context, targetID int64, count int) {
	at := r.now()

	if err := r.repo.UpdateMemberCount(ctx, targetID, count, at); err != nil {
		r.logger.Error().Err(err).Int64("target_id", targetID).Msg("failed to persist member count")
	}

	r.mu.Lock()
	if t, ok := r.targets[targetID]; ok {
		t.MemberCount = count
		t.RefreshedAt = at
		r.targets[targetID] = t
	}
	r.mu.Unlock()
}

func (r *Registry) updateGauge() {
	if r.metrics == nil {
		return
	}
	r.metrics.ActiveTargets.Set(float64(len(r.ActiveTargets())))
}

// Ensure Registry implements domain.TargetRegistry interface
var _ domain.TargetRegistry = (*Registry)(nil)
