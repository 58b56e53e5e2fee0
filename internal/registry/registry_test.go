package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/MarkPereverzov/Memberly/internal/domain"
	"github.com/MarkPereverzov/Memberly/internal/repository/memory"
)

// fakePool is a minimal domain.AccountPool for registry tests.
type fakePool struct {
	joinID    int64
	joinTitle string
	joinErr   error
	joinAll   int
	counts    map[int64]int
	countErr  error
}

func (p *fakePool) Initialize(ctx context.Context) error    { return nil }
func (p *fakePool) ActiveAccounts() []domain.Account        { return nil }
func (p *fakePool) SelectAccount(int64) (domain.Lease, error) {
	return nil, domain.ErrNoActiveAccounts
}
func (p *fakePool) SendInvitation(ctx context.Context, l domain.Lease, userID int64, target *domain.Target) error {
	return nil
}
func (p *fakePool) ResolveContact(ctx context.Context, l domain.Lease, user domain.UserRef) (bool, []domain.ResolutionStep) {
	return false, nil
}
func (p *fakePool) JoinTarget(ctx context.Context, ref string) (int64, string, error) {
	return p.joinID, p.joinTitle, p.joinErr
}
func (p *fakePool) JoinAll(ctx context.Context, ref string) int { return p.joinAll }
func (p *fakePool) ReadMemberCount(ctx context.Context, target *domain.Target) (int, error) {
	if p.countErr != nil {
		return 0, p.countErr
	}
	return p.counts[target.ID], nil
}
func (p *fakePool) Suspend(phone string, until time.Time) {}
func (p *fakePool) Shutdown(ctx context.Context)          {}

func newTestRegistry(pool *fakePool) (*Registry, *memory.TargetRepository) {
	repo := memory.NewTargetRepository()
	return NewRegistry(repo, pool, zerolog.Nop(), nil), repo
}

func TestInitializeLoadsPersistedTargets(t *testing.T) {
	pool := &fakePool{}
	r, repo := newTestRegistry(pool)
	ctx := context.Background()

	_ = repo.Save(ctx, &domain.Target{ID: 1, Name: "a", IsActive: true})
	_ = repo.Save(ctx, &domain.Target{ID: 2, Name: "b", IsActive: false})

	if err := r.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	active := r.ActiveTargets()
	if len(active) != 1 || active[0].ID != 1 {
		t.Fatalf("expected only target 1 active, got %+v", active)
	}
}

func TestAddTargetWithAutoJoin(t *testing.T) {
	pool := &fakePool{joinID: 100, joinTitle: "Real Name", joinAll: 2, counts: map[int64]int{100: 345}}
	r, repo := newTestRegistry(pool)
	ctx := context.Background()

	target, err := r.AddTargetWithAutoJoin(ctx, "https://t.me/+abc", "")
	if err != nil {
		t.Fatalf("add target: %v", err)
	}
	if target.ID != 100 {
		t.Fatalf("expected canonical id 100, got %d", target.ID)
	}
	if target.Name != "Real Name" {
		t.Fatalf("empty name should fall back to the resolved title, got %q", target.Name)
	}
	if target.MemberCount != 345 {
		t.Fatalf("expected initial member count 345, got %d", target.MemberCount)
	}

	persisted, _ := repo.List(ctx)
	if len(persisted) != 1 || persisted[0].ID != 100 {
		t.Fatalf("target not persisted: %+v", persisted)
	}
}

func TestAddTargetRejectsDuplicates(t *testing.T) {
	pool := &fakePool{joinID: 100, joinTitle: "g"}
	r, _ := newTestRegistry(pool)
	ctx := context.Background()

	if _, err := r.AddTarget(ctx, "@g", "g"); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := r.AddTarget(ctx, "@g", "g"); !errors.Is(err, domain.ErrTargetExists) {
		t.Fatalf("expected ErrTargetExists, got %v", err)
	}
}

func TestAddTargetFailsWhenJoinFails(t *testing.T) {
	pool := &fakePool{joinErr: domain.ErrTargetUnreachable}
	r, _ := newTestRegistry(pool)

	if _, err := r.AddTargetWithAutoJoin(context.Background(), "@gone", ""); err == nil {
		t.Fatal("expected registration to fail when the join fails")
	}
}

func TestRemoveTargetCascades(t *testing.T) {
	pool := &fakePool{joinID: 100, joinTitle: "g"}
	r, repo := newTestRegistry(pool)
	ctx := context.Background()

	if _, err := r.AddTarget(ctx, "@g", "g"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.RemoveTarget(ctx, 100); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if len(r.ActiveTargets()) != 0 {
		t.Fatal("removed target still in cache")
	}
	if persisted, _ := repo.List(ctx); len(persisted) != 0 {
		t.Fatal("removed target still persisted")
	}

	if err := r.RemoveTarget(ctx, 100); !errors.Is(err, domain.ErrTargetNotFound) {
		t.Fatalf("expected ErrTargetNotFound on second remove, got %v", err)
	}
}

func TestRefreshMemberCountsCountsFailures(t *testing.T) {
	pool := &fakePool{counts: map[int64]int{1: 10, 2: 20}}
	r, repo := newTestRegistry(pool)
	ctx := context.Background()

	_ = repo.Save(ctx, &domain.Target{ID: 1, Name: "a", IsActive: true})
	_ = repo.Save(ctx, &domain.Target{ID: 2, Name: "b", IsActive: true})
	if err := r.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	report := r.RefreshMemberCounts(ctx)
	if report.Refreshed != 2 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}

	got, err := r.Get(2)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MemberCount != 20 || got.RefreshedAt.IsZero() {
		t.Fatalf("cache not refreshed: %+v", got)
	}

	pool.countErr = domain.ErrNoActiveAccounts
	report = r.RefreshMemberCounts(ctx)
	if report.Refreshed != 0 || report.Failed != 2 {
		t.Fatalf("failures not counted: %+v", report)
	}
}
