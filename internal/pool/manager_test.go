package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/MarkPereverzov/Memberly/config"
	"github.com/MarkPereverzov/Memberly/internal/domain"
	"github.com/MarkPereverzov/Memberly/internal/infrastructure/telegram"
	"github.com/MarkPereverzov/Memberly/internal/repository/memory"
)

// mockClient is a test double for domain.MessagingClient with pluggable
// behavior per operation.
type mockClient struct {
	phone     string
	connected bool
	mu        sync.Mutex

	connectErr   error
	connectDelay time.Duration

	addMemberFn func(targetID, userID int64) error
	joinFn      func(ref string) (*domain.TargetDescriptor, error)
	resolveFn   func(userID int64) error
	searchFn    func(alias string) error
	importFn    func(phone string) error
	countFn     func(targetID int64) (int, error)

	addCalls  int
	joinCalls int
}

func (m *mockClient) Connect(ctx context.Context) error {
	if m.connectDelay > 0 {
		time.Sleep(m.connectDelay)
	}
	if m.connectErr != nil {
		return m.connectErr
	}
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	return nil
}

func (m *mockClient) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

func (m *mockClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockClient) AccountID() string { return m.phone }

func (m *mockClient) GetMember(ctx context.Context, target *domain.Target, userID int64) (domain.MemberStatus, error) {
	return "", domain.ErrUserNotFound
}

func (m *mockClient) AddMember(ctx context.Context, target *domain.Target, userID int64) error {
	m.mu.Lock()
	m.addCalls++
	m.mu.Unlock()
	if m.addMemberFn != nil {
		return m.addMemberFn(target.ID, userID)
	}
	return nil
}

func (m *mockClient) SendDirectMessage(ctx context.Context, userID int64, text string) error {
	return nil
}

func (m *mockClient) Join(ctx context.Context, inviteRef string) (*domain.TargetDescriptor, error) {
	m.mu.Lock()
	m.joinCalls++
	m.mu.Unlock()
	if m.joinFn != nil {
		return m.joinFn(inviteRef)
	}
	return &domain.TargetDescriptor{ID: 100, Title: "Group"}, nil
}

func (m *mockClient) ResolveIdentity(ctx context.Context, userID int64) (*domain.UserDescriptor, error) {
	if m.resolveFn != nil {
		if err := m.resolveFn(userID); err != nil {
			return nil, err
		}
	}
	return &domain.UserDescriptor{ID: userID}, nil
}

func (m *mockClient) SearchAlias(ctx context.Context, alias string) (*domain.UserDescriptor, error) {
	if m.searchFn != nil {
		if err := m.searchFn(alias); err != nil {
			return nil, err
		}
	}
	return &domain.UserDescriptor{ID: 42, Username: alias}, nil
}

func (m *mockClient) ImportContactByPhone(ctx context.Context, phone string) (*domain.UserDescriptor, error) {
	if m.importFn != nil {
		if err := m.importFn(phone); err != nil {
			return nil, err
		}
	}
	return &domain.UserDescriptor{ID: 42}, nil
}

func (m *mockClient) MemberCount(ctx context.Context, target *domain.Target) (int, error) {
	if m.countFn != nil {
		return m.countFn(target.ID)
	}
	return 0, domain.ErrTargetUnreachable
}

func testConfig() *config.TelegramConfig {
	return &config.TelegramConfig{
		APIID:          1,
		APIHash:        "hash",
		SessionDir:     "./sessions",
		ConnectRetries: 2,
		ConnectBackoff: time.Millisecond,
		MaxConcurrent:  4,
	}
}

// newTestManager builds a manager over the given mock clients, keyed by
// phone, with matching active accounts persisted in the repo.
func newTestManager(t *testing.T, clients map[string]*mockClient) (*Manager, *memory.AccountRepository) {
	t.Helper()

	repo := memory.NewAccountRepository()
	for phone := range clients {
		if err := repo.Save(context.Background(), &domain.Account{Phone: phone, IsActive: true}); err != nil {
			t.Fatalf("seed account: %v", err)
		}
	}

	factory := telegram.ClientFactory(func(phone string) (domain.MessagingClient, error) {
		c, ok := clients[phone]
		if !ok {
			t.Fatalf("factory called for unknown phone %s", phone)
		}
		return c, nil
	})

	m := NewManager(testConfig(), repo, factory, zerolog.Nop(), nil)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return m, repo
}

func TestInitializeConnectsActiveAccounts(t *testing.T) {
	clients := map[string]*mockClient{
		"+10000000001": {phone: "+10000000001"},
		"+10000000002": {phone: "+10000000002"},
	}
	m, _ := newTestManager(t, clients)

	accounts := m.ActiveAccounts()
	if len(accounts) != 2 {
		t.Fatalf("expected 2 active accounts, got %d", len(accounts))
	}
}

func TestInitializeDeactivatesOnAuthFailure(t *testing.T) {
	clients := map[string]*mockClient{
		"+10000000001": {phone: "+10000000001", connectErr: domain.ErrAuthenticationFailed},
		"+10000000002": {phone: "+10000000002"},
	}
	m, repo := newTestManager(t, clients)

	if got := len(m.ActiveAccounts()); got != 1 {
		t.Fatalf("expected 1 active account, got %d", got)
	}

	persisted, _ := repo.List(context.Background())
	for _, a := range persisted {
		if a.Phone == "+10000000001" && a.IsActive {
			t.Fatal("auth-failed account should be deactivated in the repository")
		}
	}
}

func TestSelectAccountRoundRobin(t *testing.T) {
	clients := map[string]*mockClient{
		"+10000000001": {phone: "+10000000001"},
		"+10000000002": {phone: "+10000000002"},
	}
	m, _ := newTestManager(t, clients)

	const rounds = 6
	counts := map[string]int{}
	for i := 0; i < rounds; i++ {
		l, err := m.SelectAccount(1)
		if err != nil {
			t.Fatalf("select %d: %v", i, err)
		}
		counts[l.Account().Phone]++
		l.Release()
	}

	// Rotation must spread selections evenly: each of N accounts serves
	// exactly M/N of M requests.
	for phone, n := range counts {
		if n != rounds/len(clients) {
			t.Errorf("account %s selected %d times, want %d", phone, n, rounds/len(clients))
		}
	}
}

func TestSelectAccountSkipsBusy(t *testing.T) {
	clients := map[string]*mockClient{
		"+10000000001": {phone: "+10000000001"},
		"+10000000002": {phone: "+10000000002"},
	}
	m, _ := newTestManager(t, clients)

	first, err := m.SelectAccount(1)
	if err != nil {
		t.Fatalf("first select: %v", err)
	}

	second, err := m.SelectAccount(1)
	if err != nil {
		t.Fatalf("second select: %v", err)
	}
	if first.Account().Phone == second.Account().Phone {
		t.Fatal("busy account leased twice")
	}

	if _, err := m.SelectAccount(1); !errors.Is(err, domain.ErrNoActiveAccounts) {
		t.Fatalf("expected ErrNoActiveAccounts with all accounts busy, got %v", err)
	}

	first.Release()
	second.Release()

	if _, err := m.SelectAccount(1); err != nil {
		t.Fatalf("select after release: %v", err)
	}
}

func TestSelectAccountHonorsAssignment(t *testing.T) {
	clients := map[string]*mockClient{
		"+10000000001": {phone: "+10000000001"},
	}
	m, _ := newTestManager(t, clients)

	// Restrict the only account to target 5.
	m.mu.Lock()
	ma := m.accounts["+10000000001"]
	ma.account.AssignedTargets = []int64{5}
	m.mu.Unlock()

	if _, err := m.SelectAccount(7); !errors.Is(err, domain.ErrNoActiveAccounts) {
		t.Fatalf("expected ErrNoActiveAccounts for unassigned target, got %v", err)
	}

	l, err := m.SelectAccount(5)
	if err != nil {
		t.Fatalf("select assigned target: %v", err)
	}
	l.Release()
}

func TestSuspendExcludesAccountUntilDeadline(t *testing.T) {
	clients := map[string]*mockClient{
		"+10000000001": {phone: "+10000000001"},
	}
	m, _ := newTestManager(t, clients)

	base := time.Now()
	m.now = func() time.Time { return base }

	m.Suspend("+10000000001", base.Add(time.Minute))

	if _, err := m.SelectAccount(1); !errors.Is(err, domain.ErrNoActiveAccounts) {
		t.Fatalf("expected suspended account to be skipped, got %v", err)
	}

	m.now = func() time.Time { return base.Add(time.Minute + time.Second) }
	l, err := m.SelectAccount(1)
	if err != nil {
		t.Fatalf("select after suspension expiry: %v", err)
	}
	l.Release()
}

func TestSendInvitationFloodSuspendsOnlyOffender(t *testing.T) {
	flooded := &mockClient{
		phone: "+10000000001",
		addMemberFn: func(targetID, userID int64) error {
			return &domain.FloodWaitError{Duration: time.Minute}
		},
	}
	clients := map[string]*mockClient{
		"+10000000001": flooded,
		"+10000000002": {phone: "+10000000002"},
	}
	m, _ := newTestManager(t, clients)

	target := &domain.Target{ID: 1, Name: "g", InviteRef: "@g"}

	// Drive selections until the flooded account is leased.
	var floodErr error
	for i := 0; i < 2; i++ {
		l, err := m.SelectAccount(1)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		err = m.SendInvitation(context.Background(), l, 42, target)
		l.Release()
		if l.Account().Phone == "+10000000001" {
			floodErr = err
		}
	}

	if _, ok := domain.AsFloodWait(floodErr); !ok {
		t.Fatalf("expected flood wait from offending account, got %v", floodErr)
	}

	// Only the healthy account remains selectable.
	for i := 0; i < 4; i++ {
		l, err := m.SelectAccount(1)
		if err != nil {
			t.Fatalf("select after suspension: %v", err)
		}
		if l.Account().Phone == "+10000000001" {
			t.Fatal("suspended account returned to rotation early")
		}
		l.Release()
	}
}

func TestSendInvitationRejoinsUnreachableTarget(t *testing.T) {
	calls := 0
	client := &mockClient{
		phone: "+10000000001",
		addMemberFn: func(targetID, userID int64) error {
			calls++
			if calls == 1 {
				return domain.ErrTargetUnreachable
			}
			return nil
		},
	}
	m, _ := newTestManager(t, map[string]*mockClient{"+10000000001": client})

	l, err := m.SelectAccount(1)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	defer l.Release()

	target := &domain.Target{ID: 1, Name: "g", InviteRef: "https://t.me/+abc"}
	if err := m.SendInvitation(context.Background(), l, 42, target); err != nil {
		t.Fatalf("expected re-join to recover the add, got %v", err)
	}
	if client.joinCalls != 1 {
		t.Fatalf("expected 1 join call, got %d", client.joinCalls)
	}
}

func TestResolveContactShortCircuitsAndKeepsReasons(t *testing.T) {
	client := &mockClient{
		phone:     "+10000000001",
		resolveFn: func(userID int64) error { return domain.ErrUserNotFound },
		searchFn:  func(alias string) error { return nil },
	}
	m, _ := newTestManager(t, map[string]*mockClient{"+10000000001": client})

	l, err := m.SelectAccount(1)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	defer l.Release()

	ok, steps := m.ResolveContact(context.Background(), l, domain.UserRef{ID: 42, Username: "alice", Phone: "+1999"})
	if !ok {
		t.Fatal("expected resolution to succeed via alias search")
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps (short-circuit before phone import), got %d", len(steps))
	}
	if steps[0].Strategy != "direct_lookup" || !errors.Is(steps[0].Err, domain.ErrUserNotFound) {
		t.Fatalf("first step should keep the direct lookup failure, got %+v", steps[0])
	}
	if steps[1].Strategy != "alias_search" || steps[1].Err != nil {
		t.Fatalf("second step should be the successful alias search, got %+v", steps[1])
	}
}

func TestJoinTargetTreatsAlreadyMemberAsSuccess(t *testing.T) {
	client := &mockClient{
		phone: "+10000000001",
		joinFn: func(ref string) (*domain.TargetDescriptor, error) {
			return &domain.TargetDescriptor{ID: 777, Title: "Known"}, domain.ErrAlreadyMember
		},
	}
	m, _ := newTestManager(t, map[string]*mockClient{"+10000000001": client})

	id, title, err := m.JoinTarget(context.Background(), "https://t.me/+abc")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if id != 777 || title != "Known" {
		t.Fatalf("unexpected descriptor: %d %q", id, title)
	}
}

func TestFanOutSafeDuringInitialize(t *testing.T) {
	clients := map[string]*mockClient{}
	for i := 0; i < 8; i++ {
		phone := fmt.Sprintf("+1000000010%d", i)
		clients[phone] = &mockClient{phone: phone, connectDelay: time.Millisecond}
	}

	repo := memory.NewAccountRepository()
	for phone := range clients {
		if err := repo.Save(context.Background(), &domain.Account{Phone: phone, IsActive: true}); err != nil {
			t.Fatalf("seed account: %v", err)
		}
	}
	factory := telegram.ClientFactory(func(phone string) (domain.MessagingClient, error) {
		return clients[phone], nil
	})
	m := NewManager(testConfig(), repo, factory, zerolog.Nop(), nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Initialize(context.Background())
	}()

	// Fan-out calls while initAccount is still inserting into the pool:
	// they must only ever see consistent snapshots.
	for {
		select {
		case <-done:
			if got := m.JoinAll(context.Background(), "@g"); got != len(clients) {
				t.Fatalf("expected all %d accounts to join after init, got %d", len(clients), got)
			}
			return
		default:
			m.JoinAll(context.Background(), "@g")
			_, _, _ = m.JoinTarget(context.Background(), "@g")
			_, _ = m.ReadMemberCount(context.Background(), &domain.Target{ID: 1, InviteRef: "@g"})
		}
	}
}

func TestShutdownDisconnectsAllAccounts(t *testing.T) {
	clients := map[string]*mockClient{
		"+10000000001": {phone: "+10000000001"},
		"+10000000002": {phone: "+10000000002"},
	}
	m, _ := newTestManager(t, clients)

	m.Shutdown(context.Background())

	for phone, c := range clients {
		if c.IsConnected() {
			t.Errorf("account %s still connected after shutdown", phone)
		}
	}
	if got := len(m.ActiveAccounts()); got != 0 {
		t.Fatalf("expected 0 active accounts after shutdown, got %d", got)
	}
}
