package pool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/MarkPereverzov/Memberly/config"
	"github.com/MarkPereverzov/Memberly/internal/domain"
	"github.com/MarkPereverzov/Memberly/internal/infrastructure/metrics"
	"github.com/MarkPereverzov/Memberly/internal/infrastructure/telegram"
)

// managedAccount is one pool slot. The mutex is the single-flight guard: the
// underlying session cannot run two operations at once, so every network use
// of the account happens under a held lease.
type managedAccount struct {
	mu             sync.Mutex
	account        domain.Account
	client         domain.MessagingClient
	connected      bool
	suspendedUntil time.Time
}

// Manager owns the authenticated sessions and all mutable account state.
// Nothing outside the pool touches account fields directly.
type Manager struct {
	cfg     *config.TelegramConfig
	repo    domain.AccountRepository
	factory telegram.ClientFactory
	logger  zerolog.Logger
	metrics *metrics.Metrics

	now func() time.Time

	mu       sync.RWMutex
	accounts map[string]*managedAccount
	order    []string // phones in stable rotation order

	cursor atomic.Uint64
}

// NewManager creates an account pool manager
func NewManager(
	cfg *config.TelegramConfig,
	repo domain.AccountRepository,
	factory telegram.ClientFactory,
	logger zerolog.Logger,
	m *metrics.Metrics,
) *Manager {
	return &Manager{
		cfg:      cfg,
		repo:     repo,
		factory:  factory,
		logger:   logger.With().Str("component", "account_pool").Logger(),
		metrics:  m,
		now:      time.Now,
		accounts: make(map[string]*managedAccount),
	}
}

// Initialize loads persisted accounts and connects the active ones
// concurrently, bounded by MaxConcurrent. Connect failures are retried with
// exponential backoff; a permanent auth failure deactivates the account
// instead. Initialization succeeds even when some accounts fail to connect.
func (m *Manager) Initialize(ctx context.Context) error {
	accounts, err := m.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}

	m.logger.Info().Int("total", len(accounts)).Msg("initializing account pool")

	sem := make(chan struct{}, m.cfg.MaxConcurrent)
	var wg sync.WaitGroup

	for _, account := range accounts {
		if !account.IsActive {
			m.logger.Debug().Str("phone", telegram.MaskPhone(account.Phone)).Msg("skipping inactive account")
			continue
		}

		wg.Add(1)
		go func(account domain.Account) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			m.initAccount(ctx, account)
		}(account)
	}

	wg.Wait()

	connected := 0
	m.mu.RLock()
	for _, ma := range m.accounts {
		if ma.connected {
			connected++
		}
	}
	total := len(m.accounts)
	m.mu.RUnlock()

	if m.metrics != nil {
		m.metrics.TotalAccounts.Set(float64(total))
		m.metrics.ActiveAccounts.Set(float64(connected))
	}

	m.logger.Info().Int("connected", connected).Int("total", len(accounts)).Msg("account pool initialized")

	if connected == 0 && len(accounts) > 0 {
		m.logger.Warn().Msg("no account connected, invitations will be rejected until one recovers")
	}

	return nil
}

// initAccount connects one account with bounded exponential backoff.
func (m *Manager) initAccount(ctx context.Context, account domain.Account) {
	logger := m.logger.With().Str("phone", telegram.MaskPhone(account.Phone)).Logger()

	client, err := m.factory(account.Phone)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create client")
		return
	}

	backoff := m.cfg.ConnectBackoff
	var lastErr error

	for attempt := 0; attempt < m.cfg.ConnectRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
		}

		lastErr = client.Connect(ctx)
		if lastErr == nil {
			m.mu.Lock()
			m.accounts[account.Phone] = &managedAccount{
				account:   account,
				client:    client,
				connected: true,
			}
			m.rebuildOrder()
			m.mu.Unlock()

			logger.Info().Msg("account connected")
			return
		}

		if errors.Is(lastErr, domain.ErrAuthenticationFailed) || errors.Is(lastErr, domain.ErrAccountDeactivated) {
			logger.Error().Err(lastErr).Msg("permanent auth failure, deactivating account")
			if derr := m.repo.Deactivate(ctx, account.Phone, lastErr.Error()); derr != nil {
				logger.Error().Err(derr).Msg("failed to persist deactivation")
			}
			return
		}

		logger.Warn().Err(lastErr).Int("attempt", attempt+1).Msg("connect failed, retrying")
	}

	logger.Error().Err(lastErr).Msg("account failed to connect, excluded from rotation")
}

// rebuildOrder recomputes the rotation order. Caller holds m.mu.
func (m *Manager) rebuildOrder() {
	order := make([]string, 0, len(m.accounts))
	for phone := range m.accounts {
		order = append(order, phone)
	}
	sort.Strings(order)
	m.order = order
}

// ActiveAccounts returns a snapshot of the connected accounts.
func (m *Manager) ActiveAccounts() []domain.Account {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Account, 0, len(m.order))
	for _, phone := range m.order {
		ma := m.accounts[phone]
		if ma.connected && ma.account.IsActive {
			out = append(out, ma.account)
		}
	}
	return out
}

// lease is exclusive use of one managed account.
type lease struct {
	ma      *managedAccount
	manager *Manager
	once    sync.Once
}

func (l *lease) Account() *domain.Account { return &l.ma.account }

func (l *lease) Client() domain.MessagingClient { return l.ma.client }

// Release returns the account to rotation, stamping last-used.
func (l *lease) Release() {
	l.once.Do(func() {
		l.manager.mu.Lock()
		l.ma.account.LastUsed = l.manager.now()
		l.manager.mu.Unlock()
		l.ma.mu.Unlock()
	})
}

// SelectAccount picks the next eligible account round-robin and leases it.
// Eligible means connected, active, not suspended, and either unrestricted or
// assigned to the target. Accounts busy with another operation are skipped;
// ErrNoActiveAccounts when nothing can be acquired.
func (m *Manager) SelectAccount(targetID int64) (domain.Lease, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.order)
	if n == 0 {
		return nil, domain.ErrNoActiveAccounts
	}

	now := m.now()
	start := m.cursor.Add(1)

	for i := 0; i < n; i++ {
		phone := m.order[int((start+uint64(i))%uint64(n))]
		ma := m.accounts[phone]

		if !ma.connected || !ma.account.IsActive {
			continue
		}
		if !ma.account.EligibleFor(targetID) {
			continue
		}
		if now.Before(ma.suspendedUntil) {
			continue
		}

		// Busy accounts are skipped rather than waited for.
		if ma.mu.TryLock() {
			return &lease{ma: ma, manager: m}, nil
		}
	}

	return nil, domain.ErrNoActiveAccounts
}

// SendInvitation adds the user to the target through the leased account.
// Throttling suspends only this account for the provider-mandated duration;
// an unreachable target is re-joined once via its stored invite ref before
// giving up.
func (m *Manager) SendInvitation(ctx context.Context, l domain.Lease, userID int64, target *domain.Target) error {
	client := l.Client()
	phone := l.Account().Phone

	err := client.AddMember(ctx, target, userID)
	if errors.Is(err, domain.ErrTargetUnreachable) {
		m.logger.Warn().
			Int64("target_id", target.ID).
			Str("phone", telegram.MaskPhone(phone)).
			Msg("target unreachable, attempting re-join")

		if _, jerr := client.Join(ctx, target.InviteRef); jerr == nil || errors.Is(jerr, domain.ErrAlreadyMember) {
			err = client.AddMember(ctx, target, userID)
		}
	}

	if flood, ok := domain.AsFloodWait(err); ok {
		until := m.now().Add(flood.Duration)
		m.logger.Warn().
			Str("phone", telegram.MaskPhone(phone)).
			Dur("wait", flood.Duration).
			Time("until", until).
			Msg("flood wait, suspending account")
		m.Suspend(phone, until)
		if m.metrics != nil {
			m.metrics.FloodWaitsTotal.Inc()
		}
	}

	return err
}

// ResolveContact runs the ordered fallback strategies, short-circuiting on
// the first success. Every failure reason is kept for caller diagnostics.
func (m *Manager) ResolveContact(ctx context.Context, l domain.Lease, user domain.UserRef) (bool, []domain.ResolutionStep) {
	client := l.Client()

	type strategy struct {
		name string
		run  func(ctx context.Context) error
	}

	strategies := []strategy{
		{
			name: "direct_lookup",
			run: func(ctx context.Context) error {
				_, err := client.ResolveIdentity(ctx, user.ID)
				return err
			},
		},
	}

	if user.Username != "" {
		strategies = append(strategies, strategy{
			name: "alias_search",
			run: func(ctx context.Context) error {
				found, err := client.SearchAlias(ctx, user.Username)
				if err != nil {
					return err
				}
				if found.ID != user.ID {
					return fmt.Errorf("alias %q resolved to a different user", user.Username)
				}
				return nil
			},
		})
	}

	if user.Phone != "" {
		strategies = append(strategies, strategy{
			name: "phone_import",
			run: func(ctx context.Context) error {
				_, err := client.ImportContactByPhone(ctx, user.Phone)
				return err
			},
		})
	}

	var steps []domain.ResolutionStep
	for _, s := range strategies {
		err := s.run(ctx)
		steps = append(steps, domain.ResolutionStep{Strategy: s.name, Err: err})
		if err == nil {
			return true, steps
		}
		m.logger.Debug().
			Err(err).
			Str("strategy", s.name).
			Int64("user_id", user.ID).
			Msg("contact resolution strategy failed")
	}

	return false, steps
}

// usable returns the connected active accounts in rotation order. The slice
// is a snapshot taken under the lock; the map must not be iterated outside it
// since initAccount inserts concurrently.
func (m *Manager) usable() []*managedAccount {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*managedAccount, 0, len(m.order))
	for _, phone := range m.order {
		ma := m.accounts[phone]
		if ma.connected && ma.account.IsActive {
			out = append(out, ma)
		}
	}
	return out
}

// JoinTarget joins the target behind inviteRef via the first available
// account and returns its canonical id and title. Already being a member
// counts as success.
func (m *Manager) JoinTarget(ctx context.Context, inviteRef string) (int64, string, error) {
	var lastErr error = domain.ErrNoActiveAccounts

	for _, ma := range m.usable() {
		ma.mu.Lock()
		desc, err := ma.client.Join(ctx, inviteRef)
		ma.mu.Unlock()

		if err == nil || errors.Is(err, domain.ErrAlreadyMember) {
			return desc.ID, desc.Title, nil
		}

		lastErr = err
		m.logger.Warn().
			Err(err).
			Str("phone", telegram.MaskPhone(ma.account.Phone)).
			Msg("join attempt failed, trying next account")
	}

	return 0, "", lastErr
}

// JoinAll joins the target with every connected account, tolerating partial
// failure. Returns how many accounts joined.
func (m *Manager) JoinAll(ctx context.Context, inviteRef string) int {
	joined := 0
	for _, ma := range m.usable() {
		ma.mu.Lock()
		_, err := ma.client.Join(ctx, inviteRef)
		ma.mu.Unlock()

		if err == nil || errors.Is(err, domain.ErrAlreadyMember) {
			joined++
			continue
		}
		m.logger.Warn().
			Err(err).
			Str("phone", telegram.MaskPhone(ma.account.Phone)).
			Msg("account failed to join target")
	}
	return joined
}

// ReadMemberCount fans out across accounts and returns the first successful
// member-count read. Any single account may lack visibility into the target.
func (m *Manager) ReadMemberCount(ctx context.Context, target *domain.Target) (int, error) {
	var lastErr error = domain.ErrNoActiveAccounts

	for _, ma := range m.usable() {
		ma.mu.Lock()
		count, err := ma.client.MemberCount(ctx, target)
		ma.mu.Unlock()

		if err == nil {
			return count, nil
		}
		lastErr = err
	}

	return 0, lastErr
}

// Suspend takes the account out of rotation until the deadline. Operations
// already in flight on the account finish normally.
func (m *Manager) Suspend(phone string, until time.Time) {
	m.mu.RLock()
	ma, ok := m.accounts[phone]
	m.mu.RUnlock()
	if !ok {
		return
	}

	m.mu.Lock()
	ma.suspendedUntil = until
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.AccountsSuspended.Inc()
	}
}

// Shutdown closes every session best-effort; one failure does not abort the
// rest.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	accounts := make([]*managedAccount, 0, len(m.accounts))
	for _, ma := range m.accounts {
		accounts = append(accounts, ma)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, ma := range accounts {
		wg.Add(1)
		go func(ma *managedAccount) {
			defer wg.Done()
			if err := ma.client.Disconnect(ctx); err != nil {
				m.logger.Warn().
					Err(err).
					Str("phone", telegram.MaskPhone(ma.account.Phone)).
					Msg("failed to disconnect account")
			}
		}(ma)
	}
	wg.Wait()

	m.mu.Lock()
	for _, ma := range m.accounts {
		ma.connected = false
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ActiveAccounts.Set(0)
	}

	m.logger.Info().Int("accounts", len(accounts)).Msg("account pool shut down")
}

// Ensure Manager implements domain.AccountPool interface
var _ domain.AccountPool = (*Manager)(nil)
