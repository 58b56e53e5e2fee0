package domain

import (
	"context"
	"time"
)

// MessagingClient is one authenticated provider session. Implementations are
// not required to be safe for concurrent operations; the pool serializes use
// per account.
type MessagingClient interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	AccountID() string

	// GetMember returns the user's membership status in the target, or
	// ErrUserNotFound when the user is not a participant.
	GetMember(ctx context.Context, target *Target, userID int64) (MemberStatus, error)

	// AddMember adds the user to the target directly. Errors are classified
	// into the domain sentinels (ErrAlreadyMember, ErrContactRequired,
	// ErrPrivacyRestricted, ErrTargetUnreachable, FloodWaitError).
	AddMember(ctx context.Context, target *Target, userID int64) error

	SendDirectMessage(ctx context.Context, userID int64, text string) error

	// Join joins the target behind the invite ref and returns its canonical
	// descriptor. ErrAlreadyMember still yields a valid descriptor.
	Join(ctx context.Context, inviteRef string) (*TargetDescriptor, error)

	ResolveIdentity(ctx context.Context, userID int64) (*UserDescriptor, error)
	SearchAlias(ctx context.Context, alias string) (*UserDescriptor, error)
	ImportContactByPhone(ctx context.Context, phone string) (*UserDescriptor, error)

	MemberCount(ctx context.Context, target *Target) (int, error)
}

// Lease is exclusive use of one pooled account. Release returns the account
// to the pool; callers must release exactly once.
type Lease interface {
	Account() *Account
	Client() MessagingClient
	Release()
}

// AccountPool owns the authenticated sessions and all account state.
type AccountPool interface {
	// Initialize loads persisted accounts and connects the active ones.
	Initialize(ctx context.Context) error

	// ActiveAccounts is a pure snapshot query.
	ActiveAccounts() []Account

	// SelectAccount picks the next eligible account round-robin and leases
	// it. ErrNoActiveAccounts when nothing is eligible.
	SelectAccount(targetID int64) (Lease, error)

	// SendInvitation delivers an invite message for the target to the user.
	SendInvitation(ctx context.Context, lease Lease, userID int64, target *Target) error

	// ResolveContact runs the ordered fallback strategies. ok is true after
	// the first success; steps retains every strategy outcome either way.
	ResolveContact(ctx context.Context, lease Lease, user UserRef) (ok bool, steps []ResolutionStep)

	// JoinTarget joins the target behind inviteRef via the first available
	// account and returns the canonical target id.
	JoinTarget(ctx context.Context, inviteRef string) (int64, string, error)

	// JoinAll joins the target with every connected account, tolerating
	// partial failure. Returns how many accounts joined.
	JoinAll(ctx context.Context, inviteRef string) int

	// ReadMemberCount fans out across accounts and returns the first
	// successful member-count read; any single account may lack visibility.
	ReadMemberCount(ctx context.Context, target *Target) (int, error)

	// Suspend takes the account out of rotation until the deadline.
	Suspend(phone string, until time.Time)

	Shutdown(ctx context.Context)
}

// CooldownEngine gates users and targets on elapsed-time windows and serves
// administrative blocks.
type CooldownEngine interface {
	// CanRequest and CanTarget are read-only views for status reporting;
	// the Reserve pair checks and consumes in one atomic step.
	CanRequest(userID int64) (bool, string)
	CanTarget(targetID int64) (bool, string)
	ReserveRequest(userID int64) (bool, string)
	RollbackRequest(userID int64)
	ReserveTarget(targetID int64) (bool, string)
	ReleaseTarget(targetID int64, success bool)
	RecordAttempt(userID, targetID int64, success bool)
	Block(userID int64, d time.Duration)
	Unblock(userID int64)
	CleanupExpired() int
}

// TargetRegistry tracks invitation targets and their member-count caches.
type TargetRegistry interface {
	Initialize(ctx context.Context) error
	ActiveTargets() []Target
	Get(targetID int64) (*Target, error)
	AddTarget(ctx context.Context, ref, name string) (*Target, error)
	AddTargetWithAutoJoin(ctx context.Context, ref, name string) (*Target, error)
	RemoveTarget(ctx context.Context, targetID int64) error
	RefreshMemberCounts(ctx context.Context) RefreshReport
}

// AccessControl is the whitelist/blacklist gate in front of the invite flow.
type AccessControl interface {
	CanAccess(ctx context.Context, userID int64) (bool, string)
	IsAdmin(userID int64) bool
	AddToWhitelist(ctx context.Context, userID int64, username string, days int, addedBy int64) error
	RemoveFromWhitelist(ctx context.Context, userID int64) error
	AddToBlacklist(ctx context.Context, userID int64, username, reason string, addedBy int64) error
	RemoveFromBlacklist(ctx context.Context, userID int64) error
	Whitelisted(ctx context.Context) ([]WhitelistEntry, error)
	Blacklisted(ctx context.Context) ([]BlacklistEntry, error)
}

// Orchestrator executes the multi-target invitation saga for one user.
type Orchestrator interface {
	Invite(ctx context.Context, user UserRef) (*InviteReport, error)
}

// AccountRepository persists pool accounts.
type AccountRepository interface {
	List(ctx context.Context) ([]Account, error)
	Save(ctx context.Context, account *Account) error
	Deactivate(ctx context.Context, phone string, reason string) error
}

// TargetRepository persists invitation targets.
type TargetRepository interface {
	List(ctx context.Context) ([]Target, error)
	Save(ctx context.Context, target *Target) error
	Delete(ctx context.Context, targetID int64) error
	UpdateMemberCount(ctx context.Context, targetID int64, count int, at time.Time) error
}

// AccessRepository persists whitelist and blacklist entries.
type AccessRepository interface {
	GetWhitelist(ctx context.Context, userID int64) (*WhitelistEntry, error)
	PutWhitelist(ctx context.Context, entry *WhitelistEntry) error
	DeleteWhitelist(ctx context.Context, userID int64) error
	ListWhitelist(ctx context.Context) ([]WhitelistEntry, error)
	GetBlacklist(ctx context.Context, userID int64) (*BlacklistEntry, error)
	PutBlacklist(ctx context.Context, entry *BlacklistEntry) error
	DeleteBlacklist(ctx context.Context, userID int64) error
	ListBlacklist(ctx context.Context) ([]BlacklistEntry, error)
}

// AttemptRepository is the append-only invitation audit log.
type AttemptRepository interface {
	Append(ctx context.Context, attempt *InvitationAttempt) error
	RecentForUser(ctx context.Context, userID int64, limit int) ([]InvitationAttempt, error)
}

// AuditPublisher mirrors audit records onto a stream for external consumers.
// Publishing is best-effort; the repository remains the durable record.
type AuditPublisher interface {
	Publish(ctx context.Context, attempt *InvitationAttempt) error
	Close() error
}
